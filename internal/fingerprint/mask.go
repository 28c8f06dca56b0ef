package fingerprint

import (
	"regexp"
	"strings"
)

// maskPattern pairs a concrete-value pattern with its placeholder.
type maskPattern struct {
	name        string
	placeholder string
	re          string
}

// Patterns are tried earliest-match-first over the text; when two patterns
// match at the same offset the one listed first wins, so the specific
// groupings (card, phone) precede the bare numeric forms they contain.
var maskPatterns = []maskPattern{
	{"uuid", "{UUID}", `[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`},
	{"url", "{URL}", `https?://[^\s<>"'` + "`" + `]+`},
	{"email", "{EMAIL}", `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`},
	{"isodate", "{DATE}", `\d{4}-\d{2}-\d{2}`},
	{"slashdate", "{DATE}", `\d{1,4}/\d{1,2}/\d{2,4}`},
	{"ip", "{IP}", `(?:\d{1,3}\.){3}\d{1,3}`},
	{"card", "{CARD}", `\d{4}[- ]\d{4}[- ]\d{4}[- ]\d{4}`},
	{"phone", "{PHONE}", `(?:\+?\d{1,2}[-. ]?)?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}`},
	{"hash", "{HASH}", `[0-9a-fA-F]{32,}`},
	{"decimal", "{NUM}", `\d+\.\d+`},
	{"integer", "{NUM}", `\d{4,}`},
	{"path", "{PATH}", `(?:/[\w.-]+){2,}/?|[A-Za-z]:\\[\w\\. -]+`},
}

var (
	maskRegexp   *regexp.Regexp
	piiGroups    = map[string]bool{"email": true, "phone": true, "card": true}
	placeholders = map[string]string{}
)

func init() {
	groups := make([]string, 0, len(maskPatterns))

	for _, p := range maskPatterns {
		groups = append(groups, "(?P<"+p.name+">"+p.re+")")
		placeholders[p.name] = p.placeholder
	}

	maskRegexp = regexp.MustCompile(strings.Join(groups, "|"))
}

// Mask rewrites concrete values in prompt text to template placeholders.
// Within code spans, identifiers are additionally collapsed to {VAR}.
// Masking is deterministic and idempotent; pii reports whether an email,
// phone or card pattern matched.
func Mask(text string) (masked string, pii bool) {
	var sb strings.Builder

	for _, span := range splitCodeSpans(text) {
		segment, segmentPII := maskValues(span.text)
		if span.code {
			segment = maskIdentifiers(segment)
		}

		pii = pii || segmentPII

		sb.WriteString(segment)
	}

	return sb.String(), pii
}

func maskValues(text string) (string, bool) {
	pii := false

	masked := maskRegexp.ReplaceAllStringFunc(text, func(match string) string {
		name := matchedGroup(text, match)
		if piiGroups[name] {
			pii = true
		}

		return placeholders[name]
	})

	return masked, pii
}

// matchedGroup re-runs the pattern on the match alone to learn which
// alternative produced it.
func matchedGroup(_ string, match string) string {
	sub := maskRegexp.FindStringSubmatch(match)
	names := maskRegexp.SubexpNames()

	for i := 1; i < len(sub); i++ {
		if sub[i] != "" && names[i] != "" {
			return names[i]
		}
	}

	return maskPatterns[0].name
}

type codeSpan struct {
	text string
	code bool
}

var codeSpanRegexp = regexp.MustCompile("(?s)```.*?```|`[^`\n]+`")

// splitCodeSpans partitions the text into plain segments and fenced or
// back-tick code spans.
func splitCodeSpans(text string) []codeSpan {
	var spans []codeSpan

	last := 0

	for _, loc := range codeSpanRegexp.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			spans = append(spans, codeSpan{text: text[last:loc[0]]})
		}

		spans = append(spans, codeSpan{text: text[loc[0]:loc[1]], code: true})
		last = loc[1]
	}

	if last < len(text) {
		spans = append(spans, codeSpan{text: text[last:]})
	}

	return spans
}

// reservedWords are preserved during identifier masking in code spans.
var reservedWords = map[string]bool{
	"func": true, "function": true, "return": true, "if": true, "else": true,
	"for": true, "while": true, "var": true, "let": true, "const": true,
	"def": true, "class": true, "import": true, "from": true, "package": true,
	"type": true, "struct": true, "interface": true, "map": true, "range": true,
	"switch": true, "case": true, "default": true, "break": true, "continue": true,
	"true": true, "false": true, "null": true, "nil": true, "none": true,
	"and": true, "or": true, "not": true, "in": true, "is": true, "new": true,
	"this": true, "self": true, "try": true, "catch": true, "except": true,
	"finally": true, "raise": true, "throw": true, "async": true, "await": true,
	"print": true, "len": true, "int": true, "str": true, "float": true,
	"bool": true, "void": true, "static": true, "public": true, "private": true,
	"protected": true, "select": true, "where": true, "insert": true,
	"update": true, "delete": true, "echo": true, "end": true, "then": true,
	"do": true, "go": true, "chan": true, "defer": true, "yield": true,
}

var (
	identifierRegexp  = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]{2,}`)
	placeholderRegexp = regexp.MustCompile(`\{(?:UUID|URL|EMAIL|DATE|IP|CARD|PHONE|HASH|NUM|PATH|VAR)\}`)
)

// maskIdentifiers collapses non-keyword word tokens of length >= 3 to {VAR},
// leaving already-placed placeholders intact.
func maskIdentifiers(text string) string {
	var sb strings.Builder

	last := 0

	for _, loc := range placeholderRegexp.FindAllStringIndex(text, -1) {
		sb.WriteString(replaceIdentifiers(text[last:loc[0]]))
		sb.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}

	sb.WriteString(replaceIdentifiers(text[last:]))

	return sb.String()
}

func replaceIdentifiers(text string) string {
	return identifierRegexp.ReplaceAllStringFunc(text, func(word string) string {
		if reservedWords[strings.ToLower(word)] {
			return word
		}

		return "{VAR}"
	})
}
