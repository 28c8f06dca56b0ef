package fingerprint

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/parrotgw/parrot/internal/llm"
)

// Canonical is the stable derivation of a request used for cache keying.
type Canonical struct {
	// JSON is the canonical serialization of the request.
	JSON []byte

	// ExactKey is the lowercase hex SHA-256 of JSON.
	ExactKey string

	// PromptText is the role-tagged concatenation of all messages.
	PromptText string

	// MaskedPrompt is PromptText with concrete values masked to template form.
	MaskedPrompt string

	// RawDigest is a digest of PromptText, keyed when a secret is configured.
	// It allows dedup tracking without disclosing prompt contents.
	RawDigest string

	// PIIPresent is true when an email, phone or card pattern matched.
	PIIPresent bool
}

// Canonicalizer derives canonical forms from raw request bodies.
type Canonicalizer struct {
	secret []byte
}

// NewCanonicalizer builds a canonicalizer. secret may be nil, in which case
// RawDigest is a plain SHA-256.
func NewCanonicalizer(secret []byte) *Canonicalizer {
	return &Canonicalizer{secret: secret}
}

// Canonicalize derives the canonical form from the decoded request and its
// raw body. The body is the source of truth for canonical JSON so unknown
// fields survive; the decoded request is the source for prompt extraction.
func (c *Canonicalizer) Canonicalize(req *llm.Request, body []byte) (*Canonical, error) {
	canonicalJSON, err := CanonicalJSON(body)
	if err != nil {
		return nil, fmt.Errorf("canonicalize request: %w", err)
	}

	sum := sha256.Sum256(canonicalJSON)

	promptText := PromptText(req)
	masked, pii := Mask(promptText)

	return &Canonical{
		JSON:         canonicalJSON,
		ExactKey:     hex.EncodeToString(sum[:]),
		PromptText:   promptText,
		MaskedPrompt: masked,
		RawDigest:    c.digest(promptText),
		PIIPresent:   pii,
	}, nil
}

func (c *Canonicalizer) digest(text string) string {
	if len(c.secret) > 0 {
		mac := hmac.New(sha256.New, c.secret)
		mac.Write([]byte(text))

		return hex.EncodeToString(mac.Sum(nil))
	}

	sum := sha256.Sum256([]byte(text))

	return hex.EncodeToString(sum[:])
}

// PromptText concatenates all messages as "<role>: <content>" joined by
// newlines, system messages included, order preserved.
func PromptText(req *llm.Request) string {
	parts := make([]string, 0, len(req.Messages))

	for i := range req.Messages {
		msg := &req.Messages[i]
		parts = append(parts, msg.Role+": "+msg.Text())
	}

	return strings.Join(parts, "\n")
}

// Defaults removed from the top level of the canonical form.
var defaultParams = map[string]float64{
	"temperature":       1.0,
	"top_p":             1.0,
	"n":                 1,
	"presence_penalty":  0.0,
	"frequency_penalty": 0.0,
}

// CanonicalJSON rewrites a JSON document into its canonical serialization:
// defaulted top-level parameters removed, nulls dropped, object keys sorted,
// floats rounded to 2 decimals half-up, strings whitespace-normalized, and a
// deterministic writer with a minimal escape set.
func CanonicalJSON(body []byte) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return nil, err
	}

	top, ok := doc.(map[string]any)
	if ok {
		for key, def := range defaultParams {
			if num, isNum := top[key].(json.Number); isNum {
				if v, err := num.Float64(); err == nil && roundHalfUp(v) == def {
					delete(top, key)
				}
			}
		}

		if b, isBool := top["stream"].(bool); isBool && !b {
			delete(top, "stream")
		}
	}

	var buf bytes.Buffer

	writeCanonical(&buf, doc)

	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(canonicalNumber(val))
	case string:
		writeCanonicalString(buf, normalizeString(val))
	case []any:
		buf.WriteByte('[')

		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}

			writeCanonical(buf, item)
		}

		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))

		for key, item := range val {
			if item == nil {
				// Absent and present-null collapse to absent.
				continue
			}

			keys = append(keys, key)
		}

		sort.Strings(keys)
		buf.WriteByte('{')

		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}

			writeCanonicalString(buf, key)
			buf.WriteByte(':')
			writeCanonical(buf, val[key])
		}

		buf.WriteByte('}')
	default:
		// Unreachable for documents produced by encoding/json.
		fmt.Fprintf(buf, "%v", val)
	}
}

// canonicalNumber renders integers verbatim and floats rounded to 2 decimal
// places, half-up, with trailing zeros trimmed.
func canonicalNumber(num json.Number) string {
	s := num.String()
	if !strings.ContainsAny(s, ".eE") {
		return s
	}

	v, err := num.Float64()
	if err != nil {
		return s
	}

	formatted := strconv.FormatFloat(roundHalfUp(v), 'f', 2, 64)
	formatted = strings.TrimRight(formatted, "0")
	formatted = strings.TrimSuffix(formatted, ".")

	if formatted == "" || formatted == "-" || formatted == "-0" {
		return "0"
	}

	return formatted
}

func roundHalfUp(v float64) float64 {
	if v < 0 {
		return -math.Floor(-v*100+0.5) / 100
	}

	return math.Floor(v*100+0.5) / 100
}

var whitespaceRun = regexp.MustCompile(`\s+`)

func normalizeString(s string) string {
	return whitespaceRun.ReplaceAllString(strings.TrimSpace(s), " ")
}

// writeCanonicalString escapes quotes, backslashes, CR, LF and TAB only.
func writeCanonicalString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')

	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\r':
			buf.WriteString(`\r`)
		case '\n':
			buf.WriteString(`\n`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			buf.WriteRune(r)
		}
	}

	buf.WriteByte('"')
}
