package xregexp

import (
	"regexp"
	"strings"

	"github.com/parrotgw/parrot/internal/pkg/xmap"
)

type patternCache struct {
	regex      *regexp.Regexp
	exactMatch bool
	compileErr bool
}

var globalCache = xmap.New[string, *patternCache]()

// MatchString reports whether str matches the pattern. Patterns without
// regex metacharacters compare as plain strings; others compile anchored.
func MatchString(pattern string, str string) bool {
	cached := getOrCreatePattern(pattern)

	if cached.compileErr {
		return false
	}

	if cached.exactMatch {
		return pattern == str
	}

	return cached.regex.MatchString(str)
}

func getOrCreatePattern(pattern string) *patternCache {
	if cached, ok := globalCache.Load(pattern); ok {
		return cached
	}

	cached := &patternCache{}

	if !containsRegexChars(pattern) {
		cached.exactMatch = true
		globalCache.Store(pattern, cached)

		return cached
	}

	compiled, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		cached.compileErr = true
	} else {
		cached.regex = compiled
	}

	globalCache.Store(pattern, cached)

	return cached
}

func containsRegexChars(pattern string) bool {
	return strings.ContainsAny(pattern, "*?+[]{}()^$.|\\")
}
