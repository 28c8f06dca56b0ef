package fingerprint

import (
	"math/bits"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Small closed set of short function words down-weighted in the fingerprint.
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true, "in": true,
	"is": true, "it": true, "on": true, "at": true, "as": true, "by": true,
	"or": true, "and": true, "be": true, "are": true, "was": true, "for": true,
	"with": true, "that": true, "this": true, "from": true, "you": true,
	"your": true, "me": true, "my": true, "we": true, "do": true, "what": true,
}

// SimHash computes a 64-bit locality-sensitive fingerprint of the masked
// prompt. Features are whitespace tokens of length >= 2 plus character
// trigrams of the normalized text; token weights favor long and
// digit-bearing tokens, trigrams contribute weight 1.
func SimHash(text string) int64 {
	normalized := normalizeString(strings.ToLower(text))

	var acc [64]int64

	for _, token := range strings.Fields(normalized) {
		if len(token) < 2 {
			continue
		}

		accumulate(&acc, xxhash.Sum64String(token), tokenWeight(token))
	}

	runes := []rune(normalized)
	for i := 0; i+3 <= len(runes); i++ {
		accumulate(&acc, xxhash.Sum64String(string(runes[i:i+3])), 1)
	}

	var fingerprint uint64

	for i := range 64 {
		if acc[i] > 0 {
			fingerprint |= 1 << uint(i)
		}
	}

	return int64(fingerprint)
}

func tokenWeight(token string) int64 {
	var weight int64 = 10
	if stopWords[token] {
		weight = 2
	}

	if len(token) > 8 {
		weight += 5
	}

	if strings.ContainsAny(token, "0123456789_-") {
		weight += 3
	}

	return weight
}

func accumulate(acc *[64]int64, hash uint64, weight int64) {
	for i := range 64 {
		if hash&(1<<uint(i)) != 0 {
			acc[i] += weight
		} else {
			acc[i] -= weight
		}
	}
}

// HammingDistance is the number of differing bits between two fingerprints.
func HammingDistance(a, b int64) int {
	return bits.OnesCount64(uint64(a) ^ uint64(b))
}
