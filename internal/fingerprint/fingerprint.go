package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"

	"github.com/parrotgw/parrot/internal/llm"
)

// Mode classifies the request's response contract.
type Mode string

const (
	ModeText       Mode = "TEXT"
	ModeJSONObject Mode = "JSON_OBJECT"
	ModeJSONSchema Mode = "JSON_SCHEMA"
	ModeTools      Mode = "TOOLS"
	ModeFunction   Mode = "FUNCTION"
)

// ToolSchemaNone is the sentinel hash for requests without tools.
const ToolSchemaNone = "none"

// TemperatureBucket coarsens the sampling temperature for compatibility
// scoring.
type TemperatureBucket string

const (
	BucketZero     TemperatureBucket = "zero"
	BucketLow      TemperatureBucket = "low"
	BucketMedium   TemperatureBucket = "medium"
	BucketHigh     TemperatureBucket = "high"
	BucketDefault  TemperatureBucket = "default"
	BucketVeryHigh TemperatureBucket = "very_high"
)

// bucketOrder defines adjacency for parameter closeness.
var bucketOrder = map[TemperatureBucket]int{
	BucketZero:     0,
	BucketLow:      1,
	BucketMedium:   2,
	BucketHigh:     3,
	BucketDefault:  4,
	BucketVeryHigh: 5,
}

// BucketsAdjacent reports whether two buckets are neighbors in the ordered
// bucket list.
func BucketsAdjacent(a, b TemperatureBucket) bool {
	da, ok1 := bucketOrder[a]
	db, ok2 := bucketOrder[b]

	if !ok1 || !ok2 {
		return false
	}

	diff := da - db
	if diff < 0 {
		diff = -diff
	}

	return diff == 1
}

// Fingerprint is the derived identity of a request. It is never stored alone;
// the cache entry carries its fields.
type Fingerprint struct {
	ExactKey          string
	SimHash           int64
	ToolSchemaHash    string
	Mode              Mode
	TemperatureBucket TemperatureBucket
	ModelFamily       string
}

// New derives the fingerprint of a canonicalized request. The embedding is
// produced separately by the injected embedder, over the raw prompt text.
func New(req *llm.Request, canonical *Canonical) *Fingerprint {
	return &Fingerprint{
		ExactKey:          canonical.ExactKey,
		SimHash:           SimHash(canonical.MaskedPrompt),
		ToolSchemaHash:    ToolSchemaHash(req.Tools, req.Functions),
		Mode:              DetectMode(req),
		TemperatureBucket: BucketTemperature(req.Temperature),
		ModelFamily:       ModelFamily(req.Model),
	}
}

// DetectMode classifies the request. Priority: JSON_SCHEMA > JSON_OBJECT >
// TOOLS > FUNCTION > TEXT.
func DetectMode(req *llm.Request) Mode {
	if rf := req.ResponseFormat; rf != nil {
		if rf.Type == "json_schema" && rf.JSONSchema != nil {
			return ModeJSONSchema
		}

		if rf.Type == "json_object" {
			return ModeJSONObject
		}
	}

	if len(req.Tools) > 0 {
		return ModeTools
	}

	if len(req.Functions) > 0 {
		return ModeFunction
	}

	return ModeText
}

// ToolSchemaHash hashes the name-sorted canonical serialization of the tool
// definitions. Requests without tools hash to the "none" sentinel.
func ToolSchemaHash(tools []llm.Tool, functions []llm.FunctionDefinition) string {
	defs := make([]llm.FunctionDefinition, 0, len(tools)+len(functions))

	for _, tool := range tools {
		defs = append(defs, tool.Function)
	}

	defs = append(defs, functions...)

	if len(defs) == 0 {
		return ToolSchemaNone
	}

	sort.Slice(defs, func(i, j int) bool {
		return defs[i].Name < defs[j].Name
	})

	canonical := make([][]byte, 0, len(defs))

	for _, def := range defs {
		raw, err := json.Marshal(def)
		if err != nil {
			continue
		}

		c, err := CanonicalJSON(raw)
		if err != nil {
			continue
		}

		canonical = append(canonical, c)
	}

	joined := bytes.Join(canonical, []byte(","))
	sum := sha256.Sum256(append(append([]byte("["), joined...), ']'))

	return hex.EncodeToString(sum[:])
}

// BucketTemperature assigns the sampling temperature to its bucket.
// A nil temperature means the documented default of 1.0.
func BucketTemperature(t *float64) TemperatureBucket {
	if t == nil {
		return BucketDefault
	}

	v := *t

	switch {
	case v < 0.01:
		return BucketZero
	case v-1.0 < 0.01 && v-1.0 > -0.01:
		return BucketDefault
	case v < 0.3:
		return BucketLow
	case v < 0.7:
		return BucketMedium
	case v < 0.9:
		return BucketHigh
	default:
		return BucketVeryHigh
	}
}

var familySuffixes = []*regexp.Regexp{
	regexp.MustCompile(`-\d{4}-\d{2}-\d{2}$`),
	regexp.MustCompile(`-\d{8}$`),
	regexp.MustCompile(`-\d{4}$`),
	regexp.MustCompile(`-(?:preview|latest|beta)$`),
	regexp.MustCompile(`-v\d+(?:\.\d+)*$`),
}

// ModelFamily strips trailing date and version suffixes from a model name:
// "gpt-4-0613" and "gpt-4-2024-04-09" both collapse to "gpt-4".
func ModelFamily(model string) string {
	family := model

	for changed := true; changed; {
		changed = false

		for _, re := range familySuffixes {
			if stripped := re.ReplaceAllString(family, ""); stripped != family && stripped != "" {
				family = stripped
				changed = true
			}
		}
	}

	return family
}
