package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/parrotgw/parrot/internal/cache/index"
	"github.com/parrotgw/parrot/internal/fingerprint"
	"github.com/parrotgw/parrot/internal/llm"
	"github.com/parrotgw/parrot/internal/log"
	"github.com/parrotgw/parrot/internal/pkg/xjson"
)

// CompatPolicy selects how strictly candidate models must match the request.
type CompatPolicy string

const (
	// CompatStrict requires exact model string equality.
	CompatStrict CompatPolicy = "strict"

	// CompatFamily requires equality after stripping date/version suffixes.
	CompatFamily CompatPolicy = "family"

	// CompatAny disables the model guardrail.
	CompatAny CompatPolicy = "any"
)

// ModelMatch maps the policy onto the indexed tier's candidate filter.
func (p CompatPolicy) ModelMatch() index.ModelMatch {
	switch p {
	case CompatFamily:
		return index.MatchFamily
	case CompatAny:
		return index.MatchAny
	default:
		return index.MatchModel
	}
}

// guardContext carries the request-side facts the guardrails check against.
type guardContext struct {
	Mode           fingerprint.Mode
	ToolSchemaHash string
	Compat         CompatPolicy
	Model          string
	ModelFamily    string
	ResponseSchema json.RawMessage
	Now            time.Time
}

// passesGuardrails applies every gate; all must pass or the candidate is
// silently dropped.
func passesGuardrails(ctx context.Context, g *guardContext, candidate *index.Entry) bool {
	if candidate.Mode != g.Mode {
		return false
	}

	if candidate.ToolSchemaHash != g.ToolSchemaHash {
		return false
	}

	switch g.Compat {
	case CompatAny:
	case CompatFamily:
		if candidate.ModelFamily != g.ModelFamily {
			return false
		}
	default:
		if candidate.Model != g.Model {
			return false
		}
	}

	// Defense in depth against stale index rows.
	if !candidate.Live(g.Now) {
		return false
	}

	if g.Mode == fingerprint.ModeJSONSchema && len(g.ResponseSchema) > 0 {
		if !candidateMatchesSchema(ctx, g.ResponseSchema, candidate) {
			return false
		}
	}

	return true
}

// candidateMatchesSchema validates the cached assistant content against the
// request's JSON schema. Validation failure is a silent candidate rejection,
// not a request error.
func candidateMatchesSchema(ctx context.Context, schema json.RawMessage, candidate *index.Entry) bool {
	var response llm.Response
	if err := json.Unmarshal(candidate.ResponseBlob, &response); err != nil {
		log.Debug(ctx, "cached response blob is unreadable, dropping candidate",
			log.String("entry_id", candidate.ID), log.Cause(err))

		return false
	}

	content := response.AssistantText()
	if content == "" {
		return false
	}

	if err := xjson.ValidateSchema(schema, []byte(content)); err != nil {
		log.Debug(ctx, "cached content fails request schema, dropping candidate",
			log.String("entry_id", candidate.ID), log.Cause(err))

		return false
	}

	return true
}
