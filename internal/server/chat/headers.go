package chat

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/parrotgw/parrot/internal/cache"
)

// Request headers consumed by the cache core.
const (
	HeaderCacheBypass     = "X-Cache-Bypass"
	HeaderCacheStore      = "X-Cache-Store"
	HeaderCacheMode       = "X-Cache-Mode"
	HeaderModelCompat     = "X-Model-Compat"
	HeaderCacheExperiment = "X-Cache-Experiment"
)

// Response headers emitted by the cache core.
const (
	HeaderCacheHit            = "X-Cache-Hit"
	HeaderCacheMatch          = "X-Cache-Match"
	HeaderCacheScore          = "X-Cache-Score"
	HeaderCacheProvenance     = "X-Cache-Provenance"
	HeaderCacheSourceModel    = "X-Cache-Source-Model"
	HeaderCacheAge            = "X-Cache-Age"
	HeaderCacheDegraded       = "X-Cache-Degraded"
	HeaderCacheDegradedReason = "X-Cache-Degraded-Reason"
)

// optionsFromHeaders derives the per-request cache controls.
func optionsFromHeaders(headers http.Header) cache.Options {
	opts := cache.Options{Mode: cache.LookupBoth}

	if strings.EqualFold(headers.Get(HeaderCacheBypass), "true") {
		opts.Bypass = true
	}

	if strings.EqualFold(headers.Get(HeaderCacheStore), "false") {
		opts.NoStore = true
	}

	switch strings.ToLower(headers.Get(HeaderCacheMode)) {
	case "exact":
		opts.Mode = cache.LookupExact
	case "template":
		opts.Mode = cache.LookupTemplate
	}

	switch strings.ToLower(headers.Get(HeaderModelCompat)) {
	case "family":
		opts.Compat = cache.CompatFamily
	case "any":
		opts.Compat = cache.CompatAny
	case "strict":
		opts.Compat = cache.CompatStrict
	}

	opts.Experiment = headers.Get(HeaderCacheExperiment)

	return opts
}

// tenantFromHeaders isolates tenants by a digest of their credential. The
// credential itself is never used as a key.
func tenantFromHeaders(headers http.Header, fallback string) string {
	credential := headers.Get("Authorization")
	if credential == "" {
		credential = headers.Get("X-Api-Key")
	}

	if credential == "" {
		return fallback
	}

	sum := sha256.Sum256([]byte(credential))

	return hex.EncodeToString(sum[:8])
}
