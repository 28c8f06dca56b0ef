package index

import (
	"context"
	"sync"
	"time"

	"github.com/viterin/partial"

	"github.com/parrotgw/parrot/internal/fingerprint"
)

// MemoryStore is the in-process indexed tier for embedded runs and tests.
// Candidate search is a brute-force scan with a partial top-k sort.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*Entry // keyed by tenant + "\x00" + exact_key
	byID    map[string]*Entry
}

// NewMemoryStore builds an empty in-memory indexed tier.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*Entry),
		byID:    make(map[string]*Entry),
	}
}

func entryKey(tenant, exactKey string) string {
	return tenant + "\x00" + exactKey
}

func (s *MemoryStore) Insert(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := entryKey(entry.Tenant, entry.ExactKey)
	if _, exists := s.entries[key]; exists {
		// Duplicate exact keys are ignored silently.
		return nil
	}

	clone := *entry
	s.entries[key] = &clone
	s.byID[clone.ID] = &clone

	return nil
}

func (s *MemoryStore) Candidates(_ context.Context, query Query) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}

	type scored struct {
		entry   *Entry
		hamming int
	}

	var matches []scored

	for _, entry := range s.entries {
		if entry.Tenant != query.Tenant || entry.Mode != query.Mode {
			continue
		}

		if !entry.Live(query.Now) {
			continue
		}

		switch query.Match {
		case MatchModel:
			if entry.Model != query.Model {
				continue
			}
		case MatchFamily:
			if entry.ModelFamily != query.ModelFamily {
				continue
			}
		case MatchAny:
		}

		hamming := fingerprint.HammingDistance(entry.SimHash, query.SimHash)
		if hamming > query.MaxHamming {
			continue
		}

		matches = append(matches, scored{entry: entry, hamming: hamming})
	}

	if len(matches) == 0 {
		return nil, nil
	}

	topK := limit
	if topK > len(matches) {
		topK = len(matches)
	}

	partial.SortFunc(matches, topK, func(a, b scored) int {
		if a.hamming != b.hamming {
			return a.hamming - b.hamming
		}

		switch {
		case a.entry.HitCount > b.entry.HitCount:
			return -1
		case a.entry.HitCount < b.entry.HitCount:
			return 1
		default:
			return 0
		}
	})

	result := make([]*Entry, 0, topK)

	for _, match := range matches[:topK] {
		clone := *match.entry
		result = append(result, &clone)
	}

	return result, nil
}

func (s *MemoryStore) TouchHit(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.byID[id]; ok {
		entry.HitCount++
		entry.LastHitAt = &at
	}

	return nil
}

func (s *MemoryStore) Promote(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.byID[id]; ok {
		entry.IsGolden = true
		entry.ExpiresAt = nil
	}

	return nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	for key, entry := range s.entries {
		if !entry.IsGolden && entry.ExpiresAt != nil && entry.ExpiresAt.Before(now) {
			delete(s.entries, key)
			delete(s.byID, entry.ID)
			deleted++
		}
	}

	return deleted, nil
}

func (s *MemoryStore) Purge(_ context.Context, tenant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.entries {
		if entry.Tenant == tenant {
			delete(s.entries, key)
			delete(s.byID, entry.ID)
		}
	}

	return nil
}

func (s *MemoryStore) Stats(_ context.Context, tenant string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats Stats

	for _, entry := range s.entries {
		if entry.Tenant != tenant {
			continue
		}

		stats.Entries++
		stats.TotalHits += entry.HitCount

		if entry.IsGolden {
			stats.GoldenEntries++
		}
	}

	return &stats, nil
}
