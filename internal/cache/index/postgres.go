package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parrotgw/parrot/internal/log"
)

// PostgresConfig configures the postgres-backed indexed tier.
type PostgresConfig struct {
	DSN string `conf:"dsn" yaml:"dsn" json:"dsn"`

	// Dim is the embedding dimension of the vector column.
	Dim int `conf:"dim" yaml:"dim" json:"dim"`

	// StatementTimeout bounds every statement.
	StatementTimeout time.Duration `conf:"statement_timeout" yaml:"statement_timeout" json:"statement_timeout"`

	// MaxConns sizes the pool shared by reads, writes and stat updates.
	MaxConns int32 `conf:"max_conns" yaml:"max_conns" json:"max_conns"`
}

// PostgresStore persists entries in a pgvector-enabled table. Embeddings live
// in a vector column behind an ivfflat cosine index; the simhash radius scan
// uses bit_count over the XOR of fingerprints.
type PostgresStore struct {
	pool             *pgxpool.Pool
	statementTimeout time.Duration
}

// NewPostgresStore connects the pool and ensures the schema.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.Dim == 0 {
		cfg.Dim = 384
	}

	if cfg.StatementTimeout == 0 {
		cfg.StatementTimeout = 10 * time.Second
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect indexed tier: %w", err)
	}

	store := &PostgresStore{pool: pool, statementTimeout: cfg.StatementTimeout}
	if err := store.migrate(ctx, cfg.Dim); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) migrate(ctx context.Context, dim int) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cache_entries (
			id UUID PRIMARY KEY,
			tenant TEXT NOT NULL,
			exact_key TEXT NOT NULL,
			simhash BIGINT NOT NULL,
			embedding vector(%d),
			canonical_prompt TEXT NOT NULL,
			raw_prompt_hmac TEXT NOT NULL,
			request_blob JSONB NOT NULL,
			response_blob JSONB NOT NULL,
			model TEXT NOT NULL,
			model_family TEXT NOT NULL,
			temperature_bucket TEXT NOT NULL,
			top_p DOUBLE PRECISION,
			mode TEXT NOT NULL,
			tool_schema_hash TEXT NOT NULL,
			hit_count BIGINT NOT NULL DEFAULT 0,
			last_hit_at TIMESTAMPTZ,
			is_golden BOOLEAN NOT NULL DEFAULT FALSE,
			pii_present BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ
		)`, dim),
		`CREATE UNIQUE INDEX IF NOT EXISTS cache_entries_tenant_exact_key ON cache_entries (tenant, exact_key)`,
		`CREATE INDEX IF NOT EXISTS cache_entries_tenant_simhash ON cache_entries (tenant, simhash)`,
		`CREATE INDEX IF NOT EXISTS cache_entries_tenant_model_mode ON cache_entries (tenant, model, mode)`,
		`CREATE INDEX IF NOT EXISTS cache_entries_expires_at ON cache_entries (expires_at) WHERE expires_at IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS cache_entries_embedding ON cache_entries USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate indexed tier: %w", err)
		}
	}

	return nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.statementTimeout)
}

func (s *PostgresStore) Insert(ctx context.Context, entry *Entry) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO cache_entries (
			id, tenant, exact_key, simhash, embedding, canonical_prompt,
			raw_prompt_hmac, request_blob, response_blob, model, model_family,
			temperature_bucket, top_p, mode, tool_schema_hash, hit_count,
			last_hit_at, is_golden, pii_present, created_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
		ON CONFLICT (tenant, exact_key) DO NOTHING`,
		entry.ID, entry.Tenant, entry.ExactKey, entry.SimHash,
		vectorLiteral(entry.Embedding), entry.CanonicalPrompt,
		entry.RawPromptHMAC, entry.RequestBlob, entry.ResponseBlob,
		entry.Model, entry.ModelFamily, string(entry.TemperatureBucket),
		entry.TopP, string(entry.Mode), entry.ToolSchemaHash, entry.HitCount,
		entry.LastHitAt, entry.IsGolden, entry.PIIPresent, entry.CreatedAt,
		entry.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert cache entry: %w", err)
	}

	return nil
}

func (s *PostgresStore) Candidates(ctx context.Context, query Query) ([]*Entry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	limit := query.Limit
	if limit <= 0 {
		limit = 100
	}

	sql := `
		SELECT id, tenant, exact_key, simhash, embedding::text, canonical_prompt,
			raw_prompt_hmac, request_blob, response_blob, model, model_family,
			temperature_bucket, top_p, mode, tool_schema_hash, hit_count,
			last_hit_at, is_golden, pii_present, created_at, expires_at
		FROM cache_entries
		WHERE tenant = $1
		  AND mode = $2
		  AND (expires_at IS NULL OR expires_at > $3)
		  AND bit_count((simhash # $4)::bit(64)) <= $5`

	args := []any{query.Tenant, string(query.Mode), query.Now, query.SimHash, query.MaxHamming}

	switch query.Match {
	case MatchModel:
		sql += ` AND model = $6`
		args = append(args, query.Model)
	case MatchFamily:
		sql += ` AND model_family = $6`
		args = append(args, query.ModelFamily)
	case MatchAny:
	}

	sql += fmt.Sprintf(`
		ORDER BY bit_count((simhash # $4)::bit(64)) ASC, hit_count DESC
		LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	defer rows.Close()

	var entries []*Entry

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	return entries, nil
}

func scanEntry(rows pgx.Rows) (*Entry, error) {
	var (
		entry    Entry
		vecText  *string
		tempStr  string
		modeStr  string
	)

	err := rows.Scan(
		&entry.ID, &entry.Tenant, &entry.ExactKey, &entry.SimHash, &vecText,
		&entry.CanonicalPrompt, &entry.RawPromptHMAC, &entry.RequestBlob,
		&entry.ResponseBlob, &entry.Model, &entry.ModelFamily, &tempStr,
		&entry.TopP, &modeStr, &entry.ToolSchemaHash, &entry.HitCount,
		&entry.LastHitAt, &entry.IsGolden, &entry.PIIPresent, &entry.CreatedAt,
		&entry.ExpiresAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan cache entry: %w", err)
	}

	entry.TemperatureBucket = temperatureBucket(tempStr)
	entry.Mode = mode(modeStr)

	if vecText != nil {
		vec, err := parseVector(*vecText)
		if err != nil {
			return nil, err
		}

		entry.Embedding = vec
	}

	return &entry, nil
}

func (s *PostgresStore) TouchHit(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`UPDATE cache_entries SET hit_count = hit_count + 1, last_hit_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("touch hit: %w", err)
	}

	return nil
}

func (s *PostgresStore) Promote(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`UPDATE cache_entries SET is_golden = TRUE, expires_at = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("promote entry: %w", err)
	}

	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`DELETE FROM cache_entries WHERE NOT is_golden AND expires_at IS NOT NULL AND expires_at < $1`,
		now,
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}

	deleted := tag.RowsAffected()
	if deleted > 0 {
		log.Debug(ctx, "swept expired cache entries", log.Int64("deleted", deleted))
	}

	return deleted, nil
}

func (s *PostgresStore) Purge(ctx context.Context, tenant string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.pool.Exec(ctx, `DELETE FROM cache_entries WHERE tenant = $1`, tenant)
	if err != nil {
		return fmt.Errorf("purge tenant: %w", err)
	}

	return nil
}

func (s *PostgresStore) Stats(ctx context.Context, tenant string) (*Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var stats Stats

	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE is_golden),
			COALESCE(SUM(hit_count), 0)
		FROM cache_entries WHERE tenant = $1`, tenant,
	).Scan(&stats.Entries, &stats.GoldenEntries, &stats.TotalHits)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	return &stats, nil
}

// vectorLiteral renders a float32 slice in the pgvector input format.
func vectorLiteral(vec []float32) *string {
	if len(vec) == 0 {
		return nil
	}

	var sb strings.Builder

	sb.WriteByte('[')

	for i, v := range vec {
		if i > 0 {
			sb.WriteByte(',')
		}

		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}

	sb.WriteByte(']')

	literal := sb.String()

	return &literal
}

func parseVector(text string) ([]float32, error) {
	trimmed := strings.Trim(strings.TrimSpace(text), "[]")
	if trimmed == "" {
		return nil, nil
	}

	parts := strings.Split(trimmed, ",")
	vec := make([]float32, 0, len(parts))

	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("parse vector: %w", err)
		}

		vec = append(vec, float32(v))
	}

	return vec, nil
}
