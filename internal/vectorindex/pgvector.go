package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/cloo-solutions/docqa/internal/domain"
)

const (
	DefaultLists  = 128
	DefaultProbes = 10

	pgUndefinedTable = "42P01"
	maxIdentifierLen = 63
)

// PgVectorConfig configures the pgvector backend.
type PgVectorConfig struct {
	Collection string
	// Lists is the ivfflat list count used when the index is first built.
	Lists int
	// Probes is the number of lists visited per search.
	Probes int
}

// PgVectorIndex keeps each collection in its own table with an ivfflat
// inner-product index.
type PgVectorIndex struct {
	pool      *pgxpool.Pool
	cfg       PgVectorConfig
	dimension atomic.Int64
	logger    *slog.Logger
}

// NewPgVectorIndex binds an index to a collection. The pool must have the
// vector type registered for Insert to work.
func NewPgVectorIndex(pool *pgxpool.Pool, cfg PgVectorConfig, logger *slog.Logger) (*PgVectorIndex, error) {
	if cfg.Collection == "" {
		cfg.Collection = DefaultCollection
	}
	if err := ValidateCollectionName(cfg.Collection); err != nil {
		return nil, err
	}
	if cfg.Lists <= 0 {
		cfg.Lists = DefaultLists
	}
	if cfg.Probes <= 0 {
		cfg.Probes = DefaultProbes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PgVectorIndex{pool: pool, cfg: cfg, logger: logger}, nil
}

func (p *PgVectorIndex) Collection() string { return p.cfg.Collection }

func (p *PgVectorIndex) table() string {
	return pgx.Identifier{p.cfg.Collection}.Sanitize()
}

func indexName(table, suffix string) string {
	if len(table)+len(suffix) > maxIdentifierLen {
		table = table[:maxIdentifierLen-len(suffix)]
	}
	return pgx.Identifier{table + suffix}.Sanitize()
}

// EnsureCollection creates the table and its indexes on first call, checks
// the vector width on later calls, and refreshes planner statistics.
func (p *PgVectorIndex) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	table := pgx.Identifier{name}.Sanitize()

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.IndexUnavailable("ensure collection", err)
	}
	defer tx.Rollback(ctx)

	var existing *int
	err = tx.QueryRow(ctx,
		`SELECT a.atttypmod
		 FROM pg_attribute a
		 WHERE a.attrelid = to_regclass($1) AND a.attname = 'embedding' AND NOT a.attisdropped`,
		name,
	).Scan(&existing)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return domain.IndexUnavailable("ensure collection", err)
	}

	if existing != nil {
		if *existing != dimension {
			return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrDimensionMismatch.Message,
				fmt.Errorf("collection %s has dimension %d, requested %d", name, *existing, dimension))
		}
	} else {
		statements := []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				id TEXT PRIMARY KEY,
				source_id TEXT NOT NULL,
				text TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)`, table, dimension),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s USING ivfflat (embedding vector_ip_ops) WITH (lists = %d)`,
				indexName(name, "_embedding_idx"), table, p.cfg.Lists),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source_id)`,
				indexName(name, "_source_id_idx"), table),
		}
		for _, stmt := range statements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return domain.IndexUnavailable("ensure collection", err)
			}
		}
		p.logger.Info("created vector collection", "collection", name, "dimension", dimension, "lists", p.cfg.Lists)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.IndexUnavailable("ensure collection", err)
	}

	if _, err := p.pool.Exec(ctx, "ANALYZE "+table); err != nil {
		return domain.IndexUnavailable("ensure collection", err)
	}

	if name == p.cfg.Collection {
		p.dimension.Store(int64(dimension))
	}
	return nil
}

// Insert copies records into the collection in a single transaction.
func (p *PgVectorIndex) Insert(ctx context.Context, records []domain.IndexedRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := validateRecords(records, int(p.dimension.Load())); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.IndexUnavailable("insert", err)
	}
	defer tx.Rollback(ctx)

	if err := p.copyRecords(ctx, tx, records); err != nil {
		return domain.IndexUnavailable("insert", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.IndexUnavailable("insert", err)
	}
	return nil
}

// ReplaceSource deletes and re-inserts a source's records in one transaction.
func (p *PgVectorIndex) ReplaceSource(ctx context.Context, sourceID string, records []domain.IndexedRecord) error {
	if err := validateRecords(records, int(p.dimension.Load())); err != nil {
		return err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return domain.IndexUnavailable("replace", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE source_id = $1`, p.table()),
		sourceID,
	); err != nil {
		return domain.IndexUnavailable("replace", err)
	}
	if len(records) > 0 {
		if err := p.copyRecords(ctx, tx, records); err != nil {
			return domain.IndexUnavailable("replace", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.IndexUnavailable("replace", err)
	}
	return nil
}

func (p *PgVectorIndex) copyRecords(ctx context.Context, tx pgx.Tx, records []domain.IndexedRecord) error {
	now := time.Now().UTC()
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{p.cfg.Collection},
		[]string{"id", "source_id", "text", "embedding", "created_at"},
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			r := records[i]
			return []any{r.ID, r.SourceID, r.Text, pgvector.NewVector(r.Embedding), now}, nil
		}),
	)
	return err
}

// Search orders by negative inner product (<#>) so the best match comes first.
func (p *PgVectorIndex) Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchHit, error) {
	if topK <= 0 {
		return []domain.SearchHit{}, nil
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, domain.IndexUnavailable("search", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL ivfflat.probes = %d", p.cfg.Probes)); err != nil {
		return nil, domain.IndexUnavailable("search", err)
	}

	rows, err := tx.Query(ctx,
		fmt.Sprintf(`SELECT id, source_id, text, -(embedding <#> $1) AS score
		 FROM %s
		 ORDER BY embedding <#> $1
		 LIMIT $2`, p.table()),
		pgvector.NewVector(vector), topK,
	)
	if err != nil {
		if isUndefinedTable(err) {
			p.logger.Warn("search on missing collection", "collection", p.cfg.Collection)
			return []domain.SearchHit{}, nil
		}
		return nil, domain.IndexUnavailable("search", err)
	}
	defer rows.Close()

	hits := make([]domain.SearchHit, 0, topK)
	for rows.Next() {
		var h domain.SearchHit
		var score float64
		if err := rows.Scan(&h.ID, &h.SourceID, &h.Text, &score); err != nil {
			return nil, domain.IndexUnavailable("search", err)
		}
		h.Score = float32(score)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.IndexUnavailable("search", err)
	}

	return hits, nil
}

// ScanAll reads up to limit records in insertion order. Errors are logged and
// reported as an empty result.
func (p *PgVectorIndex) ScanAll(ctx context.Context, limit int) []domain.IndexedRecord {
	if limit <= 0 {
		return nil
	}

	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, source_id, text FROM %s ORDER BY created_at, id LIMIT $1`, p.table()),
		limit,
	)
	if err != nil {
		p.logger.Warn("scan failed", "collection", p.cfg.Collection, "err", err)
		return nil
	}
	defer rows.Close()

	var records []domain.IndexedRecord
	for rows.Next() {
		var r domain.IndexedRecord
		if err := rows.Scan(&r.ID, &r.SourceID, &r.Text); err != nil {
			p.logger.Warn("scan failed", "collection", p.cfg.Collection, "err", err)
			return nil
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		p.logger.Warn("scan failed", "collection", p.cfg.Collection, "err", err)
		return nil
	}
	return records
}

func (p *PgVectorIndex) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := p.pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE source_id = $1`, p.table()),
		sourceID,
	)
	if err != nil {
		if isUndefinedTable(err) {
			return nil
		}
		return domain.IndexUnavailable("delete", err)
	}
	return nil
}

func (p *PgVectorIndex) DropCollection(ctx context.Context, name string) error {
	if err := ValidateCollectionName(name); err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{name}.Sanitize()); err != nil {
		return domain.IndexUnavailable("drop collection", err)
	}
	if name == p.cfg.Collection {
		p.dimension.Store(0)
	}
	return nil
}

func (p *PgVectorIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, p.table())).Scan(&n)
	if err != nil {
		if isUndefinedTable(err) {
			return 0, nil
		}
		return 0, domain.IndexUnavailable("count", err)
	}
	return n, nil
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUndefinedTable
}
