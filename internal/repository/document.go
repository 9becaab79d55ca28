package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
)

// dbtx is the subset of *pgxpool.Pool the repository uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DocumentRepository persists bookkeeping rows for ingested documents.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

const documentColumns = `id, filename, content_type, object_key, chunk_count, embedding_tier, reembed_failures, created_at, updated_at`

// Upsert inserts the document or, on id conflict, replaces everything but
// created_at. A fresh ingest clears the re-embed failure count.
func (r *DocumentRepository) Upsert(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, filename, content_type, object_key, chunk_count, embedding_tier, reembed_failures, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		 ON CONFLICT (id) DO UPDATE SET
			filename = EXCLUDED.filename,
			content_type = EXCLUDED.content_type,
			object_key = EXCLUDED.object_key,
			chunk_count = EXCLUDED.chunk_count,
			embedding_tier = EXCLUDED.embedding_tier,
			reembed_failures = 0,
			updated_at = EXCLUDED.updated_at`,
		d.ID, d.Filename, string(d.ContentType), nullableString(d.ObjectKey), d.ChunkCount, d.EmbeddingTier, d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var contentType string
	var objectKey *string
	if err := row.Scan(&d.ID, &d.Filename, &contentType, &objectKey, &d.ChunkCount,
		&d.EmbeddingTier, &d.ReembedFailures, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.ContentType = domain.ContentType(contentType)
	if objectKey != nil {
		d.ObjectKey = *objectKey
	}
	return &d, nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	d, err := scanDocument(r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// DocumentPageResult is one page of documents, newest first.
type DocumentPageResult = pagination.PageResult[*domain.Document]

// ListWithCursor pages through documents by (created_at, id) descending.
func (r *DocumentRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var rows pgx.Rows
	var err error

	if cursor != nil {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.db.Query(ctx,
			`SELECT `+documentColumns+`
			 FROM documents
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs, err := collectDocuments(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(docs) > limit
	if hasMore {
		docs = docs[:limit]
	}

	var nextCursor string
	if hasMore && len(docs) > 0 {
		last := docs[len(docs)-1]
		nextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}

	return &DocumentPageResult{
		Items:   docs,
		Cursor:  nextCursor,
		HasMore: hasMore,
	}, nil
}

// ListForReembed returns stored documents not embedded by primaryTier that
// have failed fewer than maxFailures re-embeds, least recently updated first.
func (r *DocumentRepository) ListForReembed(ctx context.Context, primaryTier string, maxFailures, limit int) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+`
		 FROM documents
		 WHERE object_key IS NOT NULL
		   AND embedding_tier <> $1
		   AND reembed_failures < $2
		 ORDER BY updated_at, id
		 LIMIT $3`,
		primaryTier, maxFailures, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectDocuments(rows)
}

// IncrementReembedFailures records one failed background re-embed.
func (r *DocumentRepository) IncrementReembedFailures(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET reembed_failures = reembed_failures + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func collectDocuments(rows pgx.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
