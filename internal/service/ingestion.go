package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/storage"
	"github.com/cloo-solutions/docqa/internal/telemetry"
)

// BatchEmbedder turns chunk texts into vectors, one per input and in order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error)
}

// ChunkIndex is the write side of the vector index.
type ChunkIndex interface {
	Insert(ctx context.Context, records []domain.IndexedRecord) error
	DeleteBySource(ctx context.Context, sourceID string) error
	ReplaceSource(ctx context.Context, sourceID string, records []domain.IndexedRecord) error
	Collection() string
}

// TextExtractor pulls plain text out of raw document bytes.
type TextExtractor interface {
	Extract(ctx context.Context, ct domain.ContentType, data []byte) (string, error)
}

// SourceStore keeps original document bytes for reprocessing.
type SourceStore interface {
	PutObject(ctx context.Context, key, contentType string, data []byte) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
}

// DocumentRepositoryInterface defines the repository interface for document bookkeeping
type DocumentRepositoryInterface interface {
	Upsert(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.Document], error)
	Delete(ctx context.Context, id string) error
}

// IDGenerator defines interface for id generation (for testing)
type IDGenerator interface {
	NewString() string
}

// HexIDGenerator returns 16 random bytes hex-encoded, without dashes.
type HexIDGenerator struct{}

// NewString generates a new 32-character id
func (g *HexIDGenerator) NewString() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}

// IngestInput represents one document handed to the pipeline.
// SourceID is optional; when set, chunks previously stored under it are replaced.
type IngestInput struct {
	SourceID    string
	Filename    string
	ContentType string
	Data        []byte
}

// IngestResult is returned after a document has been indexed
type IngestResult struct {
	ID         string
	ChunkCount int
	// EmbeddingTier is the tier that served every chunk, or domain.TierMixed.
	EmbeddingTier string
}

// IngestionService runs extract, chunk, embed and insert for a document.
type IngestionService struct {
	embedder  BatchEmbedder
	index     ChunkIndex
	extractor TextExtractor
	sources   SourceStore
	docs      DocumentRepositoryInterface
	idGen     IDGenerator
	chunkCfg  ChunkConfig
	logger    *slog.Logger
	now       func() time.Time
}

// IngestionOption configures optional collaborators of IngestionService.
type IngestionOption func(*IngestionService)

// WithSourceStore enables raw byte storage and Reprocess.
func WithSourceStore(s SourceStore) IngestionOption {
	return func(svc *IngestionService) { svc.sources = s }
}

// WithDocumentRepository enables the documents bookkeeping table.
func WithDocumentRepository(r DocumentRepositoryInterface) IngestionOption {
	return func(svc *IngestionService) { svc.docs = r }
}

func WithIDGenerator(g IDGenerator) IngestionOption {
	return func(svc *IngestionService) { svc.idGen = g }
}

func WithChunkConfig(cfg ChunkConfig) IngestionOption {
	return func(svc *IngestionService) { svc.chunkCfg = cfg }
}

func WithIngestionLogger(l *slog.Logger) IngestionOption {
	return func(svc *IngestionService) {
		if l != nil {
			svc.logger = l
		}
	}
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(embedder BatchEmbedder, index ChunkIndex, extractor TextExtractor, opts ...IngestionOption) *IngestionService {
	s := &IngestionService{
		embedder:  embedder,
		index:     index,
		extractor: extractor,
		idGen:     &HexIDGenerator{},
		chunkCfg:  DefaultChunkConfig(),
		logger:    slog.Default(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CanReprocess reports whether original bytes are kept.
func (s *IngestionService) CanReprocess() bool {
	return s.sources != nil && s.docs != nil
}

// Ingest extracts, chunks, embeds and indexes one document.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (result *IngestResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		DocumentID: input.SourceID,
		Collection: s.index.Collection(),
		Operation:  "ingest",
	})
	defer span.End()
	defer func() {
		if err != nil && !isClientError(err) {
			span.SetError(err)
		}
	}()

	return s.ingest(ctx, input, s.sources != nil)
}

func (s *IngestionService) ingest(ctx context.Context, input IngestInput, storeSource bool) (*IngestResult, error) {
	if len(input.Data) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	ct, err := domain.ResolveContentType(input.ContentType, input.Filename)
	if err != nil {
		return nil, err
	}

	text, err := s.extractor.Extract(ctx, ct, input.Data)
	if err != nil {
		return nil, err
	}

	texts := ChunkText(text, s.chunkCfg)
	if len(texts) == 0 {
		return nil, domain.ErrNoExtractableText
	}

	replace := input.SourceID != ""
	sourceID := input.SourceID
	if sourceID == "" {
		sourceID = s.idGen.NewString()
	}

	chunks := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = domain.Chunk{
			ID:       s.idGen.NewString(),
			SourceID: sourceID,
			Index:    i,
			Text:     t,
		}
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks of %s: %w", sourceID, err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("embed chunks of %s: got %d vectors for %d chunks", sourceID, len(embeddings), len(chunks))
	}

	records := make([]domain.IndexedRecord, len(chunks))
	for i, c := range chunks {
		records[i] = domain.NewIndexedRecord(c, embeddings[i].Vector)
	}

	if replace {
		if err := s.index.ReplaceSource(ctx, sourceID, records); err != nil {
			return nil, fmt.Errorf("replace chunks of %s: %w", sourceID, err)
		}
	} else if err := s.index.Insert(ctx, records); err != nil {
		return nil, fmt.Errorf("insert chunks of %s: %w", sourceID, err)
	}

	tier := domain.ServingTier(embeddings)
	s.logger.Info("document indexed",
		"source_id", sourceID,
		"filename", input.Filename,
		"content_type", string(ct),
		"chunks", len(records),
		"tier", tier,
	)

	result := &IngestResult{ID: sourceID, ChunkCount: len(records), EmbeddingTier: tier}
	if err := s.recordDocument(ctx, result, input, ct, storeSource); err != nil {
		s.logger.Error("document bookkeeping failed", "source_id", sourceID, "error", err)
		telemetry.CaptureError(ctx, err)
		return result, err
	}
	return result, nil
}

func (s *IngestionService) recordDocument(ctx context.Context, result *IngestResult, input IngestInput, ct domain.ContentType, storeSource bool) error {
	if s.docs == nil {
		return nil
	}

	id := result.ID
	now := s.now()
	doc := domain.NewDocument(id, input.Filename, ct, "", result.ChunkCount, now)
	doc.EmbeddingTier = result.EmbeddingTier

	existing, err := s.docs.GetByID(ctx, id)
	switch {
	case err == nil:
		doc.CreatedAt = existing.CreatedAt
		doc.ObjectKey = existing.ObjectKey
	case !errors.Is(err, domain.ErrDocumentNotFound):
		return fmt.Errorf("load document %s: %w", id, err)
	}

	if storeSource && s.sources != nil {
		key := storage.SourceKey(id)
		if err := s.sources.PutObject(ctx, key, string(ct), input.Data); err != nil {
			return fmt.Errorf("store source of %s: %w", id, err)
		}
		doc.ObjectKey = key
	}

	if err := s.docs.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

// Reprocess re-ingests a stored document under its existing id.
func (s *IngestionService) Reprocess(ctx context.Context, sourceID string) (result *IngestResult, err error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Reprocess", telemetry.SpanAttributes{
		DocumentID: sourceID,
		Collection: s.index.Collection(),
		Operation:  "reprocess",
	})
	defer span.End()
	defer func() {
		if err != nil && !isClientError(err) {
			span.SetError(err)
		}
	}()

	if !s.CanReprocess() {
		return nil, domain.ErrSourceStoreNotConfigured
	}

	doc, err := s.docs.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if doc.ObjectKey == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInvalidOperation, "document has no stored source",
			fmt.Errorf("document %s", sourceID))
	}

	data, err := s.sources.GetObject(ctx, doc.ObjectKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, domain.NewDomainErrorWithCause(domain.ErrCodeNotFound, "stored source not found", err)
		}
		return nil, fmt.Errorf("load source of %s: %w", sourceID, err)
	}

	return s.ingest(ctx, IngestInput{
		SourceID:    sourceID,
		Filename:    doc.Filename,
		ContentType: string(doc.ContentType),
		Data:        data,
	}, false)
}

// Delete removes a document's chunks, stored source and bookkeeping row.
func (s *IngestionService) Delete(ctx context.Context, sourceID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Delete", telemetry.SpanAttributes{
		DocumentID: sourceID,
		Collection: s.index.Collection(),
		Operation:  "delete",
	})
	defer span.End()

	var doc *domain.Document
	if s.docs != nil {
		d, err := s.docs.GetByID(ctx, sourceID)
		if err != nil {
			return err
		}
		doc = d
	}

	if err := s.index.DeleteBySource(ctx, sourceID); err != nil {
		span.SetError(err)
		return fmt.Errorf("delete chunks of %s: %w", sourceID, err)
	}

	if doc == nil {
		return nil
	}
	if doc.ObjectKey != "" && s.sources != nil {
		if err := s.sources.DeleteObject(ctx, doc.ObjectKey); err != nil {
			s.logger.Warn("failed to delete stored source", "source_id", sourceID, "key", doc.ObjectKey, "error", err)
		}
	}
	return s.docs.Delete(ctx, sourceID)
}

// GetDocument returns the bookkeeping row for id.
func (s *IngestionService) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	if s.docs == nil {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation, "document bookkeeping not configured")
	}
	return s.docs.GetByID(ctx, id)
}

// ListDocuments pages through ingested documents, newest first.
func (s *IngestionService) ListDocuments(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.Document], error) {
	if s.docs == nil {
		return nil, domain.NewDomainError(domain.ErrCodeInvalidOperation, "document bookkeeping not configured")
	}
	c, err := pagination.DecodeCursor(cursor)
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, err.Error())
	}
	return s.docs.ListWithCursor(ctx, c, limit)
}

func isClientError(err error) bool {
	switch domain.CodeOf(err) {
	case domain.ErrCodeValidation, domain.ErrCodeNotFound, domain.ErrCodeNoExtractableText, domain.ErrCodeInvalidOperation:
		return true
	}
	return false
}
