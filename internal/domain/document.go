package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ContentType identifies a supported source document format.
type ContentType string

const (
	ContentTypePlainText ContentType = "text/plain"
	ContentTypeMarkdown  ContentType = "text/markdown"
	ContentTypePDF       ContentType = "application/pdf"
)

// Document is the bookkeeping row for an ingested source.
type Document struct {
	ID          string
	Filename    string
	ContentType ContentType
	ObjectKey   string
	ChunkCount  int
	// EmbeddingTier names the tier that embedded every chunk, or TierMixed.
	EmbeddingTier string
	// ReembedFailures counts failed background re-embeds since the last ingest.
	ReembedFailures int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TierMixed marks a document whose chunks were served by more than one tier.
const TierMixed = "mixed"

// ServingTier summarizes which tier produced a set of embeddings.
func ServingTier(embeddings []Embedding) string {
	if len(embeddings) == 0 {
		return ""
	}
	tier := embeddings[0].Tier
	for _, e := range embeddings[1:] {
		if e.Tier != tier {
			return TierMixed
		}
	}
	return tier
}

// NeedsReembed reports whether the document was embedded by anything other than primaryTier.
func (d *Document) NeedsReembed(primaryTier string) bool {
	return d.ObjectKey != "" && d.EmbeddingTier != primaryTier
}

// NewDocument creates a new Document instance
func NewDocument(id, filename string, contentType ContentType, objectKey string, chunkCount int, now time.Time) *Document {
	return &Document{
		ID:          id,
		Filename:    filename,
		ContentType: contentType,
		ObjectKey:   objectKey,
		ChunkCount:  chunkCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if !IsSupportedContentType(d.ContentType) {
		return fmt.Errorf("document ContentType is invalid: %s", d.ContentType)
	}
	if d.ChunkCount < 0 {
		return fmt.Errorf("document ChunkCount cannot be negative")
	}
	if d.ReembedFailures < 0 {
		return fmt.Errorf("document ReembedFailures cannot be negative")
	}
	return nil
}

// IsSupportedContentType checks if a ContentType can be extracted
func IsSupportedContentType(ct ContentType) bool {
	switch ct {
	case ContentTypePlainText, ContentTypeMarkdown, ContentTypePDF:
		return true
	}
	return false
}

// ResolveContentType normalizes a declared content type, falling back to the
// filename extension when the declaration is empty or generic.
func ResolveContentType(declared, filename string) (ContentType, error) {
	mediaType := strings.ToLower(strings.TrimSpace(declared))
	if i := strings.Index(mediaType, ";"); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	switch mediaType {
	case "", "application/octet-stream":
	default:
		ct := ContentType(mediaType)
		if IsSupportedContentType(ct) {
			return ct, nil
		}
		return "", NewDomainErrorWithCause(ErrCodeValidation, ErrUnsupportedContentType.Message,
			fmt.Errorf("content type %q", declared))
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".txt", ".text", "":
		return ContentTypePlainText, nil
	case ".md", ".markdown":
		return ContentTypeMarkdown, nil
	case ".pdf":
		return ContentTypePDF, nil
	}
	return "", NewDomainErrorWithCause(ErrCodeValidation, ErrUnsupportedContentType.Message,
		fmt.Errorf("file extension %q", filepath.Ext(filename)))
}
