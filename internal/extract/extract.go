// Package extract turns uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/cloo-solutions/docqa/internal/domain"
)

// Extractor converts one document format to text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Registry dispatches on content type.
type Registry struct {
	extractors map[domain.ContentType]Extractor
}

// NewRegistry returns a registry with plain text, markdown and PDF support.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[domain.ContentType]Extractor)}
	r.Register(domain.ContentTypePlainText, ExtractorFunc(PlainText))
	r.Register(domain.ContentTypeMarkdown, ExtractorFunc(PlainText))
	r.Register(domain.ContentTypePDF, ExtractorFunc(PDF))
	return r
}

func (r *Registry) Register(ct domain.ContentType, e Extractor) {
	r.extractors[ct] = e
}

// Extract returns the trimmed text of data. Unknown types are a validation
// error; extraction failures and empty output are NoExtractableText.
func (r *Registry) Extract(ctx context.Context, ct domain.ContentType, data []byte) (string, error) {
	e, ok := r.extractors[ct]
	if !ok {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrUnsupportedContentType.Message,
			fmt.Errorf("content type %q", ct))
	}

	text, err := e.Extract(ctx, data)
	if err != nil {
		return "", domain.NewDomainErrorWithCause(domain.ErrCodeNoExtractableText, domain.ErrNoExtractableText.Message, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.ErrNoExtractableText
	}
	return text, nil
}

// PlainText decodes data as UTF-8, dropping a byte order mark and invalid sequences.
func PlainText(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	return strings.ToValidUTF8(string(data), ""), nil
}

// PDF extracts the text layer of a PDF document.
func PDF(_ context.Context, data []byte) (text string, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	rdr, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	plain, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf buffer: %w", err)
	}
	return buf.String(), nil
}
