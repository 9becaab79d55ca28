package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func TestRegistry_PlainText(t *testing.T) {
	r := NewRegistry()

	text, err := r.Extract(context.Background(), domain.ContentTypePlainText, []byte("\xef\xbb\xbf  Alice is an engineer.\n"))

	require.NoError(t, err)
	assert.Equal(t, "Alice is an engineer.", text)
}

func TestRegistry_Markdown(t *testing.T) {
	text, err := NewRegistry().Extract(context.Background(), domain.ContentTypeMarkdown, []byte("# Title\n\nBody text."))

	require.NoError(t, err)
	assert.Equal(t, "# Title\n\nBody text.", text)
}

func TestRegistry_InvalidUTF8IsDropped(t *testing.T) {
	text, err := NewRegistry().Extract(context.Background(), domain.ContentTypePlainText, []byte("ok\xffay"))

	require.NoError(t, err)
	assert.Equal(t, "okay", text)
}

func TestRegistry_EmptyText(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), domain.ContentTypePlainText, []byte(" \n\t "))

	assert.True(t, domain.HasCode(err, domain.ErrCodeNoExtractableText))
}

func TestRegistry_UnsupportedType(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), domain.ContentType("image/png"), []byte("x"))

	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))
}

func TestRegistry_MalformedPDF(t *testing.T) {
	_, err := NewRegistry().Extract(context.Background(), domain.ContentTypePDF, []byte("definitely not a pdf"))

	require.Error(t, err)
	assert.True(t, domain.HasCode(err, domain.ErrCodeNoExtractableText))
}

func TestRegistry_CustomExtractorFailure(t *testing.T) {
	r := NewRegistry()
	cause := errors.New("scanned image only")
	r.Register(domain.ContentTypePDF, ExtractorFunc(func(context.Context, []byte) (string, error) {
		return "", cause
	}))

	_, err := r.Extract(context.Background(), domain.ContentTypePDF, []byte("%PDF-1.4"))

	assert.True(t, domain.HasCode(err, domain.ErrCodeNoExtractableText))
	assert.ErrorIs(t, err, cause)
}
