package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/api/handlers"
	"github.com/cloo-solutions/docqa/internal/embedding"
	"github.com/cloo-solutions/docqa/internal/extract"
	"github.com/cloo-solutions/docqa/internal/retry"
	"github.com/cloo-solutions/docqa/internal/service"
	"github.com/cloo-solutions/docqa/internal/vectorindex"
)

const testDimension = 64

func newTestRouter(t *testing.T, apiKey string) http.Handler {
	t.Helper()

	cfg := embedding.DefaultConfig()
	cfg.Dimension = testDimension
	cfg.BatchDelay = 0
	cfg.Retry = retry.Policy{MaxAttempts: 1}
	embedder := embedding.New([]embedding.Tier{embedding.NewLocalTier(testDimension)}, cfg, nil)

	index := vectorindex.NewMemoryIndex("")
	require.NoError(t, index.EnsureCollection(context.Background(), index.Collection(), testDimension))

	ingestion := service.NewIngestionService(embedder, index, extract.NewRegistry())
	retrieval := service.NewRetrievalService(embedder, index, nil, nil)

	return NewRouter(RouterConfig{
		APIKey:          apiKey,
		DocumentHandler: handlers.NewDocumentHandler(ingestion),
		QueryHandler:    handlers.NewQueryHandler(retrieval),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.Contains(t, w.Body.String(), `"generation":false`)
}

func TestRouter_RequiresAPIKey(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/retrieve", bytes.NewBufferString(`{"question":"q"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_IngestThenAsk(t *testing.T) {
	router := newTestRouter(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/documents?filename=alice.txt",
		bytes.NewBufferString("Alice is an engineer. She builds systems. She enjoys hiking."))
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ingest struct {
		Data handlers.IngestResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ingest))
	assert.Len(t, ingest.Data.ID, 32)
	assert.Equal(t, 1, ingest.Data.ChunkCount)

	req = httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{"question":"What does Alice do?"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ask struct {
		Data handlers.AnswerResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ask))
	assert.False(t, ask.Data.Generated)
	assert.NotEmpty(t, ask.Data.GenerationError)
	assert.Equal(t, []string{"Alice is an engineer. She builds systems. She enjoys hiking."}, ask.Data.Retrieval.Sources)
}

func TestRouter_EmptyCorpusAnswer(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{"question":"What does Alice do?"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), service.InsufficientContextAnswer)
}

func TestRouter_UnsupportedDocument(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodPost, "/documents?filename=slides.pptx", bytes.NewBufferString("binary"))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_DocumentLookupWithoutBookkeeping(t *testing.T) {
	router := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/documents/abc", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_QueryBodyCap(t *testing.T) {
	router := newTestRouter(t, "")

	question := strings.Repeat("a", int(maxQueryBodyBytes))
	req := httptest.NewRequest(http.MethodPost, "/retrieve", bytes.NewBufferString(`{"question":"`+question+`"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRouter_UploadUsesLargerCap(t *testing.T) {
	router := newTestRouter(t, "")

	body := strings.Repeat("Alice builds systems. ", int(maxQueryBodyBytes)/20)
	req := httptest.NewRequest(http.MethodPost, "/documents?filename=long.txt", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}
