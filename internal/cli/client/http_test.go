package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressReader_ReportsProgress(t *testing.T) {
	data := []byte("hello world this is test data")

	var last, calls int64
	pr := &progressReader{
		reader: bytes.NewReader(data),
		total:  int64(len(data)),
		onProgress: func(current, total int64) {
			assert.GreaterOrEqual(t, current, last)
			assert.Equal(t, int64(len(data)), total)
			last = current
			calls++
		},
	}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, data, result)
	assert.Positive(t, calls)
	assert.Equal(t, int64(len(data)), last)
}

func TestProgressReader_NilCallback(t *testing.T) {
	pr := &progressReader{reader: strings.NewReader("hello"), total: 5}

	result, err := io.ReadAll(pr)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(result))
}

func TestAPIClient_PostDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ask", r.URL.Path)
		assert.Equal(t, "Bearer "+testAPIKey, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req queryRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "What does Alice do?", req.Question)
		assert.Equal(t, 3, req.TopK)

		_, _ = w.Write([]byte(`{"data":{"answer":"Alice is an engineer.","generated":true,"retrieval":{"sources":["Alice is an engineer."],"confidence":0.8}}}`))
	}))
	defer srv.Close()

	c := NewAPIClientWithConfig(testAPIKey, srv.URL+"/")
	resp, err := c.Post(context.Background(), "/ask", queryRequest{Question: "What does Alice do?", TopK: 3})
	require.NoError(t, err)

	var answer AnswerResult
	require.NoError(t, resp.Decode(&answer))
	assert.Equal(t, "Alice is an engineer.", answer.Answer)
	assert.True(t, answer.Generated)
	assert.Equal(t, []string{"Alice is an engineer."}, answer.Retrieval.Sources)
}

func TestAPIClient_NoKeyOmitsAuthorization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewAPIClientWithConfig("", srv.URL)
	resp, err := c.Delete(context.Background(), "/documents/doc-1")
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
}

func TestAPIClient_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		message string
	}{
		{"json error", http.StatusNotFound, `{"error":"document not found"}`, "document not found"},
		{"plain text error", http.StatusBadGateway, "upstream down\n", "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewAPIClientWithConfig("", srv.URL).Get(context.Background(), "/documents/x")

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestAPIClient_UploadDocument(t *testing.T) {
	body := "Alice is an engineer. She builds systems."

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/documents", r.URL.Path)
		assert.Equal(t, "alice notes.md", r.URL.Query().Get("filename"))
		assert.Equal(t, "doc-1", r.URL.Query().Get("source_id"))
		assert.Equal(t, "text/markdown", r.Header.Get("Content-Type"))
		assert.Equal(t, int64(len(body)), r.ContentLength)

		got, _ := io.ReadAll(r.Body)
		assert.Equal(t, body, string(got))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"doc-1","chunk_count":2}}`))
	}))
	defer srv.Close()

	var reported int64
	c := NewAPIClientWithConfig(testAPIKey, srv.URL)
	resp, err := c.UploadDocument(context.Background(), strings.NewReader(body), int64(len(body)), UploadOptions{
		Filename:    "alice notes.md",
		ContentType: "text/markdown",
		SourceID:    "doc-1",
		OnProgress:  func(current, _ int64) { reported = current },
	})
	require.NoError(t, err)

	var result IngestResult
	require.NoError(t, resp.Decode(&result))
	assert.Equal(t, "doc-1", result.ID)
	assert.Equal(t, 2, result.ChunkCount)
	assert.Equal(t, int64(len(body)), reported)
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "text/markdown", detectContentType("notes.MD", ""))
	assert.Equal(t, "application/pdf", detectContentType("/tmp/report.pdf", ""))
	assert.Equal(t, "text/plain", detectContentType("a.txt", ""))
	assert.Equal(t, "", detectContentType("README", ""))
	assert.Equal(t, "text/plain", detectContentType("data.pdf", "text/plain"))
}
