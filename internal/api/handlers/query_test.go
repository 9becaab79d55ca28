package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/docqa/internal/domain"
)

type MockRetrievalService struct {
	mock.Mock
}

func (m *MockRetrievalService) Retrieve(ctx context.Context, question string, topK int) (*domain.RetrievalResult, error) {
	args := m.Called(ctx, question, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RetrievalResult), args.Error(1)
}

func (m *MockRetrievalService) Answer(ctx context.Context, question string, topK int) (*domain.Answer, error) {
	args := m.Called(ctx, question, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Answer), args.Error(1)
}

func (m *MockRetrievalService) GenerationHealthy(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func TestQueryHandler_Retrieve(t *testing.T) {
	mockSvc := new(MockRetrievalService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Retrieve", mock.Anything, "What does Alice do?", 3).Return(&domain.RetrievalResult{
		AnswerContext: "Alice is an engineer.",
		Sources:       []string{"Alice is an engineer."},
		Confidence:    0.82,
		Hits:          []domain.SearchHit{{ID: "c1", SourceID: "doc-1", Text: "Alice is an engineer.", Score: 0.82}},
		EmbeddingTier: "dedicated",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/retrieve", bytes.NewBufferString(`{"question":"What does Alice do?","top_k":3}`))
	w := httptest.NewRecorder()

	handler.Retrieve(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp RetrievalResponse
	decodeData(t, w.Body.Bytes(), &resp)
	assert.Equal(t, "Alice is an engineer.", resp.Context)
	assert.Equal(t, []string{"Alice is an engineer."}, resp.Sources)
	assert.InDelta(t, 0.82, resp.Confidence, 1e-6)
	assert.Equal(t, "unit", resp.ConfidenceScale)
	assert.Equal(t, "dedicated", resp.EmbeddingTier)
	assert.Len(t, resp.Hits, 1)
	assert.Equal(t, "doc-1", resp.Hits[0].SourceID)
}

func TestQueryHandler_Retrieve_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
	}{
		{"invalid json", `{`, "invalid request body"},
		{"empty question", `{"question":"   "}`, "question is required"},
		{"negative top_k", `{"question":"q","top_k":-1}`, "top_k"},
		{"top_k too large", `{"question":"q","top_k":500}`, "top_k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(MockRetrievalService)
			handler := NewQueryHandler(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/retrieve", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()

			handler.Retrieve(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.message)
			mockSvc.AssertNotCalled(t, "Retrieve", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestQueryHandler_Retrieve_IndexUnavailable(t *testing.T) {
	mockSvc := new(MockRetrievalService)
	handler := NewQueryHandler(mockSvc)
	mockSvc.On("Retrieve", mock.Anything, "q", 0).Return(nil, domain.IndexUnavailable("search", errors.New("refused")))

	req := httptest.NewRequest(http.MethodPost, "/retrieve", bytes.NewBufferString(`{"question":"q"}`))
	w := httptest.NewRecorder()

	handler.Retrieve(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestQueryHandler_Ask(t *testing.T) {
	mockSvc := new(MockRetrievalService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Answer", mock.Anything, "What does Alice do?", 0).Return(&domain.Answer{
		Text:      "Alice is an engineer who builds systems.",
		Generated: true,
		Retrieval: &domain.RetrievalResult{
			AnswerContext: "Alice is an engineer. She builds systems.",
			Sources:       []string{"Alice is an engineer. She builds systems."},
			Confidence:    0.7,
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{"question":"What does Alice do?"}`))
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp AnswerResponse
	decodeData(t, w.Body.Bytes(), &resp)
	assert.Equal(t, "Alice is an engineer who builds systems.", resp.Answer)
	assert.True(t, resp.Generated)
	assert.Empty(t, resp.GenerationError)
	assert.Len(t, resp.Retrieval.Sources, 1)
	assert.Empty(t, resp.Retrieval.Hits)
}

func TestQueryHandler_Ask_GenerationFailureStillReturnsContext(t *testing.T) {
	mockSvc := new(MockRetrievalService)
	handler := NewQueryHandler(mockSvc)

	mockSvc.On("Answer", mock.Anything, "q", 0).Return(&domain.Answer{
		GenerationError: domain.GenerationUnavailable(errors.New("502")).Error(),
		Retrieval: &domain.RetrievalResult{
			AnswerContext: "ctx",
			Sources:       []string{"ctx"},
			Confidence:    0.4,
		},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/ask", bytes.NewBufferString(`{"question":"q"}`))
	w := httptest.NewRecorder()

	handler.Ask(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp AnswerResponse
	decodeData(t, w.Body.Bytes(), &resp)
	assert.False(t, resp.Generated)
	assert.Contains(t, resp.GenerationError, domain.ErrCodeGenerationUnavailable)
	assert.Equal(t, "ctx", resp.Retrieval.Context)
}

func TestQueryHandler_Health(t *testing.T) {
	mockSvc := new(MockRetrievalService)
	handler := NewQueryHandler(mockSvc)
	mockSvc.On("GenerationHealthy", mock.Anything).Return(false)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Health(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp HealthResponse
	decodeData(t, w.Body.Bytes(), &resp)
	assert.Equal(t, "ok", resp.Status)
	assert.False(t, resp.Generation)
}
