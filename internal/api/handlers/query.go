package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/domain"
)

const maxTopK = 50

type RetrievalService interface {
	Retrieve(ctx context.Context, question string, topK int) (*domain.RetrievalResult, error)
	Answer(ctx context.Context, question string, topK int) (*domain.Answer, error)
	GenerationHealthy(ctx context.Context) bool
}

type QueryHandler struct {
	svc RetrievalService
}

func NewQueryHandler(svc RetrievalService) *QueryHandler {
	return &QueryHandler{svc: svc}
}

type QueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type HitResponse struct {
	ID       string  `json:"id"`
	SourceID string  `json:"source_id"`
	Score    float32 `json:"score"`
}

type RetrievalResponse struct {
	Context         string        `json:"context"`
	Sources         []string      `json:"sources"`
	Hits            []HitResponse `json:"hits"`
	Confidence      float64       `json:"confidence"`
	ConfidenceScale string        `json:"confidence_scale"`
	Degraded        bool          `json:"degraded"`
	EmbeddingTier   string        `json:"embedding_tier"`
}

type AnswerResponse struct {
	Answer          string            `json:"answer"`
	Generated       bool              `json:"generated"`
	GenerationError string            `json:"generation_error,omitempty"`
	Retrieval       RetrievalResponse `json:"retrieval"`
}

type HealthResponse struct {
	Status     string `json:"status"`
	Generation bool   `json:"generation"`
}

// NewRetrievalResponse renders a retrieval result for API and CLI output.
func NewRetrievalResponse(r *domain.RetrievalResult) RetrievalResponse {
	resp := RetrievalResponse{
		Context:         r.AnswerContext,
		Sources:         r.Sources,
		Hits:            make([]HitResponse, 0, len(r.Hits)),
		Confidence:      r.Confidence,
		ConfidenceScale: domain.ConfidenceScaleUnit,
		Degraded:        r.Degraded,
		EmbeddingTier:   r.EmbeddingTier,
	}
	if resp.Sources == nil {
		resp.Sources = []string{}
	}
	for _, h := range r.Hits {
		resp.Hits = append(resp.Hits, HitResponse{ID: h.ID, SourceID: h.SourceID, Score: h.Score})
	}
	return resp
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return req, false
	}
	if strings.TrimSpace(req.Question) == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return req, false
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		api.Error(w, http.StatusBadRequest, "top_k must be between 0 and 50")
		return req, false
	}
	return req, true
}

func (h *QueryHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.svc.Retrieve(r.Context(), req.Question, req.TopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, NewRetrievalResponse(result))
}

func (h *QueryHandler) Ask(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	answer, err := h.svc.Answer(r.Context(), req.Question, req.TopK)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, AnswerResponse{
		Answer:          answer.Text,
		Generated:       answer.Generated,
		GenerationError: answer.GenerationError,
		Retrieval:       NewRetrievalResponse(answer.Retrieval),
	})
}

func (h *QueryHandler) Health(w http.ResponseWriter, r *http.Request) {
	api.Success(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Generation: h.svc.GenerationHealthy(r.Context()),
	})
}
