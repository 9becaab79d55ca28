package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docqa/internal/api"
	"github.com/cloo-solutions/docqa/internal/domain"
	"github.com/cloo-solutions/docqa/internal/pagination"
	"github.com/cloo-solutions/docqa/internal/service"
)

const (
	multipartMemory  = 8 << 20
	defaultListLimit = 20
	maxListLimit     = 100
)

type DocumentService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestResult, error)
	Reprocess(ctx context.Context, sourceID string) (*service.IngestResult, error)
	Delete(ctx context.Context, sourceID string) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	ListDocuments(ctx context.Context, cursor string, limit int) (*pagination.PageResult[*domain.Document], error)
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type IngestResponse struct {
	ID            string `json:"id"`
	ChunkCount    int    `json:"chunk_count"`
	EmbeddingTier string `json:"embedding_tier"`
}

// NewIngestResponse renders an ingest result for API and CLI output.
func NewIngestResponse(r *service.IngestResult) IngestResponse {
	return IngestResponse{ID: r.ID, ChunkCount: r.ChunkCount, EmbeddingTier: r.EmbeddingTier}
}

type DocumentResponse struct {
	ID            string `json:"id"`
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ChunkCount    int    `json:"chunk_count"`
	EmbeddingTier string `json:"embedding_tier"`
	Stored        bool   `json:"stored"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// NewDocumentResponse renders a document for API and CLI output.
func NewDocumentResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:            d.ID,
		Filename:      d.Filename,
		ContentType:   string(d.ContentType),
		ChunkCount:    d.ChunkCount,
		EmbeddingTier: d.EmbeddingTier,
		Stored:        d.ObjectKey != "",
		CreatedAt:     d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:     d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Ingest accepts either a multipart form with a "file" part or a raw body
// named by the filename query parameter.
func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	input, err := readIngestInput(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	input.SourceID = r.URL.Query().Get("source_id")

	result, err := h.svc.Ingest(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, NewIngestResponse(result))
}

func readIngestInput(r *http.Request) (service.IngestInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			return service.IngestInput{}, err
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return service.IngestInput{}, errors.New("file is required")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return service.IngestInput{}, err
		}
		return service.IngestInput{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Data:        data,
		}, nil
	}

	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		return service.IngestInput{}, errors.New("filename is required")
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return service.IngestInput{}, err
	}
	contentType := r.Header.Get("Content-Type")
	// curl --data-binary default; the extension decides instead
	if mediaType == "application/x-www-form-urlencoded" {
		contentType = ""
	}
	return service.IngestInput{
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetDocument(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, NewDocumentResponse(doc))
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			api.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	page, err := h.svc.ListDocuments(r.Context(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := DocumentListResponse{
		Items:   make([]*DocumentResponse, 0, len(page.Items)),
		Cursor:  page.Cursor,
		HasMore: page.HasMore,
	}
	for _, d := range page.Items {
		resp.Items = append(resp.Items, NewDocumentResponse(d))
	}
	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Reprocess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	result, err := h.svc.Reprocess(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, NewIngestResponse(result))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
