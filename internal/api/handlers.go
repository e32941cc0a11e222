package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/deploy"
	"github.com/starford/kbpipe/internal/index"
	"github.com/starford/kbpipe/internal/pipeline"
	"github.com/starford/kbpipe/internal/registry"
	"github.com/starford/kbpipe/internal/staging"
)

// Service is the subset of the pipeline the API reads from.
type Service interface {
	Status(ctx context.Context) (*pipeline.Status, error)
	Candidates(ctx context.Context) ([]staging.Candidate, error)
	PublishList(ctx context.Context) ([]staging.Entry, error)
	Versions(ctx context.Context) ([]registry.Summary, error)
	CurrentVersion() (string, error)
	RegistryMode() string
	PreviewDeploy(ctx context.Context) (*deploy.Delta, error)
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
}

var _ Service = (*pipeline.Service)(nil)

// Handler holds API route handlers.
type Handler struct {
	svc Service
}

// NewHandler creates a new Handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

func internalError(w http.ResponseWriter, op string, err error) {
	slog.Error(op+" failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		internalError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Staging handles GET /api/staging.
func (h *Handler) Staging(w http.ResponseWriter, r *http.Request) {
	cands, err := h.svc.Candidates(r.Context())
	if err != nil {
		internalError(w, "list staging", err)
		return
	}
	out := StagingResponse{Articles: make([]StagedArticle, len(cands))}
	for i, c := range cands {
		out.Articles[i] = stagedFrom(c)
	}
	writeJSON(w, http.StatusOK, out)
}

// PublishList handles GET /api/publish.
func (h *Handler) PublishList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.PublishList(r.Context())
	if err != nil {
		internalError(w, "view publish list", err)
		return
	}
	out := PublishListResponse{Entries: nonNil(entries)}
	for _, e := range entries {
		if !e.Exists {
			out.Stale++
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Versions handles GET /api/versions.
func (h *Handler) Versions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.svc.Versions(r.Context())
	if err != nil {
		internalError(w, "list versions", err)
		return
	}
	cur, err := h.svc.CurrentVersion()
	if err != nil {
		internalError(w, "read version", err)
		return
	}
	writeJSON(w, http.StatusOK, VersionsResponse{
		Mode:     h.svc.RegistryMode(),
		Current:  cur,
		Versions: nonNil(versions),
	})
}

// DeployPreview handles GET /api/deploy/preview.
func (h *Handler) DeployPreview(w http.ResponseWriter, r *http.Request) {
	delta, err := h.svc.PreviewDeploy(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
			return
		}
		internalError(w, "deploy preview", err)
		return
	}
	writeJSON(w, http.StatusOK, previewFrom(delta))
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: nonNil(results)})
}
