package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced. events, when
// non-nil, serves the change stream at /events.
func NewRouter(svc Service, authEnabled bool, token string, events http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/status", h.Status)

	// Staging and the publish list.
	r.Get("/staging", h.Staging)
	r.Get("/publish", h.PublishList)

	// Registry and deploy.
	r.Get("/versions", h.Versions)
	r.Get("/deploy/preview", h.DeployPreview)

	// Search.
	r.Get("/search", h.Search)

	if events != nil {
		r.Method(http.MethodGet, "/events", events)
	}

	return r
}
