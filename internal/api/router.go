package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pagebook/internal/pageservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *pageservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Pages.
	r.Get("/pages", h.ListPages)
	r.Post("/pages", h.CreatePage)
	r.Route("/pages/{id}", func(r chi.Router) {
		r.Get("/", h.GetPage)
		r.Delete("/", h.DeletePage)
		r.Put("/blocks", h.ReplaceBlocks)
		r.Get("/export", h.ExportPage)
		r.Post("/ai-search", h.AISearch)
	})

	// Editor state.
	r.Get("/current", h.CurrentPage)
	r.Put("/current", h.SwitchPage)
	r.Get("/theme", h.GetTheme)
	r.Put("/theme", h.SetTheme)

	r.Get("/templates", h.ListTemplates)
	r.Get("/search", h.Search)
	r.Get("/ai/status", h.AIStatus)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
