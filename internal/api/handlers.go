package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/pagebook/internal/docstore"
	"github.com/starford/pagebook/internal/pageservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *pageservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *pageservice.Service) *Handler {
	return &Handler{svc: svc}
}

// ListPages handles GET /api/pages.
//
//	@Summary		List pages sorted by title
//	@Tags			pages
//	@Produce		json
//	@Param			q	query		string	false	"Case-insensitive title filter"
//	@Success		200	{object}	PageListResponse
//	@Security		BearerAuth
//	@Router			/pages [get]
func (h *Handler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages := h.svc.ListPages(r.Context(), r.URL.Query().Get("q"))
	cur, err := h.svc.CurrentPage(r.Context())
	resp := PageListResponse{Pages: pages}
	if err == nil {
		resp.Current = cur.ID
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetPage handles GET /api/pages/{id}.
//
//	@Summary		Get a single page
//	@Tags			pages
//	@Produce		json
//	@Param			id	path		string	true	"Page id"
//	@Success		200	{object}	PageDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id} [get]
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.GetPage(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// CreatePage handles POST /api/pages.
//
//	@Summary		Create a page from a template, blocks or Markdown
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreatePageRequest	false	"Initial content"
//	@Success		201		{object}	PageDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages [post]
func (h *Handler) CreatePage(w http.ResponseWriter, r *http.Request) {
	var req CreatePageRequest
	if r.ContentLength != 0 {
		if !decodeJSON(w, r, &req) {
			return
		}
	}
	page, err := h.svc.CreatePage(r.Context(), req.input())
	if err != nil {
		writeError(w, "create page", err)
		return
	}
	writeJSON(w, http.StatusCreated, page)
}

// ReplaceBlocks handles PUT /api/pages/{id}/blocks.
//
//	@Summary		Replace every block of a page
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Page id"
//	@Param			body	body		ReplaceBlocksRequest	true	"New blocks"
//	@Success		200		{object}	PageDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/blocks [put]
func (h *Handler) ReplaceBlocks(w http.ResponseWriter, r *http.Request) {
	var req ReplaceBlocksRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	page, err := h.svc.ReplaceBlocks(r.Context(), chi.URLParam(r, "id"), req.Blocks)
	if err != nil {
		writeError(w, "replace blocks", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// DeletePage handles DELETE /api/pages/{id}.
//
//	@Summary		Delete a page
//	@Tags			pages
//	@Param			id	path	string	true	"Page id"
//	@Success		204	"Page deleted, or already absent"
//	@Security		BearerAuth
//	@Router			/pages/{id} [delete]
func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePage(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete page", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportPage handles GET /api/pages/{id}/export.
//
//	@Summary		Export a page as Markdown or HTML
//	@Tags			pages
//	@Produce		text/markdown,text/html
//	@Param			id		path	string	true	"Page id"
//	@Param			format	query	string	false	"Output format"	Enums(md, html)
//	@Success		200		{string}	string
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/export [get]
func (h *Handler) ExportPage(w http.ResponseWriter, r *http.Request) {
	body, mime, err := h.svc.Export(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, "export page", err)
		return
	}
	w.Header().Set("Content-Type", mime)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// AISearch handles POST /api/pages/{id}/ai-search.
//
//	@Summary		Ask the AI and append the grounded answer to a page
//	@Tags			ai
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Page id"
//	@Param			body	body		AISearchRequest	true	"Prompt"
//	@Success		200		{object}	pageservice.AskResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		502		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{id}/ai-search [post]
func (h *Handler) AISearch(w http.ResponseWriter, r *http.Request) {
	var req AISearchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.AskAI(r.Context(), chi.URLParam(r, "id"), req.Prompt)
	if err != nil {
		writeError(w, "ai search", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CurrentPage handles GET /api/current.
//
//	@Summary		Get the page being edited
//	@Tags			editor
//	@Produce		json
//	@Success		200	{object}	PageDetail
//	@Security		BearerAuth
//	@Router			/current [get]
func (h *Handler) CurrentPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.CurrentPage(r.Context())
	if err != nil {
		writeError(w, "current page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// SwitchPage handles PUT /api/current.
//
//	@Summary		Switch the page being edited
//	@Tags			editor
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SwitchPageRequest	true	"Target page"
//	@Success		200		{object}	PageDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/current [put]
func (h *Handler) SwitchPage(w http.ResponseWriter, r *http.Request) {
	var req SwitchPageRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	page, err := h.svc.SwitchPage(r.Context(), req.ID)
	if err != nil {
		writeError(w, "switch page", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetTheme handles GET /api/theme.
//
//	@Summary		Get the editor theme
//	@Tags			editor
//	@Produce		json
//	@Success		200	{object}	ThemeResponse
//	@Security		BearerAuth
//	@Router			/theme [get]
func (h *Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ThemeResponse{Theme: h.svc.Theme(r.Context())})
}

// SetTheme handles PUT /api/theme.
//
//	@Summary		Set or toggle the editor theme
//	@Tags			editor
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ThemeRequest	true	"Theme"
//	@Success		200		{object}	ThemeResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/theme [put]
func (h *Handler) SetTheme(w http.ResponseWriter, r *http.Request) {
	var req ThemeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Toggle {
		writeJSON(w, http.StatusOK, ThemeResponse{Theme: h.svc.ToggleTheme(r.Context())})
		return
	}
	if err := h.svc.SetTheme(r.Context(), docstore.Theme(req.Theme)); err != nil {
		writeError(w, "set theme", err)
		return
	}
	writeJSON(w, http.StatusOK, ThemeResponse{Theme: h.svc.Theme(r.Context())})
}

// ListTemplates handles GET /api/templates.
//
//	@Summary		List page templates
//	@Tags			templates
//	@Produce		json
//	@Success		200	{array}	templates.Template
//	@Security		BearerAuth
//	@Router			/templates [get]
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"templates": h.svc.Templates(r.Context()),
	})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across pages
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// AIStatus handles GET /api/ai/status.
//
//	@Summary		Report whether AI search is configured
//	@Tags			ai
//	@Produce		json
//	@Success		200	{object}	AIStatusResponse
//	@Security		BearerAuth
//	@Router			/ai/status [get]
func (h *Handler) AIStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, AIStatusResponse{Available: h.svc.AIAvailable()})
}
