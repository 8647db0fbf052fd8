package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Cards.
	r.Get("/cards", h.ListCards)
	r.Post("/cards", h.CreateCard)
	r.Get("/cards/search", h.SearchCards)
	r.Post("/cards/upload-all", h.UploadAll)
	r.Get("/cards/{id}", h.GetCard)
	r.Put("/cards/{id}", h.UpdateCard)
	r.Delete("/cards/{id}", h.DeleteCard)
	r.Post("/cards/{id}/upload", h.UploadCard)
	r.Post("/cards/{id}/open", h.OpenSession)

	// Editor sessions.
	r.Post("/sessions", h.StartSession)
	r.Get("/sessions/{id}", h.GetSession)
	r.Put("/sessions/{id}", h.UpdateSession)
	r.Delete("/sessions/{id}", h.DiscardSession)
	r.Post("/sessions/{id}/seed", h.SeedSession)
	r.Post("/sessions/{id}/preview", h.TogglePreview)
	r.Post("/sessions/{id}/template", h.SwitchTemplate)
	r.Post("/sessions/{id}/save", h.SaveSession)

	// Settings and templates.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.PutSettings)
	r.Get("/templates", h.ListTemplates)
	r.Put("/templates/{id}", h.PutTemplate)
	r.Delete("/templates/{id}", h.DeleteTemplate)

	// Connectivity.
	r.Get("/status", h.Status)
	r.Post("/status/recheck", h.Recheck)

	// Vault browsing.
	r.Get("/vault/folders", h.ListFolders)
	r.Get("/vault/search", h.VaultSearch)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
