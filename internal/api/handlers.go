package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/monitor"
	"github.com/starford/ansuz/internal/reconciler"
	"github.com/starford/ansuz/internal/session"
	"github.com/starford/ansuz/internal/settings"
)

// VaultBrowser is the slice of the vault client the read-only endpoints use.
type VaultBrowser interface {
	ListFolders(ctx context.Context) ([]string, error)
	SearchByURL(ctx context.Context, sourceURL string) ([]models.RemoteCard, error)
	SearchByID(ctx context.Context, id string) (*models.RemoteCard, error)
}

// VaultFactory builds a browser from the current settings.
type VaultFactory func(cfg *settings.Settings) VaultBrowser

// Handler holds API route handlers.
type Handler struct {
	store    *cardstore.Store
	sessions *session.Service
	rec      *reconciler.Reconciler
	mon      *monitor.Monitor
	vault    VaultFactory
}

// NewHandler creates a new Handler.
func NewHandler(store *cardstore.Store, sessions *session.Service, rec *reconciler.Reconciler, mon *monitor.Monitor, vault VaultFactory) *Handler {
	return &Handler{store: store, sessions: sessions, rec: rec, mon: mon, vault: vault}
}

// ListCards handles GET /api/cards.
//
//	@Summary		List cards for a page (plus global cards), newest first
//	@Tags			cards
//	@Produce		json
//	@Param			source	query		string	false	"Source page URL; empty lists everything"
//	@Success		200		{object}	CardListResponse
//	@Security		BearerAuth
//	@Router			/cards [get]
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.store.List(r.URL.Query().Get("source"))
	if err != nil {
		slog.Error("list cards failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if cards == nil {
		cards = []models.LocalCard{}
	}
	writeJSON(w, http.StatusOK, CardListResponse{Cards: cards, Total: len(cards)})
}

// GetCard handles GET /api/cards/{id}.
//
//	@Summary		Get a single card
//	@Tags			cards
//	@Produce		json
//	@Param			id	path		string	true	"Card id"
//	@Success		200	{object}	Card
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id} [get]
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.store.Get(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get card failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// CreateCard handles POST /api/cards: one-call capture without an editor
// session. Empty content seeds the card from its template.
//
//	@Summary		Capture a card in one call
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateCardRequest	true	"Card to capture"
//	@Success		201		{object}	Card
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards [post]
func (h *Handler) CreateCard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	st := h.sessions.Start(req.SourceURL, req.SourceTitle, req.TemplateID)
	defer h.sessions.Close(st.CardID)

	if req.Content == "" {
		if _, err := h.sessions.Seed(st.CardID); err != nil {
			slog.Error("seed failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
			return
		}
		if req.Title != "" {
			seeded, _ := h.sessions.Get(st.CardID)
			h.sessions.Update(st.CardID, req.Title, seeded.Content)
		}
	} else {
		h.sessions.Update(st.CardID, req.Title, req.Content)
	}

	card, err := h.sessions.Save(r.Context(), st.CardID)
	if err != nil {
		if errors.Is(err, apperr.ErrValidation) {
			writeJSON(w, http.StatusBadRequest, errorBody("card content is empty"))
		} else {
			slog.Error("create card failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

// UpdateCard handles PUT /api/cards/{id}.
//
//	@Summary		Update a stored card's title and content
//	@Tags			cards
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Card id"
//	@Param			body	body		UpdateCardRequest	true	"New state"
//	@Success		200		{object}	Card
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id} [put]
func (h *Handler) UpdateCard(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	id := chi.URLParam(r, "id")

	var req UpdateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	if _, err := h.sessions.Open(id); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("open card failed", slog.String("card", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	defer h.sessions.Close(id)

	h.sessions.Update(id, req.Title, req.Content)
	card, err := h.sessions.Save(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrSaveInProgress) {
			writeJSON(w, http.StatusConflict, errorBody("save already in progress"))
		} else {
			slog.Error("update card failed", slog.String("card", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// DeleteCard handles DELETE /api/cards/{id} with two-step confirmation: the
// first call arms the delete and returns 202, a second call inside the
// confirm window removes the card.
//
//	@Summary		Delete a card (two-step confirm)
//	@Tags			cards
//	@Param			id	path	string	true	"Card id"
//	@Success		202	{object}	DeleteCardResponse
//	@Success		204	"Card deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id} [delete]
func (h *Handler) DeleteCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := h.sessions.Delete(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("delete card failed", slog.String("card", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if !deleted {
		writeJSON(w, http.StatusAccepted, DeleteCardResponse{Confirm: true})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UploadCard handles POST /api/cards/{id}/upload.
//
//	@Summary		Upload one card into the vault
//	@Tags			sync
//	@Produce		json
//	@Param			id	path		string	true	"Card id"
//	@Success		200	{object}	Card
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Failure		412	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/{id}/upload [post]
func (h *Handler) UploadCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	card, err := h.rec.UploadOne(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrConfigMissing):
			writeJSON(w, http.StatusPreconditionFailed, errorBody("obsidian api not configured"))
		case errors.Is(err, apperr.ErrUploadFailed):
			writeJSON(w, http.StatusBadGateway, errorBody("upload failed"))
		case errors.Is(err, apperr.ErrUploadInProgress):
			writeJSON(w, http.StatusConflict, errorBody("upload already in progress"))
		default:
			slog.Error("upload card failed", slog.String("card", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// UploadAll handles POST /api/cards/upload-all.
//
//	@Summary		Upload every draft; failures stay drafts
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	UploadResponse
//	@Failure		409	{object}	errResponse
//	@Failure		412	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/upload-all [post]
func (h *Handler) UploadAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.rec.UploadAll(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrConfigMissing):
			writeJSON(w, http.StatusPreconditionFailed, errorBody("obsidian api not configured"))
		case errors.Is(err, apperr.ErrUploadInProgress):
			writeJSON(w, http.StatusConflict, errorBody("upload already in progress"))
		default:
			slog.Error("upload all failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	if res.Uploaded == nil {
		res.Uploaded = []string{}
	}
	if res.Failed == nil {
		res.Failed = []string{}
	}
	writeJSON(w, http.StatusOK, res)
}

// SearchCards handles GET /api/cards/search.
//
//	@Summary		Full-text search across local drafts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/cards/search [get]
func (h *Handler) SearchCards(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.store.Search(q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []cardstore.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// StartSession handles POST /api/sessions.
func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	st := h.sessions.Start(req.SourceURL, req.SourceTitle, req.TemplateID)
	writeJSON(w, http.StatusCreated, st)
}

// GetSession handles GET /api/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// OpenSession handles POST /api/cards/{id}/open: loads a stored card into an
// editor session.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := h.sessions.Open(id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("open session failed", slog.String("card", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

// SeedSession handles POST /api/sessions/{id}/seed.
func (h *Handler) SeedSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.Seed(chi.URLParam(r, "id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// TogglePreview handles POST /api/sessions/{id}/preview.
func (h *Handler) TogglePreview(w http.ResponseWriter, r *http.Request) {
	st, err := h.sessions.TogglePreview(chi.URLParam(r, "id"))
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// UpdateSession handles PUT /api/sessions/{id}.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req UpdateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	st, err := h.sessions.Update(chi.URLParam(r, "id"), req.Title, req.Content)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SwitchTemplate handles POST /api/sessions/{id}/template. The switch is
// destructive; the client confirms with the user before calling.
func (h *Handler) SwitchTemplate(w http.ResponseWriter, r *http.Request) {
	var req SwitchTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.TemplateID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("templateId is required"))
		return
	}
	st, err := h.sessions.SwitchTemplate(chi.URLParam(r, "id"), req.TemplateID)
	if err != nil {
		h.sessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SaveSession handles POST /api/sessions/{id}/save.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	card, err := h.sessions.Save(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrSaveInProgress):
			writeJSON(w, http.StatusConflict, errorBody("save already in progress"))
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, errorBody("card content is empty"))
		default:
			slog.Error("save session failed", slog.String("card", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// DiscardSession handles DELETE /api/sessions/{id}.
func (h *Handler) DiscardSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	slog.Error("session operation failed", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Read the persisted settings (defaults merged in)
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	settings.Settings
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.store.Settings()
	if err != nil {
		slog.Error("read settings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// PutSettings handles PUT /api/settings. A successful write triggers an
// immediate connectivity re-check.
//
//	@Summary		Replace the persisted settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		settings.Settings	true	"New settings"
//	@Success		200		{object}	settings.Settings
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var cfg settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	merged := settings.Merge(&cfg)
	if err := merged.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if err := h.store.SaveSettings(merged); err != nil {
		slog.Error("save settings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if h.mon != nil {
		h.mon.Recheck()
	}
	writeJSON(w, http.StatusOK, merged)
}

// ListTemplates handles GET /api/templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	tpls, err := h.store.Templates()
	if err != nil {
		slog.Error("list templates failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"templates": tpls})
}

// PutTemplate handles PUT /api/templates/{id}.
func (h *Handler) PutTemplate(w http.ResponseWriter, r *http.Request) {
	var tpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	tpl.ID = chi.URLParam(r, "id")
	if tpl.Name == "" || tpl.ContentTemplate == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name and contentTemplate are required"))
		return
	}
	if err := h.store.PutTemplate(tpl); err != nil {
		slog.Error("put template failed", slog.String("template", tpl.ID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// DeleteTemplate handles DELETE /api/templates/{id}. Deleting the last
// remaining template is rejected.
func (h *Handler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteTemplate(id); err != nil {
		switch {
		case errors.Is(err, apperr.ErrLastTemplate):
			writeJSON(w, http.StatusConflict, errorBody("cannot delete the last template"))
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		default:
			slog.Error("delete template failed", slog.String("template", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Status handles GET /api/status.
//
//	@Summary		Current connectivity state
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	state := monitor.StateChecking
	if h.mon != nil {
		state = h.mon.State()
	}
	writeJSON(w, http.StatusOK, StatusResponse{State: string(state)})
}

// Recheck handles POST /api/status/recheck.
func (h *Handler) Recheck(w http.ResponseWriter, r *http.Request) {
	if h.mon != nil {
		h.mon.Recheck()
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListFolders handles GET /api/vault/folders.
func (h *Handler) ListFolders(w http.ResponseWriter, r *http.Request) {
	browser, ok := h.browser(w)
	if !ok {
		return
	}
	folders, err := browser.ListFolders(r.Context())
	if err != nil {
		slog.Error("list folders failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody("vault unreachable"))
		return
	}
	writeJSON(w, http.StatusOK, FolderListResponse{Folders: folders})
}

// VaultSearch handles GET /api/vault/search with either ?url= or ?id=.
// Remote search failures are an expected outcome and return an empty list.
func (h *Handler) VaultSearch(w http.ResponseWriter, r *http.Request) {
	browser, ok := h.browser(w)
	if !ok {
		return
	}

	q := r.URL.Query()
	switch {
	case q.Get("url") != "":
		cards, _ := browser.SearchByURL(r.Context(), q.Get("url"))
		if cards == nil {
			cards = []models.RemoteCard{}
		}
		writeJSON(w, http.StatusOK, VaultSearchResponse{Cards: cards})
	case q.Get("id") != "":
		card, _ := browser.SearchByID(r.Context(), q.Get("id"))
		cards := []models.RemoteCard{}
		if card != nil {
			cards = append(cards, *card)
		}
		writeJSON(w, http.StatusOK, VaultSearchResponse{Cards: cards})
	default:
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'url' or 'id' is required"))
	}
}

// browser builds a vault browser from the current settings, rejecting the
// request when the remote API is not configured.
func (h *Handler) browser(w http.ResponseWriter) (VaultBrowser, bool) {
	cfg, err := h.store.Settings()
	if err != nil {
		slog.Error("read settings failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return nil, false
	}
	if !cfg.Configured() {
		writeJSON(w, http.StatusPreconditionFailed, errorBody("obsidian api not configured"))
		return nil, false
	}
	return h.vault(cfg), true
}
