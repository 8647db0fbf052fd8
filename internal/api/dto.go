package api

import (
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/reconciler"
	"github.com/starford/ansuz/internal/session"
)

// CreateCardRequest is the request body for capturing a card in one call.
// An empty content field seeds the card from its template.
type CreateCardRequest struct {
	Title       string `json:"title" example:"Reading list"`
	Content     string `json:"content"`
	TemplateID  string `json:"templateId" example:"quick"`
	SourceURL   string `json:"sourceUrl" example:"https://example.com/post"`
	SourceTitle string `json:"sourceTitle" example:"A Post"`
}

// UpdateCardRequest is the request body for updating a stored card.
type UpdateCardRequest struct {
	Title   string `json:"title"`
	Content string `json:"content" validate:"required"`
}

// StartSessionRequest opens a new editor session.
type StartSessionRequest struct {
	SourceURL   string `json:"sourceUrl"`
	SourceTitle string `json:"sourceTitle"`
	TemplateID  string `json:"templateId"`
}

// UpdateSessionRequest replaces the draft state of a session.
type UpdateSessionRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SwitchTemplateRequest re-renders a session with another template.
type SwitchTemplateRequest struct {
	TemplateID string `json:"templateId" validate:"required"`
}

// Card is the full card payload (aliased from the domain layer).
type Card = models.LocalCard

// SessionState is the editor session payload (aliased from the domain layer).
type SessionState = session.State

// CardListResponse wraps card listings.
type CardListResponse struct {
	Cards []Card `json:"cards" validate:"required"`
	Total int    `json:"total" example:"7" validate:"required"`
}

// UploadResponse reports a bulk upload run (aliased from the reconciler).
type UploadResponse = reconciler.Result

// DeleteCardResponse is returned by the two-step delete endpoint.
type DeleteCardResponse struct {
	Confirm bool `json:"confirm" validate:"required"`
}

// StatusResponse is the connectivity payload.
type StatusResponse struct {
	State string `json:"state" example:"connected" validate:"required"`
}

// FolderListResponse wraps the vault folder listing.
type FolderListResponse struct {
	Folders []string `json:"folders" validate:"required"`
}

// VaultSearchResponse wraps remote search hits.
type VaultSearchResponse struct {
	Cards []models.RemoteCard `json:"cards" validate:"required"`
}
