// Package models defines the domain types for Ansuz.
package models

// Card sync status values.
const (
	StatusDraft  = "draft"
	StatusSynced = "synced"
)

// SyncedPathMarker is stored in ObsidianPath once a card has been uploaded.
// The original note is located remotely by its embedded uuid, not by path.
const SyncedPathMarker = "synced"

// LocalCard is a captured note held in the local store until it is
// reconciled into the Obsidian vault.
//
// ID is generated once at creation, never changes, and is embedded into
// Content at render time so the note can be located remotely even after
// local state is wiped.
type LocalCard struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	TemplateID  string `json:"templateId"`
	SourceURL   string `json:"sourceUrl"`
	SourceTitle string `json:"sourceTitle"`
	Status      string `json:"status"` // "draft" or "synced"
	Checksum    string `json:"checksum"`
	Created     string `json:"created"` // RFC 3339
	Updated     string `json:"updated"` // RFC 3339
	// ObsidianPath is set when the card has been pushed to the vault.
	ObsidianPath string `json:"obsidianPath,omitempty"`
}

// Template is a pair of placeholder patterns used to seed a new card.
type Template struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	FilenamePattern string `json:"filenamePattern"`
	ContentTemplate string `json:"contentTemplate"`
}

// RemoteCard is a note read back from the vault via the REST API.
type RemoteCard struct {
	Path        string `json:"path"`
	Filename    string `json:"filename"`
	SourceURL   string `json:"sourceUrl"`
	SourceTitle string `json:"sourceTitle"`
	Created     string `json:"created"`
	Content     string `json:"content"`    // body without frontmatter
	RawContent  string `json:"rawContent"` // full file as stored
}

// CardFrontmatter holds the flat key/value fields Ansuz writes into the
// leading frontmatter block of a vault file.
type CardFrontmatter struct {
	UUID        string `yaml:"uuid"`
	SourceURL   string `yaml:"source_url"`
	SourceTitle string `yaml:"source_title"`
	Created     string `yaml:"created"`
	Template    string `yaml:"template,omitempty"`
}
