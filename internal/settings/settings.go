// Package settings defines the runtime-mutable configuration that UI surfaces
// edit while Ansuz is running. Unlike the bootstrap config file, these values
// live in the card store and are merged with defaults at every read.
package settings

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/models"
)

// Shortcuts holds the keyboard bindings surfaced to the panel UI.
type Shortcuts struct {
	NewCard       string `json:"newCard"`
	SaveCard      string `json:"saveCard"`
	TogglePreview string `json:"togglePreview"`
}

// AutoSync controls the background draft upload timer.
type AutoSync struct {
	Enabled         bool `json:"enabled"`
	IntervalMinutes int  `json:"intervalMinutes"`
}

// Settings is the persisted user configuration.
type Settings struct {
	APIKey            string            `json:"apiKey"`
	APIURL            string            `json:"apiUrl"`
	SavePath          string            `json:"savePath"`
	Templates         []models.Template `json:"templates"`
	DefaultTemplateID string            `json:"defaultTemplateId"`
	Shortcuts         Shortcuts         `json:"shortcuts"`
	StrictLineBreaks  bool              `json:"strictLineBreaks"`
	AutoSync          AutoSync          `json:"autoSync"`
	Language          string            `json:"language"`
}

// Validate checks the writable fields of the settings payload.
func (s *Settings) Validate() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.APIURL, validation.Required),
		validation.Field(&s.Templates, validation.Required, validation.Length(1, 0)),
		validation.Field(&s.AutoSync),
	)
}

// Validate bounds the auto-sync interval; 0 disables the timer.
func (a AutoSync) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.IntervalMinutes, validation.Min(0), validation.Max(60)),
	)
}

// Configured reports whether the remote client has enough configuration to
// attempt a request. Missing key or URL short-circuits every network path.
func (s *Settings) Configured() bool {
	return s.APIKey != "" && s.APIURL != ""
}

// TemplateByID returns the template with the given id, falling back to the
// first template when the id is unknown or empty.
func (s *Settings) TemplateByID(id string) models.Template {
	for _, t := range s.Templates {
		if t.ID == id {
			return t
		}
	}
	return s.Templates[0]
}

// Default returns the settings used before the user has saved anything.
func Default() *Settings {
	return &Settings{
		APIURL:            "http://127.0.0.1:27123",
		SavePath:          "",
		Templates:         DefaultTemplates(),
		DefaultTemplateID: "quick",
		Shortcuts: Shortcuts{
			NewCard:       "ctrl+n",
			SaveCard:      "ctrl+enter",
			TogglePreview: "ctrl+e",
		},
		StrictLineBreaks: false,
		AutoSync: AutoSync{
			Enabled:         false,
			IntervalMinutes: 5,
		},
		Language: "en",
	}
}

// Merge fills zero-valued fields of s from the defaults, so a partially
// written settings blob (or one from an older version) always reads complete.
func Merge(s *Settings) *Settings {
	def := Default()
	if s == nil {
		return def
	}
	if s.APIURL == "" {
		s.APIURL = def.APIURL
	}
	if len(s.Templates) == 0 {
		s.Templates = def.Templates
	}
	if s.DefaultTemplateID == "" {
		s.DefaultTemplateID = def.DefaultTemplateID
	}
	if s.Shortcuts.NewCard == "" {
		s.Shortcuts.NewCard = def.Shortcuts.NewCard
	}
	if s.Shortcuts.SaveCard == "" {
		s.Shortcuts.SaveCard = def.Shortcuts.SaveCard
	}
	if s.Shortcuts.TogglePreview == "" {
		s.Shortcuts.TogglePreview = def.Shortcuts.TogglePreview
	}
	if s.AutoSync.IntervalMinutes == 0 {
		s.AutoSync.IntervalMinutes = def.AutoSync.IntervalMinutes
	}
	if s.Language == "" {
		s.Language = def.Language
	}
	return s
}
