package settings

import (
	"testing"

	"github.com/starford/ansuz/internal/models"
)

func TestMergeFillsDefaults(t *testing.T) {
	s := Merge(&Settings{APIKey: "k"})
	if s.APIURL != "http://127.0.0.1:27123" {
		t.Errorf("apiUrl = %q", s.APIURL)
	}
	if len(s.Templates) != 5 {
		t.Errorf("templates = %d, want 5", len(s.Templates))
	}
	if s.DefaultTemplateID != "quick" {
		t.Errorf("defaultTemplateId = %q", s.DefaultTemplateID)
	}
	if s.Shortcuts.SaveCard != "ctrl+enter" {
		t.Errorf("saveCard = %q", s.Shortcuts.SaveCard)
	}
	if s.AutoSync.IntervalMinutes != 5 {
		t.Errorf("intervalMinutes = %d", s.AutoSync.IntervalMinutes)
	}
	if s.APIKey != "k" {
		t.Errorf("apiKey overwritten: %q", s.APIKey)
	}
}

func TestMergeNil(t *testing.T) {
	s := Merge(nil)
	if s == nil || len(s.Templates) == 0 {
		t.Fatal("nil settings should merge to full defaults")
	}
}

func TestMergeKeepsUserTemplates(t *testing.T) {
	own := []models.Template{{ID: "mine", Name: "Mine", FilenamePattern: "{{title}}", ContentTemplate: "x"}}
	s := Merge(&Settings{Templates: own})
	if len(s.Templates) != 1 || s.Templates[0].ID != "mine" {
		t.Errorf("user templates replaced: %+v", s.Templates)
	}
}

func TestConfigured(t *testing.T) {
	s := Default()
	if s.Configured() {
		t.Error("default settings have no api key and must not be configured")
	}
	s.APIKey = "secret"
	if !s.Configured() {
		t.Error("key + url should be configured")
	}
}

func TestTemplateByIDFallback(t *testing.T) {
	s := Default()
	if got := s.TemplateByID("bookmark"); got.ID != "bookmark" {
		t.Errorf("got %q", got.ID)
	}
	if got := s.TemplateByID("nope"); got.ID != s.Templates[0].ID {
		t.Errorf("unknown id should fall back to first template, got %q", got.ID)
	}
}

func TestValidateRejectsEmptyTemplates(t *testing.T) {
	s := Default()
	s.Templates = nil
	if err := s.Validate(); err == nil {
		t.Error("expected validation error for empty templates")
	}
}

func TestValidateAutoSyncBounds(t *testing.T) {
	s := Default()
	s.AutoSync.IntervalMinutes = 120
	if err := s.Validate(); err == nil {
		t.Error("expected validation error for interval > 60")
	}
}
