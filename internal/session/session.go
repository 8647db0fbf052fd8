// Package session tracks in-progress card edits before they reach the store.
// A session exists per open editor surface; it owns template seeding, the
// preview toggle and the two-step delete confirmation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/template"
)

// Mode is the editor display mode.
type Mode string

const (
	ModeEditing    Mode = "editing"
	ModePreviewing Mode = "previewing"
)

// confirmWindow is how long a delete stays armed before the first click is
// forgotten.
const confirmWindow = 3 * time.Second

// State is one open editor session. For a new card the id is allocated up
// front; the card only reaches the store on the first successful Save.
type State struct {
	CardID      string `json:"cardId"`
	New         bool   `json:"new"`
	Initialized bool   `json:"initialized"`
	Mode        Mode   `json:"mode"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	TemplateID  string `json:"templateId"`
	SourceURL   string `json:"sourceUrl"`
	SourceTitle string `json:"sourceTitle"`
}

// Service owns all live sessions.
type Service struct {
	store  *cardstore.Store
	broker *sse.Broker
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu       sync.Mutex
	sessions map[string]*State
	saving   map[string]bool
	armed    map[string]time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the card id generator.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// New creates a session service. broker may be nil.
func New(store *cardstore.Store, broker *sse.Broker, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:    store,
		broker:   broker,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
		sessions: make(map[string]*State),
		saving:   make(map[string]bool),
		armed:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a session for a new card. Template content is NOT rendered yet;
// seeding happens lazily on the first Seed or TogglePreview, so opening and
// immediately abandoning the editor allocates nothing in the store.
func (s *Service) Start(sourceURL, sourceTitle, templateID string) *State {
	st := &State{
		CardID:      s.newID(),
		New:         true,
		Mode:        ModeEditing,
		TemplateID:  templateID,
		SourceURL:   sourceURL,
		SourceTitle: sourceTitle,
	}
	s.mu.Lock()
	s.sessions[st.CardID] = st
	s.mu.Unlock()
	return st
}

// Open loads an existing card into a session. Stored content is shown as-is;
// no rendering happens for existing cards.
func (s *Service) Open(id string) (*State, error) {
	card, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	st := &State{
		CardID:      card.ID,
		Initialized: true,
		Mode:        ModeEditing,
		Title:       card.Title,
		Content:     card.Content,
		TemplateID:  card.TemplateID,
		SourceURL:   card.SourceURL,
		SourceTitle: card.SourceTitle,
	}
	s.mu.Lock()
	s.sessions[st.CardID] = st
	s.mu.Unlock()
	return st, nil
}

// Get returns a live session.
func (s *Service) Get(id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return st, nil
}

// Seed renders the session's template into its content. Rendering happens
// exactly once per session; subsequent calls are no-ops. The card id is made
// discoverable in the content even when the template lacks a uuid token.
func (s *Service) Seed(id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if st.Initialized {
		return st, nil
	}
	if err := s.renderLocked(st); err != nil {
		return nil, err
	}
	return st, nil
}

// renderLocked expands the session template into content. Caller holds s.mu.
func (s *Service) renderLocked(st *State) error {
	cfg, err := s.store.Settings()
	if err != nil {
		return err
	}
	if st.TemplateID == "" {
		st.TemplateID = cfg.DefaultTemplateID
	}
	tpl := cfg.TemplateByID(st.TemplateID)
	st.TemplateID = tpl.ID

	content := template.RenderContent(tpl.ContentTemplate, template.Vars{
		UUID:        st.CardID,
		Title:       st.Title,
		SourceURL:   st.SourceURL,
		SourceTitle: st.SourceTitle,
		Now:         s.now(),
	})
	st.Content = template.EnsureID(content, st.CardID)
	st.Initialized = true
	return nil
}

// TogglePreview flips between editing and previewing, seeding first if the
// session has never been initialized.
func (s *Service) TogglePreview(id string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if !st.Initialized {
		if err := s.renderLocked(st); err != nil {
			return nil, err
		}
	}
	if st.Mode == ModeEditing {
		st.Mode = ModePreviewing
	} else {
		st.Mode = ModeEditing
	}
	return st, nil
}

// Update replaces the session's draft title and content.
func (s *Service) Update(id, title, content string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	st.Title = title
	st.Content = content
	st.Initialized = true
	return st, nil
}

// SwitchTemplate re-renders the session with another template. The switch is
// destructive: any edited content is replaced by the fresh render. Callers
// confirm with the user before invoking this.
func (s *Service) SwitchTemplate(id, templateID string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.sessions[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	st.TemplateID = templateID
	st.Initialized = false
	if err := s.renderLocked(st); err != nil {
		return nil, err
	}
	return st, nil
}

// Save persists the session. New cards are inserted (empty content is
// rejected before anything touches the store); existing cards receive a
// partial update. A save already in flight for the same card is rejected
// with ErrSaveInProgress instead of queueing.
func (s *Service) Save(_ context.Context, id string) (*models.LocalCard, error) {
	s.mu.Lock()
	st, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, apperr.ErrNotFound
	}
	if s.saving[id] {
		s.mu.Unlock()
		return nil, apperr.ErrSaveInProgress
	}
	if st.New && strings.TrimSpace(st.Content) == "" {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: empty card", apperr.ErrValidation)
	}
	s.saving[id] = true
	isNew := st.New
	snapshot := *st
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.saving, id)
		s.mu.Unlock()
	}()

	now := s.now().UTC().Format(time.RFC3339)
	if isNew {
		err := s.store.Insert(models.LocalCard{
			ID:          snapshot.CardID,
			Title:       snapshot.Title,
			Content:     snapshot.Content,
			TemplateID:  snapshot.TemplateID,
			SourceURL:   snapshot.SourceURL,
			SourceTitle: snapshot.SourceTitle,
			Status:      models.StatusDraft,
			Created:     now,
			Updated:     now,
		})
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		st.New = false
		s.mu.Unlock()
		if s.broker != nil {
			s.broker.PublishCardEvent(sse.CardCreated, id)
		}
	} else {
		// Editing a synced card makes it a draft again; the next sync
		// re-uploads it.
		status := models.StatusDraft
		noPath := ""
		err := s.store.UpdateFields(id, cardstore.Partial{
			Title:        &snapshot.Title,
			Content:      &snapshot.Content,
			TemplateID:   &snapshot.TemplateID,
			Status:       &status,
			Updated:      &now,
			ObsidianPath: &noPath,
		})
		if err != nil {
			return nil, err
		}
		if s.broker != nil {
			s.broker.PublishCardEvent(sse.CardUpdated, id)
		}
	}
	return s.store.Get(id)
}

// Close discards a session without saving.
func (s *Service) Close(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// Delete implements the two-step confirmation. The first call arms the
// delete and returns false; a second call within the confirm window removes
// the card. After the window expires the next call arms again.
func (s *Service) Delete(id string) (bool, error) {
	s.mu.Lock()
	armedAt, armed := s.armed[id]
	now := s.now()
	if !armed || now.Sub(armedAt) > confirmWindow {
		s.armed[id] = now
		s.mu.Unlock()
		return false, nil
	}
	delete(s.armed, id)
	s.mu.Unlock()

	if err := s.store.Remove(id); err != nil {
		return false, err
	}
	s.Close(id)
	if s.broker != nil {
		s.broker.PublishCardEvent(sse.CardDeleted, id)
	}
	return true, nil
}
