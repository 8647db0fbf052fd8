// Package reconciler uploads draft cards into the vault and records the
// outcome. It is the only writer of the synced status.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/monitor"
	"github.com/starford/ansuz/internal/settings"
	"github.com/starford/ansuz/internal/sse"
	"github.com/starford/ansuz/internal/template"
	"github.com/starford/ansuz/internal/vault"
)

// autoSyncPoll is how often the background loop re-reads settings and decides
// whether an auto-sync run is due.
const autoSyncPoll = 30 * time.Second

// VaultWriter is the slice of the vault client the reconciler needs.
type VaultWriter interface {
	Create(ctx context.Context, path, content string) error
}

// Factory builds a vault writer from the current settings. Settings are
// runtime-mutable, so a writer is constructed per operation rather than held.
type Factory func(cfg *settings.Settings) VaultWriter

// Result reports one bulk upload run.
type Result struct {
	Uploaded []string `json:"uploaded"`
	Failed   []string `json:"failed"`
}

// Reconciler owns the draft-to-vault upload path.
type Reconciler struct {
	store   *cardstore.Store
	mon     *monitor.Monitor
	broker  *sse.Broker
	logger  *slog.Logger
	factory Factory
	now     func() time.Time

	mu          sync.Mutex
	inflight    map[string]struct{}
	bulkRunning bool
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithFactory replaces the vault writer constructor.
func WithFactory(f Factory) Option {
	return func(r *Reconciler) { r.factory = f }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a reconciler. broker may be nil (no event fan-out).
func New(store *cardstore.Store, mon *monitor.Monitor, broker *sse.Broker, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		store:    store,
		mon:      mon,
		broker:   broker,
		logger:   logger,
		inflight: make(map[string]struct{}),
		factory: func(cfg *settings.Settings) VaultWriter {
			return vault.New(cfg.APIURL, cfg.APIKey, logger)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UploadOne pushes a single card into the vault. The stored content is sent
// verbatim; only the filename is rendered here. On success the card flips to
// synced; on failure it is left untouched. Uploading an already synced card
// is a no-op.
func (r *Reconciler) UploadOne(ctx context.Context, id string) (*models.LocalCard, error) {
	if err := r.beginOne(id); err != nil {
		return nil, err
	}
	defer r.endOne(id)

	cfg, err := r.store.Settings()
	if err != nil {
		return nil, err
	}
	if !cfg.Configured() {
		return nil, apperr.ErrConfigMissing
	}

	card, err := r.store.Get(id)
	if err != nil {
		return nil, err
	}
	if card.Status == models.StatusSynced {
		return card, nil
	}

	if err := r.push(ctx, r.factory(cfg), cfg, card); err != nil {
		return nil, err
	}

	if err := r.store.MarkSynced([]string{id}); err != nil {
		return nil, err
	}
	if r.broker != nil {
		r.broker.PublishCardEvent(sse.CardSynced, id)
	}
	return r.store.Get(id)
}

// UploadAll pushes every draft sequentially. Cards that fail stay drafts;
// exactly the successful set is marked synced in one batch.
func (r *Reconciler) UploadAll(ctx context.Context) (Result, error) {
	var res Result

	if err := r.beginAll(); err != nil {
		return res, err
	}
	defer r.endAll()

	cfg, err := r.store.Settings()
	if err != nil {
		return res, err
	}
	if !cfg.Configured() {
		return res, apperr.ErrConfigMissing
	}

	drafts, err := r.store.Drafts()
	if err != nil {
		return res, err
	}

	writer := r.factory(cfg)
	for i := range drafts {
		card := &drafts[i]
		if err := r.push(ctx, writer, cfg, card); err != nil {
			r.logger.Warn("reconciler: upload failed",
				slog.String("card", card.ID), slog.String("error", err.Error()))
			res.Failed = append(res.Failed, card.ID)
			continue
		}
		res.Uploaded = append(res.Uploaded, card.ID)
	}

	if err := r.store.MarkSynced(res.Uploaded); err != nil {
		return res, err
	}
	if r.broker != nil {
		for _, id := range res.Uploaded {
			r.broker.PublishCardEvent(sse.CardSynced, id)
		}
	}
	return res, nil
}

func (r *Reconciler) push(ctx context.Context, writer VaultWriter, cfg *settings.Settings, card *models.LocalCard) error {
	tpl := cfg.TemplateByID(card.TemplateID)
	name := template.RenderFilename(tpl.FilenamePattern, card.Title, card.SourceTitle, r.now())
	dest := name
	if cfg.SavePath != "" {
		dest = path.Join(cfg.SavePath, name)
	}
	if err := writer.Create(ctx, dest, card.Content); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrUploadFailed, err)
	}
	return nil
}

// beginOne marks a card upload in flight; double submissions of the same card
// (or a card caught by a running bulk upload) are rejected.
func (r *Reconciler) beginOne(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bulkRunning {
		return apperr.ErrUploadInProgress
	}
	if _, busy := r.inflight[id]; busy {
		return apperr.ErrUploadInProgress
	}
	r.inflight[id] = struct{}{}
	return nil
}

func (r *Reconciler) endOne(id string) {
	r.mu.Lock()
	delete(r.inflight, id)
	r.mu.Unlock()
}

// beginAll marks a bulk upload in flight; only one runs at a time.
func (r *Reconciler) beginAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bulkRunning {
		return apperr.ErrUploadInProgress
	}
	r.bulkRunning = true
	return nil
}

func (r *Reconciler) endAll() {
	r.mu.Lock()
	r.bulkRunning = false
	r.mu.Unlock()
}

// Run drives the auto-sync timer until ctx is cancelled. Settings are re-read
// every poll so toggling auto-sync or changing its interval takes effect
// without a restart. Runs are skipped while disconnected; failures inside a
// run are already recorded per card and never stop the loop.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(autoSyncPoll)
	defer ticker.Stop()

	var lastRun time.Time
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler: auto-sync stopped")
			return nil
		case <-ticker.C:
		}

		cfg, err := r.store.Settings()
		if err != nil {
			r.logger.Warn("reconciler: settings read failed", slog.String("error", err.Error()))
			continue
		}
		if !cfg.AutoSync.Enabled || !cfg.Configured() {
			continue
		}
		if r.mon != nil && r.mon.State() != monitor.StateConnected {
			continue
		}

		interval := time.Duration(cfg.AutoSync.IntervalMinutes) * time.Minute
		if interval <= 0 || r.now().Sub(lastRun) < interval {
			continue
		}
		lastRun = r.now()

		res, err := r.UploadAll(ctx)
		if err != nil {
			r.logger.Warn("reconciler: auto-sync run failed", slog.String("error", err.Error()))
			continue
		}
		if len(res.Uploaded) > 0 || len(res.Failed) > 0 {
			r.logger.Info("reconciler: auto-sync run",
				slog.Int("uploaded", len(res.Uploaded)), slog.Int("failed", len(res.Failed)))
		}
	}
}
