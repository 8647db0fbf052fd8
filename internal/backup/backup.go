// Package backup exports the local card store to plain markdown files. It is
// the offline escape hatch: everything a user captured stays recoverable even
// if the host app never comes back.
package backup

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/cardstore"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/template"
)

// Exporter writes card files under a single target directory.
type Exporter struct {
	root   string // absolute path to the export directory
	logger *slog.Logger
}

// NewExporter creates an exporter rooted at dir, creating it if needed.
func NewExporter(dir string, logger *slog.Logger) (*Exporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("backup: create root: %w", err)
	}
	return &Exporter{root: abs, logger: logger}, nil
}

// safePath resolves a relative file name against the export root and rejects
// any result that escapes it (directory traversal).
func (e *Exporter) safePath(rel string) (string, error) {
	cleaned := filepath.Clean(rel)
	if cleaned == "" || filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("backup: invalid file name: %s", rel)
	}
	abs, err := filepath.Abs(filepath.Join(e.root, cleaned))
	if err != nil {
		return "", fmt.Errorf("backup: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, e.root+string(os.PathSeparator)) && abs != e.root {
		return "", fmt.Errorf("backup: path escapes export root: %s", rel)
	}
	return abs, nil
}

// write atomically writes content: tmp file → fsync → rename.
func (e *Exporter) write(rel string, content []byte) error {
	abs, err := e.safePath(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("backup: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ansuz-tmp-*")
	if err != nil {
		return fmt.Errorf("backup: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("backup: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("backup: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("backup: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("backup: rename: %w", err)
	}
	success = true
	return nil
}

// ExportAll writes every card in the store as a markdown file and returns the
// number of files written. File names follow each card's template filename
// pattern; id collisions are avoided by suffixing the card id.
func (e *Exporter) ExportAll(store *cardstore.Store) (int, error) {
	cfg, err := store.Settings()
	if err != nil {
		return 0, err
	}
	cards, err := store.List("")
	if err != nil {
		return 0, err
	}

	seen := make(map[string]struct{}, len(cards))
	written := 0
	for _, card := range cards {
		name := exportName(cfg.TemplateByID(card.TemplateID).FilenamePattern, card, seen)
		if err := e.write(name, []byte(card.Content)); err != nil {
			return written, err
		}
		e.logger.Debug("backup: exported",
			slog.String("card", card.ID), slog.String("file", name))
		written++
	}
	return written, nil
}

func exportName(pattern string, card models.LocalCard, seen map[string]struct{}) string {
	created, err := time.Parse(time.RFC3339, card.Created)
	if err != nil {
		created = time.Now()
	}
	name := template.RenderFilename(pattern, card.Title, card.SourceTitle, created)
	if _, dup := seen[name]; dup {
		name = strings.TrimSuffix(name, ".md") + " - " + card.ID + ".md"
	}
	seen[name] = struct{}{}
	return name
}
