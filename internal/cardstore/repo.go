package cardstore

import (
	"database/sql"
	"fmt"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
)

const cardColumns = `id, title, content, template_id, source_url, source_title,
	status, checksum, created, updated, obsidian_path`

// Partial names the mutable card fields for UpdateFields. Nil pointers leave
// the stored value untouched (writes are last-writer-wins; there is no
// concurrency token by design).
type Partial struct {
	Title        *string
	Content      *string
	TemplateID   *string
	Status       *string
	Updated      *string
	ObsidianPath *string
}

// Insert adds a new card. The content checksum is computed here so callers
// never have to keep it in sync manually.
func (s *Store) Insert(c models.LocalCard) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cardstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	res, err := tx.Exec(`
		INSERT OR IGNORE INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Title, c.Content, c.TemplateID, c.SourceURL, c.SourceTitle,
		c.Status, checksum.Sum([]byte(c.Content)), c.Created, c.Updated, c.ObsidianPath)
	if err != nil {
		return fmt.Errorf("cardstore: insert card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrAlreadyExists
	}

	if err := ftsUpsert(tx, c.ID, c.Title, c.Content); err != nil {
		return err
	}
	return tx.Commit()
}

// Get returns the card with the given id.
func (s *Store) Get(id string) (*models.LocalCard, error) {
	row := s.conn.QueryRow(`SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	c, err := scanCard(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("cardstore: get card: %w", err)
	}
	return c, nil
}

// List returns cards captured from the given page plus global cards with no
// source URL, newest-updated-first. An empty sourceURL returns every card.
func (s *Store) List(sourceURL string) ([]models.LocalCard, error) {
	query := `SELECT ` + cardColumns + ` FROM cards ORDER BY updated DESC`
	args := []any{}
	if sourceURL != "" {
		query = `SELECT ` + cardColumns + ` FROM cards
			WHERE source_url = ? OR source_url = ''
			ORDER BY updated DESC`
		args = append(args, sourceURL)
	}

	rows, err := s.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("cardstore: list cards: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// Drafts returns every card still in draft status, newest-updated-first.
func (s *Store) Drafts() ([]models.LocalCard, error) {
	rows, err := s.conn.Query(`SELECT `+cardColumns+` FROM cards
		WHERE status = ? ORDER BY updated DESC`, models.StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("cardstore: list drafts: %w", err)
	}
	defer rows.Close()
	return collectCards(rows)
}

// UpdateFields applies a partial update to a card. Content changes refresh
// the stored checksum and the search index.
func (s *Store) UpdateFields(id string, p Partial) error {
	existing, err := s.Get(id)
	if err != nil {
		return err
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&existing.Title, p.Title)
	apply(&existing.Content, p.Content)
	apply(&existing.TemplateID, p.TemplateID)
	apply(&existing.Status, p.Status)
	apply(&existing.Updated, p.Updated)
	apply(&existing.ObsidianPath, p.ObsidianPath)

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cardstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.Exec(`
		UPDATE cards SET title = ?, content = ?, template_id = ?, status = ?,
			checksum = ?, updated = ?, obsidian_path = ?
		WHERE id = ?
	`, existing.Title, existing.Content, existing.TemplateID, existing.Status,
		checksum.Sum([]byte(existing.Content)), existing.Updated, existing.ObsidianPath, id)
	if err != nil {
		return fmt.Errorf("cardstore: update card: %w", err)
	}

	if p.Title != nil || p.Content != nil {
		if err := ftsUpsert(tx, id, existing.Title, existing.Content); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Remove deletes a card and its search entry.
func (s *Store) Remove(id string) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cardstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`DELETE FROM cards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("cardstore: delete card: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	ftsDelete(tx, id)
	return tx.Commit()
}

// MarkSynced transitions exactly the given ids to synced in one transaction.
// Only status and obsidian_path change; updated stays as the last edit time,
// so a sync never reorders the list. The reconciler computes the full success
// set before calling this, so a partially failed batch never produces
// interleaved writes.
func (s *Store) MarkSynced(ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("cardstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`UPDATE cards SET status = ?, obsidian_path = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("cardstore: prepare mark synced: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.Exec(models.StatusSynced, models.SyncedPathMarker, id); err != nil {
			return fmt.Errorf("cardstore: mark synced %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Templates returns the template list from the settings blob.
func (s *Store) Templates() ([]models.Template, error) {
	cfg, err := s.Settings()
	if err != nil {
		return nil, err
	}
	return cfg.Templates, nil
}

// PutTemplate inserts or replaces a template by id.
func (s *Store) PutTemplate(t models.Template) error {
	cfg, err := s.Settings()
	if err != nil {
		return err
	}
	replaced := false
	for i := range cfg.Templates {
		if cfg.Templates[i].ID == t.ID {
			cfg.Templates[i] = t
			replaced = true
			break
		}
	}
	if !replaced {
		cfg.Templates = append(cfg.Templates, t)
	}
	return s.SaveSettings(cfg)
}

// DeleteTemplate removes a template. Deleting the last remaining template is
// rejected; a dangling default template id falls back to the first survivor.
func (s *Store) DeleteTemplate(id string) error {
	cfg, err := s.Settings()
	if err != nil {
		return err
	}
	if len(cfg.Templates) <= 1 {
		return apperr.ErrLastTemplate
	}

	kept := cfg.Templates[:0]
	found := false
	for _, t := range cfg.Templates {
		if t.ID == id {
			found = true
			continue
		}
		kept = append(kept, t)
	}
	if !found {
		return apperr.ErrNotFound
	}
	cfg.Templates = kept
	if cfg.DefaultTemplateID == id {
		cfg.DefaultTemplateID = kept[0].ID
	}
	return s.SaveSettings(cfg)
}

// scanner abstracts *sql.Row and *sql.Rows for scanCard.
type scanner interface {
	Scan(dest ...any) error
}

func scanCard(sc scanner) (*models.LocalCard, error) {
	var c models.LocalCard
	err := sc.Scan(&c.ID, &c.Title, &c.Content, &c.TemplateID, &c.SourceURL,
		&c.SourceTitle, &c.Status, &c.Checksum, &c.Created, &c.Updated, &c.ObsidianPath)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func collectCards(rows *sql.Rows) ([]models.LocalCard, error) {
	var out []models.LocalCard
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
