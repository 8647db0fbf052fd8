//go:build !sqlite_fts5

package cardstore

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not compiled in; search falls back to LIKE over the cards table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _, _, _ string) error {
	// Content already lives in the cards table; nothing extra to do.
	return nil
}

func ftsDelete(_ *sql.Tx, _ string) {}

// SearchResult is one local draft search hit.
type SearchResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (s *Store) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := s.conn.Query(`
		SELECT id, title, substr(content, 1, 200)
		FROM cards
		WHERE title LIKE ? OR content LIKE ?
		ORDER BY updated DESC
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("cardstore: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
