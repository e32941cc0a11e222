//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on the articles table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ ArticleRow) error { return nil }

func ftsDelete(_ *sql.Tx, _, _ string) {}

// Search performs a LIKE match on title, tags and categories (fallback when
// FTS5 is not compiled in). Store articles sort before staged ones.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT area, path, title, categories, tags, excerpt
		FROM articles
		WHERE title LIKE ? OR tags LIKE ? OR categories LIKE ?
		ORDER BY CASE area WHEN 'store' THEN 0 ELSE 1 END, path
		LIMIT ?
	`, like, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var cats, tags string
		if err := rows.Scan(&r.Area, &r.Path, &r.Title, &cats, &tags, &r.Snippet); err != nil {
			return nil, err
		}
		r.Categories = decodeList(cats)
		r.Tags = decodeList(tags)
		out = append(out, r)
	}
	return out, rows.Err()
}
