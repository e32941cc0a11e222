//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS articles_fts USING fts5(
			area UNINDEXED,
			path UNINDEXED,
			title,
			tags,
			categories,
			excerpt,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, r ArticleRow) error {
	_, _ = tx.Exec(`DELETE FROM articles_fts WHERE area = ? AND path = ?`, r.Area, r.Path)
	_, err := tx.Exec(`INSERT INTO articles_fts (area, path, title, tags, categories, excerpt) VALUES (?, ?, ?, ?, ?, ?)`,
		r.Area, r.Path, r.Title, strings.Join(r.Tags, " "), strings.Join(r.Categories, " "), r.Excerpt)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, area, path string) {
	_, _ = tx.Exec(`DELETE FROM articles_fts WHERE area = ? AND path = ?`, area, path)
}

// Search performs an FTS5 full-text search and returns matching results with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT f.area, f.path, a.title, a.categories, a.tags,
		       snippet(articles_fts, 5, '<b>', '</b>', '...', 32)
		FROM articles_fts f
		JOIN articles a ON a.area = f.area AND a.path = f.path
		WHERE articles_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
