package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/kbpipe/internal/models"
)

// ArticleRow represents a row in the articles table.
type ArticleRow struct {
	Area       string
	Path       string
	Title      string
	Checksum   string
	Categories []string
	Tags       []string
	Slug       string
	Excerpt    string
	UpdatedAt  time.Time
}

// RowFromArticle builds the row stored for an article of the given area.
func RowFromArticle(area string, a models.Article) ArticleRow {
	return ArticleRow{
		Area:       area,
		Path:       a.Path,
		Title:      a.Title,
		Checksum:   a.Checksum,
		Categories: a.Categories,
		Tags:       a.Tags,
		Slug:       a.Slug,
		Excerpt:    a.Excerpt,
		UpdatedAt:  a.ModTime,
	}
}

// SearchResult represents one search hit.
type SearchResult struct {
	Area       string   `json:"area"`
	Path       string   `json:"path"`
	Title      string   `json:"title"`
	Categories []string `json:"categories"`
	Tags       []string `json:"tags"`
	Snippet    string   `json:"snippet,omitempty"`
}

func encodeList(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeList(s string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

// Upsert inserts or replaces an article row and its FTS entry within a transaction.
func (db *DB) Upsert(r ArticleRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = time.Now()
	}
	_, err = tx.Exec(`
		INSERT INTO articles (area, path, title, checksum, categories, tags, slug, excerpt, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(area, path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			categories = excluded.categories,
			tags       = excluded.tags,
			slug       = excluded.slug,
			excerpt    = excluded.excerpt,
			updated_at = excluded.updated_at
	`, r.Area, r.Path, r.Title, r.Checksum, encodeList(r.Categories), encodeList(r.Tags), r.Slug, r.Excerpt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert article: %w", err)
	}

	// FTS upsert (no-op when FTS5 tag is absent).
	if err := ftsUpsert(tx, r); err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes an article row and its FTS entry.
func (db *DB) Delete(area, path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, area, path)
	if _, err := tx.Exec(`DELETE FROM articles WHERE area = ? AND path = ?`, area, path); err != nil {
		return fmt.Errorf("index: delete article: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for an article, or empty string if not found.
func (db *DB) GetChecksum(area, path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM articles WHERE area = ? AND path = ?`, area, path).Scan(&cs)
	if err != nil {
		return "", nil // not found is fine
	}
	return cs, nil
}

// AllChecksums returns path -> checksum for every article of an area.
func (db *DB) AllChecksums(area string) (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM articles WHERE area = ?`, area)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Count returns how many articles of an area are indexed.
func (db *DB) Count(area string) (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM articles WHERE area = ?`, area).Scan(&n); err != nil {
		return 0, fmt.Errorf("index: count: %w", err)
	}
	return n, nil
}
