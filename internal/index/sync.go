package index

import (
	"fmt"
	"log/slog"

	"github.com/starford/kbpipe/internal/scanner"
)

// Area binds an area name to the scanner that enumerates it.
type Area struct {
	Name    string
	Scanner *scanner.Scanner
}

// Stats reports what a Sync pass changed.
type Stats struct {
	Indexed int `json:"indexed"`
	Removed int `json:"removed"`
	Total   int `json:"total"`
}

// Sync brings the index up to date for every area:
//   - new/changed articles are upserted
//   - rows for articles no longer on disk are deleted
func Sync(db *DB, areas []Area, logger *slog.Logger) (Stats, error) {
	var st Stats
	for _, a := range areas {
		s, err := syncArea(db, a, logger)
		if err != nil {
			return st, fmt.Errorf("index: sync %s: %w", a.Name, err)
		}
		st.Indexed += s.Indexed
		st.Removed += s.Removed
		st.Total += s.Total
	}
	return st, nil
}

func syncArea(db *DB, a Area, logger *slog.Logger) (Stats, error) {
	var st Stats
	articles, err := a.Scanner.Scan()
	if err != nil {
		return st, err
	}
	checksums, err := db.AllChecksums(a.Name)
	if err != nil {
		return st, err
	}

	disk := make(map[string]struct{}, len(articles))
	for _, art := range articles {
		disk[art.Path] = struct{}{}
		if checksums[art.Path] == art.Checksum {
			continue
		}
		if err := db.Upsert(RowFromArticle(a.Name, art)); err != nil {
			logger.Warn("sync: index failed", slog.String("area", a.Name), slog.String("path", art.Path), slog.String("error", err.Error()))
			continue
		}
		st.Indexed++
		logger.Debug("sync: indexed", slog.String("area", a.Name), slog.String("path", art.Path))
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; ok {
			continue
		}
		if err := db.Delete(a.Name, p); err != nil {
			logger.Warn("sync: delete failed", slog.String("area", a.Name), slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		st.Removed++
		logger.Debug("sync: removed stale", slog.String("area", a.Name), slog.String("path", p))
	}
	st.Total = len(articles)
	return st, nil
}

// indexFile loads one article of an area and upserts it.
func indexFile(db *DB, a Area, path string) error {
	art, err := a.Scanner.Load(path)
	if err != nil {
		return err
	}
	return db.Upsert(RowFromArticle(a.Name, art))
}
