// Package scanner discovers markdown articles under a storage root and turns
// them into metadata records.
package scanner

import (
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/starford/kbpipe/internal/models"
	"github.com/starford/kbpipe/internal/parser"
	"github.com/starford/kbpipe/internal/storage"
)

// Scanner enumerates articles in one storage root.
type Scanner struct {
	store      storage.Provider
	categories []string
	logger     *slog.Logger
}

// New creates a Scanner. With categories set only the direct children of
// each <root>/<category>/ directory are scanned; otherwise the whole root is
// walked recursively.
func New(store storage.Provider, categories []string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		store:      store,
		categories: append([]string(nil), categories...),
		logger:     logger,
	}
}

// Store returns the storage root the scanner reads from.
func (s *Scanner) Store() storage.Provider { return s.store }

// Scan returns every article under the root, sorted by path.
func (s *Scanner) Scan() ([]models.Article, error) {
	var metas []models.FileMetadata
	if len(s.categories) == 0 {
		all, err := s.store.List("", true)
		if err != nil {
			return nil, fmt.Errorf("scanner: %w", err)
		}
		metas = all
	} else {
		for _, c := range s.categories {
			items, err := s.store.List(c, false)
			if err != nil {
				return nil, fmt.Errorf("scanner: category %s: %w", c, err)
			}
			metas = append(metas, items...)
		}
	}

	out := make([]models.Article, 0, len(metas))
	for _, m := range metas {
		a, err := s.build(m)
		if err != nil {
			s.logger.Warn("scan: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Load builds the record for a single article path.
func (s *Scanner) Load(p string) (models.Article, error) {
	m, err := s.store.Stat(p)
	if err != nil {
		return models.Article{}, err
	}
	return s.build(m)
}

func (s *Scanner) build(m models.FileMetadata) (models.Article, error) {
	data, err := s.store.Read(m.Path)
	if err != nil {
		return models.Article{}, err
	}
	a := models.Article{
		Path:     m.Path,
		Filename: path.Base(m.Path),
		Size:     m.Size,
		ModTime:  m.UpdatedAt,
		Checksum: m.Checksum,
	}

	res, err := parser.Parse(data)
	if err != nil {
		s.logger.Warn("scan: front matter unreadable, using filename defaults",
			slog.String("path", m.Path), slog.String("error", err.Error()))
		a.Title = a.Stem()
		a.Degraded = true
		return a, nil
	}
	a.Title = res.Title
	if a.Title == "" {
		a.Title = a.Stem()
	}
	a.Description = res.Description
	a.Excerpt = res.Excerpt
	a.Categories = res.Categories
	a.Tags = res.Tags
	a.Slug = res.Slug
	return a, nil
}

// Covers reports whether p is a path Scan would return.
func (s *Scanner) Covers(p string) bool {
	if !strings.HasSuffix(p, ".md") {
		return false
	}
	if len(s.categories) == 0 {
		return true
	}
	dir := path.Dir(p)
	for _, c := range s.categories {
		if dir == c {
			return true
		}
	}
	return false
}

// CategoryOf returns the staging category a relative path lives under.
func CategoryOf(p string) string {
	if i := strings.Index(p, "/"); i > 0 {
		return p[:i]
	}
	return ""
}
