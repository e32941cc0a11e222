// Package publish moves selected drafts from the staging area into the
// article store.
package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/models"
	"github.com/starford/kbpipe/internal/scanner"
	"github.com/starford/kbpipe/internal/staging"
	"github.com/starford/kbpipe/internal/storage"
)

// Mode selects which staged articles a sync moves.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeSelect Mode = "select"
	ModeFile   Mode = "file"
)

// Request describes one sync invocation.
type Request struct {
	Mode Mode
	// ListFile is the publish list consulted in ModeFile.
	ListFile string
	// In and Out drive the prompt in ModeSelect.
	In  io.Reader
	Out io.Writer
}

// Result reports what a sync moved.
type Result struct {
	Synced []models.Article
	// Stale lists publish-list entries with no matching staged file.
	Stale []string
}

// Syncer copies articles from staging into the store and removes the
// staged originals.
type Syncer struct {
	staging *scanner.Scanner
	store   storage.Provider
	logger  *slog.Logger
}

// NewSyncer creates a Syncer.
func NewSyncer(staging *scanner.Scanner, store storage.Provider, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{staging: staging, store: store, logger: logger}
}

// Sync selects articles according to req and moves them into the store.
// An empty selection returns apperr.ErrNothingToDo and touches nothing.
func (s *Syncer) Sync(ctx context.Context, req Request) (*Result, error) {
	articles, err := s.staging.Scan()
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var selected []models.Article
	switch req.Mode {
	case ModeSelect:
		if len(articles) == 0 {
			return nil, fmt.Errorf("no articles found in staging: %w", apperr.ErrNothingToDo)
		}
		selected, err = PromptSelection(req.In, req.Out, articles)
		if err != nil {
			return nil, err
		}
	case ModeFile:
		paths, err := staging.ReadListFile(req.ListFile)
		if err != nil {
			return nil, err
		}
		if len(paths) == 0 {
			return nil, fmt.Errorf("no articles in publish list %s: %w", req.ListFile, apperr.ErrNothingToDo)
		}
		selected, res.Stale = filterByPaths(articles, paths)
		for _, p := range res.Stale {
			s.logger.Warn("sync: publish list entry not found in staging", slog.String("path", p))
		}
	case ModeAll, "":
		selected = articles
	default:
		return nil, fmt.Errorf("publish: unknown sync mode %q", req.Mode)
	}

	if len(selected) == 0 {
		return nil, fmt.Errorf("no articles selected: %w", apperr.ErrNothingToDo)
	}
	if err := checkCollisions(selected); err != nil {
		return nil, err
	}

	for _, a := range selected {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := storage.Transfer(s.staging.Store(), a.Path, s.store, a.Filename); err != nil {
			return res, fmt.Errorf("publish: copy %s: %w", a.Path, err)
		}
		if err := s.staging.Store().Delete(a.Path); err != nil {
			return res, fmt.Errorf("publish: clear staged %s: %w", a.Path, err)
		}
		s.logger.Debug("sync: moved", slog.String("from", a.Path), slog.String("to", a.Filename))
		res.Synced = append(res.Synced, a)
	}
	return res, nil
}

// checkCollisions rejects a selection in which two staged paths would land
// on the same store filename.
func checkCollisions(selected []models.Article) error {
	owner := make(map[string]string, len(selected))
	for _, a := range selected {
		if prev, ok := owner[a.Filename]; ok {
			return fmt.Errorf("publish: %s and %s both sync to %s: %w", prev, a.Path, a.Filename, apperr.ErrAlreadyExists)
		}
		owner[a.Filename] = a.Path
	}
	return nil
}

// filterByPaths keeps staged articles whose path is listed, in staging
// order, and returns listed paths with no staged file.
func filterByPaths(articles []models.Article, paths []string) (matched []models.Article, stale []string) {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[p] = false
	}
	for _, a := range articles {
		if _, ok := want[a.Path]; ok {
			matched = append(matched, a)
			want[a.Path] = true
		}
	}
	for _, p := range paths {
		if !want[p] {
			stale = append(stale, p)
		}
	}
	return matched, stale
}

// PromptSelection lists articles and reads one line of 1-based indices.
// Empty or unusable input selects nothing; exhausted input returns
// apperr.ErrCancelled.
func PromptSelection(in io.Reader, out io.Writer, articles []models.Article) ([]models.Article, error) {
	fmt.Fprintf(out, "\nFound %d articles in staging:\n\n", len(articles))
	for i, a := range articles {
		fmt.Fprintf(out, "[ ] %d. %s - %s\n", i+1, a.Path, a.Title)
		fmt.Fprintf(out, "       Size: %d bytes | Modified: %s\n", a.Size, a.ModTime.Format("2006-01-02 15:04:05"))
	}

	p := staging.NewPrompt(in, out)
	line, err := p.Ask(fmt.Sprintf("\nSelect articles to publish (1-%d, separate with spaces): ", len(articles)))
	if err != nil {
		fmt.Fprintln(out, "\n[INFO] Selection cancelled")
		return nil, fmt.Errorf("publish: selection: %w", apperr.ErrCancelled)
	}
	if line == "" {
		fmt.Fprintln(out, "[INFO] No articles selected")
		return nil, nil
	}
	idx, err := staging.ParseIndices(line, len(articles))
	if err != nil || len(idx) == 0 {
		fmt.Fprintln(out, "[INFO] Invalid selection")
		return nil, nil
	}

	var selected []models.Article
	seen := make(map[int]struct{}, len(idx))
	fmt.Fprintln(out, "\nSelected:")
	for _, i := range idx {
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}
		selected = append(selected, articles[i])
		fmt.Fprintf(out, "  - %s\n", articles[i].Path)
	}
	return selected, nil
}
