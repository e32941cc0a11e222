// Package deploy computes which articles are new and assembles them into the
// deploy/ package for manual upload.
package deploy

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/registry"
	"github.com/starford/kbpipe/internal/storage"
	"github.com/starford/kbpipe/internal/version"
)

// Item is one file of a deploy package.
type Item struct {
	Category string `json:"category,omitempty"`
	Filename string `json:"filename"`
	// Source and SourcePath locate the bytes to copy.
	Source     storage.Provider `json:"-"`
	SourcePath string           `json:"-"`
}

// Path returns the item's location inside deploy/.
func (i Item) Path() string {
	if i.Category == "" {
		return i.Filename
	}
	return path.Join(i.Category, i.Filename)
}

// Delta is the set of articles new in a version.
type Delta struct {
	Tag      string `json:"tag"`
	Previous string `json:"previous,omitempty"`
	Items    []Item `json:"items"`
}

// Paths returns the sorted deploy-relative paths of the delta.
func (d *Delta) Paths() []string {
	out := make([]string, len(d.Items))
	for i, it := range d.Items {
		out[i] = it.Path()
	}
	sort.Strings(out)
	return out
}

// Policy decides which articles of a version are new.
type Policy interface {
	Delta(ctx context.Context, tag string) (*Delta, error)
}

// DirectoryDiff treats a file as new when the previous version's snapshot
// has no file at the same relative path.
type DirectoryDiff struct {
	snap *registry.Snapshot
}

// NewDirectoryDiff creates the policy used with the snapshot registry.
func NewDirectoryDiff(snap *registry.Snapshot) *DirectoryDiff {
	return &DirectoryDiff{snap: snap}
}

// Delta implements Policy.
func (p *DirectoryDiff) Delta(ctx context.Context, tag string) (*Delta, error) {
	if !p.snap.Store().Exists(tag) {
		return nil, fmt.Errorf("deploy: snapshot %s: %w", tag, apperr.ErrNotFound)
	}
	files, err := p.snap.Files(tag)
	if err != nil {
		return nil, err
	}

	prev, err := p.predecessor(tag)
	if err != nil {
		return nil, err
	}

	d := &Delta{Tag: tag}
	seen := map[string]struct{}{}
	if prev != "" && p.snap.Store().Exists(prev) {
		d.Previous = prev
		prevFiles, err := p.snap.Files(prev)
		if err != nil {
			return nil, err
		}
		for _, f := range prevFiles {
			seen[f] = struct{}{}
		}
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := seen[f]; ok {
			continue
		}
		dir, name := path.Split(f)
		d.Items = append(d.Items, Item{
			Category:   strings.TrimSuffix(dir, "/"),
			Filename:   name,
			Source:     p.snap.Store(),
			SourcePath: path.Join(tag, f),
		})
	}
	return d, nil
}

// predecessor returns the version the snapshot of tag was built on. The sidecar
// records it; snapshots without one fall back to the numeric N-1.
func (p *DirectoryDiff) predecessor(tag string) (string, error) {
	side, err := p.snap.ReadSidecar(tag)
	switch {
	case err == nil:
		return side.Previous, nil
	case errors.Is(err, fs.ErrNotExist):
		return version.Previous(tag), nil
	default:
		return "", err
	}
}

// FlagDiff treats every registry record whose deployed flag is false as new,
// regardless of which version recorded it.
type FlagDiff struct {
	csv    *registry.CSV
	store  storage.Provider
	logger *slog.Logger
}

// NewFlagDiff creates the policy used with the csv registry. store is the
// article store the records point into.
func NewFlagDiff(csv *registry.CSV, store storage.Provider, logger *slog.Logger) *FlagDiff {
	if logger == nil {
		logger = slog.Default()
	}
	return &FlagDiff{csv: csv, store: store, logger: logger}
}

// Delta implements Policy. Records whose article is gone from the store are
// skipped with a warning.
func (p *FlagDiff) Delta(_ context.Context, tag string) (*Delta, error) {
	records, err := p.csv.Undeployed()
	if err != nil {
		return nil, err
	}
	d := &Delta{Tag: tag, Previous: version.Previous(tag)}
	for _, r := range records {
		if !p.store.Exists(r.ArticlePath) {
			p.logger.Warn("deploy: registered article missing from store",
				slog.String("path", r.ArticlePath), slog.String("version", r.Version))
			continue
		}
		d.Items = append(d.Items, Item{
			Category:   r.PrimaryCategory(),
			Filename:   path.Base(r.ArticlePath),
			Source:     p.store,
			SourcePath: r.ArticlePath,
		})
	}
	return d, nil
}

// Sources returns the store-relative paths of the delta's items, which for
// the csv registry are its article_path keys.
func (d *Delta) Sources() []string {
	out := make([]string, len(d.Items))
	for i, it := range d.Items {
		out[i] = it.SourcePath
	}
	return out
}
