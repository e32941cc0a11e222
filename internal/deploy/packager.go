package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/storage"
)

// ManifestName is the manifest written at the root of deploy/.
const ManifestName = "manifest.txt"

// Package describes a prepared deploy directory.
type Package struct {
	ID        string    `json:"id"`
	Tag       string    `json:"tag"`
	Previous  string    `json:"previous,omitempty"`
	Generated time.Time `json:"generated"`
	Files     []string  `json:"files"`
}

// Packager writes deltas into the deploy directory.
type Packager struct {
	out    storage.Provider
	logger *slog.Logger
	now    func() time.Time
}

// NewPackager creates a Packager writing into out.
func NewPackager(out storage.Provider, logger *slog.Logger) *Packager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Packager{out: out, logger: logger, now: time.Now}
}

// Preview computes the delta for tag without touching deploy/.
func (p *Packager) Preview(ctx context.Context, policy Policy, tag string) (*Delta, error) {
	return policy.Delta(ctx, tag)
}

// Prepare computes the delta, then clears deploy/ and copies exactly the
// delta into it with a manifest. An empty delta returns apperr.ErrNothingToDo
// and leaves deploy/ untouched.
func (p *Packager) Prepare(ctx context.Context, policy Policy, tag string) (*Package, *Delta, error) {
	delta, err := policy.Delta(ctx, tag)
	if err != nil {
		return nil, nil, err
	}
	if len(delta.Items) == 0 {
		return nil, delta, fmt.Errorf("no new files to deploy for %s: %w", tag, apperr.ErrNothingToDo)
	}

	if err := p.out.Purge(""); err != nil {
		return nil, nil, fmt.Errorf("deploy: clear: %w", err)
	}
	for _, it := range delta.Items {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := storage.Transfer(it.Source, it.SourcePath, p.out, it.Path()); err != nil {
			return nil, nil, fmt.Errorf("deploy: copy %s: %w", it.Path(), err)
		}
		p.logger.Debug("deploy: packaged", slog.String("path", it.Path()))
	}

	pkg := &Package{
		ID:        uuid.NewString(),
		Tag:       delta.Tag,
		Previous:  delta.Previous,
		Generated: p.now(),
		Files:     delta.Paths(),
	}
	if err := p.out.Write(ManifestName, []byte(RenderManifest(pkg))); err != nil {
		return nil, nil, fmt.Errorf("deploy: manifest: %w", err)
	}
	p.logger.Info("deploy package ready",
		slog.String("version", pkg.Tag), slog.String("package_id", pkg.ID), slog.Int("files", len(pkg.Files)))
	return pkg, delta, nil
}

// RenderManifest formats the manifest.txt content of pkg.
func RenderManifest(pkg *Package) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Deployment Package for %s\n", pkg.Tag)
	fmt.Fprintf(&b, "Generated: %s\n", pkg.Generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Package ID: %s\n", pkg.ID)
	if pkg.Previous != "" {
		fmt.Fprintf(&b, "Previous version: %s\n", pkg.Previous)
	}
	fmt.Fprintf(&b, "\nTotal files: %d\n", len(pkg.Files))
	b.WriteString("\nFiles:\n")
	for _, f := range pkg.Files {
		fmt.Fprintf(&b, "  - %s\n", f)
	}
	return b.String()
}
