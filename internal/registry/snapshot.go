package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/storage"
	"github.com/starford/kbpipe/internal/version"
)

// SidecarName is the metadata file written into every snapshot directory.
const SidecarName = "version.yaml"

// Sidecar is the YAML metadata stored next to a snapshot.
type Sidecar struct {
	Version   string    `yaml:"version"`
	Previous  string    `yaml:"previous,omitempty"`
	CreatedAt time.Time `yaml:"created_at"`
	Articles  []string  `yaml:"articles"`
	Added     []string  `yaml:"added"`
}

// Snapshot is the directory-based registry: versions/<tag>/<category>/<file>.md.
type Snapshot struct {
	versions storage.Provider
}

// NewSnapshot creates a snapshot registry rooted at the versions directory.
func NewSnapshot(versions storage.Provider) *Snapshot {
	return &Snapshot{versions: versions}
}

// Mode implements Registry.
func (s *Snapshot) Mode() string { return ModeSnapshot }

// Store returns the versions tree.
func (s *Snapshot) Store() storage.Provider { return s.versions }

// SnapshotPath returns where an article lands inside a version directory.
func SnapshotPath(category, filename string) string {
	if category == "" {
		return filename
	}
	return path.Join(category, filename)
}

// Create copies the predecessor snapshot into versions/<tag>/ and merges the
// store's articles under their primary category.
func (s *Snapshot) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if s.versions.Exists(req.Tag) {
		return nil, errTagTaken(req.Tag, apperr.ErrAlreadyExists)
	}

	prevFiles := map[string]struct{}{}
	previous := ""
	if req.Previous != "" && s.versions.Exists(req.Previous) {
		previous = req.Previous
		files, err := s.Files(previous)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			prevFiles[f] = struct{}{}
		}
	}

	res := &CreateResult{Tag: req.Tag, Previous: previous}
	var added []string
	for _, a := range req.Articles {
		rel := SnapshotPath(a.PrimaryCategory(), a.Filename)
		if _, ok := prevFiles[rel]; !ok {
			res.Added = append(res.Added, a)
			added = append(added, rel)
		}
	}
	if len(res.Added) == 0 {
		return nil, fmt.Errorf("no new articles for version %s: %w", req.Tag, apperr.ErrNothingToDo)
	}

	if err := s.materialize(ctx, req, previous, prevFiles); err != nil {
		_ = s.versions.Purge(req.Tag)
		return nil, err
	}

	all, err := s.Files(req.Tag)
	if err != nil {
		_ = s.versions.Purge(req.Tag)
		return nil, err
	}
	res.Total = len(all)
	sort.Strings(added)
	side := Sidecar{
		Version:   req.Tag,
		Previous:  previous,
		CreatedAt: req.Now,
		Articles:  all,
		Added:     added,
	}
	if err := s.writeSidecar(side); err != nil {
		_ = s.versions.Purge(req.Tag)
		return nil, err
	}
	return res, nil
}

func (s *Snapshot) materialize(ctx context.Context, req CreateRequest, previous string, prevFiles map[string]struct{}) error {
	for f := range prevFiles {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := storage.Transfer(s.versions, path.Join(previous, f), s.versions, path.Join(req.Tag, f)); err != nil {
			return fmt.Errorf("registry: carry %s: %w", f, err)
		}
	}
	for _, a := range req.Articles {
		if err := ctx.Err(); err != nil {
			return err
		}
		dst := path.Join(req.Tag, SnapshotPath(a.PrimaryCategory(), a.Filename))
		if err := storage.Transfer(req.Source, a.Path, s.versions, dst); err != nil {
			return fmt.Errorf("registry: merge %s: %w", a.Path, err)
		}
	}
	return nil
}

// Files lists the article paths of a snapshot relative to its directory.
func (s *Snapshot) Files(tag string) ([]string, error) {
	metas, err := s.versions.List(tag, true)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(metas))
	for _, m := range metas {
		rel := m.Path[len(tag)+1:]
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

// ReadSidecar loads versions/<tag>/version.yaml.
func (s *Snapshot) ReadSidecar(tag string) (*Sidecar, error) {
	data, err := s.versions.Read(path.Join(tag, SidecarName))
	if err != nil {
		return nil, err
	}
	var side Sidecar
	if err := yaml.Unmarshal(data, &side); err != nil {
		return nil, fmt.Errorf("registry: parse %s sidecar: %w", tag, err)
	}
	return &side, nil
}

func (s *Snapshot) writeSidecar(side Sidecar) error {
	data, err := yaml.Marshal(side)
	if err != nil {
		return fmt.Errorf("registry: encode sidecar: %w", err)
	}
	return s.versions.Write(path.Join(side.Version, SidecarName), data)
}

// Versions lists snapshot directories with a valid tag name, oldest first.
func (s *Snapshot) Versions() ([]Summary, error) {
	dirs, err := s.versions.Dirs("")
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, d := range dirs {
		if !version.Valid(d) {
			continue
		}
		sum := Summary{Tag: d}
		side, err := s.ReadSidecar(d)
		switch {
		case err == nil:
			sum.Previous = side.Previous
			sum.CreatedAt = side.CreatedAt
			sum.Articles = len(side.Articles)
		case errors.Is(err, fs.ErrNotExist):
			files, ferr := s.Files(d)
			if ferr != nil {
				return nil, ferr
			}
			sum.Previous = version.Previous(d)
			sum.Articles = len(files)
		default:
			return nil, err
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return version.Less(out[i].Tag, out[j].Tag) })
	return out, nil
}
