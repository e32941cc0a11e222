// Package pipeline wires the staging area, article store, registry and deploy
// packager into the operations exposed by the CLI and the status surfaces.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/deploy"
	"github.com/starford/kbpipe/internal/index"
	"github.com/starford/kbpipe/internal/lock"
	"github.com/starford/kbpipe/internal/publish"
	"github.com/starford/kbpipe/internal/registry"
	"github.com/starford/kbpipe/internal/scanner"
	"github.com/starford/kbpipe/internal/staging"
	"github.com/starford/kbpipe/internal/version"
)

// Options collects the components a Service coordinates.
type Options struct {
	Staging     *scanner.Scanner
	Store       *scanner.Scanner
	PublishList string
	Registry    registry.Registry
	Policy      deploy.Policy
	Packager    *deploy.Packager
	// Index is optional; search is unavailable without it.
	Index       index.ArticleIndex
	VersionFile string
	LockFile    string
	Logger      *slog.Logger
}

// Service coordinates the pipeline stages.
type Service struct {
	staging     *scanner.Scanner
	store       *scanner.Scanner
	manager     *staging.Manager
	syncer      *publish.Syncer
	registry    registry.Registry
	policy      deploy.Policy
	packager    *deploy.Packager
	index       index.ArticleIndex
	versionFile string
	lockFile    string
	logger      *slog.Logger
	now         func() time.Time
}

// New creates a Service.
func New(opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		staging:     opts.Staging,
		store:       opts.Store,
		manager:     staging.NewManager(opts.Staging, opts.PublishList),
		syncer:      publish.NewSyncer(opts.Staging, opts.Store.Store(), logger),
		registry:    opts.Registry,
		policy:      opts.Policy,
		packager:    opts.Packager,
		index:       opts.Index,
		versionFile: opts.VersionFile,
		lockFile:    opts.LockFile,
		logger:      logger,
		now:         time.Now,
	}
}

// Manager returns the publish list manager.
func (s *Service) Manager() *staging.Manager { return s.manager }

// AttachIndex enables search through idx.
func (s *Service) AttachIndex(idx index.ArticleIndex) { s.index = idx }

// RegistryMode reports which registry design the repository uses.
func (s *Service) RegistryMode() string { return s.registry.Mode() }

// withLock runs fn while holding the repository lock.
func (s *Service) withLock(fn func() error) error {
	if s.lockFile == "" {
		return fn()
	}
	l, err := lock.Acquire(s.lockFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			s.logger.Warn("lock release failed", slog.String("error", err.Error()))
		}
	}()
	return fn()
}

// Status summarizes the repository.
type Status struct {
	Version     string `json:"version"`
	Registry    string `json:"registry"`
	Staged      int    `json:"staged"`
	Selected    int    `json:"selected"`
	StoreTotal  int    `json:"store_total"`
	PublishList string `json:"publish_list"`
}

// Status reports the current version and the size of each stage.
func (s *Service) Status(_ context.Context) (*Status, error) {
	cur, err := version.ReadCurrent(s.versionFile)
	if err != nil {
		return nil, err
	}
	staged, err := s.staging.Scan()
	if err != nil {
		return nil, err
	}
	selected, err := s.manager.Selected()
	if err != nil {
		return nil, err
	}
	stored, err := s.store.Scan()
	if err != nil {
		return nil, err
	}
	return &Status{
		Version:     cur,
		Registry:    s.registry.Mode(),
		Staged:      len(staged),
		Selected:    len(selected),
		StoreTotal:  len(stored),
		PublishList: s.manager.ListFile(),
	}, nil
}

// Candidates lists staged articles with their publish-list membership.
func (s *Service) Candidates(_ context.Context) ([]staging.Candidate, error) {
	return s.manager.Candidates()
}

// PublishList resolves the publish list against staging.
func (s *Service) PublishList(_ context.Context) ([]staging.Entry, error) {
	return s.manager.View()
}

// AddToPublishList adds a staged path. It reports false when already listed.
func (s *Service) AddToPublishList(_ context.Context, path string) (bool, error) {
	var added bool
	err := s.withLock(func() error {
		var err error
		added, err = s.manager.Add(path)
		return err
	})
	return added, err
}

// RemoveFromPublishList removes a path. It reports false when not listed.
func (s *Service) RemoveFromPublishList(_ context.Context, path string) (bool, error) {
	var removed bool
	err := s.withLock(func() error {
		var err error
		removed, err = s.manager.Remove(path)
		return err
	})
	return removed, err
}

// ClearPublishList empties the list. It reports false when already empty.
func (s *Service) ClearPublishList(_ context.Context) (bool, error) {
	var cleared bool
	err := s.withLock(func() error {
		var err error
		cleared, err = s.manager.Clear()
		return err
	})
	return cleared, err
}

// SelectInteractive runs the interactive publish list editor.
func (s *Service) SelectInteractive(ctx context.Context, in io.Reader, out io.Writer) (bool, error) {
	var saved bool
	err := s.withLock(func() error {
		var err error
		saved, err = s.manager.Interactive(ctx, in, out)
		return err
	})
	return saved, err
}

// Sync moves staged articles into the store. In file mode an empty ListFile
// means the configured publish list, and synced paths are pruned from it.
func (s *Service) Sync(ctx context.Context, req publish.Request) (*publish.Result, error) {
	if req.Mode == publish.ModeFile && req.ListFile == "" {
		req.ListFile = s.manager.ListFile()
	}
	var res *publish.Result
	err := s.withLock(func() error {
		var err error
		res, err = s.syncer.Sync(ctx, req)
		if err != nil {
			return err
		}
		if req.Mode == publish.ModeFile && req.ListFile == s.manager.ListFile() && len(res.Synced) > 0 {
			paths := make([]string, len(res.Synced))
			for i, a := range res.Synced {
				paths[i] = a.Path
			}
			if _, err := s.manager.RemoveAll(paths); err != nil {
				return fmt.Errorf("pipeline: prune publish list: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	s.logger.Info("sync complete", slog.Int("synced", len(res.Synced)), slog.Int("stale", len(res.Stale)))
	return res, nil
}

// CurrentVersion returns the tag stored in VERSION.
func (s *Service) CurrentVersion() (string, error) {
	return version.ReadCurrent(s.versionFile)
}

// NextVersion resolves the tag create-version would use for override.
func (s *Service) NextVersion(override string) (tag, previous string, err error) {
	cur, err := version.ReadCurrent(s.versionFile)
	if err != nil {
		return "", "", err
	}
	tag = override
	if tag == "" {
		tag = version.Increment(cur)
	}
	if !version.Valid(tag) {
		return "", "", fmt.Errorf("%q: %w", tag, apperr.ErrInvalidVersion)
	}
	if cur != version.Initial {
		previous = cur
	}
	return tag, previous, nil
}

// CreateVersion records the new articles of the store under the next tag
// (or override) and stores that tag in VERSION.
func (s *Service) CreateVersion(ctx context.Context, override string) (*registry.CreateResult, error) {
	var res *registry.CreateResult
	err := s.withLock(func() error {
		tag, previous, err := s.NextVersion(override)
		if err != nil {
			return err
		}
		articles, err := s.store.Scan()
		if err != nil {
			return err
		}
		res, err = s.registry.Create(ctx, registry.CreateRequest{
			Tag:      tag,
			Previous: previous,
			Articles: articles,
			Source:   s.store.Store(),
			Now:      s.now(),
		})
		if err != nil {
			return err
		}
		return version.WriteCurrent(s.versionFile, tag)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("version created",
		slog.String("version", res.Tag), slog.Int("added", len(res.Added)), slog.Int("total", res.Total))
	return res, nil
}

// Versions lists the versions known to the registry.
func (s *Service) Versions(_ context.Context) ([]registry.Summary, error) {
	return s.registry.Versions()
}

// PreviewDeploy computes the deploy delta of the current version without
// touching deploy/.
func (s *Service) PreviewDeploy(ctx context.Context) (*deploy.Delta, error) {
	tag, err := version.ReadCurrent(s.versionFile)
	if err != nil {
		return nil, err
	}
	return s.packager.Preview(ctx, s.policy, tag)
}

// DeployResult is the outcome of Deploy.
type DeployResult struct {
	Package *deploy.Package `json:"package"`
	// Marked counts registry rows flagged as deployed.
	Marked int `json:"marked"`
}

// Deploy packages the current version's delta. With markDeployed the csv
// registry flags every packaged record as deployed.
func (s *Service) Deploy(ctx context.Context, markDeployed bool) (*DeployResult, error) {
	csvReg, isCSV := s.registry.(*registry.CSV)
	if markDeployed && !isCSV {
		return nil, errors.New("mark-deployed needs the csv registry")
	}
	out := &DeployResult{}
	err := s.withLock(func() error {
		tag, err := version.ReadCurrent(s.versionFile)
		if err != nil {
			return err
		}
		pkg, delta, err := s.packager.Prepare(ctx, s.policy, tag)
		if err != nil {
			return err
		}
		out.Package = pkg
		if markDeployed {
			n, err := csvReg.MarkDeployed(delta.Sources())
			if err != nil {
				return err
			}
			out.Marked = n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Search queries the catalog index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	if s.index == nil {
		return nil, errors.New("search needs the catalog index")
	}
	return s.index.Search(query, limit)
}
