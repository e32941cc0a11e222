// Package registry records which article belongs to which version and
// whether it has been deployed. Two designs exist, selected per repository:
// a CSV ledger with a deployed flag, and directory snapshots per version.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/starford/kbpipe/internal/models"
	"github.com/starford/kbpipe/internal/storage"
)

// Registry modes.
const (
	ModeCSV      = "csv"
	ModeSnapshot = "snapshot"
)

// CreateRequest carries the inputs of a version creation.
type CreateRequest struct {
	Tag string
	// Previous is the version current before this one ("" when none).
	Previous string
	// Articles is the scanned article store.
	Articles []models.Article
	// Source is the article store the articles were scanned from.
	Source storage.Provider
	Now    time.Time
}

// CreateResult summarizes a created version.
type CreateResult struct {
	Tag      string
	Previous string
	Total    int
	Added    []models.Article
}

// Summary describes one version known to a registry.
type Summary struct {
	Tag        string    `json:"tag"`
	Previous   string    `json:"previous,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Articles   int       `json:"articles"`
	Undeployed int       `json:"undeployed"`
}

// Registry is implemented by both registry designs.
type Registry interface {
	Mode() string
	// Create records a new version. It returns apperr.ErrNothingToDo when no
	// article is new and apperr.ErrAlreadyExists when the tag is taken.
	Create(ctx context.Context, req CreateRequest) (*CreateResult, error)
	// Versions lists known versions, oldest first.
	Versions() ([]Summary, error)
}

var (
	_ Registry = (*CSV)(nil)
	_ Registry = (*Snapshot)(nil)
)

func dateOnly(t time.Time) string { return t.Format("2006-01-02") }

func errTagTaken(tag string, cause error) error {
	return fmt.Errorf("version %s: %w", tag, cause)
}
