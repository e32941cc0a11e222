package api

import (
	"time"

	"github.com/starford/kbpipe/internal/deploy"
	"github.com/starford/kbpipe/internal/index"
	"github.com/starford/kbpipe/internal/registry"
	"github.com/starford/kbpipe/internal/staging"
)

// StagedArticle is one staged draft in the staging response.
type StagedArticle struct {
	Path       string    `json:"path"`
	Title      string    `json:"title"`
	Categories []string  `json:"categories"`
	Tags       []string  `json:"tags"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Selected   bool      `json:"selected"`
	Degraded   bool      `json:"degraded,omitempty"`
}

func stagedFrom(c staging.Candidate) StagedArticle {
	return StagedArticle{
		Path:       c.Path,
		Title:      c.Title,
		Categories: nonNil(c.Categories),
		Tags:       nonNil(c.Tags),
		Size:       c.Size,
		ModTime:    c.ModTime,
		Selected:   c.Selected,
		Degraded:   c.Degraded,
	}
}

// StagingResponse wraps the staged drafts.
type StagingResponse struct {
	Articles []StagedArticle `json:"articles"`
}

// PublishListResponse wraps the resolved publish list.
type PublishListResponse struct {
	Entries []staging.Entry `json:"entries"`
	Stale   int             `json:"stale"`
}

// VersionsResponse wraps the registry's versions.
type VersionsResponse struct {
	Mode     string             `json:"mode"`
	Current  string             `json:"current"`
	Versions []registry.Summary `json:"versions"`
}

// DeployPreviewResponse lists what the next deploy would package.
type DeployPreviewResponse struct {
	Tag      string   `json:"tag"`
	Previous string   `json:"previous,omitempty"`
	Files    []string `json:"files"`
}

func previewFrom(d *deploy.Delta) DeployPreviewResponse {
	return DeployPreviewResponse{Tag: d.Tag, Previous: d.Previous, Files: nonNil(d.Paths())}
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}
