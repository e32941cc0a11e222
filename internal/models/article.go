// Package models defines the domain types shared by the pipeline stages.
package models

import (
	"path"
	"strings"
	"time"
)

// Article is a markdown file discovered in the staging area or the article store.
type Article struct {
	Path        string    `json:"path"` // slash-separated, relative to the scanned root
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Categories  []string  `json:"categories,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Slug        string    `json:"slug,omitempty"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"modified"`
	Checksum    string    `json:"checksum"`
	// Degraded is set when the front matter could not be parsed.
	Degraded bool `json:"degraded,omitempty"`
}

// PrimaryCategory returns the first category, or "" when the article has none.
func (a Article) PrimaryCategory() string {
	for _, c := range a.Categories {
		if c = strings.TrimSpace(c); c != "" {
			return c
		}
	}
	return ""
}

// Stem returns the filename without its extension.
func (a Article) Stem() string {
	return strings.TrimSuffix(a.Filename, path.Ext(a.Filename))
}

// FileMetadata is a lightweight representation returned by storage list operations.
type FileMetadata struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
