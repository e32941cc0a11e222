// Package staging manages the publish list: the set of staged drafts queued
// for the next sync into the article store.
package staging

import (
	"errors"
	"fmt"
	"os"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/models"
	"github.com/starford/kbpipe/internal/scanner"
)

// Candidate is a staged article annotated with its publish-list membership.
type Candidate struct {
	models.Article
	Selected bool `json:"selected"`
}

// Entry is one publish-list line resolved against the staging area.
type Entry struct {
	Path   string `json:"path"`
	Title  string `json:"title,omitempty"`
	Exists bool   `json:"exists"`
}

// Manager edits the publish list for a staging area.
type Manager struct {
	scanner  *scanner.Scanner
	listFile string
}

// NewManager returns a Manager for the staging area read by sc, persisting
// the list at listFile.
func NewManager(sc *scanner.Scanner, listFile string) *Manager {
	return &Manager{scanner: sc, listFile: listFile}
}

// ListFile returns the path of the publish list file.
func (m *Manager) ListFile() string { return m.listFile }

// Selected returns the persisted publish list.
func (m *Manager) Selected() ([]string, error) {
	return ReadListFile(m.listFile)
}

// Candidates lists the staged articles, marking those already selected.
func (m *Manager) Candidates() ([]Candidate, error) {
	articles, err := m.scanner.Scan()
	if err != nil {
		return nil, err
	}
	selected, err := m.Selected()
	if err != nil {
		return nil, err
	}
	return markSelected(articles, selected), nil
}

func markSelected(articles []models.Article, selected []string) []Candidate {
	set := make(map[string]struct{}, len(selected))
	for _, p := range selected {
		set[p] = struct{}{}
	}
	out := make([]Candidate, len(articles))
	for i, a := range articles {
		_, ok := set[a.Path]
		out[i] = Candidate{Article: a, Selected: ok}
	}
	return out
}

// Add appends p to the publish list. It reports false when p was already
// present. Paths that do not exist under staging are rejected.
func (m *Manager) Add(p string) (bool, error) {
	p = NormalizePath(p)
	if p == "" || p == "." {
		return false, fmt.Errorf("staging: file path required")
	}
	if !m.scanner.Store().Exists(p) {
		return false, fmt.Errorf("staging: %s: %w", p, apperr.ErrNotFound)
	}
	selected, err := m.Selected()
	if err != nil {
		return false, err
	}
	for _, s := range selected {
		if s == p {
			return false, nil
		}
	}
	if err := WriteListFile(m.listFile, append(selected, p)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove drops p from the publish list. It reports false when p was absent.
func (m *Manager) Remove(p string) (bool, error) {
	p = NormalizePath(p)
	if p == "" || p == "." {
		return false, fmt.Errorf("staging: file path required")
	}
	selected, err := m.Selected()
	if err != nil {
		return false, err
	}
	kept := selected[:0:0]
	for _, s := range selected {
		if s != p {
			kept = append(kept, s)
		}
	}
	if len(kept) == len(selected) {
		return false, nil
	}
	if err := WriteListFile(m.listFile, kept); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveAll drops every path in paths from the list, returning how many were removed.
func (m *Manager) RemoveAll(paths []string) (int, error) {
	drop := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		drop[NormalizePath(p)] = struct{}{}
	}
	selected, err := m.Selected()
	if err != nil {
		return 0, err
	}
	var kept []string
	for _, s := range selected {
		if _, ok := drop[s]; !ok {
			kept = append(kept, s)
		}
	}
	removed := len(selected) - len(kept)
	if removed == 0 {
		return 0, nil
	}
	return removed, WriteListFile(m.listFile, kept)
}

// Clear empties the list. It reports false when there was nothing to clear.
func (m *Manager) Clear() (bool, error) {
	if _, err := os.Stat(m.listFile); errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	selected, err := m.Selected()
	if err != nil {
		return false, err
	}
	if err := WriteListFile(m.listFile, nil); err != nil {
		return false, err
	}
	return len(selected) > 0, nil
}

// View resolves every publish-list entry, flagging stale ones.
func (m *Manager) View() ([]Entry, error) {
	selected, err := m.Selected()
	if err != nil {
		return nil, err
	}
	return m.resolve(selected), nil
}

func (m *Manager) resolve(paths []string) []Entry {
	out := make([]Entry, len(paths))
	for i, p := range paths {
		e := Entry{Path: p}
		if a, err := m.scanner.Load(p); err == nil {
			e.Exists = true
			e.Title = a.Title
		}
		out[i] = e
	}
	return out
}

// Save replaces the publish list with paths.
func (m *Manager) Save(paths []string) error {
	return WriteListFile(m.listFile, paths)
}
