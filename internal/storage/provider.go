// Package storage defines the file-tree abstraction for the staging area,
// article store, version snapshots, and deploy package.
package storage

import "github.com/starford/kbpipe/internal/models"

// Provider is the interface for file operations under one pipeline root.
// All paths are relative to that root.
type Provider interface {
	// Root returns the absolute directory the provider is rooted at.
	Root() string
	// List returns metadata for .md files under dir. When recursive is false
	// only direct children of dir are returned. A missing dir yields nothing.
	List(dir string, recursive bool) ([]models.FileMetadata, error)
	// Dirs returns the names of the direct subdirectories of dir.
	Dirs(dir string) ([]string, error)
	// Stat returns metadata for a single file.
	Stat(path string) (models.FileMetadata, error)
	// Exists reports whether path is present.
	Exists(path string) bool
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Purge removes dir and everything below it. Purging "" empties the root.
	Purge(dir string) error
}

// Transfer copies srcPath from src into dstPath of dst.
func Transfer(src Provider, srcPath string, dst Provider, dstPath string) error {
	data, err := src.Read(srcPath)
	if err != nil {
		return err
	}
	return dst.Write(dstPath, data)
}
