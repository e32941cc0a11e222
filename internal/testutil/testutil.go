// Package testutil provides shared test helpers for building pipeline trees.
package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/kbpipe/internal/storage"
)

// TempRoot creates a temporary directory wrapped in a storage.FS.
func TempRoot(t *testing.T) *storage.FS {
	t.Helper()
	s, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// Repo creates a temporary repository directory with one FS per pipeline
// area (staging, articles, versions, deploy) below it.
func Repo(t *testing.T) (root string, staging, articles, versions, deploy *storage.FS) {
	t.Helper()
	root = t.TempDir()
	mk := func(name string) *storage.FS {
		s, err := storage.NewFS(filepath.Join(root, name))
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	return root, mk("staging"), mk("articles"), mk("versions"), mk("deploy")
}

// Article renders a markdown document with a YAML front matter block.
func Article(title string, categories ...string) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", title)
	if len(categories) > 0 {
		b.WriteString("categories:\n")
		for _, c := range categories {
			fmt.Fprintf(&b, "  - %q\n", c)
		}
	}
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "%s body.\n", title)
	return []byte(b.String())
}

// WriteArticle writes an article rendered by Article to path in store.
func WriteArticle(t *testing.T, store storage.Provider, path, title string, categories ...string) {
	t.Helper()
	if err := store.Write(path, Article(title, categories...)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
