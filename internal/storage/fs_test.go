package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/kbpipe/internal/apperr"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	s, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return s
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("---\ntitle: Hello\n---\nWorld\n")
	if err := s.Write("Linux/hello.md", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("Linux/hello.md")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestNewFS_MissingRootIsCreatedOnWrite(t *testing.T) {
	root := filepath.Join(t.TempDir(), "articles")
	s, err := NewFS(root)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	items, err := s.List("", true)
	if err != nil {
		t.Fatalf("List on missing root: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("len = %d, want 0", len(items))
	}
	if err := s.Write("a.md", []byte("a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !s.Exists("a.md") {
		t.Error("a.md should exist after write")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "kbpipe-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	if _, err := NewFS(f.Name()); err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestListRecursiveAndFlat(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("Linux/a.md", []byte("a"))
	_ = s.Write("Linux/deep/b.md", []byte("b"))
	_ = s.Write("Linux/readme.txt", []byte("not md"))
	_ = s.Write("工具/c.md", []byte("c"))

	all, err := s.List("", true)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("recursive len = %d, want 3", len(all))
	}
	if all[0].Path != "Linux/a.md" || all[1].Path != "Linux/deep/b.md" || all[2].Path != "工具/c.md" {
		t.Errorf("paths = %v", all)
	}

	flat, err := s.List("Linux", false)
	if err != nil {
		t.Fatalf("List flat: %v", err)
	}
	if len(flat) != 1 || flat[0].Path != "Linux/a.md" {
		t.Errorf("flat = %v, want [Linux/a.md]", flat)
	}
}

func TestStatNotFound(t *testing.T) {
	s := tempRoot(t)
	_, err := s.Stat("missing.md")
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDirs(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("v1.1/Linux/a.md", []byte("a"))
	_ = s.Write("v1.0/Linux/a.md", []byte("a"))
	_ = s.Write("notes.md", []byte("x"))

	dirs, err := s.Dirs("")
	if err != nil {
		t.Fatalf("Dirs: %v", err)
	}
	if len(dirs) != 2 || dirs[0] != "v1.0" || dirs[1] != "v1.1" {
		t.Errorf("dirs = %v", dirs)
	}
}

func TestMoveAndDelete(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("old.md", []byte("data"))
	if err := s.Move("old.md", "sub/new.md"); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if s.Exists("old.md") {
		t.Error("old path should not exist")
	}
	if err := s.Delete("sub/new.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("sub/new.md"); err == nil {
		t.Error("expected error reading deleted file")
	}
}

func TestPurgeRootKeepsDirectory(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("Linux/a.md", []byte("a"))
	_ = s.Write("manifest.txt", []byte("m"))
	if err := s.Purge(""); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, err := os.Stat(s.Root()); err != nil {
		t.Fatalf("root removed: %v", err)
	}
	entries, _ := os.ReadDir(s.Root())
	if len(entries) != 0 {
		t.Errorf("root not empty: %v", entries)
	}
}

func TestTransfer(t *testing.T) {
	src := tempRoot(t)
	dst := tempRoot(t)
	_ = src.Write("Linux/a.md", []byte("article"))
	if err := Transfer(src, "Linux/a.md", dst, "a.md"); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	got, _ := dst.Read("a.md")
	if string(got) != "article" {
		t.Errorf("content = %q", got)
	}
	if !src.Exists("Linux/a.md") {
		t.Error("transfer must not remove the source")
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)
	for _, p := range []string{"../../etc/passwd", "../outside.md", "/etc/shadow"} {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("atomic.md", []byte("original"))
	if err := s.Write("atomic.md", []byte("updated")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.md")
	if string(got) != "updated" {
		t.Errorf("expected updated content, got %q", got)
	}
	matches, _ := filepath.Glob(filepath.Join(s.root, ".kbpipe-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}
