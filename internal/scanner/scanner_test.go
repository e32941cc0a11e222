package scanner

import (
	"log/slog"
	"os"
	"testing"

	"github.com/starford/kbpipe/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScan_CategoriesSortedByPath(t *testing.T) {
	store := testutil.TempRoot(t)
	testutil.WriteArticle(t, store, "工具/b.md", "B", "工具")
	testutil.WriteArticle(t, store, "Linux/a.md", "A", "Linux")
	testutil.WriteArticle(t, store, "Linux/nested/skip.md", "Skip")
	testutil.WriteArticle(t, store, "Other/ignored.md", "Ignored")

	got, err := New(store, []string{"Linux", "工具", "开发"}, quietLogger()).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2: %v", len(got), got)
	}
	if got[0].Path != "Linux/a.md" || got[1].Path != "工具/b.md" {
		t.Errorf("order = %s, %s", got[0].Path, got[1].Path)
	}
	if got[0].Filename != "a.md" || got[0].Title != "A" || got[0].PrimaryCategory() != "Linux" {
		t.Errorf("record = %+v", got[0])
	}
}

func TestScan_RecursiveWithoutCategories(t *testing.T) {
	store := testutil.TempRoot(t)
	testutil.WriteArticle(t, store, "a.md", "A")
	testutil.WriteArticle(t, store, "deep/b.md", "B")

	got, err := New(store, nil, quietLogger()).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
}

func TestScan_EmptyRoot(t *testing.T) {
	got, err := New(testutil.TempRoot(t), []string{"Linux"}, quietLogger()).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("len = %d, want 0", len(got))
	}
}

func TestScan_ParseFailureDegrades(t *testing.T) {
	store := testutil.TempRoot(t)
	_ = store.Write("Linux/broken-note.md", []byte("---\ntitle: [oops\n---\nbody\n"))
	testutil.WriteArticle(t, store, "Linux/fine.md", "Fine", "Linux")

	got, err := New(store, []string{"Linux"}, quietLogger()).Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	broken := got[0]
	if broken.Title != "broken-note" || !broken.Degraded {
		t.Errorf("degraded record = %+v", broken)
	}
	if len(broken.Categories) != 0 || broken.Slug != "" {
		t.Errorf("degraded record should carry empty metadata: %+v", broken)
	}
}

func TestScan_TitleFallsBackToStem(t *testing.T) {
	store := testutil.TempRoot(t)
	_ = store.Write("plain.md", []byte("no front matter here\n"))
	got, err := New(store, nil, quietLogger()).Load("plain.md")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Title != "plain" || got.Degraded {
		t.Errorf("record = %+v", got)
	}
}

func TestCategoryOf(t *testing.T) {
	cases := map[string]string{
		"Linux/a.md": "Linux",
		"工具/b.md":    "工具",
		"c.md":       "",
	}
	for in, want := range cases {
		if got := CategoryOf(in); got != want {
			t.Errorf("CategoryOf(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCovers(t *testing.T) {
	store := testutil.TempRoot(t)
	withCats := New(store, []string{"Linux", "工具"}, quietLogger())
	flat := New(store, nil, quietLogger())
	cases := []struct {
		path      string
		cats, any bool
	}{
		{"Linux/a.md", true, true},
		{"工具/b.md", true, true},
		{"Linux/nested/c.md", false, true},
		{"Other/d.md", false, true},
		{"a.md", false, true},
		{"Linux/notes.txt", false, false},
	}
	for _, c := range cases {
		if got := withCats.Covers(c.path); got != c.cats {
			t.Errorf("categories Covers(%q) = %v, want %v", c.path, got, c.cats)
		}
		if got := flat.Covers(c.path); got != c.any {
			t.Errorf("flat Covers(%q) = %v, want %v", c.path, got, c.any)
		}
	}
}
