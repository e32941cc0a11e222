package registry

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/models"
	"github.com/starford/kbpipe/internal/scanner"
	"github.com/starford/kbpipe/internal/storage"
	"github.com/starford/kbpipe/internal/testutil"
)

var testNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func scanStore(t *testing.T, store storage.Provider) []models.Article {
	t.Helper()
	articles, err := scanner.New(store, nil, quietLogger()).Scan()
	if err != nil {
		t.Fatal(err)
	}
	return articles
}

func testCSV(t *testing.T) (*CSV, *storage.FS, string) {
	t.Helper()
	root, _, articles, _, _ := testutil.Repo(t)
	c := NewCSV(filepath.Join(root, "versions.csv"), filepath.Join(root, "versions.md"), "articles")
	return c, articles, root
}

func TestCSV_CreateRegistersOnlyNewArticles(t *testing.T) {
	c, articles, _ := testCSV(t)
	ctx := context.Background()
	testutil.WriteArticle(t, articles, "a.md", "A", "Linux")

	res, err := c.Create(ctx, CreateRequest{Tag: "v0.1", Articles: scanStore(t, articles), Source: articles, Now: testNow})
	if err != nil {
		t.Fatalf("Create v0.1: %v", err)
	}
	if len(res.Added) != 1 {
		t.Fatalf("added = %d, want 1", len(res.Added))
	}

	testutil.WriteArticle(t, articles, "b.md", "B", "工具", "开发")
	res, err = c.Create(ctx, CreateRequest{Tag: "v0.2", Previous: "v0.1", Articles: scanStore(t, articles), Source: articles, Now: testNow})
	if err != nil {
		t.Fatalf("Create v0.2: %v", err)
	}
	if len(res.Added) != 1 || res.Added[0].Filename != "b.md" {
		t.Fatalf("added = %+v", res.Added)
	}

	records, err := c.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].Version != "v0.1" || records[1].Version != "v0.2" {
		t.Errorf("versions = %s, %s", records[0].Version, records[1].Version)
	}
	if records[1].PublishedAt != "2026-10-14" || records[1].IsDeployed {
		t.Errorf("record = %+v", records[1])
	}
	if strings.Join(records[1].Categories, ",") != "工具,开发" {
		t.Errorf("categories = %v", records[1].Categories)
	}
}

func TestCSV_NothingNew(t *testing.T) {
	c, articles, _ := testCSV(t)
	ctx := context.Background()
	testutil.WriteArticle(t, articles, "a.md", "A")
	if _, err := c.Create(ctx, CreateRequest{Tag: "v0.1", Articles: scanStore(t, articles), Now: testNow}); err != nil {
		t.Fatal(err)
	}
	before, _ := os.ReadFile(c.Path())

	_, err := c.Create(ctx, CreateRequest{Tag: "v0.2", Articles: scanStore(t, articles), Now: testNow})
	if !errors.Is(err, apperr.ErrNothingToDo) {
		t.Fatalf("err = %v, want ErrNothingToDo", err)
	}
	after, _ := os.ReadFile(c.Path())
	if string(before) != string(after) {
		t.Error("versions.csv changed on a no-op run")
	}
}

func TestCSV_RejectsExistingTag(t *testing.T) {
	c, articles, _ := testCSV(t)
	ctx := context.Background()
	testutil.WriteArticle(t, articles, "a.md", "A")
	if _, err := c.Create(ctx, CreateRequest{Tag: "v0.1", Articles: scanStore(t, articles), Now: testNow}); err != nil {
		t.Fatal(err)
	}
	testutil.WriteArticle(t, articles, "b.md", "B")
	_, err := c.Create(ctx, CreateRequest{Tag: "v0.1", Articles: scanStore(t, articles), Now: testNow})
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
}

func TestCSV_HeaderAndBoolFormat(t *testing.T) {
	c, _, _ := testCSV(t)
	err := c.Save([]Record{{ArticlePath: "a.md", Version: "v0.1", PublishedAt: "2026-10-14", Title: "A", Tags: []string{"x", "y"}}})
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(c.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != strings.Join(Header, ",") {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "a.md,v0.1,2026-10-14,False,A,,,,x|y," {
		t.Errorf("row = %q", lines[1])
	}
}

func TestCSV_LoadToleratesBOMAndDuplicates(t *testing.T) {
	c, _, _ := testCSV(t)
	content := "\ufeffarticle_path,version,is_deployed\n" +
		"a.md,v0.1,False\n" +
		"b.md,v0.1,False\n" +
		"a.md,v0.2,True\n"
	if err := os.WriteFile(c.Path(), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	records, err := c.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0].ArticlePath != "a.md" || records[0].Version != "v0.2" || !records[0].IsDeployed {
		t.Errorf("a.md = %+v, want last row", records[0])
	}
}

func TestCSV_MarkDeployedFlipsOnlyGivenRows(t *testing.T) {
	c, _, _ := testCSV(t)
	err := c.Save([]Record{
		{ArticlePath: "a.md", Version: "v0.1", Title: "A"},
		{ArticlePath: "b.md", Version: "v0.1", Title: "B"},
		{ArticlePath: "c.md", Version: "v0.2", Title: "C"},
	})
	if err != nil {
		t.Fatal(err)
	}
	n, err := c.MarkDeployed([]string{"a.md", "c.md", "missing.md"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("changed = %d, want 2", n)
	}
	undeployed, err := c.Undeployed()
	if err != nil {
		t.Fatal(err)
	}
	if len(undeployed) != 1 || undeployed[0].ArticlePath != "b.md" || undeployed[0].Title != "B" {
		t.Errorf("undeployed = %+v", undeployed)
	}
}

func TestCSV_VersionsSummaries(t *testing.T) {
	c, _, _ := testCSV(t)
	_ = c.Save([]Record{
		{ArticlePath: "a.md", Version: "v0.1", PublishedAt: "2026-10-01", IsDeployed: true},
		{ArticlePath: "b.md", Version: "v0.10"},
		{ArticlePath: "c.md", Version: "v0.2"},
	})
	got, err := c.Versions()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].Tag != "v0.1" || got[1].Tag != "v0.2" || got[2].Tag != "v0.10" {
		t.Fatalf("versions = %+v", got)
	}
	if got[0].Undeployed != 0 || got[2].Undeployed != 1 || got[2].Previous != "v0.2" {
		t.Errorf("summaries = %+v", got)
	}
}

func TestChangelogPrependsGroupedSection(t *testing.T) {
	c, articles, _ := testCSV(t)
	ctx := context.Background()
	testutil.WriteArticle(t, articles, "a.md", "Alpha", "Linux")
	if _, err := c.Create(ctx, CreateRequest{Tag: "v0.1", Articles: scanStore(t, articles), Now: testNow}); err != nil {
		t.Fatal(err)
	}
	testutil.WriteArticle(t, articles, "b.md", "Beta", "工具")
	testutil.WriteArticle(t, articles, "c.md", "Gamma")
	if _, err := c.Create(ctx, CreateRequest{Tag: "v0.2", Articles: scanStore(t, articles), Now: testNow}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(filepath.Dir(c.Path()), "versions.md"))
	if err != nil {
		t.Fatal(err)
	}
	doc := string(data)
	if strings.Count(doc, "# Version History") != 1 {
		t.Errorf("title repeated:\n%s", doc)
	}
	i2 := strings.Index(doc, "## v0.2 (2026-10-14)")
	i1 := strings.Index(doc, "## v0.1 (2026-10-14)")
	if i2 < 0 || i1 < 0 || i2 > i1 {
		t.Fatalf("sections out of order:\n%s", doc)
	}
	for _, want := range []string{
		"### 工具\n- [b.md](articles/b.md) - Beta\n",
		"### Uncategorized\n- [c.md](articles/c.md) - Gamma\n",
		"New articles: 2\n",
		"### Linux\n- [a.md](articles/a.md) - Alpha\n",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("changelog lacks %q:\n%s", want, doc)
		}
	}
}
