package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/kbpipe/internal/testutil"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	db := testDB(t)
	areas, _, articles := testAreas(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, areas, quietLogger(), func(kind, area, path string) {
		mu.Lock()
		events = append(events, kind+":"+area+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(articles.Root(), "new.md"), testutil.Article("New"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(AreaStore, "new.md")
		return cs != ""
	}, "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:store:new.md" {
				return true
			}
		}
		return false
	}, "expected created:store:new.md callback")
}

func TestWatcher_NewCategoryDirWatched(t *testing.T) {
	db := testDB(t)
	areas, st, _ := testAreas(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, areas, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	catDir := filepath.Join(st.Root(), "开发")
	_ = os.MkdirAll(catDir, 0o755)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(catDir, "deep.md"), testutil.Article("Deep"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(AreaStaging, "开发/deep.md")
		return cs != ""
	}, "file in new category dir not indexed by watcher")
}

func TestWatcher_IgnoresUnscannedStagingPaths(t *testing.T) {
	db := testDB(t)
	areas, st, _ := testAreas(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, areas, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(st.Root(), "loose.md"), testutil.Article("Loose"), 0o644)
	_ = os.MkdirAll(filepath.Join(st.Root(), "Linux"), 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(st.Root(), "Linux", "kept.md"), testutil.Article("Kept"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(AreaStaging, "Linux/kept.md")
		return cs != ""
	}, "categorized file not indexed")
	if cs, _ := db.GetChecksum(AreaStaging, "loose.md"); cs != "" {
		t.Error("file outside the configured categories was indexed")
	}
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	db := testDB(t)
	areas, _, articles := testAreas(t)
	testutil.WriteArticle(t, articles, "del.md", "Delete Me")
	if _, err := Sync(db, areas, quietLogger()); err != nil {
		t.Fatal(err)
	}
	if cs, _ := db.GetChecksum(AreaStore, "del.md"); cs == "" {
		t.Fatal("precondition: file should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, areas, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(articles.Root(), "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(AreaStore, "del.md")
		return cs == ""
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	db := testDB(t)
	areas, _, articles := testAreas(t)
	testutil.WriteArticle(t, articles, "old.md", "Rename")
	if _, err := Sync(db, areas, quietLogger()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, areas, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(articles.Root(), "old.md"), filepath.Join(articles.Root(), "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum(AreaStore, "old.md")
		newCS, _ := db.GetChecksum(AreaStore, "renamed.md")
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}
