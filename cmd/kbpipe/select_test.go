package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/kbpipe/internal"
	"github.com/starford/kbpipe/internal/pipeline"
	"github.com/starford/kbpipe/internal/testutil"
)

func testService(t *testing.T) *pipeline.Service {
	t.Helper()
	cfg := internal.NewDefaultConfig()
	cfg.Repository.Root = t.TempDir()
	app, err := internal.New(internal.WithConfig(cfg), internal.WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	dir := filepath.Join(cfg.Repository.Root, "staging", "Linux")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.md"), testutil.Article("Alpha", "Linux"), 0o644); err != nil {
		t.Fatal(err)
	}
	return app.Service()
}

func TestClearPublishList_EmptySkipsPrompt(t *testing.T) {
	svc := testService(t)
	var out bytes.Buffer

	if err := clearPublishList(context.Background(), svc, strings.NewReader(""), newPrinter(&out), false); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := out.String(); got != "[INFO] publish list is already empty\n" {
		t.Errorf("output = %q", got)
	}
}

func TestClearPublishList_Confirmation(t *testing.T) {
	for _, tt := range []struct {
		name   string
		answer string
		yes    bool
		kept   int
	}{
		{"declined", "n\n", false, 1},
		{"input closed", "", false, 1},
		{"confirmed", "y\n", false, 0},
		{"skip prompt", "", true, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			svc := testService(t)
			ctx := context.Background()
			if _, err := svc.AddToPublishList(ctx, "Linux/a.md"); err != nil {
				t.Fatal(err)
			}

			var out bytes.Buffer
			if err := clearPublishList(ctx, svc, strings.NewReader(tt.answer), newPrinter(&out), tt.yes); err != nil {
				t.Fatalf("clear: %v", err)
			}
			left, err := svc.Manager().Selected()
			if err != nil {
				t.Fatal(err)
			}
			if len(left) != tt.kept {
				t.Errorf("entries left = %d, want %d (output %q)", len(left), tt.kept, out.String())
			}
			if prompted := strings.Contains(out.String(), "(yes/no)"); prompted == tt.yes {
				t.Errorf("prompted = %v with yes = %v", prompted, tt.yes)
			}
		})
	}
}
