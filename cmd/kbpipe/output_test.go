package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestPrinterMarkersPlainOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf)
	if p.color {
		t.Fatal("buffer must not be colorized")
	}
	p.ok("created %s", "v0.1")
	p.info("nothing new")

	want := "[OK] created v0.1\n[INFO] nothing new\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}
}

func TestRenderTable(t *testing.T) {
	out := renderTable(
		[]string{"#", "Path"},
		[][]string{{"1", "Linux/a.md"}, {"2"}},
		[]columnAlignment{alignRight, alignLeft},
	)
	for _, want := range []string{"Path", "Linux/a.md", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if renderTable(nil, nil, nil) != "" {
		t.Error("no headers should render nothing")
	}
}
