package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// printer writes the human-facing markers. Logs go to stderr separately.
type printer struct {
	out   io.Writer
	color bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out, color: shouldColorize(out)}
}

func (p *printer) marker(label string, c text.Color, format string, args ...any) {
	tag := "[" + label + "]"
	if p.color {
		tag = c.Sprint(tag)
	}
	fmt.Fprintf(p.out, "%s %s\n", tag, fmt.Sprintf(format, args...))
}

func (p *printer) ok(format string, args ...any) {
	p.marker("OK", text.FgGreen, format, args...)
}

func (p *printer) info(format string, args ...any) {
	p.marker("INFO", text.FgCyan, format, args...)
}

func (p *printer) warn(format string, args ...any) {
	p.marker("WARN", text.FgYellow, format, args...)
}

func (p *printer) table(headers []string, rows [][]string, aligns []columnAlignment) {
	if s := renderTable(headers, rows, aligns); s != "" {
		fmt.Fprintln(p.out, s)
	}
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
