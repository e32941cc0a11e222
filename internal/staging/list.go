package staging

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/starford/kbpipe/internal/storage"
)

const listHeader = `# Publish List
# Lines starting with # are ignored.
# One staging-relative file path per line.

`

// ParseList reads a publish list: one path per line, blank lines and
// #-prefixed comments skipped, duplicates collapsed to their first position.
func ParseList(r io.Reader) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := NormalizePath(line)
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("staging: read publish list: %w", err)
	}
	return out, nil
}

// FormatList writes paths after the standard comment header.
func FormatList(w io.Writer, paths []string) error {
	if _, err := io.WriteString(w, listHeader); err != nil {
		return err
	}
	for _, p := range paths {
		if _, err := fmt.Fprintln(w, p); err != nil {
			return err
		}
	}
	return nil
}

// ReadListFile loads the publish list at file. A missing file is an empty list.
func ReadListFile(file string) ([]string, error) {
	f, err := os.Open(file)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("staging: open publish list: %w", err)
	}
	defer f.Close()
	return ParseList(f)
}

// WriteListFile atomically replaces the publish list at file.
func WriteListFile(file string, paths []string) error {
	var buf bytes.Buffer
	if err := FormatList(&buf, paths); err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(file, buf.Bytes()); err != nil {
		return fmt.Errorf("staging: write publish list: %w", err)
	}
	return nil
}

// NormalizePath cleans a staging-relative path into slash form.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(strings.TrimSpace(p), `\`, "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}
