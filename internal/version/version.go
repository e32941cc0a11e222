// Package version allocates and persists v<major>.<minor> version tags.
package version

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/storage"
)

// Initial is the tag reported when no VERSION file exists yet.
const Initial = "v0.0"

var tagRe = regexp.MustCompile(`^v(\d+)\.(\d+)$`)

// Parse splits a tag into its major and minor components.
func Parse(tag string) (major, minor int, err error) {
	m := tagRe.FindStringSubmatch(strings.TrimSpace(tag))
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q", apperr.ErrInvalidVersion, tag)
	}
	major, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", apperr.ErrInvalidVersion, tag)
	}
	minor, err = strconv.Atoi(m[2])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", apperr.ErrInvalidVersion, tag)
	}
	return major, minor, nil
}

// Format renders a tag.
func Format(major, minor int) string {
	return fmt.Sprintf("v%d.%d", major, minor)
}

// Valid reports whether tag is well formed.
func Valid(tag string) bool {
	_, _, err := Parse(tag)
	return err == nil
}

// Increment bumps the minor component. An empty tag starts at v1.0. A
// malformed tag is returned unchanged, so callers must check Valid before
// relying on the result being new.
func Increment(tag string) string {
	if strings.TrimSpace(tag) == "" {
		return "v1.0"
	}
	major, minor, err := Parse(tag)
	if err != nil {
		return tag
	}
	return Format(major, minor+1)
}

// Previous returns the tag one minor step back, or "" for a .0 tag or a
// malformed one.
func Previous(tag string) string {
	major, minor, err := Parse(tag)
	if err != nil || minor == 0 {
		return ""
	}
	return Format(major, minor-1)
}

// Less orders two valid tags numerically; malformed tags sort lexically after
// valid ones.
func Less(a, b string) bool {
	am, an, aerr := Parse(a)
	bm, bn, berr := Parse(b)
	switch {
	case aerr != nil && berr != nil:
		return a < b
	case aerr != nil:
		return false
	case berr != nil:
		return true
	case am != bm:
		return am < bm
	default:
		return an < bn
	}
}

// ReadCurrent returns the tag stored in file, or Initial when it is missing.
func ReadCurrent(file string) (string, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, fs.ErrNotExist) {
		return Initial, nil
	}
	if err != nil {
		return "", fmt.Errorf("version: read %s: %w", file, err)
	}
	tag := strings.TrimSpace(string(data))
	if tag == "" {
		return Initial, nil
	}
	return tag, nil
}

// WriteCurrent stores tag as the single line of file.
func WriteCurrent(file, tag string) error {
	if err := storage.WriteFileAtomic(file, []byte(tag+"\n")); err != nil {
		return fmt.Errorf("version: write %s: %w", file, err)
	}
	return nil
}
