package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/starford/kbpipe/internal/models"
	"github.com/starford/kbpipe/internal/storage"
)

const (
	changelogTitle = "# Version History\n\nVersion and publication history of every article.\n\n"
	uncategorized  = "Uncategorized"
)

// writeChangelog prepends the section for res to versions.md, keeping every
// earlier version section below it.
func (c *CSV) writeChangelog(res *CreateResult, now time.Time) error {
	var old string
	data, err := os.ReadFile(c.changelog)
	switch {
	case err == nil:
		old = string(data)
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("registry: read %s: %w", c.changelog, err)
	}

	var b strings.Builder
	b.WriteString(changelogTitle)
	b.WriteString(RenderChangelogSection(res.Tag, now, res.Added, c.storeDir))
	if prev := previousSections(old); prev != "" {
		b.WriteString("\n")
		b.WriteString(prev)
	}
	if err := storage.WriteFileAtomic(c.changelog, []byte(b.String())); err != nil {
		return fmt.Errorf("registry: write %s: %w", c.changelog, err)
	}
	return nil
}

// RenderChangelogSection renders one version's section grouped by primary
// category, categories and files sorted.
func RenderChangelogSection(tag string, now time.Time, added []models.Article, storeDir string) string {
	groups := make(map[string][]models.Article)
	for _, a := range added {
		c := a.PrimaryCategory()
		if c == "" {
			c = uncategorized
		}
		groups[c] = append(groups[c], a)
	}
	names := make([]string, 0, len(groups))
	for n := range groups {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n\n", tag, dateOnly(now))
	for _, n := range names {
		list := groups[n]
		sort.Slice(list, func(i, j int) bool { return list[i].Filename < list[j].Filename })
		fmt.Fprintf(&b, "### %s\n", n)
		for _, a := range list {
			fmt.Fprintf(&b, "- [%s](%s) - %s\n", a.Filename, path.Join(storeDir, a.Filename), a.Title)
		}
		b.WriteString("\n")
	}
	b.WriteString("---\n")
	fmt.Fprintf(&b, "New articles: %d\n", len(added))
	return b.String()
}

// previousSections returns old from its first version heading on.
func previousSections(old string) string {
	lines := strings.Split(old, "\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "## ") {
			return strings.Join(lines[i:], "\n")
		}
	}
	return ""
}
