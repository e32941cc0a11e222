package registry

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/storage"
	"github.com/starford/kbpipe/internal/version"
)

// Header is the fixed column order of versions.csv.
var Header = []string{
	"article_path", "version", "published_at", "is_deployed",
	"title", "description", "excerpt", "category", "tags", "slug",
}

const listSep = "|"

// Record is one row of versions.csv.
type Record struct {
	ArticlePath string   `json:"article_path"`
	Version     string   `json:"version"`
	PublishedAt string   `json:"published_at"`
	IsDeployed  bool     `json:"is_deployed"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Excerpt     string   `json:"excerpt,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Slug        string   `json:"slug,omitempty"`
}

// PrimaryCategory returns the first recorded category.
func (r Record) PrimaryCategory() string {
	if len(r.Categories) == 0 {
		return ""
	}
	return r.Categories[0]
}

func (r Record) row() []string {
	return []string{
		r.ArticlePath,
		r.Version,
		r.PublishedAt,
		formatBool(r.IsDeployed),
		r.Title,
		r.Description,
		r.Excerpt,
		strings.Join(r.Categories, listSep),
		strings.Join(r.Tags, listSep),
		r.Slug,
	}
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, listSep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// CSV is the flag-based registry backed by versions.csv and the versions.md changelog.
type CSV struct {
	path      string
	changelog string
	// storeDir is the link target used for article entries in the changelog.
	storeDir string
}

// NewCSV creates a CSV registry. changelog may be empty to skip versions.md.
func NewCSV(path, changelog, storeDir string) *CSV {
	return &CSV{path: path, changelog: changelog, storeDir: storeDir}
}

// Mode implements Registry.
func (c *CSV) Mode() string { return ModeCSV }

// Path returns the location of versions.csv.
func (c *CSV) Path() string { return c.path }

// Load reads every record. A missing file yields no records. When a path
// appears on several rows the last one wins, keeping the first row's position.
func (c *CSV) Load() ([]Record, error) {
	f, err := os.Open(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", c.path, err)
	}
	defer f.Close()
	return decodeRecords(f)
}

func decodeRecords(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("registry: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	if _, ok := col["article_path"]; !ok {
		return nil, fmt.Errorf("registry: header lacks article_path column")
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var out []Record
	pos := make(map[string]int)
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("registry: read row: %w", err)
		}
		rec := Record{
			ArticlePath: field(row, "article_path"),
			Version:     field(row, "version"),
			PublishedAt: field(row, "published_at"),
			IsDeployed:  parseBool(field(row, "is_deployed")),
			Title:       field(row, "title"),
			Description: field(row, "description"),
			Excerpt:     field(row, "excerpt"),
			Categories:  splitList(field(row, "category")),
			Tags:        splitList(field(row, "tags")),
			Slug:        field(row, "slug"),
		}
		if rec.ArticlePath == "" {
			continue
		}
		if i, ok := pos[rec.ArticlePath]; ok {
			out[i] = rec
			continue
		}
		pos[rec.ArticlePath] = len(out)
		out = append(out, rec)
	}
	return out, nil
}

// Save rewrites versions.csv with the header and records.
func (c *CSV) Save(records []Record) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(r.row()); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("registry: encode csv: %w", err)
	}
	if err := storage.WriteFileAtomic(c.path, buf.Bytes()); err != nil {
		return fmt.Errorf("registry: write %s: %w", c.path, err)
	}
	return nil
}

// Create appends a record for every article not yet registered.
func (c *CSV) Create(_ context.Context, req CreateRequest) (*CreateResult, error) {
	records, err := c.Load()
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r.Version == req.Tag {
			return nil, errTagTaken(req.Tag, apperr.ErrAlreadyExists)
		}
		known[r.ArticlePath] = struct{}{}
	}

	res := &CreateResult{Tag: req.Tag, Previous: req.Previous, Total: len(req.Articles)}
	published := dateOnly(req.Now)
	for _, a := range req.Articles {
		if _, ok := known[a.Filename]; ok {
			continue
		}
		known[a.Filename] = struct{}{}
		res.Added = append(res.Added, a)
		records = append(records, Record{
			ArticlePath: a.Filename,
			Version:     req.Tag,
			PublishedAt: published,
			IsDeployed:  false,
			Title:       a.Title,
			Description: a.Description,
			Excerpt:     a.Excerpt,
			Categories:  a.Categories,
			Tags:        a.Tags,
			Slug:        a.Slug,
		})
	}
	if len(res.Added) == 0 {
		return nil, fmt.Errorf("no new articles for version %s: %w", req.Tag, apperr.ErrNothingToDo)
	}

	if err := c.Save(records); err != nil {
		return nil, err
	}
	if c.changelog != "" {
		if err := c.writeChangelog(res, req.Now); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Undeployed returns records whose deployed flag is false, sorted by path.
func (c *CSV) Undeployed() ([]Record, error) {
	records, err := c.Load()
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, r := range records {
		if !r.IsDeployed {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ArticlePath < out[j].ArticlePath })
	return out, nil
}

// MarkDeployed sets the deployed flag on the given article paths and returns
// how many records changed. Nothing else in a record is modified.
func (c *CSV) MarkDeployed(paths []string) (int, error) {
	records, err := c.Load()
	if err != nil {
		return 0, err
	}
	want := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		want[p] = struct{}{}
	}
	changed := 0
	for i := range records {
		if _, ok := want[records[i].ArticlePath]; ok && !records[i].IsDeployed {
			records[i].IsDeployed = true
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	return changed, c.Save(records)
}

// Versions groups records by version tag.
func (c *CSV) Versions() ([]Summary, error) {
	records, err := c.Load()
	if err != nil {
		return nil, err
	}
	byTag := make(map[string]*Summary)
	for _, r := range records {
		s, ok := byTag[r.Version]
		if !ok {
			s = &Summary{Tag: r.Version}
			if t, err := time.Parse("2006-01-02", r.PublishedAt); err == nil {
				s.CreatedAt = t
			}
			byTag[r.Version] = s
		}
		s.Articles++
		if !r.IsDeployed {
			s.Undeployed++
		}
	}
	out := make([]Summary, 0, len(byTag))
	for _, s := range byTag {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return version.Less(out[i].Tag, out[j].Tag) })
	for i := 1; i < len(out); i++ {
		out[i].Previous = out[i-1].Tag
	}
	return out, nil
}
