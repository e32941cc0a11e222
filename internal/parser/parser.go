// Package parser extracts article front matter and derived metadata from Markdown content.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/adrg/frontmatter"
	"github.com/goliatone/go-slug"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MaxExcerptRunes bounds excerpts derived from the article body.
const MaxExcerptRunes = 200

// Result holds the output of parsing a Markdown file.
type Result struct {
	Title       string
	Description string
	Excerpt     string
	Categories  []string
	Tags        []string
	Slug        string
	Body        []byte
	// HasFrontMatter is false when the file carries no metadata block.
	HasFrontMatter bool
}

type envelope struct {
	Title       string     `yaml:"title" toml:"title" json:"title"`
	Description string     `yaml:"description" toml:"description" json:"description"`
	Excerpt     string     `yaml:"excerpt" toml:"excerpt" json:"excerpt"`
	Categories  stringList `yaml:"categories" toml:"categories" json:"categories"`
	Tags        stringList `yaml:"tags" toml:"tags" json:"tags"`
	Slug        string     `yaml:"slug" toml:"slug" json:"slug"`
}

// stringList accepts either a YAML sequence or a single scalar.
type stringList []string

// UnmarshalYAML implements the yaml.v2 unmarshaler used by adrg/frontmatter.
func (l *stringList) UnmarshalYAML(unmarshal func(any) error) error {
	var many []string
	if err := unmarshal(&many); err == nil {
		*l = clean(many)
		return nil
	}
	var one string
	if err := unmarshal(&one); err != nil {
		return err
	}
	*l = clean([]string{one})
	return nil
}

// Parse extracts front matter and body from raw Markdown bytes. Content
// without a front matter block parses successfully with empty metadata; a
// block that cannot be decoded returns an error so callers can degrade.
func Parse(data []byte) (*Result, error) {
	var env envelope
	body, err := frontmatter.Parse(bytes.NewReader(data), &env)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	res := &Result{
		Title:          strings.TrimSpace(env.Title),
		Description:    strings.TrimSpace(env.Description),
		Excerpt:        strings.TrimSpace(env.Excerpt),
		Categories:     clean(env.Categories),
		Tags:           clean(env.Tags),
		Slug:           strings.TrimSpace(env.Slug),
		Body:           body,
		HasFrontMatter: len(body) != len(data),
	}
	if res.Excerpt == "" {
		res.Excerpt = deriveExcerpt(body)
	}
	if res.Slug == "" && res.Title != "" {
		res.Slug = DeriveSlug(res.Title)
	}
	return res, nil
}

// DeriveSlug normalizes title into a URL slug, or returns "" when the title
// has nothing the normalizer can keep.
func DeriveSlug(title string) string {
	s, err := slug.Normalize(title)
	if err != nil {
		return ""
	}
	return s
}

// deriveExcerpt returns the text of the first paragraph of body.
func deriveExcerpt(body []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(body))
	var excerpt string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if n.Kind() == ast.KindParagraph {
			excerpt = paragraphText(n, body)
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return truncate(excerpt, MaxExcerptRunes)
}

// paragraphText joins the text segments of a paragraph, turning soft line
// breaks into spaces.
func paragraphText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max])) + "…"
}

func clean(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
