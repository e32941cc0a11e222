package staging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/starford/kbpipe/internal/apperr"
)

// ParseIndices turns a line of 1-based, space-separated numbers into
// zero-based indices below n. Out-of-range numbers are dropped; a token that
// is not a number fails the whole line.
func ParseIndices(line string, n int) ([]int, error) {
	var out []int
	for _, tok := range strings.Fields(line) {
		v, err := strconv.Atoi(tok)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok)
		}
		if v < 1 || v > n {
			continue
		}
		out = append(out, v-1)
	}
	return out, nil
}

// Prompt reads answers from an input stream one line at a time.
type Prompt struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompt wraps in and out.
func NewPrompt(in io.Reader, out io.Writer) *Prompt {
	return &Prompt{in: bufio.NewReader(in), out: out}
}

// Ask prints question and returns the trimmed answer. io.EOF is returned
// once the input is exhausted.
func (p *Prompt) Ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	line, err := p.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a yes/no question; only "yes" and "y" confirm.
func (p *Prompt) Confirm(question string) (bool, error) {
	ans, err := p.Ask(question + " (yes/no): ")
	if err != nil {
		return false, err
	}
	ans = strings.ToLower(ans)
	return ans == "yes" || ans == "y", nil
}

// Interactive runs the bulk-edit loop. The candidate set is re-read from
// disk on every iteration. It returns true when the list was saved; running
// out of input or a cancelled ctx aborts with apperr.ErrCancelled and leaves
// the persisted list untouched.
func (m *Manager) Interactive(ctx context.Context, in io.Reader, out io.Writer) (bool, error) {
	initial, err := m.scanner.Scan()
	if err != nil {
		return false, err
	}
	if len(initial) == 0 {
		return false, fmt.Errorf("no articles found in staging: %w", apperr.ErrNothingToDo)
	}
	selected, err := m.Selected()
	if err != nil {
		return false, err
	}

	p := NewPrompt(in, out)
	for {
		if err := ctx.Err(); err != nil {
			return false, fmt.Errorf("%w: %v", apperr.ErrCancelled, err)
		}
		articles, err := m.scanner.Scan()
		if err != nil {
			return false, err
		}
		candidates := markSelected(articles, selected)
		renderMenu(out, selected, candidates)

		choice, err := p.Ask("\nYour choice: ")
		if err != nil {
			return false, abort(err)
		}

		switch choice {
		case "0":
			fmt.Fprintln(out, "[INFO] Exited without saving")
			return false, nil

		case "1":
			line, err := p.Ask("Enter numbers to add (separate with spaces): ")
			if err != nil {
				return false, abort(err)
			}
			idx, err := ParseIndices(line, len(candidates))
			if err != nil {
				fmt.Fprintln(out, "[INFO] Invalid input")
				continue
			}
			for _, i := range idx {
				c := candidates[i]
				if contains(selected, c.Path) {
					continue
				}
				selected = append(selected, c.Path)
				fmt.Fprintf(out, "  [+] %s\n", c.Path)
			}

		case "2":
			if len(selected) == 0 {
				fmt.Fprintln(out, "[INFO] List is empty")
				continue
			}
			line, err := p.Ask("Enter numbers to remove (separate with spaces): ")
			if err != nil {
				return false, abort(err)
			}
			idx, err := ParseIndices(line, len(selected))
			if err != nil {
				fmt.Fprintln(out, "[INFO] Invalid input")
				continue
			}
			drop := make(map[string]struct{}, len(idx))
			for _, i := range idx {
				drop[selected[i]] = struct{}{}
			}
			var kept []string
			for _, s := range selected {
				if _, ok := drop[s]; ok {
					fmt.Fprintf(out, "  [-] %s\n", s)
					continue
				}
				kept = append(kept, s)
			}
			selected = kept

		case "3":
			if len(selected) == 0 {
				fmt.Fprintln(out, "[INFO] List is already empty")
				continue
			}
			ok, err := p.Confirm("Are you sure?")
			if err != nil {
				return false, abort(err)
			}
			if ok {
				selected = nil
				fmt.Fprintln(out, "[OK] List cleared")
			}

		case "4":
			RenderEntries(out, m.resolve(selected))

		case "5":
			if err := m.Save(selected); err != nil {
				return false, err
			}
			fmt.Fprintf(out, "[OK] List saved to %s\n", m.listFile)
			return true, nil

		default:
			fmt.Fprintln(out, "[INFO] Invalid input")
		}
	}
}

func abort(err error) error {
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("interactive selection: %w", apperr.ErrCancelled)
	}
	return err
}

func contains(list []string, p string) bool {
	for _, s := range list {
		if s == p {
			return true
		}
	}
	return false
}

func renderMenu(out io.Writer, selected []string, candidates []Candidate) {
	rule := strings.Repeat("=", 60)
	fmt.Fprintf(out, "\n%s\nPublish List Manager\n%s\n", rule, rule)

	fmt.Fprintln(out, "\nCurrent list:")
	for i, p := range selected {
		fmt.Fprintf(out, "  %d. %s\n", i+1, p)
	}

	fmt.Fprintln(out, "\nAvailable articles in staging:")
	for i, c := range candidates {
		marker := "[ ]"
		if c.Selected {
			marker = "[✓]"
		}
		fmt.Fprintf(out, "  %s %d. %s - %s\n", marker, i+1, c.Path, c.Title)
	}

	fmt.Fprint(out, `
Actions:
  [1] Add articles (enter numbers, separate with spaces)
  [2] Remove articles (enter numbers)
  [3] Clear list
  [4] View list
  [5] Save and exit
  [0] Exit without saving
`)
}

// RenderEntries prints a resolved publish list, flagging stale entries.
func RenderEntries(out io.Writer, entries []Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "[INFO] Publish list is empty")
		return
	}
	fmt.Fprintln(out, "\nPublish List:")
	for i, e := range entries {
		if !e.Exists {
			fmt.Fprintf(out, "  %d. %s (FILE NOT FOUND)\n", i+1, e.Path)
			continue
		}
		fmt.Fprintf(out, "  %d. %s\n     Title: %s\n", i+1, e.Path, e.Title)
	}
	fmt.Fprintln(out)
}
