package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/kbpipe/internal"
	"github.com/starford/kbpipe/internal/pipeline"
	"github.com/starford/kbpipe/internal/publish"
	"github.com/starford/kbpipe/internal/staging"
)

func selectCommand() *cli.Command {
	return &cli.Command{
		Name:  "select",
		Usage: "Edit the publish list of staged articles",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "List staged articles"},
			&cli.StringFlag{Name: "add", Aliases: []string{"a"}, Usage: "Add a staging path to the publish list"},
			&cli.StringFlag{Name: "remove", Aliases: []string{"r"}, Usage: "Remove a path from the publish list"},
			&cli.BoolFlag{Name: "clear", Usage: "Clear the publish list"},
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the clear confirmation"},
			&cli.BoolFlag{Name: "view", Aliases: []string{"v"}, Usage: "Show the publish list"},
			&cli.BoolFlag{Name: "interactive", Aliases: []string{"i"}, Usage: "Edit the publish list interactively"},
		},
		Action: runSelect,
	}
}

func runSelect(ctx context.Context, cmd *cli.Command) error {
	app, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer app.Close()
	svc := app.Service()
	p := newPrinter(os.Stdout)

	switch {
	case cmd.String("add") != "":
		path := cmd.String("add")
		added, err := svc.AddToPublishList(ctx, path)
		if err != nil {
			return err
		}
		if !added {
			p.info("already in publish list: %s", path)
			return nil
		}
		p.ok("added to publish list: %s", path)
	case cmd.String("remove") != "":
		path := cmd.String("remove")
		removed, err := svc.RemoveFromPublishList(ctx, path)
		if err != nil {
			return err
		}
		if !removed {
			p.info("not in publish list: %s", path)
			return nil
		}
		p.ok("removed from publish list: %s", path)
	case cmd.Bool("clear"):
		return clearPublishList(ctx, svc, os.Stdin, p, cmd.Bool("yes"))
	case cmd.Bool("view"):
		entries, err := svc.PublishList(ctx)
		if err != nil {
			return err
		}
		staging.RenderEntries(os.Stdout, entries)
	case cmd.Bool("interactive"):
		saved, err := svc.SelectInteractive(ctx, os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		if saved {
			p.ok("publish list saved")
		} else {
			p.info("exited without saving")
		}
	default:
		return listCandidates(ctx, app, p)
	}
	return nil
}

// clearPublishList empties the publish list, asking first unless yes is
// set. An already empty list is reported without a prompt.
func clearPublishList(ctx context.Context, svc *pipeline.Service, in io.Reader, p *printer, yes bool) error {
	selected, err := svc.Manager().Selected()
	if err != nil {
		return err
	}
	if len(selected) == 0 {
		p.info("publish list is already empty")
		return nil
	}
	if !yes {
		ok, err := staging.NewPrompt(in, p.out).Confirm(fmt.Sprintf("Clear %d entries from the publish list?", len(selected)))
		if err != nil || !ok {
			p.info("cancelled")
			return nil
		}
	}
	cleared, err := svc.ClearPublishList(ctx)
	if err != nil {
		return err
	}
	if !cleared {
		p.info("publish list is already empty")
		return nil
	}
	p.ok("publish list cleared")
	return nil
}

func listCandidates(ctx context.Context, app *internal.App, p *printer) error {
	candidates, err := app.Service().Candidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		p.info("no articles in staging")
		return nil
	}
	rows := make([][]string, 0, len(candidates))
	for i, c := range candidates {
		mark := ""
		if c.Selected {
			mark = "x"
		}
		rows = append(rows, []string{strconv.Itoa(i + 1), mark, c.Path, c.Title})
	}
	p.table([]string{"#", "Sel", "Path", "Title"}, rows, []columnAlignment{alignRight})
	return nil
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Move staged articles into the article store",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "select", Aliases: []string{"s"}, Usage: "Pick articles by index"},
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Sync the articles listed in a publish list file"},
			&cli.BoolFlag{Name: "list", Usage: "Sync the configured publish list"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			p := newPrinter(os.Stdout)

			req := publish.Request{Mode: publish.ModeAll}
			switch {
			case cmd.String("file") != "":
				req = publish.Request{Mode: publish.ModeFile, ListFile: cmd.String("file")}
			case cmd.Bool("list"):
				req = publish.Request{Mode: publish.ModeFile}
			case cmd.Bool("select"):
				req = publish.Request{Mode: publish.ModeSelect, In: os.Stdin, Out: os.Stdout}
			}

			res, err := app.Service().Sync(ctx, req)
			if err != nil {
				return err
			}
			for _, path := range res.Stale {
				p.warn("not found in staging: %s", path)
			}
			for _, a := range res.Synced {
				p.ok("synced %s -> %s", a.Path, a.Filename)
			}
			p.info("%d article(s) synced", len(res.Synced))
			return nil
		},
	}
}

func createVersionCommand() *cli.Command {
	return &cli.Command{
		Name:      "create-version",
		Usage:     "Register new articles under the next version",
		ArgsUsage: "[tag]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "version", Usage: "Explicit version tag (v<major>.<minor>)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			p := newPrinter(os.Stdout)

			override := cmd.String("version")
			if override == "" {
				override = cmd.Args().First()
			}
			res, err := app.Service().CreateVersion(ctx, override)
			if err != nil {
				return err
			}
			prev := res.Previous
			if prev == "" {
				prev = "none"
			}
			p.ok("created %s (previous %s): %d new, %d total", res.Tag, prev, len(res.Added), res.Total)
			for _, a := range res.Added {
				p.info("  + %s", a.Filename)
			}
			return nil
		},
	}
}

func deployCommand() *cli.Command {
	return &cli.Command{
		Name:  "deploy",
		Usage: "Package the current version's new articles into the deploy directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "mark-deployed", Usage: "Flag packaged records as deployed (csv registry)"},
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Show the delta without writing"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			svc := app.Service()
			p := newPrinter(os.Stdout)

			if cmd.Bool("dry-run") {
				delta, err := svc.PreviewDeploy(ctx)
				if err != nil {
					return err
				}
				p.info("%s: %d new file(s)", delta.Tag, len(delta.Items))
				for _, path := range delta.Paths() {
					fmt.Fprintf(os.Stdout, "  - %s\n", path)
				}
				return nil
			}

			res, err := svc.Deploy(ctx, cmd.Bool("mark-deployed"))
			if err != nil {
				return err
			}
			p.ok("package %s for %s: %d file(s)", res.Package.ID, res.Package.Tag, len(res.Package.Files))
			if res.Marked > 0 {
				p.ok("%d record(s) marked deployed", res.Marked)
			}
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Summarize the repository",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			st, err := app.Service().Status(ctx)
			if err != nil {
				return err
			}
			newPrinter(os.Stdout).table([]string{"Key", "Value"}, [][]string{
				{"version", st.Version},
				{"registry", st.Registry},
				{"staged", strconv.Itoa(st.Staged)},
				{"selected", strconv.Itoa(st.Selected)},
				{"store", strconv.Itoa(st.StoreTotal)},
				{"publish list", st.PublishList},
			}, nil)
			return nil
		},
	}
}

func versionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "versions",
		Usage: "List registered versions",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()
			p := newPrinter(os.Stdout)
			list, err := app.Service().Versions(ctx)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				p.info("no versions yet")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, v := range list {
				created := ""
				if !v.CreatedAt.IsZero() {
					created = v.CreatedAt.Format("2006-01-02")
				}
				rows = append(rows, []string{v.Tag, v.Previous, created,
					strconv.Itoa(v.Articles), strconv.Itoa(v.Undeployed)})
			}
			p.table([]string{"Version", "Previous", "Created", "Articles", "Undeployed"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight})
			return nil
		},
	}
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:  "index",
		Usage: "Rebuild the catalog index",
		Action: func(_ context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd, internal.WithIndex())
			if err != nil {
				return err
			}
			defer app.Close()
			st, err := app.Reindex()
			if err != nil {
				return err
			}
			newPrinter(os.Stdout).ok("indexed %d, removed %d, total %d", st.Indexed, st.Removed, st.Total)
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the catalog index",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 20, Usage: "Maximum results"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return errors.New("search: query is required")
			}
			app, err := loadApp(cmd, internal.WithIndex())
			if err != nil {
				return err
			}
			defer app.Close()
			p := newPrinter(os.Stdout)
			if _, err := app.Reindex(); err != nil {
				return err
			}

			results, err := app.Service().Search(ctx, query, int(cmd.Int("limit")))
			if err != nil {
				return err
			}
			if len(results) == 0 {
				p.info("no matches for %q", query)
				return nil
			}
			rows := make([][]string, 0, len(results))
			for _, r := range results {
				rows = append(rows, []string{r.Area, r.Path, r.Title, strings.Join(r.Tags, ", ")})
			}
			p.table([]string{"Area", "Path", "Title", "Tags"}, rows, nil)
			return nil
		},
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Keep the catalog index in sync with the staging area and the store",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd, internal.WithIndex())
			if err != nil {
				return err
			}
			defer app.Close()
			p := newPrinter(os.Stdout)
			if _, err := app.Reindex(); err != nil {
				return err
			}
			p.info("watching for changes, press Ctrl+C to stop")
			ctx, stop := signalContext(ctx)
			defer stop()
			err = app.Watch(ctx, func(kind, area, path string) {
				p.info("%s %s/%s", kind, area, path)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the HTTP status API",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd, internal.WithIndex())
			if err != nil {
				return err
			}
			defer app.Close()
			if err := app.Serve(ctx); err != nil {
				return fmt.Errorf("app run error: %w", err)
			}
			return nil
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the MCP tools over stdio",
		Action: func(_ context.Context, cmd *cli.Command) error {
			app, err := loadApp(cmd, internal.WithIndex())
			if err != nil {
				return err
			}
			defer app.Close()
			return app.ServeMCP()
		},
	}
}
