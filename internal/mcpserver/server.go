// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes kbpipe pipeline tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/kbpipe/internal/apperr"
	"github.com/starford/kbpipe/internal/deploy"
	"github.com/starford/kbpipe/internal/index"
	"github.com/starford/kbpipe/internal/pipeline"
	"github.com/starford/kbpipe/internal/staging"
)

const formatURI = "kbpipe://article-format"

// Service is the subset of the pipeline the MCP tools use.
type Service interface {
	Candidates(ctx context.Context) ([]staging.Candidate, error)
	PublishList(ctx context.Context) ([]staging.Entry, error)
	AddToPublishList(ctx context.Context, path string) (bool, error)
	RemoveFromPublishList(ctx context.Context, path string) (bool, error)
	PreviewDeploy(ctx context.Context) (*deploy.Delta, error)
	Search(ctx context.Context, query string, limit int) ([]index.SearchResult, error)
}

var _ Service = (*pipeline.Service)(nil)

// Server wraps the MCP server with kbpipe tools.
type Server struct {
	mcp *server.MCPServer
	svc Service
}

// New creates a new MCP server with all kbpipe tools registered.
func New(svc Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"kbpipe",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_staging",
		mcp.WithDescription("List staged draft articles with their publish-list membership."),
	), s.listStaging)

	s.mcp.AddTool(mcp.NewTool("view_publish_list",
		mcp.WithDescription("Show the publish list. Entries whose file is gone from staging are flagged stale."),
	), s.viewPublishList)

	s.mcp.AddTool(mcp.NewTool("add_to_publish_list",
		mcp.WithDescription("Queue a staged article for the next sync. The path must exist under staging."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Staging-relative path (e.g. Linux/bash-tips.md)")),
	), s.addToPublishList)

	s.mcp.AddTool(mcp.NewTool("remove_from_publish_list",
		mcp.WithDescription("Remove a path from the publish list."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Staging-relative path to remove")),
	), s.removeFromPublishList)

	s.mcp.AddTool(mcp.NewTool("preview_deploy",
		mcp.WithDescription("List the files the next deploy package would contain, without writing it."),
	), s.previewDeploy)

	s.mcp.AddTool(mcp.NewTool("search_articles",
		mcp.WithDescription("Search staged and published articles by title, tag or category."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchArticles)

	s.mcp.AddTool(mcp.NewTool("get_article_contract",
		mcp.WithDescription("Returns the article front matter format the pipeline reads. "+
			"Call this before drafting articles for staging."),
	), s.getArticleContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Article Format",
			mcp.WithResourceDescription("Front matter and layout rules for staged articles."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listStaging(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cands, err := s.svc.Candidates(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(cands) == 0 {
		return mcp.NewToolResultText("no articles in staging"), nil
	}
	var b strings.Builder
	for i, c := range cands {
		mark := " "
		if c.Selected {
			mark = "x"
		}
		fmt.Fprintf(&b, "[%s] %d. %s - %s\n", mark, i+1, c.Path, c.Title)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) viewPublishList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	entries, err := s.svc.PublishList(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(entries) == 0 {
		return mcp.NewToolResultText("publish list is empty"), nil
	}
	var b strings.Builder
	for i, e := range entries {
		if e.Exists {
			fmt.Fprintf(&b, "%d. %s - %s\n", i+1, e.Path, e.Title)
		} else {
			fmt.Fprintf(&b, "%d. %s (stale: not in staging)\n", i+1, e.Path)
		}
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) addToPublishList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	added, err := s.svc.AddToPublishList(ctx, path)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError(fmt.Sprintf("not in staging: %s", path)), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	case !added:
		return mcp.NewToolResultText(fmt.Sprintf("already listed: %s", path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %s", path)), nil
}

func (s *Server) removeFromPublishList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	removed, err := s.svc.RemoveFromPublishList(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !removed {
		return mcp.NewToolResultText(fmt.Sprintf("not listed: %s", path)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed: %s", path)), nil
}

func (s *Server) previewDeploy(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	delta, err := s.svc.PreviewDeploy(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"tag":      delta.Tag,
		"previous": delta.Previous,
		"files":    delta.Paths(),
	}), nil
}

func (s *Server) searchArticles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(results) == 0 {
		return mcp.NewToolResultText("no matches"), nil
	}
	return jsonResult(results), nil
}

func (s *Server) getArticleContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(ArticleFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     ArticleFormatContract,
		},
	}, nil
}
