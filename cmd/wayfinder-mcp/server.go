package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/matthewjhunter/wayfinder"
)

const serverVersion = "0.1.0"

// server is the wayfinder MCP server.
type server struct {
	engine    *wayfinder.Engine
	rebuilder *rebuilder
}

func newServer(engine *wayfinder.Engine) *server {
	return &server{engine: engine}
}

// run serves MCP over stdin/stdout until ctx is done or the client hangs up.
func (s *server) run(ctx context.Context) error {
	log.Printf("wayfinder-mcp starting")
	return s.mcpServer().Run(ctx, &mcp.StdioTransport{})
}

// mcpServer registers every tool on a fresh SDK server.
func (s *server) mcpServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "wayfinder", Version: serverVersion}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "themes_search",
		Description: "Find themes (clusters of related browsing) similar to a free-text query. Returns titles, summaries, article IDs and similarity scores.",
	}, s.handleThemesSearch)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "themes_list",
		Description: "List themes, optionally filtered by source and sorted by a key.",
	}, s.handleThemesList)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "theme_get",
		Description: "Get one theme with its summary, related themes and member articles.",
	}, s.handleThemeGet)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "articles_search",
		Description: "Find summarized pages similar to a free-text query. Returns titles, URLs, summaries and similarity scores.",
	}, s.handleArticlesSearch)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "article_get",
		Description: "Get one summarized page by ID.",
	}, s.handleArticleGet)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "articles_related",
		Description: "Find summarized pages similar to a stored page, using the configured similarity threshold.",
	}, s.handleArticlesRelated)
	if s.rebuilder != nil {
		mcp.AddTool(srv, &mcp.Tool{
			Name:        "themes_build",
			Description: "Cluster articles summarized since the last build into themes now, instead of waiting for the background interval.",
		}, s.handleThemesBuild)
	}

	return srv
}

func (s *server) handleThemesSearch(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return mcpError("query parameter is required"), nil, nil
	}
	themes, err := s.engine.SearchThemes(ctx, in.Query, deref(in.Threshold, 0), deref(in.Limit, 20))
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	log.Printf("themes_search: query=%q -> %d results", in.Query, len(themes))
	return mcpJSON(themes), nil, nil
}

func (s *server) handleThemesList(ctx context.Context, _ *mcp.CallToolRequest, in themesListInput) (*mcp.CallToolResult, any, error) {
	themes, err := s.engine.ListThemes(ctx, wayfinder.ThemeListOptions{
		Source: deref(in.Source, ""),
		Sort:   deref(in.Sort, ""),
		Desc:   !deref(in.Asc, false),
		Limit:  deref(in.Limit, 50),
	})
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	log.Printf("themes_list: %d themes", len(themes))
	return mcpJSON(themes), nil, nil
}

func (s *server) handleThemeGet(ctx context.Context, _ *mcp.CallToolRequest, in themeIDInput) (*mcp.CallToolResult, any, error) {
	if in.ThemeID == "" {
		return mcpError("theme_id parameter is required"), nil, nil
	}
	theme, err := s.engine.GetTheme(ctx, in.ThemeID)
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	log.Printf("theme_get: id=%s", in.ThemeID)
	return mcpJSON(theme), nil, nil
}

func (s *server) handleArticlesSearch(ctx context.Context, _ *mcp.CallToolRequest, in searchInput) (*mcp.CallToolResult, any, error) {
	if strings.TrimSpace(in.Query) == "" {
		return mcpError("query parameter is required"), nil, nil
	}
	articles, err := s.engine.SearchArticles(ctx, in.Query, deref(in.Threshold, 0), deref(in.Limit, 20))
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	log.Printf("articles_search: query=%q -> %d results", in.Query, len(articles))
	return mcpJSON(articles), nil, nil
}

func (s *server) handleArticleGet(ctx context.Context, _ *mcp.CallToolRequest, in articleIDInput) (*mcp.CallToolResult, any, error) {
	if in.ArticleID == "" {
		return mcpError("article_id parameter is required"), nil, nil
	}
	article, err := s.engine.GetArticle(ctx, in.ArticleID)
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	log.Printf("article_get: id=%s", in.ArticleID)
	return mcpJSON(article), nil, nil
}

func (s *server) handleArticlesRelated(ctx context.Context, _ *mcp.CallToolRequest, in relatedInput) (*mcp.CallToolResult, any, error) {
	if in.ArticleID == "" {
		return mcpError("article_id parameter is required"), nil, nil
	}
	articles, err := s.engine.RelatedArticles(ctx, in.ArticleID, deref(in.Limit, 10))
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	log.Printf("articles_related: id=%s -> %d results", in.ArticleID, len(articles))
	return mcpJSON(articles), nil, nil
}

func (s *server) handleThemesBuild(ctx context.Context, _ *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, any, error) {
	result, err := s.rebuilder.build(ctx)
	if err != nil {
		return mcpError("%v", err), nil, nil
	}
	if len(result.Themes) == 0 {
		return mcpText("No new themes from %d articles.", result.Articles), nil, nil
	}
	return mcpJSON(result), nil, nil
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func mcpText(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
	}
}

func mcpJSON(data any) *mcp.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return mcpError("marshal response: %v", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

func mcpError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("Error: "+format, args...)}},
		IsError: true,
	}
}
