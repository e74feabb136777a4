package wayfinder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/wayfinder/internal/graphdb"
	"github.com/matthewjhunter/wayfinder/internal/llm"
	"github.com/matthewjhunter/wayfinder/internal/storage"
)

type stubLLM struct {
	embeddings map[string][]float32
	summary    *llm.ArticleSummary
	theme      *llm.ThemeSummary
	fragment   string
	themeCalls int
}

func (s *stubLLM) GetEmbedding(_ context.Context, text string) []float32 { return s.embeddings[text] }

func (s *stubLLM) GetCompletion(context.Context, string, string, int, bool) (*llm.Completion, error) {
	return nil, nil
}

func (s *stubLLM) CountTokens(text string) int { return len(strings.Fields(text)) }

func (s *stubLLM) GetArticleSummarization(context.Context, string) (*llm.ArticleSummary, error) {
	return s.summary, nil
}

func (s *stubLLM) GetThemeSummarization(context.Context, []string) (*llm.ThemeSummary, error) {
	s.themeCalls++
	return s.theme, nil
}

func (s *stubLLM) GetArticleGraph(context.Context, string, string) (string, error) {
	return s.fragment, nil
}

// recordingGraph captures every query sent to the graph.
type recordingGraph struct {
	queries  []string
	verbatim []string
}

func (g *recordingGraph) Execute(_ context.Context, query string, _ map[string]any) ([]graphdb.Row, error) {
	g.queries = append(g.queries, query)
	return nil, nil
}

func (g *recordingGraph) ExecuteVerbatim(_ context.Context, query string, _ map[string]any) ([]graphdb.Row, error) {
	g.verbatim = append(g.verbatim, query)
	return nil, nil
}

func newTestEngine(t *testing.T, l *stubLLM, graph graphdb.Executor) (*Engine, *storage.SQLiteStore) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	deps := Deps{Store: store, LLM: l, Config: DefaultConfig()}
	if graph != nil {
		deps.Graph = graph
	}
	engine, err := NewEngineWith(deps)
	if err != nil {
		t.Fatalf("NewEngineWith: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	return engine, store
}

func TestNewEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	engine, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	defer engine.Close()

	if engine.store == nil || engine.llm == nil || engine.processor == nil || engine.builder == nil {
		t.Fatal("engine not fully wired")
	}
	if engine.graph != nil {
		t.Error("graph should be disabled without an endpoint")
	}
}

func TestNewEngineWith_RequiresCollaborators(t *testing.T) {
	if _, err := NewEngineWith(Deps{LLM: &stubLLM{}}); err == nil {
		t.Error("expected an error without a store")
	}
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := NewEngineWith(Deps{Store: store}); err == nil {
		t.Error("expected an error without an LLM")
	}
}

func TestProcessNavlogs(t *testing.T) {
	ctx := context.Background()
	l := &stubLLM{
		summary:    &llm.ArticleSummary{Summary: "About sqlite."},
		embeddings: map[string][]float32{},
	}
	engine, store := newTestEngine(t, l, nil)

	res, err := engine.ProcessNavlogs(ctx, []Navlog{
		{ID: "1", URL: "https://example.com/a", Title: "A", Text: "sqlite is an embedded database", TabID: "t1"},
		{ID: "2"},
		{ID: "3", URL: "https://example.com/a", Title: "A again", TabID: "t1"},
	})
	if err != nil {
		t.Fatalf("ProcessNavlogs: %v", err)
	}
	if res.Processed != 2 || res.Errors != 1 || len(res.Failures) != 1 {
		t.Errorf("result = %+v", res)
	}

	a, _ := store.GetArticleByURL(ctx, "https://example.com/a")
	if a == nil || a.Summary != "About sqlite." {
		t.Fatalf("article = %+v", a)
	}
	b, _ := store.GetBrowseByTabID(ctx, "t1")
	bd, _ := store.GetBrowsed(ctx, a.ID, b.ID)
	if bd.Count != 2 {
		t.Errorf("visit count = %d, want 2", bd.Count)
	}

	got, err := engine.GetArticle(ctx, a.ID)
	if err != nil || got.Title != "A" || got.Summary != "About sqlite." {
		t.Errorf("GetArticle = %+v, %v", got, err)
	}
}

func TestGetNotFound(t *testing.T) {
	engine, _ := newTestEngine(t, &stubLLM{}, nil)
	if _, err := engine.GetArticle(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetArticle: expected ErrNotFound, got %v", err)
	}
	if _, err := engine.GetTheme(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTheme: expected ErrNotFound, got %v", err)
	}
}

func seedArticles(t *testing.T, store *storage.SQLiteStore) []storage.Article {
	t.Helper()
	var out []storage.Article
	for _, a := range []storage.Article{
		{URL: "https://x.example/1", Title: "Goroutines", Summary: "lightweight threads", Text: "goroutines are cheap", Embedding: []float32{1, 0}},
		{URL: "https://x.example/2", Title: "Channels", Summary: "typed pipes", Text: "channels connect goroutines", Embedding: []float32{0.8, 0.6}},
		{URL: "https://x.example/3", Title: "Sourdough", Summary: "bread", Text: "flour and water", Embedding: []float32{0, 1}},
	} {
		got, _, err := store.GetOrInsertArticle(context.Background(), &a)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, *got)
	}
	return out
}

func TestRelatedArticles(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubLLM{}, nil)
	engine.config.Thresholds.Similarity = 0.7
	seeded := seedArticles(t, store)

	got, err := engine.RelatedArticles(ctx, seeded[0].ID, 5)
	if err != nil {
		t.Fatalf("RelatedArticles: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Channels" {
		t.Fatalf("related = %+v, want only Channels", got)
	}
	if got[0].Score <= 0.7 {
		t.Errorf("score = %v, want above the configured threshold", got[0].Score)
	}

	engine.config.Thresholds.Similarity = 0.9
	got, err = engine.RelatedArticles(ctx, seeded[0].ID, 5)
	if err != nil {
		t.Fatalf("RelatedArticles: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("related at 0.9 = %+v, want none", got)
	}

	if _, err := engine.RelatedArticles(ctx, "missing", 5); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestBuildThemes_PagesThroughWholeWindow(t *testing.T) {
	ctx := context.Background()
	l := &stubLLM{
		theme:      &llm.ThemeSummary{Title: "Reading", Summary: "Assorted reading."},
		embeddings: map[string][]float32{"Reading": {1, 0}},
	}
	engine, store := newTestEngine(t, l, nil)
	for i := 0; i < 5; i++ {
		a := storage.Article{
			URL:       fmt.Sprintf("https://x.example/page/%d", i),
			Title:     fmt.Sprintf("Page %d", i),
			Summary:   "notes",
			Text:      "body",
			Embedding: []float32{1, 0},
		}
		if _, _, err := store.GetOrInsertArticle(ctx, &a); err != nil {
			t.Fatal(err)
		}
	}

	res, err := engine.BuildThemes(ctx, ThemeBuildRequest{Limit: 2})
	if err != nil {
		t.Fatalf("BuildThemes: %v", err)
	}
	if res.Articles != 5 {
		t.Errorf("articles = %d, want 5", res.Articles)
	}
	if l.themeCalls != 3 {
		t.Errorf("theme summarizations = %d, want 3 (pages of 2, 2, 1)", l.themeCalls)
	}
}

func TestBuildThemesAndGetTheme(t *testing.T) {
	ctx := context.Background()
	l := &stubLLM{
		theme:      &llm.ThemeSummary{Title: "Go Concurrency", Summary: "Goroutines and channels.", Themes: []string{"CSP"}},
		embeddings: map[string][]float32{"Go Concurrency": {1, 0}},
	}
	engine, store := newTestEngine(t, l, nil)
	seedArticles(t, store)

	res, err := engine.BuildThemes(ctx, ThemeBuildRequest{})
	if err != nil {
		t.Fatalf("BuildThemes: %v", err)
	}
	if res.Articles != 3 || len(res.Themes) != 1 {
		t.Fatalf("result = %+v", res)
	}
	th := res.Themes[0]
	if th.Title != "Go Concurrency" || th.Source != "top_ranked" || len(th.RecurrentIDs) != 1 {
		t.Errorf("theme = %+v", th)
	}

	got, err := engine.GetTheme(ctx, th.ID)
	if err != nil {
		t.Fatalf("GetTheme: %v", err)
	}
	if len(got.Articles) != 3 {
		t.Errorf("theme articles = %d, want 3", len(got.Articles))
	}

	if _, err := engine.BuildThemes(ctx, ThemeBuildRequest{Source: "bogus"}); err == nil {
		t.Error("expected an error for an unknown source")
	}
}

func TestSearchArticlesAndThemes(t *testing.T) {
	ctx := context.Background()
	l := &stubLLM{embeddings: map[string][]float32{"concurrency": {1, 0}}}
	engine, store := newTestEngine(t, l, nil)
	seedArticles(t, store)
	if _, err := store.GetOrInsertTheme(ctx, &storage.Theme{Title: "Go", Embedding: []float32{0.9, 0.1}}); err != nil {
		t.Fatal(err)
	}

	articles, err := engine.SearchArticles(ctx, "concurrency", 0.7, 10)
	if err != nil {
		t.Fatalf("SearchArticles: %v", err)
	}
	if len(articles) != 2 || articles[0].Title != "Goroutines" || articles[1].Title != "Channels" {
		t.Errorf("articles = %+v", articles)
	}
	if articles[0].Score < articles[1].Score || !articles[0].Embedded {
		t.Errorf("scores not ordered: %+v", articles)
	}

	found, err := engine.SearchThemes(ctx, "concurrency", 0, 10)
	if err != nil || len(found) != 1 || found[0].Title != "Go" {
		t.Errorf("SearchThemes = %+v, %v", found, err)
	}

	if _, err := engine.SearchArticles(ctx, "unknown words", 0, 10); !errors.Is(err, ErrNoEmbedding) {
		t.Errorf("expected ErrNoEmbedding, got %v", err)
	}
	var ve *storage.ValidationError
	if _, err := engine.SearchThemes(ctx, "  ", 0, 10); !errors.As(err, &ve) {
		t.Errorf("expected a validation error for a blank query, got %v", err)
	}
}

func TestListThemes(t *testing.T) {
	ctx := context.Background()
	engine, store := newTestEngine(t, &stubLLM{}, nil)
	for _, title := range []string{"Beta", "Alpha"} {
		if _, err := store.GetOrInsertTheme(ctx, &storage.Theme{Title: title, Source: storage.SourceSearchTerm}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := store.GetOrInsertTheme(ctx, &storage.Theme{Title: "Gamma"}); err != nil {
		t.Fatal(err)
	}

	got, err := engine.ListThemes(ctx, ThemeListOptions{Source: "search_term", Sort: "title"})
	if err != nil {
		t.Fatalf("ListThemes: %v", err)
	}
	if len(got) != 2 || got[0].Title != "Alpha" || got[1].Title != "Beta" {
		t.Errorf("themes = %+v", got)
	}

	var ve *storage.ValidationError
	if _, err := engine.ListThemes(ctx, ThemeListOptions{Sort: "popularity"}); !errors.As(err, &ve) {
		t.Errorf("expected a validation error for an unknown sort key, got %v", err)
	}
	if _, err := engine.ListThemes(ctx, ThemeListOptions{Source: "nope"}); !errors.As(err, &ve) {
		t.Errorf("expected a validation error for an unknown source, got %v", err)
	}
}

func TestSyncGraph(t *testing.T) {
	ctx := context.Background()
	graph := &recordingGraph{}
	l := &stubLLM{fragment: "MERGE (a:Article {id: 'x'})"}
	engine, store := newTestEngine(t, l, graph)
	articles := seedArticles(t, store)
	if _, err := store.GetOrInsertTheme(ctx, &storage.Theme{
		Title: "Go", ArticleIDs: []string{articles[0].ID, articles[1].ID},
	}); err != nil {
		t.Fatal(err)
	}

	res, err := engine.SyncGraph(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SyncGraph: %v", err)
	}
	if res.Processed != 4 || res.Errors != 0 {
		t.Errorf("result = %+v", res)
	}
	if res.TraceID == "" {
		t.Error("trace id missing")
	}

	var upserts, fragments, links int
	for _, q := range graph.queries {
		switch {
		case strings.HasPrefix(q, "MERGE (n:Article"), strings.HasPrefix(q, "MERGE (n:Theme"):
			upserts++
		case strings.HasPrefix(q, "MERGE (a:Article"):
			fragments++
		case strings.Contains(q, ":INCLUDES]"):
			links++
		}
	}
	if upserts != 4 || fragments != 3 || links != 1 {
		t.Errorf("upserts=%d fragments=%d links=%d\n%s", upserts, fragments, links, strings.Join(graph.queries, "\n---\n"))
	}
}

func TestGraphDisabled(t *testing.T) {
	engine, _ := newTestEngine(t, &stubLLM{}, nil)
	if _, err := engine.SyncGraph(context.Background(), time.Time{}); !errors.Is(err, ErrGraphDisabled) {
		t.Errorf("SyncGraph: expected ErrGraphDisabled, got %v", err)
	}
	if _, err := engine.MergeDuplicateNodes(context.Background()); !errors.Is(err, ErrGraphDisabled) {
		t.Errorf("MergeDuplicateNodes: expected ErrGraphDisabled, got %v", err)
	}
}

func TestMergeDuplicateNodes_NothingToMerge(t *testing.T) {
	graph := &recordingGraph{}
	engine, _ := newTestEngine(t, &stubLLM{}, graph)
	res, err := engine.MergeDuplicateNodes(context.Background())
	if err != nil {
		t.Fatalf("MergeDuplicateNodes: %v", err)
	}
	if res.Groups != 0 || res.Removed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(graph.queries) != 1 {
		t.Errorf("expected only the detection query, got %d", len(graph.queries))
	}
}
