package wayfinder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matthewjhunter/wayfinder/internal/batch"
	"github.com/matthewjhunter/wayfinder/internal/graphdb"
	"github.com/matthewjhunter/wayfinder/internal/ingest"
	"github.com/matthewjhunter/wayfinder/internal/llm"
	"github.com/matthewjhunter/wayfinder/internal/storage"
	"github.com/matthewjhunter/wayfinder/internal/themes"
)

var (
	// ErrNotFound is returned by single-item lookups when nothing matches.
	ErrNotFound = errors.New("not found")
	// ErrGraphDisabled is returned by graph operations when no graph
	// endpoint is configured.
	ErrGraphDisabled = errors.New("graph endpoint not configured")
	// ErrNoEmbedding is returned by searches when the query could not be
	// embedded.
	ErrNoEmbedding = errors.New("query embedding unavailable")
)

// deadlineMargin is how close to a context deadline batch runs stop
// admitting new items.
const deadlineMargin = 5 * time.Second

// Deps are the collaborators an Engine runs on. Graph may be nil.
type Deps struct {
	Store  storage.Store
	LLM    llm.TextCompletionService
	Graph  graphdb.Executor
	Config *Config
}

// Engine is the public API for the wayfinder pipeline. It is built once per
// process and shared by every entry point.
type Engine struct {
	store     storage.Store
	llm       llm.TextCompletionService
	graph     *graphdb.Store
	processor *ingest.Processor
	builder   *themes.Builder
	config    *Config
	now       func() time.Time
}

// NewEngine opens the SQLite store, connects to Ollama and, when an
// endpoint is configured, the graph database.
func NewEngine(cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	svc, err := llm.NewService(cfg.Ollama.BaseURL, llm.NewPromptLoader(cfg), llm.Options{
		CompletionModel: cfg.Ollama.CompletionModel,
		EmbeddingModel:  cfg.Ollama.EmbeddingModel,
		ContextWindow:   cfg.Ollama.ContextWindow,
		MinTextLength:   cfg.Thresholds.MinTextLength,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create LLM service: %w", err)
	}

	deps := Deps{Store: store, LLM: svc, Config: cfg}
	if cfg.Graph.Endpoint != "" {
		deps.Graph = graphdb.NewClient(cfg.Graph.Endpoint, cfg.Graph.Timeout)
	}
	return NewEngineWith(deps)
}

// NewEngineWith builds an engine on caller-supplied collaborators.
func NewEngineWith(d Deps) (*Engine, error) {
	if d.Store == nil {
		return nil, errors.New("engine: store is required")
	}
	if d.LLM == nil {
		return nil, errors.New("engine: LLM service is required")
	}
	cfg := d.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	builder := themes.NewBuilder(d.Store, d.Store, d.LLM, themes.Options{
		ContextWindow:       cfg.Ollama.ContextWindow,
		RelatedArticles:     cfg.Thresholds.RelatedArticles,
		StopAfterFirstFlush: cfg.Themes.StopAfterFirstFlush,
	})
	processor := ingest.NewProcessor(d.Store, d.Store, d.LLM, builder, ingest.Options{
		MaxAge: time.Duration(cfg.Thresholds.StalenessDays) * 24 * time.Hour,
	})

	e := &Engine{
		store:     d.Store,
		llm:       d.LLM,
		processor: processor,
		builder:   builder,
		config:    cfg,
		now:       time.Now,
	}
	if d.Graph != nil {
		e.graph = graphdb.NewStore(d.Graph)
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() *Config { return e.config }

// ProcessNavlogs runs the freshness pipeline over navlogs in order. A
// failing navlog is counted and the rest still run.
func (e *Engine) ProcessNavlogs(ctx context.Context, navlogs []Navlog) (*BatchResult, error) {
	rep, _ := batch.Run(ctx, navlogs, batch.Options{Margin: deadlineMargin, Label: "navlog"},
		func(ctx context.Context, n Navlog) error {
			return e.processor.ProcessNavlog(ctx, n)
		})
	return batchResult(rep, ""), nil
}

// BuildThemes clusters every summarized article updated since req.Since
// into themes, oldest first, req.Limit articles per pass. A malformed model
// response stops the build; the themes built before it are returned along
// with the error.
func (e *Engine) BuildThemes(ctx context.Context, req ThemeBuildRequest) (*ThemeBuildResult, error) {
	source := storage.SourceTopRanked
	if req.Source != "" {
		src, err := storage.ParseThemeSource(req.Source)
		if err != nil {
			return nil, err
		}
		source = src
	}
	since := req.Since
	if since.IsZero() {
		since = e.now().Add(-24 * time.Hour)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = e.config.Themes.BatchLimit
	}

	result := &ThemeBuildResult{}
	for offset := 0; ; offset += limit {
		scored, err := e.store.ListArticles(ctx, storage.ArticleQuery{
			UpdatedSince: since,
			Summarized:   true,
			Sort:         storage.SortUpdatedAt,
			Limit:        limit,
			Offset:       offset,
		})
		if err != nil {
			return result, fmt.Errorf("list articles: %w", err)
		}
		if len(scored) == 0 {
			break
		}
		articles := make([]storage.Article, len(scored))
		for i, sa := range scored {
			articles[i] = sa.Article
		}
		result.Articles += len(articles)

		built, err := e.builder.BuildFromRelatedArticles(ctx, articles, source, themes.BuildOptions{Title: req.Title})
		for _, t := range built {
			result.Themes = append(result.Themes, themeFromInternal(*t))
		}
		if err != nil {
			return result, err
		}
		if limit <= 0 || len(scored) < limit {
			break
		}
	}

	log.Printf("wayfinder: built %d themes from %d articles", len(result.Themes), result.Articles)
	return result, nil
}

// SearchArticles ranks summarized articles by similarity to query. A zero
// threshold uses the configured search threshold.
func (e *Engine) SearchArticles(ctx context.Context, query string, threshold float64, limit int) ([]Article, error) {
	emb, err := e.queryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	if threshold == 0 {
		threshold = e.config.Thresholds.Search
	}
	scored, err := e.store.ListArticles(ctx, storage.ArticleQuery{Embedding: emb, Threshold: threshold, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]Article, len(scored))
	for i, sa := range scored {
		out[i] = articleFromInternal(sa.Article)
		out[i].Score = sa.Score
	}
	return out, nil
}

// SearchThemes ranks themes by similarity to query.
func (e *Engine) SearchThemes(ctx context.Context, query string, threshold float64, limit int) ([]Theme, error) {
	emb, err := e.queryEmbedding(ctx, query)
	if err != nil {
		return nil, err
	}
	if threshold == 0 {
		threshold = e.config.Thresholds.Search
	}
	scored, err := e.store.ListThemes(ctx, storage.ThemeQuery{Embedding: emb, Threshold: threshold, Limit: limit})
	if err != nil {
		return nil, err
	}
	out := make([]Theme, len(scored))
	for i, st := range scored {
		out[i] = themeFromInternal(st.Theme)
		out[i].Score = st.Score
	}
	return out, nil
}

// RelatedArticles ranks the summarized articles most similar to the article
// id, excluding itself, above the configured similarity threshold.
func (e *Engine) RelatedArticles(ctx context.Context, id string, limit int) ([]Article, error) {
	a, err := e.store.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	if len(a.Embedding) == 0 {
		return []Article{}, nil
	}
	q := storage.ArticleQuery{Embedding: a.Embedding, Threshold: e.config.Thresholds.Similarity}
	if limit > 0 {
		q.Limit = limit + 1
	}
	scored, err := e.store.ListArticles(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Article, 0, len(scored))
	for _, sa := range scored {
		if sa.ID == a.ID {
			continue
		}
		r := articleFromInternal(sa.Article)
		r.Score = sa.Score
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e *Engine) queryEmbedding(ctx context.Context, query string) ([]float32, error) {
	if strings.TrimSpace(query) == "" {
		return nil, &storage.ValidationError{Field: "query", Value: query}
	}
	emb := e.llm.GetEmbedding(ctx, query)
	if emb == nil {
		return nil, ErrNoEmbedding
	}
	return emb, nil
}

// ListThemes returns themes filtered and ordered per opts. Unknown sort
// keys and sources are rejected with a *storage.ValidationError.
func (e *Engine) ListThemes(ctx context.Context, opts ThemeListOptions) ([]Theme, error) {
	q := storage.ThemeQuery{
		UpdatedSince: opts.Since,
		Sort:         storage.SortKey(opts.Sort),
		Desc:         opts.Desc,
		Limit:        opts.Limit,
	}
	if opts.Source != "" {
		src, err := storage.ParseThemeSource(opts.Source)
		if err != nil {
			return nil, err
		}
		q.Source = src
	}
	if err := storage.ValidateThemeSort(q.Sort); err != nil {
		return nil, err
	}

	scored, err := e.store.ListThemes(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]Theme, len(scored))
	for i, st := range scored {
		out[i] = themeFromInternal(st.Theme)
	}
	return out, nil
}

// GetArticle returns one article or ErrNotFound.
func (e *Engine) GetArticle(ctx context.Context, id string) (*Article, error) {
	a, err := e.store.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	result := articleFromInternal(*a)
	return &result, nil
}

// GetTheme returns one theme with its articles, or ErrNotFound.
func (e *Engine) GetTheme(ctx context.Context, id string) (*Theme, error) {
	t, err := e.store.GetTheme(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("theme %s: %w", id, ErrNotFound)
	}
	articles, err := e.store.GetThemeArticles(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("theme articles: %w", err)
	}
	result := themeFromInternal(*t)
	result.Articles = articlesFromInternal(articles)
	return &result, nil
}

// SyncGraph projects articles and themes updated since the given time into
// the graph, along with each article's extracted entities. Every write in
// one call shares a fresh trace id.
func (e *Engine) SyncGraph(ctx context.Context, since time.Time) (*BatchResult, error) {
	if e.graph == nil {
		return nil, ErrGraphDisabled
	}
	traceID := uuid.NewString()

	scored, err := e.store.ListArticles(ctx, storage.ArticleQuery{UpdatedSince: since, Sort: storage.SortUpdatedAt})
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	articleRep, _ := batch.Run(ctx, scored, batch.Options{Margin: deadlineMargin, Label: "graph articles"},
		func(ctx context.Context, sa storage.ScoredArticle) error {
			return e.syncArticle(ctx, &sa.Article, traceID)
		})

	scoredThemes, err := e.store.ListThemes(ctx, storage.ThemeQuery{UpdatedSince: since, Sort: storage.SortUpdatedAt})
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}
	// Nodes first so the link pass can match sibling themes.
	themeRep, _ := batch.Run(ctx, scoredThemes, batch.Options{Margin: deadlineMargin, Label: "graph themes"},
		func(ctx context.Context, st storage.ScoredTheme) error {
			return e.graph.UpsertThemeNode(ctx, &st.Theme, traceID)
		})
	linkRep, _ := batch.Run(ctx, scoredThemes, batch.Options{Margin: deadlineMargin, Label: "graph links"},
		func(ctx context.Context, st storage.ScoredTheme) error {
			return e.graph.LinkTheme(ctx, &st.Theme, traceID)
		})

	result := batchResult(articleRep, traceID)
	result.Processed += themeRep.Processed
	result.Skipped += themeRep.Skipped
	result.Errors += themeRep.Errors + linkRep.Errors
	result.Failures = append(result.Failures, themeRep.Failures...)
	result.Failures = append(result.Failures, linkRep.Failures...)
	return result, nil
}

func (e *Engine) syncArticle(ctx context.Context, a *storage.Article, traceID string) error {
	if err := e.graph.UpsertArticleNode(ctx, a, traceID); err != nil {
		return err
	}
	if a.Text == "" {
		return nil
	}
	fragment, err := e.llm.GetArticleGraph(ctx, a.Text, a.ID)
	if err != nil {
		return fmt.Errorf("extract graph for %s: %w", a.ID, err)
	}
	return e.graph.ApplyFragment(ctx, fragment, traceID)
}

// MergeDuplicateNodes merges graph nodes that share a label set and name.
func (e *Engine) MergeDuplicateNodes(ctx context.Context) (*MergeResult, error) {
	if e.graph == nil {
		return nil, ErrGraphDisabled
	}
	rep, err := e.graph.MergeAll(ctx)
	if rep == nil {
		return nil, err
	}
	return &MergeResult{
		Groups:   rep.Groups,
		Removed:  rep.Removed,
		Edges:    rep.Edges,
		Failures: rep.Failures,
	}, err
}

// Close releases all resources held by the engine.
func (e *Engine) Close() error {
	return e.store.Close()
}

// --- internal type conversion helpers ---

func batchResult(rep batch.Report, traceID string) *BatchResult {
	return &BatchResult{
		Processed: rep.Processed,
		Skipped:   rep.Skipped,
		Errors:    rep.Errors,
		Failures:  rep.Failures,
		TraceID:   traceID,
	}
}

func articleFromInternal(a storage.Article) Article {
	return Article{
		ID:               a.ID,
		Title:            a.Title,
		URL:              a.URL,
		Summary:          a.Summary,
		TokenCount:       a.TokenCount,
		LoggedAt:         a.LoggedAt,
		ImageKey:         a.ImageKey,
		DocumentID:       a.DocumentID,
		ParentDocumentID: a.ParentDocumentID,
		Embedded:         len(a.Embedding) > 0,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func articlesFromInternal(articles []storage.Article) []Article {
	out := make([]Article, len(articles))
	for i, a := range articles {
		out[i] = articleFromInternal(a)
	}
	return out
}

func themeFromInternal(t storage.Theme) Theme {
	return Theme{
		ID:              t.ID,
		Title:           t.Title,
		Summary:         t.Summary,
		Source:          string(t.Source),
		AverageDistance: t.AverageDistance,
		ArticleIDs:      t.ArticleIDs,
		RecurrentIDs:    t.RecurrentIDs,
		SporadicIDs:     t.SporadicIDs,
		CreatedAt:       t.CreatedAt,
		UpdatedAt:       t.UpdatedAt,
	}
}
