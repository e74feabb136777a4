// Package themes turns model summaries into persisted themes, links them
// to their most similar articles and records their recurrent and sporadic
// sibling themes.
package themes

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/matthewjhunter/wayfinder/internal/llm"
	"github.com/matthewjhunter/wayfinder/internal/storage"
	"github.com/matthewjhunter/wayfinder/internal/window"
)

// DefaultRelatedArticles is how many similar articles a theme collects
// when no explicit set is given.
const DefaultRelatedArticles = 10

type Options struct {
	ContextWindow       int
	RelatedArticles     int
	StopAfterFirstFlush bool
}

// BuildOptions overrides what the builder would otherwise derive from the
// summary. A nil RelatedArticles means "look them up by embedding".
type BuildOptions struct {
	Title           string
	Embedding       []float32
	RelatedArticles []storage.Article
}

// Builder resolves or creates themes from model summaries.
type Builder struct {
	articles storage.ArticleStore
	themes   storage.ThemeStore
	llm      llm.TextCompletionService
	batcher  window.Batcher
	relatedK int
}

// NewBuilder wires a theme builder. The context window defaults to 16000
// tokens.
func NewBuilder(articles storage.ArticleStore, themes storage.ThemeStore, svc llm.TextCompletionService, opts Options) *Builder {
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 16000
	}
	if opts.RelatedArticles <= 0 {
		opts.RelatedArticles = DefaultRelatedArticles
	}
	return &Builder{
		articles: articles,
		themes:   themes,
		llm:      svc,
		batcher: window.Batcher{
			Budget:              opts.ContextWindow,
			Counter:             svc,
			StopAfterFirstFlush: opts.StopAfterFirstFlush,
		},
		relatedK: opts.RelatedArticles,
	}
}

// BuildFromSummary persists the theme a summary describes, attaches its
// related articles and creates any sibling themes the summary names.
func (b *Builder) BuildFromSummary(ctx context.Context, summary *llm.ThemeSummary, source storage.ThemeSource, opts BuildOptions) (*storage.Theme, error) {
	if summary == nil {
		return nil, errors.New("build theme: nil summary")
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = strings.TrimSpace(summary.Title)
	}
	if title == "" {
		return nil, &storage.ValidationError{Field: "theme title", Value: summary.Title}
	}

	theme, err := b.themes.GetThemeByTitle(ctx, title)
	if err != nil {
		return nil, err
	}
	if theme == nil {
		theme = &storage.Theme{Title: title, Summary: strings.TrimSpace(summary.Summary)}
	}
	theme.Source = source

	emb := opts.Embedding
	if emb == nil {
		emb = b.llm.GetEmbedding(ctx, title)
	}
	if emb != nil {
		theme.Embedding = emb
	}

	related := opts.RelatedArticles
	if related == nil && theme.Embedding != nil {
		related, err = b.articles.GetArticlesByThemeEmbedding(ctx, theme.Embedding, b.relatedK)
		if err != nil {
			return nil, fmt.Errorf("related articles for %q: %w", title, err)
		}
	}

	stored, err := b.themes.GetOrInsertTheme(ctx, theme)
	if err != nil {
		return nil, err
	}
	persisted, err := b.themes.GetTheme(ctx, stored.ID)
	if err != nil {
		return nil, err
	}
	if persisted == nil {
		return nil, fmt.Errorf("theme %q vanished after insert", title)
	}
	persisted.Source = source
	if theme.Embedding != nil {
		persisted.Embedding = theme.Embedding
	}
	if persisted.Summary == "" {
		persisted.Summary = theme.Summary
	}

	if err := b.attachSiblings(ctx, persisted, storage.SourceRecurrent, summary.Themes); err != nil {
		return nil, err
	}
	if err := b.attachSiblings(ctx, persisted, storage.SourceSporadic, summary.Disagreements); err != nil {
		return nil, err
	}

	if related != nil {
		if err := persisted.SetArticles(related); err != nil {
			return nil, err
		}
	}
	if err := b.themes.UpdateTheme(ctx, persisted); err != nil {
		return nil, err
	}
	return persisted, nil
}

// attachSiblings creates the recurrent or sporadic themes named in titles
// and records them on t, skipping any t already has and t itself.
func (b *Builder) attachSiblings(ctx context.Context, t *storage.Theme, kind storage.ThemeSource, titles []string) error {
	if len(titles) == 0 {
		return nil
	}

	existingIDs := t.RecurrentIDs
	prefix := "Similar to "
	if kind == storage.SourceSporadic {
		existingIDs = t.SporadicIDs
		prefix = "Dissimilar to "
	}

	seen := map[string]bool{storage.NormalizeThemeTitle(t.Title): true}
	if len(existingIDs) > 0 {
		existing, err := b.themes.GetThemes(ctx, existingIDs)
		if err != nil {
			return err
		}
		for _, s := range existing {
			seen[storage.NormalizeThemeTitle(s.Title)] = true
		}
	}

	for _, title := range titles {
		title = strings.TrimSpace(title)
		key := storage.NormalizeThemeTitle(title)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		sib, err := b.themes.GetOrInsertTheme(ctx, &storage.Theme{
			Title:   title,
			Summary: prefix + t.Title,
			Source:  kind,
		})
		if err != nil {
			return fmt.Errorf("%s sibling %q: %w", kind, title, err)
		}
		t.AddRelated(kind, sib.ID)
	}
	return nil
}

// BuildFromRelatedArticles packs the articles into context-window batches,
// summarizes each batch and builds one theme per summary. Response format
// errors abort the run and are returned with the themes built so far; any
// other failure is logged and the batch skipped.
func (b *Builder) BuildFromRelatedArticles(ctx context.Context, articles []storage.Article, source storage.ThemeSource, opts BuildOptions) ([]*storage.Theme, error) {
	texts := make([]string, len(articles))
	for i, a := range articles {
		texts[i] = articleText(a)
	}

	var built []*storage.Theme
	var accumulated []storage.Article
	for _, batch := range b.batcher.Batches(texts) {
		if err := ctx.Err(); err != nil {
			return built, err
		}

		related := make([]storage.Article, 0, len(batch.Items))
		for _, item := range batch.Items {
			a := &articles[item.Index]
			if a.TokenCount != item.OriginalTokens {
				a.TokenCount = item.OriginalTokens
				if err := b.articles.UpdateArticleTokenCount(ctx, a.ID, a.TokenCount); err != nil {
					log.Printf("themes: %v", err)
				}
			}
			related = append(related, *a)
		}

		summary, err := b.llm.GetThemeSummarization(ctx, batch.Texts())
		if errors.Is(err, llm.ErrLLMResponse) {
			return built, err
		}
		if err != nil {
			log.Printf("themes: summarize batch of %d articles: %v", len(batch.Items), err)
			continue
		}
		if summary == nil {
			log.Printf("themes: no summary for batch of %d articles, skipping", len(batch.Items))
			continue
		}

		bo := opts
		if bo.RelatedArticles == nil {
			if bo.Title != "" {
				// Every batch lands on the same theme; keep earlier batches' articles.
				accumulated = append(accumulated, related...)
				related = accumulated
			}
			bo.RelatedArticles = related
		}
		theme, err := b.BuildFromSummary(ctx, summary, source, bo)
		if errors.Is(err, llm.ErrLLMResponse) {
			return built, err
		}
		if err != nil {
			log.Printf("themes: build theme %q: %v", summary.Title, err)
			continue
		}
		built = append(built, theme)
	}
	return built, nil
}

// LinkArticle attaches a to the per-article theme called title, creating
// the theme if needed.
func (b *Builder) LinkArticle(ctx context.Context, title string, a *storage.Article) error {
	t, err := b.themes.GetOrInsertTheme(ctx, &storage.Theme{Title: title, Source: storage.SourcePerArticle})
	if err != nil {
		return err
	}
	for _, id := range t.ArticleIDs {
		if id == a.ID {
			return nil
		}
	}
	if t.Embedding == nil {
		t.Embedding = b.llm.GetEmbedding(ctx, t.Title)
	}

	related, err := b.articles.GetArticles(ctx, append(t.ArticleIDs, a.ID))
	if err != nil {
		return err
	}
	if err := t.SetArticles(related); err != nil {
		return err
	}
	return b.themes.UpdateTheme(ctx, t)
}

func articleText(a storage.Article) string {
	if strings.TrimSpace(a.Text) != "" {
		return a.Text
	}
	return a.Summary
}
