// Package ingest keeps articles fresh as navigation events arrive: it
// upserts the visited article, re-summarizes it when stale and records the
// visit against its browser tab.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/matthewjhunter/wayfinder/internal/llm"
	"github.com/matthewjhunter/wayfinder/internal/storage"
)

// DefaultMaxAge is how long a summary stays fresh.
const DefaultMaxAge = 90 * 24 * time.Hour

// ThemeLinker attaches an article to a named per-article theme.
type ThemeLinker interface {
	LinkArticle(ctx context.Context, title string, article *storage.Article) error
}

type Options struct {
	MaxAge time.Duration
}

// Processor runs the freshness and summarization pipeline for navlogs.
type Processor struct {
	articles storage.ArticleStore
	browses  storage.BrowseStore
	llm      llm.TextCompletionService
	linker   ThemeLinker
	maxAge   time.Duration
	now      func() time.Time
}

// NewProcessor wires a processor. linker may be nil, in which case summary
// themes are not linked.
func NewProcessor(articles storage.ArticleStore, browses storage.BrowseStore, svc llm.TextCompletionService, linker ThemeLinker, opts Options) *Processor {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	return &Processor{
		articles: articles,
		browses:  browses,
		llm:      svc,
		linker:   linker,
		maxAge:   opts.MaxAge,
		now:      time.Now,
	}
}

// IsStale reports whether a needs re-summarizing: it has no summary, or it
// was created more than maxAge before now. Updates do not reset the clock,
// so a refresh that fails leaves the article due on the next visit.
func IsStale(a *storage.Article, now time.Time, maxAge time.Duration) bool {
	if strings.TrimSpace(a.Summary) == "" {
		return true
	}
	return now.Sub(a.CreatedAt) > maxAge
}

// ProcessNavlog upserts the navlog's article, refreshes it if stale and
// records the browse. Browse tracking runs even when the refresh fails;
// both failures are returned joined.
func (p *Processor) ProcessNavlog(ctx context.Context, n Navlog) error {
	if strings.TrimSpace(n.URL) == "" {
		return fmt.Errorf("navlog %s has no url", n.ID)
	}

	loggedAt, err := ParseLoggedAt(n.LoggedAt)
	if err != nil {
		log.Printf("ingest: navlog %s: %v", n.ID, err)
	}

	title := strings.TrimSpace(n.Title)
	if title == "" {
		title = n.URL
	}

	article, _, err := p.articles.GetOrInsertArticle(ctx, &storage.Article{
		Title:    title,
		URL:      n.URL,
		LoggedAt: loggedAt,
	})
	if err != nil {
		return fmt.Errorf("upsert article %s: %w", n.URL, err)
	}

	var errs []error
	if IsStale(article, p.now(), p.maxAge) {
		if err := p.refresh(ctx, article, n, loggedAt); err != nil {
			errs = append(errs, err)
		}
	}
	if err := p.trackBrowse(ctx, article, n, loggedAt); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// refresh copies the navlog's enrichment onto the article, persists it,
// then asks the model for a new summary and embedding.
func (p *Processor) refresh(ctx context.Context, a *storage.Article, n Navlog, loggedAt *time.Time) error {
	a.NavlogID = n.ID
	a.DocumentID = present(n.DocumentID)
	a.ParentDocumentID = present(n.ParentDocumentID)
	if img := present(n.ImageKey); img != "" {
		a.ImageKey = img
	}
	if loggedAt != nil {
		a.LoggedAt = loggedAt
	}
	if text := cleanText(n.Text); text != "" {
		a.Text = text
	}
	a.UpdatedAt = p.now().UTC()
	if err := p.articles.UpdateArticle(ctx, a); err != nil {
		return err
	}

	if a.Text == "" {
		return nil
	}

	a.TokenCount = p.llm.CountTokens(a.Text)
	summary, err := p.llm.GetArticleSummarization(ctx, a.Text)
	if err != nil {
		// Keep the token count even when the model fails.
		if uerr := p.articles.UpdateArticleTokenCount(ctx, a.ID, a.TokenCount); uerr != nil {
			log.Printf("ingest: %v", uerr)
		}
		return fmt.Errorf("summarize %s: %w", a.URL, err)
	}
	if summary != nil {
		a.Summary = summary.Summary
		a.Embedding = p.llm.GetEmbedding(ctx, a.Title+"\n"+summary.Summary)
	}
	a.UpdatedAt = p.now().UTC()
	if err := p.articles.UpdateArticle(ctx, a); err != nil {
		return err
	}

	if summary == nil || p.linker == nil {
		return nil
	}
	var errs []error
	for _, theme := range summary.Themes {
		if err := p.linker.LinkArticle(ctx, theme, a); err != nil {
			log.Printf("ingest: link %s to theme %q: %v", a.URL, theme, err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// trackBrowse records the visit against the navlog's tab. A browse only
// gets a title when one of its pages is a search result page.
func (p *Processor) trackBrowse(ctx context.Context, a *storage.Article, n Navlog, loggedAt *time.Time) error {
	if strings.TrimSpace(n.TabID) == "" {
		return nil
	}

	b, err := p.browses.GetOrInsertBrowse(ctx, &storage.Browse{TabID: n.TabID})
	if err != nil {
		return fmt.Errorf("browse for tab %s: %w", n.TabID, err)
	}

	dirty := false
	if q, ok := SearchQuery(a.Title); ok && b.Title == "" {
		b.Title = q
		dirty = true
	}
	if b.LoggedAt == nil && loggedAt != nil {
		b.LoggedAt = loggedAt
		dirty = true
	}
	if dirty {
		if err := p.browses.UpdateBrowse(ctx, b); err != nil {
			return err
		}
	}

	if _, err := p.browses.RecordBrowsed(ctx, a.ID, b.ID, loggedAt); err != nil {
		return err
	}
	return nil
}
