package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/matthewjhunter/wayfinder/internal/similarity"
)

// ThemeSource records how a theme came to exist.
type ThemeSource string

const (
	SourceTopRanked   ThemeSource = "top_ranked"
	SourcePerArticle  ThemeSource = "per_article"
	SourceRecurrent   ThemeSource = "recurrent"
	SourceSporadic    ThemeSource = "sporadic"
	SourceTabThread   ThemeSource = "tab_thread"
	SourceSearchTerm  ThemeSource = "search_term"
	SourceChatPrompt  ThemeSource = "chat_prompt"
	SourceCustom      ThemeSource = "custom"
	SourceProposition ThemeSource = "proposition"
)

// ParseThemeSource validates a theme source name.
func ParseThemeSource(s string) (ThemeSource, error) {
	switch src := ThemeSource(s); src {
	case SourceTopRanked, SourcePerArticle, SourceRecurrent, SourceSporadic,
		SourceTabThread, SourceSearchTerm, SourceChatPrompt, SourceCustom, SourceProposition:
		return src, nil
	}
	return "", &ValidationError{Field: "source", Value: s}
}

type Article struct {
	ID               string
	Title            string
	TitleIndex       string
	URL              string
	Summary          string
	Text             string
	Embedding        []float32
	TokenCount       int
	LoggedAt         *time.Time
	NavlogID         string
	ImageKey         string
	DocumentID       string
	ParentDocumentID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (a Article) Vector() []float32 { return a.Embedding }

type Theme struct {
	ID              string
	Title           string
	Key             string
	Summary         string
	Source          ThemeSource
	Embedding       []float32
	AverageDistance float64
	CreatedAt       time.Time
	UpdatedAt       time.Time

	ArticleIDs   []string
	RecurrentIDs []string
	SporadicIDs  []string
}

func (t Theme) Vector() []float32 { return t.Embedding }

// SetArticles replaces the theme's related articles and recomputes its
// average distance to them.
func (t *Theme) SetArticles(articles []Article) error {
	avg, err := similarity.AverageDistance(t.Embedding, articles)
	if err != nil {
		return fmt.Errorf("average distance for theme %q: %w", t.Title, err)
	}
	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		ids = appendUnique(ids, a.ID)
	}
	t.ArticleIDs = ids
	t.AverageDistance = avg
	return nil
}

// AddRelated appends a recurrent or sporadic sibling id if it is not
// already present.
func (t *Theme) AddRelated(kind ThemeSource, id string) {
	switch kind {
	case SourceRecurrent:
		t.RecurrentIDs = appendUnique(t.RecurrentIDs, id)
	case SourceSporadic:
		t.SporadicIDs = appendUnique(t.SporadicIDs, id)
	}
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

type Browse struct {
	ID        string
	Title     string
	TabID     string
	LoggedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Browsed counts visits to an article within one browse.
type Browsed struct {
	ArticleID     string
	BrowseID      string
	Count         int
	FirstLoggedAt *time.Time
	CreatedAt     time.Time
}

type ScoredArticle struct {
	Article
	Score float64
}

type ScoredTheme struct {
	Theme
	Score float64
}

// ArticleQuery filters and orders ListArticles. When Embedding is set the
// result is ranked by similarity above Threshold (similarity.DefaultThreshold
// when zero) and Sort is ignored.
type ArticleQuery struct {
	UpdatedSince time.Time
	LoggedSince  time.Time
	Summarized   bool
	Sort         SortKey
	Desc         bool
	Limit        int
	Offset       int // skipped rows; unranked listings only
	Embedding    []float32
	Threshold    float64
}

// ThemeQuery filters and orders ListThemes.
type ThemeQuery struct {
	Source       ThemeSource
	UpdatedSince time.Time
	Sort         SortKey
	Desc         bool
	Limit        int
	Embedding    []float32
	Threshold    float64
}

// ArticleStore persists articles. Lookups return (nil, nil) when nothing matches.
type ArticleStore interface {
	GetArticle(ctx context.Context, id string) (*Article, error)
	GetArticleByURL(ctx context.Context, url string) (*Article, error)
	GetArticles(ctx context.Context, ids []string) ([]Article, error)
	GetOrInsertArticle(ctx context.Context, a *Article) (*Article, bool, error)
	UpdateArticle(ctx context.Context, a *Article) error
	UpdateArticleTokenCount(ctx context.Context, id string, tokens int) error
	DeleteArticle(ctx context.Context, id string) error
	ListArticles(ctx context.Context, q ArticleQuery) ([]ScoredArticle, error)
	GetArticlesByThemeEmbedding(ctx context.Context, emb []float32, k int) ([]Article, error)
}

// ThemeStore persists themes and their related-id sets.
type ThemeStore interface {
	GetTheme(ctx context.Context, id string) (*Theme, error)
	GetThemeByTitle(ctx context.Context, title string) (*Theme, error)
	GetThemes(ctx context.Context, ids []string) ([]Theme, error)
	GetOrInsertTheme(ctx context.Context, t *Theme) (*Theme, error)
	UpdateTheme(ctx context.Context, t *Theme) error
	DeleteTheme(ctx context.Context, id string) error
	ListThemes(ctx context.Context, q ThemeQuery) ([]ScoredTheme, error)
	GetThemeArticles(ctx context.Context, themeID string) ([]Article, error)
}

// BrowseStore persists browse sessions and article visits.
type BrowseStore interface {
	GetBrowse(ctx context.Context, id string) (*Browse, error)
	GetBrowseByTabID(ctx context.Context, tabID string) (*Browse, error)
	GetOrInsertBrowse(ctx context.Context, b *Browse) (*Browse, error)
	UpdateBrowse(ctx context.Context, b *Browse) error
	RecordBrowsed(ctx context.Context, articleID, browseID string, loggedAt *time.Time) (*Browsed, error)
	GetBrowsed(ctx context.Context, articleID, browseID string) (*Browsed, error)
}

// Store is the full data layer.
type Store interface {
	ArticleStore
	ThemeStore
	BrowseStore
	Close() error
}

// EncodeTitle percent-encodes an article title for indexing.
func EncodeTitle(title string) string {
	return url.PathEscape(title)
}

// NormalizeThemeTitle produces the natural key for a theme title: trimmed,
// case-folded and percent-encoded. Already-normalized input maps to itself.
func NormalizeThemeTitle(title string) string {
	t := strings.TrimSpace(title)
	if unescaped, err := url.PathUnescape(t); err == nil {
		t = unescaped
	}
	return url.PathEscape(strings.ToLower(t))
}
