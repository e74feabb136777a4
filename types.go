package wayfinder

import (
	"time"

	"github.com/matthewjhunter/wayfinder/internal/ingest"
	"github.com/matthewjhunter/wayfinder/internal/storage"
)

// Config is the engine configuration; see DefaultConfig and LoadConfig.
type Config = storage.Config

// Navlog is one captured browser navigation.
type Navlog = ingest.Navlog

// ValidationError reports a caller-supplied value outside its allowed set,
// such as an unknown sort key or theme source.
type ValidationError = storage.ValidationError

// DefaultConfig returns a config with every default filled in.
func DefaultConfig() *Config { return storage.DefaultConfig() }

// LoadConfig reads a YAML or TOML config file over the defaults and applies
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg, err := storage.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	return cfg, nil
}

// Article is a summarized page visit.
type Article struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	URL              string     `json:"url"`
	Summary          string     `json:"summary,omitempty"`
	TokenCount       int        `json:"token_count"`
	LoggedAt         *time.Time `json:"logged_at,omitempty"`
	ImageKey         string     `json:"image_key,omitempty"`
	DocumentID       string     `json:"document_id,omitempty"`
	ParentDocumentID string     `json:"parent_document_id,omitempty"`
	Embedded         bool       `json:"embedded"`
	Score            float64    `json:"score,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Theme is a named cluster of articles.
type Theme struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary,omitempty"`
	Source          string    `json:"source"`
	AverageDistance float64   `json:"average_distance"`
	ArticleIDs      []string  `json:"article_ids,omitempty"`
	RecurrentIDs    []string  `json:"recurrent_ids,omitempty"`
	SporadicIDs     []string  `json:"sporadic_ids,omitempty"`
	Articles        []Article `json:"articles,omitempty"`
	Score           float64   `json:"score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// BatchResult summarizes a batch run: how many items succeeded, were
// skipped or failed.
type BatchResult struct {
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Errors    int      `json:"errors"`
	Failures  []string `json:"failures,omitempty"`
	TraceID   string   `json:"trace_id,omitempty"`
}

// ThemeBuildRequest selects the articles BuildThemes clusters.
type ThemeBuildRequest struct {
	Since  time.Time // articles updated at or after; zero means the last 24 hours
	Limit  int       // articles per builder pass; zero means the configured batch limit
	Source string    // theme source; defaults to top_ranked
	Title  string    // optional fixed title for every batch
}

// ThemeBuildResult lists the themes a build produced.
type ThemeBuildResult struct {
	Articles int     `json:"articles"`
	Themes   []Theme `json:"themes"`
}

// ThemeListOptions filters and orders ListThemes.
type ThemeListOptions struct {
	Source string
	Since  time.Time
	Sort   string // created_at, updated_at, title, average_distance, article_count
	Desc   bool
	Limit  int
}

// MergeResult summarizes a duplicate-node merge pass.
type MergeResult struct {
	Groups   int      `json:"groups"`
	Removed  int      `json:"removed"`
	Edges    int      `json:"edges"`
	Failures []string `json:"failures,omitempty"`
}
