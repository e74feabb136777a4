package llm

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/matthewjhunter/wayfinder/internal/storage"
)

// Embedded default prompts
//
//go:embed prompts/article_summary.txt
var defaultArticleSummaryPrompt string

//go:embed prompts/theme_summary.txt
var defaultThemeSummaryPrompt string

//go:embed prompts/article_graph.txt
var defaultArticleGraphPrompt string

// PromptType represents the type of AI prompt
type PromptType string

const (
	PromptTypeArticleSummary PromptType = "article_summary"
	PromptTypeThemeSummary   PromptType = "theme_summary"
	PromptTypeArticleGraph   PromptType = "article_graph"
)

// PromptLoader resolves prompts with a two-tier fallback: config file, then
// the embedded default.
type PromptLoader struct {
	config *storage.Config

	mu    sync.Mutex
	cache map[PromptType]string
}

// NewPromptLoader creates a new prompt loader. config may be nil.
func NewPromptLoader(config *storage.Config) *PromptLoader {
	return &PromptLoader{
		config: config,
		cache:  make(map[PromptType]string),
	}
}

// GetPrompt returns the prompt template for promptType.
func (pl *PromptLoader) GetPrompt(promptType PromptType) (string, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if cached, ok := pl.cache[promptType]; ok {
		return cached, nil
	}

	if pl.config != nil {
		var configPrompt string
		switch promptType {
		case PromptTypeArticleSummary:
			configPrompt = pl.config.Prompts.ArticleSummary
		case PromptTypeThemeSummary:
			configPrompt = pl.config.Prompts.ThemeSummary
		case PromptTypeArticleGraph:
			configPrompt = pl.config.Prompts.ArticleGraph
		}
		if configPrompt != "" {
			pl.cache[promptType] = configPrompt
			return configPrompt, nil
		}
	}

	var defaultPrompt string
	switch promptType {
	case PromptTypeArticleSummary:
		defaultPrompt = defaultArticleSummaryPrompt
	case PromptTypeThemeSummary:
		defaultPrompt = defaultThemeSummaryPrompt
	case PromptTypeArticleGraph:
		defaultPrompt = defaultArticleGraphPrompt
	default:
		return "", fmt.Errorf("unknown prompt type: %s", promptType)
	}

	pl.cache[promptType] = defaultPrompt
	return defaultPrompt, nil
}

// GetTemperature gets the temperature for a prompt type, preferring the
// config file over the built-in default.
func (pl *PromptLoader) GetTemperature(promptType PromptType) float64 {
	if pl.config != nil {
		var configTemp float64
		switch promptType {
		case PromptTypeArticleSummary:
			configTemp = pl.config.Temperatures.ArticleSummary
		case PromptTypeThemeSummary:
			configTemp = pl.config.Temperatures.ThemeSummary
		case PromptTypeArticleGraph:
			configTemp = pl.config.Temperatures.ArticleGraph
		}
		if configTemp > 0 {
			return configTemp
		}
	}

	switch promptType {
	case PromptTypeArticleSummary:
		return 0.3
	case PromptTypeThemeSummary:
		return 0.5
	case PromptTypeArticleGraph:
		return 0.1
	default:
		return 0.5
	}
}

// ExecutePrompt renders a prompt template with the given data
func ExecutePrompt(promptTemplate string, data any) (string, error) {
	tmpl, err := template.New("prompt").Parse(promptTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}

	return buf.String(), nil
}
