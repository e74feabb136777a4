package llm

import (
	"context"
	"fmt"
	"strings"
)

// ArticleSummary is the model's digest of a single page.
type ArticleSummary struct {
	Summary string   `json:"summary"`
	Themes  []string `json:"themes"`
}

// ThemeSummary is the model's digest of a batch of pages.
type ThemeSummary struct {
	Title         string   `json:"title"`
	Summary       string   `json:"summary"`
	Disagreement  string   `json:"disagreement"`
	Themes        []string `json:"themes"`
	Disagreements []string `json:"disagreements"`
}

// GetArticleSummarization summarizes one page. It returns nil when the
// text is too short to be worth summarizing.
func (s *Service) GetArticleSummarization(ctx context.Context, text string) (*ArticleSummary, error) {
	data := map[string]any{"MaxThemes": s.opts.MaxThemes}
	c, err := s.completePrompt(ctx, PromptTypeArticleSummary, text, s.opts.MinTextLength, data)
	if err != nil {
		return nil, fmt.Errorf("article summarization: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	var out ArticleSummary
	if err := c.Decode(&out); err != nil {
		return nil, &ResponseError{Prompt: PromptTypeArticleSummary, Raw: c.Text, Err: err}
	}
	out.Summary = strings.TrimSpace(out.Summary)
	out.Themes = cleanTitles(out.Themes, s.opts.MaxThemes)
	if out.Summary == "" {
		return nil, &ResponseError{Prompt: PromptTypeArticleSummary, Raw: c.Text, Err: fmt.Errorf("empty summary")}
	}
	return &out, nil
}

// GetThemeSummarization finds the common theme across texts. It returns
// nil when there is nothing to summarize.
func (s *Service) GetThemeSummarization(ctx context.Context, texts []string) (*ThemeSummary, error) {
	var parts []string
	for _, t := range texts {
		if t = strings.TrimSpace(t); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}

	data := map[string]any{"MaxThemes": s.opts.MaxThemes}
	c, err := s.completePrompt(ctx, PromptTypeThemeSummary, strings.Join(parts, "\n\n---\n\n"), 0, data)
	if err != nil {
		return nil, fmt.Errorf("theme summarization: %w", err)
	}
	if c == nil {
		return nil, nil
	}

	var out ThemeSummary
	if err := c.Decode(&out); err != nil {
		return nil, &ResponseError{Prompt: PromptTypeThemeSummary, Raw: c.Text, Err: err}
	}
	out.Title = strings.TrimSpace(out.Title)
	if out.Title == "" {
		return nil, &ResponseError{Prompt: PromptTypeThemeSummary, Raw: c.Text, Err: fmt.Errorf("missing title")}
	}
	out.Summary = strings.TrimSpace(out.Summary)
	out.Disagreement = strings.TrimSpace(out.Disagreement)
	out.Themes = cleanTitles(out.Themes, s.opts.MaxThemes)
	out.Disagreements = cleanTitles(out.Disagreements, s.opts.MaxThemes)
	return &out, nil
}

// cleanTitles trims, drops empties and case-insensitive repeats, and caps
// the list at max entries.
func cleanTitles(titles []string, max int) []string {
	seen := make(map[string]bool, len(titles))
	var out []string
	for _, t := range titles {
		t = strings.TrimSpace(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}
