package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/matthewjhunter/wayfinder"
)

type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatHuman Format = "human"
)

// ParseFormat validates a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatText, FormatHuman:
		return f, nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

type Formatter struct {
	format Format
	out    io.Writer
	err    io.Writer
}

// NewFormatter creates a new output formatter
func NewFormatter(format Format) *Formatter {
	return &Formatter{
		format: format,
		out:    os.Stdout,
		err:    os.Stderr,
	}
}

// NewFormatterWithWriters creates a formatter with custom output writers for testability
func NewFormatterWithWriters(format Format, out, errW io.Writer) *Formatter {
	return &Formatter{
		format: format,
		out:    out,
		err:    errW,
	}
}

// OutputBatchResult reports the counts from a batch run. label names the
// run in human output ("navlogs", "graph sync").
func (f *Formatter) OutputBatchResult(label string, result *wayfinder.BatchResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "processed=%d\n", result.Processed)
		fmt.Fprintf(f.out, "skipped=%d\n", result.Skipped)
		fmt.Fprintf(f.out, "errors=%d\n", result.Errors)
		if result.TraceID != "" {
			fmt.Fprintf(f.out, "trace_id=%s\n", result.TraceID)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "%s: %d processed", label, result.Processed)
		if result.Skipped > 0 {
			fmt.Fprintf(f.out, ", %d skipped", result.Skipped)
		}
		if result.Errors > 0 {
			fmt.Fprintf(f.out, ", %d failed", result.Errors)
		}
		fmt.Fprintln(f.out)
		for _, msg := range result.Failures {
			fmt.Fprintf(f.out, "  ! %s\n", msg)
		}
		if result.TraceID != "" {
			fmt.Fprintf(f.out, "trace: %s\n", result.TraceID)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputArticleList outputs a list of articles
func (f *Formatter) OutputArticleList(articles []wayfinder.Article) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(articles)
	case FormatText:
		for _, a := range articles {
			fmt.Fprintf(f.out, "id=%s\tscore=%.3f\ttitle=%s\turl=%s\tlogged=%s\n",
				a.ID, a.Score, a.Title, a.URL, formatTime(a.LoggedAt))
		}
		return nil
	case FormatHuman:
		if len(articles) == 0 {
			fmt.Fprintln(f.out, "No matching articles")
			return nil
		}
		fmt.Fprintf(f.out, "Articles (%d):\n\n", len(articles))
		for _, a := range articles {
			fmt.Fprintf(f.out, "%s", a.Title)
			if a.Score > 0 {
				fmt.Fprintf(f.out, " [%.2f]", a.Score)
			}
			fmt.Fprintln(f.out)
			fmt.Fprintf(f.out, "  %s\n", a.URL)
			if a.Summary != "" {
				fmt.Fprintf(f.out, "  %s\n", truncate(a.Summary, 200))
			}
			fmt.Fprintln(f.out, "---")
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputThemeList outputs themes, one line or block each.
func (f *Formatter) OutputThemeList(themes []wayfinder.Theme) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(themes)
	case FormatText:
		for _, t := range themes {
			fmt.Fprintf(f.out, "id=%s\tsource=%s\tarticles=%d\tavg_distance=%.3f\tscore=%.3f\ttitle=%s\n",
				t.ID, t.Source, len(t.ArticleIDs), t.AverageDistance, t.Score, t.Title)
		}
		return nil
	case FormatHuman:
		if len(themes) == 0 {
			fmt.Fprintln(f.out, "No themes")
			return nil
		}
		for _, t := range themes {
			f.humanTheme(t)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputTheme outputs one theme with its articles.
func (f *Formatter) OutputTheme(t *wayfinder.Theme) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(t)
	case FormatText:
		fmt.Fprintf(f.out, "id=%s\tsource=%s\tavg_distance=%.3f\ttitle=%s\n",
			t.ID, t.Source, t.AverageDistance, t.Title)
		for _, a := range t.Articles {
			fmt.Fprintf(f.out, "  id=%s\ttitle=%s\turl=%s\n", a.ID, a.Title, a.URL)
		}
		return nil
	case FormatHuman:
		f.humanTheme(*t)
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

func (f *Formatter) humanTheme(t wayfinder.Theme) {
	count := len(t.ArticleIDs)
	if len(t.Articles) > count {
		count = len(t.Articles)
	}
	fmt.Fprintf(f.out, "%s (%s, %d articles, avg distance %.3f)\n", t.Title, t.Source, count, t.AverageDistance)
	fmt.Fprintln(f.out, strings.Repeat("=", 70))
	if t.Summary != "" {
		fmt.Fprintf(f.out, "%s\n", truncate(t.Summary, 300))
	}
	for _, a := range t.Articles {
		fmt.Fprintf(f.out, "  • %s\n", a.Title)
		fmt.Fprintf(f.out, "    %s\n", a.URL)
	}
	if n := len(t.RecurrentIDs); n > 0 {
		fmt.Fprintf(f.out, "  %d recurrent theme(s)\n", n)
	}
	if n := len(t.SporadicIDs); n > 0 {
		fmt.Fprintf(f.out, "  %d sporadic theme(s)\n", n)
	}
	fmt.Fprintln(f.out, "")
}

// OutputThemeBuildResult reports the themes produced by a build.
func (f *Formatter) OutputThemeBuildResult(result *wayfinder.ThemeBuildResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "articles=%d\n", result.Articles)
		fmt.Fprintf(f.out, "themes=%d\n", len(result.Themes))
		for _, t := range result.Themes {
			fmt.Fprintf(f.out, "theme\tid=%s\ttitle=%s\n", t.ID, t.Title)
		}
		return nil
	case FormatHuman:
		fmt.Fprintf(f.out, "Clustered %d articles into %d theme(s)\n", result.Articles, len(result.Themes))
		for _, t := range result.Themes {
			fmt.Fprintf(f.out, "  • %s (%d articles)\n", t.Title, len(t.ArticleIDs))
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// OutputMergeResult reports a duplicate-node merge pass.
func (f *Formatter) OutputMergeResult(result *wayfinder.MergeResult) error {
	switch f.format {
	case FormatJSON:
		return json.NewEncoder(f.out).Encode(result)
	case FormatText:
		fmt.Fprintf(f.out, "groups=%d\n", result.Groups)
		fmt.Fprintf(f.out, "removed=%d\n", result.Removed)
		fmt.Fprintf(f.out, "edges=%d\n", result.Edges)
		fmt.Fprintf(f.out, "failures=%d\n", len(result.Failures))
		return nil
	case FormatHuman:
		if result.Groups == 0 {
			fmt.Fprintln(f.out, "No duplicate nodes")
			return nil
		}
		fmt.Fprintf(f.out, "Merged %d duplicate group(s): removed %d node(s), reattached %d edge(s)\n",
			result.Groups, result.Removed, result.Edges)
		for _, msg := range result.Failures {
			fmt.Fprintf(f.out, "  ! %s\n", msg)
		}
		return nil
	}
	return fmt.Errorf("unknown format: %s", f.format)
}

// Error outputs an error message to stderr
func (f *Formatter) Error(format string, args ...interface{}) {
	fmt.Fprintf(f.err, format+"\n", args...)
}

// Warning outputs a warning message to stderr
func (f *Formatter) Warning(format string, args ...interface{}) {
	fmt.Fprintf(f.err, "Warning: "+format+"\n", args...)
}

// formatTime formats a time pointer for output
func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// truncate shortens s to maxLen runes.
func truncate(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
