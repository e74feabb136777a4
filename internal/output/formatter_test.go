package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/matthewjhunter/wayfinder"
)

func TestOutputBatchResult_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	result := &wayfinder.BatchResult{
		Processed: 5,
		Skipped:   1,
		Errors:    1,
		Failures:  []string{"item 3: timeout"},
		TraceID:   "trace-1",
	}
	if err := f.OutputBatchResult("navlogs", result); err != nil {
		t.Fatalf("OutputBatchResult failed: %v", err)
	}

	var decoded wayfinder.BatchResult
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if decoded.Processed != 5 || decoded.Skipped != 1 || decoded.Errors != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Failures) != 1 || decoded.TraceID != "trace-1" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestOutputBatchResult_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	if err := f.OutputBatchResult("navlogs", &wayfinder.BatchResult{Processed: 10, Errors: 2}); err != nil {
		t.Fatalf("OutputBatchResult failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"processed=10", "skipped=0", "errors=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in output: %s", want, got)
		}
	}
	if strings.Contains(got, "trace_id") {
		t.Errorf("empty trace id should be omitted: %s", got)
	}
}

func TestOutputBatchResult_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	result := &wayfinder.BatchResult{Processed: 3, Skipped: 2, Errors: 1, Failures: []string{"item 0: boom"}}
	if err := f.OutputBatchResult("graph sync", result); err != nil {
		t.Fatalf("OutputBatchResult failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "graph sync: 3 processed, 2 skipped, 1 failed") {
		t.Errorf("unexpected summary line: %s", got)
	}
	if !strings.Contains(got, "item 0: boom") {
		t.Errorf("failure not listed: %s", got)
	}
}

func TestOutputArticleList_JSON(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatJSON, &out, &errBuf)

	now := time.Now()
	articles := []wayfinder.Article{
		{ID: "a1", Title: "First", URL: "https://example.com/1", LoggedAt: &now, Score: 0.9},
		{ID: "a2", Title: "Second", URL: "https://example.com/2"},
	}
	if err := f.OutputArticleList(articles); err != nil {
		t.Fatalf("OutputArticleList failed: %v", err)
	}

	var decoded []wayfinder.Article
	if err := json.Unmarshal(out.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("expected 2 articles, got %d", len(decoded))
	}
	if decoded[0].Title != "First" || decoded[0].Score != 0.9 {
		t.Errorf("first article = %+v", decoded[0])
	}
}

func TestOutputArticleList_Human_Empty(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	if err := f.OutputArticleList(nil); err != nil {
		t.Fatalf("OutputArticleList failed: %v", err)
	}
	if !strings.Contains(out.String(), "No matching articles") {
		t.Errorf("expected 'No matching articles', got: %s", out.String())
	}
}

func TestOutputThemeList_Text(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatText, &out, &errBuf)

	themes := []wayfinder.Theme{{ID: "t1", Title: "Go", Source: "top_ranked", ArticleIDs: []string{"a", "b"}, AverageDistance: 0.25}}
	if err := f.OutputThemeList(themes); err != nil {
		t.Fatalf("OutputThemeList failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"id=t1", "source=top_ranked", "articles=2", "avg_distance=0.250", "title=Go"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %s in output: %s", want, got)
		}
	}
}

func TestOutputTheme_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	theme := &wayfinder.Theme{
		Title:        "Go Concurrency",
		Source:       "per_article",
		Summary:      "Goroutines and channels.",
		Articles:     []wayfinder.Article{{Title: "Scheduler", URL: "https://example.com/s"}},
		RecurrentIDs: []string{"r1"},
	}
	if err := f.OutputTheme(theme); err != nil {
		t.Fatalf("OutputTheme failed: %v", err)
	}
	got := out.String()
	for _, want := range []string{"Go Concurrency (per_article, 1 articles", "Goroutines and channels.", "• Scheduler", "1 recurrent theme(s)"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in output: %s", want, got)
		}
	}
	if strings.Contains(got, "sporadic") {
		t.Errorf("no sporadic line expected: %s", got)
	}
}

func TestOutputThemeBuildResult_Human(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	result := &wayfinder.ThemeBuildResult{Articles: 12, Themes: []wayfinder.Theme{{Title: "Rust", ArticleIDs: []string{"a"}}}}
	if err := f.OutputThemeBuildResult(result); err != nil {
		t.Fatalf("OutputThemeBuildResult failed: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "Clustered 12 articles into 1 theme(s)") || !strings.Contains(got, "Rust (1 articles)") {
		t.Errorf("unexpected output: %s", got)
	}
}

func TestOutputMergeResult(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		result wayfinder.MergeResult
		want   string
	}{
		{"human nothing", FormatHuman, wayfinder.MergeResult{}, "No duplicate nodes"},
		{"human merged", FormatHuman, wayfinder.MergeResult{Groups: 2, Removed: 3, Edges: 7}, "removed 3 node(s), reattached 7 edge(s)"},
		{"text", FormatText, wayfinder.MergeResult{Groups: 1, Removed: 1, Failures: []string{"x"}}, "failures=1"},
		{"json", FormatJSON, wayfinder.MergeResult{Groups: 4}, `"groups":4`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errBuf bytes.Buffer
			f := NewFormatterWithWriters(tt.format, &out, &errBuf)
			if err := f.OutputMergeResult(&tt.result); err != nil {
				t.Fatalf("OutputMergeResult failed: %v", err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("expected %q in output, got: %s", tt.want, out.String())
			}
		})
	}
}

func TestUnknownFormat(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(Format("xml"), &out, &errBuf)
	if err := f.OutputThemeList(nil); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"json", "TEXT", "human"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) failed: %v", s, err)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected an error for yaml")
	}
}

func TestWarning(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.Warning("something went %s", "wrong")

	got := errBuf.String()
	if !strings.Contains(got, "Warning: something went wrong") {
		t.Errorf("expected warning on stderr, got: %q", got)
	}
	if out.Len() != 0 {
		t.Errorf("expected no stdout output, got: %q", out.String())
	}
}

func TestError(t *testing.T) {
	var out, errBuf bytes.Buffer
	f := NewFormatterWithWriters(FormatHuman, &out, &errBuf)

	f.Error("failed: %d", 42)

	if !strings.Contains(errBuf.String(), "failed: 42") {
		t.Errorf("expected error on stderr, got: %q", errBuf.String())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"over length", "hello world", 5, "hello..."},
		{"with whitespace", "  hello  ", 10, "hello"},
		{"multibyte", "héllo wörld", 4, "héll..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
