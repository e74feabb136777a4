package ingest

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// Navlog is one navigation event captured by the browser extension.
type Navlog struct {
	ID               string `json:"id"`
	URL              string `json:"url"`
	Title            string `json:"title"`
	Text             string `json:"text,omitempty"`
	TabID            string `json:"tab_id,omitempty"`
	LoggedAt         string `json:"logged_at,omitempty"`
	ImageKey         string `json:"image_key,omitempty"`
	DocumentID       string `json:"document_id,omitempty"`
	ParentDocumentID string `json:"parent_document_id,omitempty"`
}

// loggedAtLayouts are tried in order. Layouts without a zone are read as UTC.
var loggedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999Z07:00",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseLoggedAt reads the ISO-like timestamps navlogs carry, with or
// without fractional seconds and zone. An empty string yields nil.
func ParseLoggedAt(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range loggedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized logged-at timestamp %q", s)
}

// searchSuffixes are the title suffixes search engines put on result pages.
var searchSuffixes = []string{
	" - Google Search",
	" - Google Suche",
	" - Recherche Google",
	" - Buscar con Google",
	" - Pesquisa Google",
	" at DuckDuckGo",
	" - DuckDuckGo",
	" - Bing",
	" - Yahoo Search Results",
	" - Brave Search",
	" - Ecosia",
	" - Startpage Search Results",
	" - Startpage",
	" - Kagi Search",
}

// SearchQuery reports the query behind a search-engine result page title.
func SearchQuery(title string) (string, bool) {
	t := strings.TrimSpace(title)
	lower := strings.ToLower(t)
	for _, suffix := range searchSuffixes {
		if strings.HasSuffix(lower, strings.ToLower(suffix)) {
			q := strings.TrimSpace(t[:len(t)-len(suffix)])
			return q, q != ""
		}
	}
	return "", false
}

// present maps the "undefined" and "null" placeholders some capture
// sources send to the empty string.
func present(s string) string {
	s = strings.TrimSpace(s)
	switch s {
	case "undefined", "null":
		return ""
	}
	return s
}

var textPolicy = bluemonday.StrictPolicy()

// cleanText strips markup from captured page text and collapses
// whitespace.
func cleanText(s string) string {
	if s == "" {
		return ""
	}
	plain := html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(plain), " ")
}
