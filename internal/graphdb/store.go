package graphdb

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/matthewjhunter/wayfinder/internal/storage"
)

// Relationship types written by the projection.
const (
	RelIncludes  = "INCLUDES"
	RelRecurrent = "RECURRENT"
	RelSporadic  = "SPORADIC"
	RelMentions  = "MENTIONS"
)

// Store projects relational records into the graph. Every write carries
// a trace id that is appended, once, to the node's comma-joined trace_id field.
type Store struct {
	exec Executor
}

func NewStore(exec Executor) *Store {
	return &Store{exec: exec}
}

// ExecuteQuery runs an arbitrary query through the rewriter.
func (s *Store) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]Row, error) {
	return s.exec.Execute(ctx, query, params)
}

func isoTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

const upsertArticleQuery = `MERGE (n:Article {id: $id})
ON CREATE SET n.title = $title, n.url = $url, n.domain = $domain, n.logged_at = $logged_at,
	n.created_at = $created_at, n.updated_at = $updated_at, n.trace_id = $trace_id
ON MATCH SET n.title = $title, n.url = $url, n.domain = $domain, n.logged_at = $logged_at,
	n.updated_at = $updated_at, n.trace_id = $trace_id`

// nodeTrace returns the trace_id list stored on the label node with id, or
// "" when the node does not exist yet.
func (s *Store) nodeTrace(ctx context.Context, label, id string) (string, error) {
	rows, err := s.exec.Execute(ctx, "MATCH (n:"+label+" {id: $id}) RETURN n.trace_id AS trace_id", map[string]any{"id": id})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}
	trace, _ := rows[0]["trace_id"].(string)
	return trace, nil
}

// UpsertArticleNode creates or refreshes the Article node for a.
func (s *Store) UpsertArticleNode(ctx context.Context, a *storage.Article, traceID string) error {
	trace, err := s.nodeTrace(ctx, "Article", a.ID)
	if err != nil {
		return fmt.Errorf("upsert article node %s: %w", a.ID, err)
	}
	var logged string
	if a.LoggedAt != nil {
		logged = isoTime(*a.LoggedAt)
	}
	params := map[string]any{
		"id":         a.ID,
		"title":      a.Title,
		"url":        a.URL,
		"domain":     domainOf(a.URL),
		"logged_at":  logged,
		"created_at": isoTime(a.CreatedAt),
		"updated_at": isoTime(a.UpdatedAt),
		"trace_id":   AppendTraceID(trace, traceID),
	}
	if _, err := s.exec.Execute(ctx, upsertArticleQuery, params); err != nil {
		return fmt.Errorf("upsert article node %s: %w", a.ID, err)
	}
	return nil
}

const upsertThemeQuery = `MERGE (n:Theme {id: $id})
ON CREATE SET n.name = $name, n.summary = $summary, n.source = $source,
	n.average_distance = $average_distance, n.created_at = $created_at, n.updated_at = $updated_at,
	n.trace_id = $trace_id
ON MATCH SET n.name = $name, n.summary = $summary, n.source = $source,
	n.average_distance = $average_distance, n.updated_at = $updated_at, n.trace_id = $trace_id`

// UpsertThemeNode creates or refreshes the Theme node for t.
func (s *Store) UpsertThemeNode(ctx context.Context, t *storage.Theme, traceID string) error {
	trace, err := s.nodeTrace(ctx, "Theme", t.ID)
	if err != nil {
		return fmt.Errorf("upsert theme node %s: %w", t.ID, err)
	}
	params := map[string]any{
		"id":               t.ID,
		"name":             t.Title,
		"summary":          t.Summary,
		"source":           string(t.Source),
		"average_distance": t.AverageDistance,
		"created_at":       isoTime(t.CreatedAt),
		"updated_at":       isoTime(t.UpdatedAt),
		"trace_id":         AppendTraceID(trace, traceID),
	}
	if _, err := s.exec.Execute(ctx, upsertThemeQuery, params); err != nil {
		return fmt.Errorf("upsert theme node %s: %w", t.ID, err)
	}
	return nil
}

// LinkTheme connects a theme node to its articles and sibling themes.
// Target nodes must already exist; missing ones are skipped by the MATCH.
func (s *Store) LinkTheme(ctx context.Context, t *storage.Theme, traceID string) error {
	links := []struct {
		rel   string
		label string
		ids   []string
	}{
		{RelIncludes, "Article", t.ArticleIDs},
		{RelRecurrent, "Theme", t.RecurrentIDs},
		{RelSporadic, "Theme", t.SporadicIDs},
	}
	for _, l := range links {
		if len(l.ids) == 0 {
			continue
		}
		query := `MATCH (t:Theme {id: $id}), (o:` + l.label + `)
WHERE o.id IN $targets
MERGE (t)-[r:` + l.rel + `]->(o)
ON CREATE SET r.trace_id = $trace_id`
		params := map[string]any{"id": t.ID, "targets": l.ids, "trace_id": traceID}
		if _, err := s.exec.Execute(ctx, query, params); err != nil {
			return fmt.Errorf("link theme %s %s: %w", t.ID, l.rel, err)
		}
	}
	return nil
}

// ApplyFragment runs an extracted article graph under traceID.
func (s *Store) ApplyFragment(ctx context.Context, fragment, traceID string) error {
	if fragment == "" {
		return nil
	}
	if _, err := s.exec.Execute(ctx, fragment, map[string]any{"trace_id": traceID}); err != nil {
		return fmt.Errorf("apply graph fragment: %w", err)
	}
	return nil
}
