package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matthewjhunter/wayfinder/internal/graphdb"
)

// GraphEntity is a node the model found in a page.
type GraphEntity struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// GraphRelation links two extracted entities by name.
type GraphRelation struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// ArticleGraph is the structured extraction behind GetArticleGraph.
type ArticleGraph struct {
	Entities  []GraphEntity   `json:"entities"`
	Relations []GraphRelation `json:"relations"`
}

// GetArticleGraph extracts entities and relations from text and renders
// them as an openCypher statement attached to the article's node. The
// statement expects a $trace_id parameter. It returns "" when the text is
// too short or nothing was extracted.
func (s *Service) GetArticleGraph(ctx context.Context, text, articleID string) (string, error) {
	data := map[string]any{"MaxEntities": s.opts.MaxEntities}
	c, err := s.completePrompt(ctx, PromptTypeArticleGraph, text, s.opts.MinTextLength, data)
	if err != nil {
		return "", fmt.Errorf("article graph: %w", err)
	}
	if c == nil {
		return "", nil
	}

	var g ArticleGraph
	if err := c.Decode(&g); err != nil {
		return "", &ResponseError{Prompt: PromptTypeArticleGraph, Raw: c.Text, Err: err}
	}
	return RenderArticleGraph(articleID, g, time.Now()), nil
}

// RenderArticleGraph turns an extraction into a single MERGE statement.
// Entities are keyed by label and name; relations naming unknown entities
// are dropped.
func RenderArticleGraph(articleID string, g ArticleGraph, now time.Time) string {
	vars := make(map[string]string)
	var b strings.Builder

	b.WriteString("MERGE (a:Article {id: " + graphdb.Quote(articleID) + "})\n")
	stamp := "datetime(" + graphdb.Quote(now.UTC().Format(time.RFC3339)) + ")"

	for _, e := range g.Entities {
		name := strings.TrimSpace(e.Name)
		key := strings.ToLower(name)
		if name == "" || vars[key] != "" {
			continue
		}
		v := fmt.Sprintf("e%d", len(vars))
		vars[key] = v
		label := graphdb.Identifier(e.Label, "Entity")
		fmt.Fprintf(&b, "MERGE (%s:%s {name: %s})\n", v, label, graphdb.Quote(name))
		fmt.Fprintf(&b, "ON CREATE SET %s.created_at = %s, %s.updated_at = %s, %s.trace_id = $trace_id\n", v, stamp, v, stamp, v)
		fmt.Fprintf(&b, "ON MATCH SET %s.updated_at = %s, %s.trace_id = %s\n", v, stamp, v, graphdb.TraceAppend(v))
		fmt.Fprintf(&b, "MERGE (a)-[:%s]->(%s)\n", graphdb.RelMentions, v)
	}
	if len(vars) == 0 {
		return ""
	}

	for _, r := range g.Relations {
		from := vars[strings.ToLower(strings.TrimSpace(r.Source))]
		to := vars[strings.ToLower(strings.TrimSpace(r.Target))]
		if from == "" || to == "" || from == to {
			continue
		}
		rel := strings.ToUpper(graphdb.Identifier(r.Type, "RELATED_TO"))
		fmt.Fprintf(&b, "MERGE (%s)-[:%s]->(%s)\n", from, rel, to)
	}
	return strings.TrimRight(b.String(), "\n")
}
