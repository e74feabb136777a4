package main

// Input types for MCP tools. The SDK infers JSON Schema from these structs.
// Pointer types are optional; value types are required.

type searchInput struct {
	Query     string   `json:"query"               jsonschema:"Free-text query; it is embedded and compared against stored embeddings"`
	Threshold *float64 `json:"threshold,omitempty" jsonschema:"Minimum cosine similarity (0-1). If omitted the configured search threshold is used."`
	Limit     *int     `json:"limit,omitempty"     jsonschema:"Maximum number of results (default 20)"`
}

type themesListInput struct {
	Source *string `json:"source,omitempty" jsonschema:"Only themes from this source, e.g. top_ranked, per_article, search_term, recurrent, sporadic"`
	Sort   *string `json:"sort,omitempty"   jsonschema:"Sort key: created_at, updated_at, title, average_distance, article_count (default updated_at)"`
	Asc    *bool   `json:"asc,omitempty"    jsonschema:"Sort ascending instead of descending"`
	Limit  *int    `json:"limit,omitempty"  jsonschema:"Maximum number of themes (default 50)"`
}

type themeIDInput struct {
	ThemeID string `json:"theme_id" jsonschema:"The theme ID"`
}

type articleIDInput struct {
	ArticleID string `json:"article_id" jsonschema:"The article ID"`
}

type relatedInput struct {
	ArticleID string `json:"article_id"      jsonschema:"The article whose neighbours to find"`
	Limit     *int   `json:"limit,omitempty" jsonschema:"Maximum number of results (default 10)"`
}

type emptyInput struct{}
