package storage

import "fmt"

// SortKey names a field results can be ordered by. Each store accepts only
// the keys listed in its column map.
type SortKey string

const (
	SortCreatedAt       SortKey = "created_at"
	SortUpdatedAt       SortKey = "updated_at"
	SortLoggedAt        SortKey = "logged_at"
	SortTitle           SortKey = "title"
	SortTokenCount      SortKey = "token_count"
	SortAverageDistance SortKey = "average_distance"
	SortArticleCount    SortKey = "article_count"
)

// ValidationError reports a caller-supplied value outside its allowed set.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

var articleSortColumns = map[SortKey]string{
	SortCreatedAt:  "a.created_at",
	SortUpdatedAt:  "a.updated_at",
	SortLoggedAt:   "a.logged_at",
	SortTitle:      "a.title",
	SortTokenCount: "a.token_count",
}

var themeSortColumns = map[SortKey]string{
	SortCreatedAt:       "t.created_at",
	SortUpdatedAt:       "t.updated_at",
	SortTitle:           "t.title_key",
	SortAverageDistance: "t.average_distance",
	SortArticleCount:    "(SELECT COUNT(*) FROM article_themes at WHERE at.theme_id = t.id)",
}

func orderBy(columns map[SortKey]string, key SortKey, desc bool) (string, error) {
	if key == "" {
		key = SortUpdatedAt
	}
	col, ok := columns[key]
	if !ok {
		return "", &ValidationError{Field: "sort key", Value: string(key)}
	}
	dir := "ASC"
	if desc {
		dir = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", col, dir), nil
}

// ValidateArticleSort reports whether key can order articles.
func ValidateArticleSort(key SortKey) error {
	_, err := orderBy(articleSortColumns, key, false)
	return err
}

// ValidateThemeSort reports whether key can order themes.
func ValidateThemeSort(key SortKey) error {
	_, err := orderBy(themeSortColumns, key, false)
	return err
}
