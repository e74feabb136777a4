package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matthewjhunter/wayfinder/internal/similarity"
)

const themeColumns = `t.id, t.title, t.title_key, t.summary, t.source, t.embedding,
	t.average_distance, t.created_at, t.updated_at`

// relatedSets maps each related-id table to the Theme field it fills.
var relatedSets = []struct {
	table  string
	column string
	field  func(*Theme) *[]string
}{
	{"article_themes", "article_id", func(t *Theme) *[]string { return &t.ArticleIDs }},
	{"theme_recurrent", "related_id", func(t *Theme) *[]string { return &t.RecurrentIDs }},
	{"theme_sporadic", "related_id", func(t *Theme) *[]string { return &t.SporadicIDs }},
}

func scanTheme(row scanner) (*Theme, error) {
	var t Theme
	var summary sql.NullString
	var source string
	var emb []byte
	err := row.Scan(&t.ID, &t.Title, &t.Key, &summary, &source, &emb,
		&t.AverageDistance, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Summary = summary.String
	t.Source = ThemeSource(source)
	t.Embedding = decodeEmbedding(emb)
	return &t, nil
}

func (s *SQLiteStore) loadRelated(ctx context.Context, t *Theme) error {
	for _, set := range relatedSets {
		rows, err := s.db.QueryContext(ctx,
			"SELECT "+set.column+" FROM "+set.table+" WHERE theme_id = ? ORDER BY created_at, rowid", t.ID)
		if err != nil {
			return fmt.Errorf("load %s: %w", set.table, err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		*set.field(t) = ids
	}
	return nil
}

func (s *SQLiteStore) queryThemes(ctx context.Context, query string, args ...any) ([]Theme, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var themes []Theme
	for rows.Next() {
		t, err := scanTheme(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		themes = append(themes, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range themes {
		if err := s.loadRelated(ctx, &themes[i]); err != nil {
			return nil, err
		}
	}
	return themes, nil
}

func (s *SQLiteStore) getThemeWhere(ctx context.Context, cond string, arg any) (*Theme, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+themeColumns+" FROM themes t WHERE "+cond, arg)
	t, err := scanTheme(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get theme: %w", err)
	}
	if err := s.loadRelated(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTheme retrieves a theme with its related-id sets.
func (s *SQLiteStore) GetTheme(ctx context.Context, id string) (*Theme, error) {
	return s.getThemeWhere(ctx, "t.id = ?", id)
}

// GetThemeByTitle looks a theme up by its normalized title, so any casing
// or encoding of the same title finds it.
func (s *SQLiteStore) GetThemeByTitle(ctx context.Context, title string) (*Theme, error) {
	return s.getThemeWhere(ctx, "t.title_key = ?", NormalizeThemeTitle(title))
}

// GetThemes retrieves the listed themes in the order given.
func (s *SQLiteStore) GetThemes(ctx context.Context, ids []string) ([]Theme, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.queryThemes(ctx,
		"SELECT "+themeColumns+" FROM themes t WHERE t.id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get themes: %w", err)
	}
	byID := make(map[string]Theme, len(found))
	for _, t := range found {
		byID[t.ID] = t
	}
	out := make([]Theme, 0, len(found))
	for _, id := range ids {
		if t, ok := byID[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

// GetOrInsertTheme inserts t keyed by its normalized title. An existing
// theme with the same key is returned untouched.
func (s *SQLiteStore) GetOrInsertTheme(ctx context.Context, t *Theme) (*Theme, error) {
	key := NormalizeThemeTitle(t.Title)
	if key == "" {
		return nil, &ValidationError{Field: "theme title", Value: t.Title}
	}
	source := t.Source
	if source == "" {
		source = SourceCustom
	}
	now := time.Now().UTC()
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO themes (id, title, title_key, summary, source, embedding, average_distance, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(title_key) DO NOTHING`,
		id, strings.TrimSpace(t.Title), key, nullString(t.Summary), string(source),
		encodeEmbedding(t.Embedding), t.AverageDistance, orNow(t.CreatedAt, now), orNow(t.UpdatedAt, now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert theme: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		inserted := *t
		inserted.ID = id
		if err := syncRelated(ctx, tx, &inserted, now); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return s.GetThemeByTitle(ctx, key)
}

// UpdateTheme writes the theme's summary, source, embedding and average
// distance, and brings its related-id sets in line with t. Associations
// that survive keep their original created_at.
func (s *SQLiteStore) UpdateTheme(ctx context.Context, t *Theme) error {
	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE themes SET summary = ?, source = ?, embedding = ?, average_distance = ?, updated_at = ?
		WHERE id = ?`,
		nullString(t.Summary), string(t.Source), encodeEmbedding(t.Embedding), t.AverageDistance, now, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update theme %s: %w", t.ID, err)
	}
	if err := syncRelated(ctx, tx, t, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	t.UpdatedAt = now
	return nil
}

func syncRelated(ctx context.Context, tx *sql.Tx, t *Theme, now time.Time) error {
	for _, set := range relatedSets {
		want := *set.field(t)
		if err := syncSet(ctx, tx, set.table, set.column, t.ID, want, now); err != nil {
			return fmt.Errorf("sync %s: %w", set.table, err)
		}
	}
	return nil
}

func syncSet(ctx context.Context, tx *sql.Tx, table, column, themeID string, want []string, now time.Time) error {
	rows, err := tx.QueryContext(ctx, "SELECT "+column+" FROM "+table+" WHERE theme_id = ?", themeID)
	if err != nil {
		return err
	}
	have := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		have[id] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	keep := make(map[string]bool, len(want))
	for _, id := range want {
		keep[id] = true
	}
	for id := range have {
		if !keep[id] {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM "+table+" WHERE theme_id = ? AND "+column+" = ?", themeID, id); err != nil {
				return err
			}
		}
	}
	for _, id := range want {
		if have[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO "+table+" (theme_id, "+column+", created_at) VALUES (?, ?, ?)",
			themeID, id, now); err != nil {
			return err
		}
		have[id] = true
	}
	return nil
}

// DeleteTheme removes a theme and its associations.
func (s *SQLiteStore) DeleteTheme(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM themes WHERE id = ?", id)
	return err
}

// ListThemes returns themes matching q, ordered by q.Sort or ranked by
// similarity when q.Embedding is set.
func (s *SQLiteStore) ListThemes(ctx context.Context, q ThemeQuery) ([]ScoredTheme, error) {
	order, err := orderBy(themeSortColumns, q.Sort, q.Desc)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if q.Source != "" {
		where = append(where, "t.source = ?")
		args = append(args, string(q.Source))
	}
	if !q.UpdatedSince.IsZero() {
		where = append(where, "t.updated_at >= ?")
		args = append(args, q.UpdatedSince.UTC())
	}

	query := "SELECT " + themeColumns + " FROM themes t"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	ranked := len(q.Embedding) > 0
	if !ranked {
		query += order
		if q.Limit > 0 {
			query += " LIMIT ?"
			args = append(args, q.Limit)
		}
	}

	themes, err := s.queryThemes(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list themes: %w", err)
	}

	if !ranked {
		out := make([]ScoredTheme, len(themes))
		for i, t := range themes {
			out[i] = ScoredTheme{Theme: t}
		}
		return out, nil
	}

	scored, err := similarity.Rank(q.Embedding, themes, rankThreshold(q.Threshold))
	if err != nil {
		return nil, fmt.Errorf("rank themes: %w", err)
	}
	if q.Limit > 0 && len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	out := make([]ScoredTheme, len(scored))
	for i, sc := range scored {
		out[i] = ScoredTheme{Theme: sc.Item, Score: sc.Similarity}
	}
	return out, nil
}

// GetThemeArticles returns the theme's related articles in association order.
func (s *SQLiteStore) GetThemeArticles(ctx context.Context, themeID string) ([]Article, error) {
	articles, err := s.queryArticles(ctx, `
		SELECT `+articleColumns+` FROM articles a
		JOIN article_themes at ON at.article_id = a.id
		WHERE at.theme_id = ?
		ORDER BY at.created_at, at.rowid`, themeID)
	if err != nil {
		return nil, fmt.Errorf("get theme articles: %w", err)
	}
	return articles, nil
}
