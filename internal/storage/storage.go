package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/matthewjhunter/wayfinder/internal/similarity"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on a single SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at dbPath and
// initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps the pragmas below in force for every query.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func encodeEmbedding(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return embedding.EncodeFloat32s(v)
}

func decodeEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return embedding.DecodeFloat32s(b)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func orNow(t time.Time, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t.UTC()
}

// Articles

const articleColumns = `a.id, a.title, a.title_index, a.url, a.summary, a.text, a.embedding,
	a.token_count, a.logged_at, a.navlog_id, a.image_key, a.document_id, a.parent_document_id,
	a.created_at, a.updated_at`

func scanArticle(row scanner) (*Article, error) {
	var a Article
	var summary, text, navlogID, imageKey, documentID, parentID sql.NullString
	var emb []byte
	var loggedAt sql.NullTime
	err := row.Scan(&a.ID, &a.Title, &a.TitleIndex, &a.URL, &summary, &text, &emb,
		&a.TokenCount, &loggedAt, &navlogID, &imageKey, &documentID, &parentID,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Summary = summary.String
	a.Text = text.String
	a.Embedding = decodeEmbedding(emb)
	a.LoggedAt = timePtr(loggedAt)
	a.NavlogID = navlogID.String
	a.ImageKey = imageKey.String
	a.DocumentID = documentID.String
	a.ParentDocumentID = parentID.String
	return &a, nil
}

func (s *SQLiteStore) queryArticles(ctx context.Context, query string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}

func (s *SQLiteStore) getArticleWhere(ctx context.Context, cond string, arg any) (*Article, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+articleColumns+" FROM articles a WHERE "+cond, arg)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get article: %w", err)
	}
	return a, nil
}

// GetArticle retrieves an article by id.
func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*Article, error) {
	return s.getArticleWhere(ctx, "a.id = ?", id)
}

// GetArticleByURL retrieves an article by its URL.
func (s *SQLiteStore) GetArticleByURL(ctx context.Context, url string) (*Article, error) {
	return s.getArticleWhere(ctx, "a.url = ?", url)
}

// GetArticles retrieves the listed articles in the order given, skipping
// ids that do not exist.
func (s *SQLiteStore) GetArticles(ctx context.Context, ids []string) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.queryArticles(ctx,
		"SELECT "+articleColumns+" FROM articles a WHERE a.id IN ("+placeholders(len(ids))+")",
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("get articles: %w", err)
	}
	byID := make(map[string]Article, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out := make([]Article, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// GetOrInsertArticle inserts a by URL. If an article with that URL already
// exists it is returned untouched. The bool reports whether a row was created.
func (s *SQLiteStore) GetOrInsertArticle(ctx context.Context, a *Article) (*Article, bool, error) {
	now := time.Now().UTC()
	id := a.ID
	if id == "" {
		id = uuid.NewString()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (id, title, title_index, url, summary, text, embedding, token_count,
			logged_at, navlog_id, image_key, document_id, parent_document_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO NOTHING`,
		id, a.Title, EncodeTitle(a.Title), a.URL, nullString(a.Summary), nullString(a.Text),
		encodeEmbedding(a.Embedding), a.TokenCount, nullTime(a.LoggedAt), nullString(a.NavlogID),
		nullString(a.ImageKey), nullString(a.DocumentID), nullString(a.ParentDocumentID),
		orNow(a.CreatedAt, now), orNow(a.UpdatedAt, now),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert article: %w", err)
	}
	n, _ := res.RowsAffected()

	got, err := s.GetArticleByURL(ctx, a.URL)
	if err != nil {
		return nil, false, err
	}
	if got == nil {
		return nil, false, fmt.Errorf("article %s vanished after insert", a.URL)
	}
	return got, n > 0, nil
}

// UpdateArticle writes every mutable field of a. A zero UpdatedAt is
// replaced with the current time.
func (s *SQLiteStore) UpdateArticle(ctx context.Context, a *Article) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE articles SET title = ?, title_index = ?, summary = ?, text = ?, embedding = ?,
			token_count = ?, logged_at = ?, navlog_id = ?, image_key = ?, document_id = ?,
			parent_document_id = ?, updated_at = ?
		WHERE id = ?`,
		a.Title, EncodeTitle(a.Title), nullString(a.Summary), nullString(a.Text),
		encodeEmbedding(a.Embedding), a.TokenCount, nullTime(a.LoggedAt), nullString(a.NavlogID),
		nullString(a.ImageKey), nullString(a.DocumentID), nullString(a.ParentDocumentID),
		a.UpdatedAt.UTC(), a.ID,
	)
	if err != nil {
		return fmt.Errorf("update article %s: %w", a.ID, err)
	}
	return nil
}

// UpdateArticleTokenCount records a freshly computed token count.
func (s *SQLiteStore) UpdateArticleTokenCount(ctx context.Context, id string, tokens int) error {
	_, err := s.db.ExecContext(ctx, "UPDATE articles SET token_count = ? WHERE id = ?", tokens, id)
	if err != nil {
		return fmt.Errorf("update token count for %s: %w", id, err)
	}
	return nil
}

// DeleteArticle removes an article and its associations.
func (s *SQLiteStore) DeleteArticle(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM articles WHERE id = ?", id)
	return err
}

func rankThreshold(t float64) float64 {
	if t == 0 {
		return similarity.DefaultThreshold
	}
	return t
}

// ListArticles returns articles matching q. Without an embedding they are
// ordered by q.Sort; with one they are ranked by similarity.
func (s *SQLiteStore) ListArticles(ctx context.Context, q ArticleQuery) ([]ScoredArticle, error) {
	order, err := orderBy(articleSortColumns, q.Sort, q.Desc)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if !q.UpdatedSince.IsZero() {
		where = append(where, "a.updated_at >= ?")
		args = append(args, q.UpdatedSince.UTC())
	}
	if !q.LoggedSince.IsZero() {
		where = append(where, "a.logged_at >= ?")
		args = append(args, q.LoggedSince.UTC())
	}
	if q.Summarized {
		where = append(where, "a.embedding IS NOT NULL AND a.summary IS NOT NULL AND a.summary != ''")
	}

	query := "SELECT " + articleColumns + " FROM articles a"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	ranked := len(q.Embedding) > 0
	if !ranked {
		// id breaks ties so offset pages neither overlap nor skip rows.
		query += order + ", a.id"
		if q.Limit > 0 {
			query += " LIMIT ? OFFSET ?"
			args = append(args, q.Limit, q.Offset)
		}
	}

	articles, err := s.queryArticles(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}

	if !ranked {
		out := make([]ScoredArticle, len(articles))
		for i, a := range articles {
			out[i] = ScoredArticle{Article: a}
		}
		return out, nil
	}

	scored, err := similarity.Rank(q.Embedding, articles, rankThreshold(q.Threshold))
	if err != nil {
		return nil, fmt.Errorf("rank articles: %w", err)
	}
	if q.Limit > 0 && len(scored) > q.Limit {
		scored = scored[:q.Limit]
	}
	out := make([]ScoredArticle, len(scored))
	for i, sc := range scored {
		out[i] = ScoredArticle{Article: sc.Item, Score: sc.Similarity}
	}
	return out, nil
}

// GetArticlesByThemeEmbedding returns the k articles nearest to emb.
func (s *SQLiteStore) GetArticlesByThemeEmbedding(ctx context.Context, emb []float32, k int) ([]Article, error) {
	articles, err := s.queryArticles(ctx,
		"SELECT "+articleColumns+" FROM articles a WHERE a.embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("load article embeddings: %w", err)
	}
	top, err := similarity.TopK(emb, articles, k)
	if err != nil {
		return nil, fmt.Errorf("rank articles: %w", err)
	}
	out := make([]Article, len(top))
	for i, sc := range top {
		out[i] = sc.Item
	}
	return out, nil
}
