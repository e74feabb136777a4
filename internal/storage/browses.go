package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const browseColumns = "id, title, tab_id, logged_at, created_at, updated_at"

func scanBrowse(row scanner) (*Browse, error) {
	var b Browse
	var loggedAt sql.NullTime
	if err := row.Scan(&b.ID, &b.Title, &b.TabID, &loggedAt, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.LoggedAt = timePtr(loggedAt)
	return &b, nil
}

func (s *SQLiteStore) getBrowseWhere(ctx context.Context, cond string, arg any) (*Browse, error) {
	b, err := scanBrowse(s.db.QueryRowContext(ctx, "SELECT "+browseColumns+" FROM browses WHERE "+cond, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get browse: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) GetBrowse(ctx context.Context, id string) (*Browse, error) {
	return s.getBrowseWhere(ctx, "id = ?", id)
}

func (s *SQLiteStore) GetBrowseByTabID(ctx context.Context, tabID string) (*Browse, error) {
	return s.getBrowseWhere(ctx, "tab_id = ?", tabID)
}

// GetOrInsertBrowse inserts b keyed by tab id, returning the existing
// browse untouched when the tab is already known.
func (s *SQLiteStore) GetOrInsertBrowse(ctx context.Context, b *Browse) (*Browse, error) {
	now := time.Now().UTC()
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO browses (id, title, tab_id, logged_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tab_id) DO NOTHING`,
		id, b.Title, b.TabID, nullTime(b.LoggedAt), orNow(b.CreatedAt, now), orNow(b.UpdatedAt, now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert browse: %w", err)
	}
	got, err := s.GetBrowseByTabID(ctx, b.TabID)
	if err != nil {
		return nil, err
	}
	if got == nil {
		return nil, fmt.Errorf("browse for tab %s vanished after insert", b.TabID)
	}
	return got, nil
}

func (s *SQLiteStore) UpdateBrowse(ctx context.Context, b *Browse) error {
	b.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		"UPDATE browses SET title = ?, logged_at = ?, updated_at = ? WHERE id = ?",
		b.Title, nullTime(b.LoggedAt), b.UpdatedAt, b.ID)
	if err != nil {
		return fmt.Errorf("update browse %s: %w", b.ID, err)
	}
	return nil
}

// RecordBrowsed notes a visit to article within browse. Repeat visits
// increment the count; the first visit's logged-at time is kept.
func (s *SQLiteStore) RecordBrowsed(ctx context.Context, articleID, browseID string, loggedAt *time.Time) (*Browsed, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO browsed (article_id, browse_id, count, first_logged_at, created_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(article_id, browse_id) DO UPDATE SET count = count + 1`,
		articleID, browseID, nullTime(loggedAt), time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("record browsed: %w", err)
	}
	return s.GetBrowsed(ctx, articleID, browseID)
}

func (s *SQLiteStore) GetBrowsed(ctx context.Context, articleID, browseID string) (*Browsed, error) {
	var b Browsed
	var first sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT article_id, browse_id, count, first_logged_at, created_at
		FROM browsed WHERE article_id = ? AND browse_id = ?`, articleID, browseID,
	).Scan(&b.ArticleID, &b.BrowseID, &b.Count, &first, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get browsed: %w", err)
	}
	b.FirstLoggedAt = timePtr(first)
	return &b, nil
}
