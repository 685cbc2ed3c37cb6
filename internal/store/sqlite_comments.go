package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Comment struct {
	ID         int64
	PostSlug   string
	UserID     int64
	Username   string
	FirstName  string
	LastName   string
	Content    string
	CreatedUTC time.Time
}

func (s *Store) AddComment(ctx context.Context, postSlug string, userID int64, content string) (int64, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, fmt.Errorf("comment content is required")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (post_slug, user_id, content, created_utc) VALUES (?, ?, ?, ?)`,
		postSlug, userID, content, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert comment: %w", err)
	}
	return res.LastInsertId()
}

// CommentsForPost returns the comments of a post, oldest first.
func (s *Store) CommentsForPost(ctx context.Context, postSlug string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.post_slug, c.user_id, u.username, u.first_name, u.last_name, c.content, c.created_utc
		FROM comments c
		JOIN users u ON c.user_id = u.id
		WHERE c.post_slug = ?
		ORDER BY c.created_utc ASC, c.id ASC`, postSlug)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var (
			c       Comment
			created string
		)
		if err := rows.Scan(&c.ID, &c.PostSlug, &c.UserID, &c.Username, &c.FirstName, &c.LastName, &c.Content, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedUTC = parseUTC(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountComments(ctx context.Context, postSlug string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM comments WHERE post_slug = ?`, postSlug).Scan(&n); err != nil {
		return 0, fmt.Errorf("count comments: %w", err)
	}
	return n, nil
}
