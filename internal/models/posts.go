package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const postSelect = `
SELECT p.id, p.title, p.slug, p.category, p.level, p.content, p.created_at,
       COALESCE(p.user_id, 0)     AS user_id,
       COALESCE(u.first_name, '') AS author_first_name,
       COALESCE(u.last_name, '')  AS author_last_name,
       COALESCE(u.avatar_url, '') AS author_avatar_url,
       COALESCE(u.bio, '')        AS author_bio,
       (SELECT COUNT(*) FROM likes l WHERE l.post_id = p.id) AS like_count
  FROM posts p
  LEFT JOIN users u ON u.id = p.user_id`

// predicates turns the filter into parameterized WHERE clauses.
func (f PostFilter) predicates() ([]string, []any) {
	var (
		wheres []string
		args   []any
	)
	if c := strings.TrimSpace(f.Category); c != "" {
		wheres = append(wheres, "p.category = ?")
		args = append(args, c)
	}
	if l := strings.TrimSpace(f.Level); l != "" {
		wheres = append(wheres, "p.level = ?")
		args = append(args, l)
	}
	return wheres, args
}

// ListPosts returns posts newest first, narrowed by the filter.
func ListPosts(ctx context.Context, db *sqlx.DB, f PostFilter) ([]Post, error) {
	q := postSelect
	wheres, args := f.predicates()
	if len(wheres) > 0 {
		q += "\n WHERE " + strings.Join(wheres, " AND ")
	}
	q += "\n ORDER BY datetime(p.created_at) DESC, p.id DESC"

	posts := []Post{}
	if err := db.SelectContext(ctx, &posts, q, args...); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func GetPostBySlug(ctx context.Context, db *sqlx.DB, slug string) (*Post, error) {
	var p Post
	if err := db.GetContext(ctx, &p, postSelect+"\n WHERE p.slug = ?", slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get post %q: %w", slug, err)
	}
	return &p, nil
}

// CreatePost validates in and stores it as owned by ownerID.
func CreatePost(ctx context.Context, db *sqlx.DB, in PostInput, ownerID int64) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO posts (title, slug, category, level, content, created_at, user_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.Title, in.Slug, in.Category, in.Level, in.Content, Now(), ownerID)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrSlugTaken
		}
		return 0, fmt.Errorf("insert post: %w", err)
	}
	return res.LastInsertId()
}

// UpdatePost rewrites every editable field of post id. The slug may change.
func UpdatePost(ctx context.Context, db *sqlx.DB, id int64, in PostInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE posts SET title = ?, slug = ?, category = ?, level = ?, content = ? WHERE id = ?`,
		in.Title, in.Slug, in.Category, in.Level, in.Content, id)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("update post: %w", err)
	}
	return expectAffected(res)
}

func DeletePost(ctx context.Context, db *sqlx.DB, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	return expectAffected(res)
}

func CountPosts(ctx context.Context, db *sqlx.DB) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM posts`); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// Categories returns the distinct categories in use, sorted.
func Categories(ctx context.Context, db *sqlx.DB) ([]string, error) {
	out := []string{}
	if err := db.SelectContext(ctx, &out, `SELECT DISTINCT category FROM posts ORDER BY category`); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// Levels returns the distinct levels in use, sorted.
func Levels(ctx context.Context, db *sqlx.DB) ([]string, error) {
	out := []string{}
	if err := db.SelectContext(ctx, &out, `SELECT DISTINCT level FROM posts ORDER BY level`); err != nil {
		return nil, fmt.Errorf("list levels: %w", err)
	}
	return out, nil
}
