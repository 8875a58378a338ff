package models

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ToggleLike flips the like of userID on postID and reports whether the post
// is liked afterwards.
func ToggleLike(ctx context.Context, db *sqlx.DB, userID, postID int64) (liked bool, err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM likes WHERE user_id = ? AND post_id = ?`, userID, postID)
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	if removed == 0 {
		if _, err := tx.ExecContext(ctx, `INSERT INTO likes (user_id, post_id) VALUES (?, ?)`, userID, postID); err != nil {
			return false, fmt.Errorf("toggle like: %w", err)
		}
		liked = true
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("toggle like: %w", err)
	}
	return liked, nil
}

func HasLiked(ctx context.Context, db *sqlx.DB, userID, postID int64) (bool, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM likes WHERE user_id = ? AND post_id = ?`, userID, postID); err != nil {
		return false, fmt.Errorf("has liked: %w", err)
	}
	return n > 0, nil
}

func CountLikes(ctx context.Context, db *sqlx.DB) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM likes`); err != nil {
		return 0, fmt.Errorf("count likes: %w", err)
	}
	return n, nil
}
