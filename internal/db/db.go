package db

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaFS embed.FS

var ErrForeignKeysOff = errors.New("sqlite foreign key enforcement is disabled")

// Open opens the database file at path, creating parent directories, and
// brings the schema up to date. Every pooled connection has foreign keys on.
func Open(path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	db, err := sqlx.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if err := checkForeignKeys(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func dsn(path string) string {
	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", "5000")
	q.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + q.Encode()
}

func checkForeignKeys(ctx context.Context, db *sqlx.DB) error {
	var on int
	if err := db.GetContext(ctx, &on, `PRAGMA foreign_keys`); err != nil {
		return fmt.Errorf("read foreign_keys pragma: %w", err)
	}
	if on != 1 {
		return ErrForeignKeysOff
	}
	return nil
}

// Migrate creates missing tables, upgrades installations that predate post
// ownership, and creates indexes. It is safe to run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	sqlBytes, err := fs.ReadFile(schemaFS, "schema.sql")
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, string(sqlBytes)); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if err := upgradePostOwnership(ctx, db); err != nil {
		return err
	}
	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_posts_user_id ON posts (user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_likes_post_id ON likes (post_id)`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// upgradePostOwnership adds posts.user_id to databases created before
// accounts existed, hands orphaned posts to the earliest user, and drops the
// free-text author column that ownership replaced.
func upgradePostOwnership(ctx context.Context, db *sqlx.DB) error {
	cols, err := columns(ctx, db, "posts")
	if err != nil {
		return err
	}
	if !cols["user_id"] {
		if _, err := db.ExecContext(ctx,
			`ALTER TABLE posts ADD COLUMN user_id INTEGER REFERENCES users (id) ON DELETE CASCADE`); err != nil {
			return fmt.Errorf("add posts.user_id: %w", err)
		}
	}
	if err := BackfillOwners(ctx, db); err != nil {
		return err
	}
	if cols["author"] {
		if _, err := db.ExecContext(ctx, `ALTER TABLE posts DROP COLUMN author`); err != nil {
			return fmt.Errorf("drop posts.author: %w", err)
		}
	}
	return nil
}

// BackfillOwners assigns posts without an owner to the earliest registered
// user. It does nothing while there are no users.
func BackfillOwners(ctx context.Context, db sqlx.ExecerContext) error {
	_, err := db.ExecContext(ctx, `
UPDATE posts
   SET user_id = (SELECT id FROM users ORDER BY created_at, id LIMIT 1)
 WHERE user_id IS NULL
   AND EXISTS (SELECT 1 FROM users)`)
	if err != nil {
		return fmt.Errorf("backfill post owners: %w", err)
	}
	return nil
}

func columns(ctx context.Context, db *sqlx.DB, table string) (map[string]bool, error) {
	var names []string
	if err := db.SelectContext(ctx, &names, `SELECT name FROM pragma_table_info(?)`, table); err != nil {
		return nil, fmt.Errorf("inspect %s: %w", table, err)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}
