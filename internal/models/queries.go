package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const userColumns = `id, first_name, last_name, password_hash, email, bio, avatar_url, created_at`

// CreateUser stores a user whose password has already been hashed.
func CreateUser(ctx context.Context, db *sqlx.DB, in RegistrationInput, passwordHash string) (*User, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	u := User{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: passwordHash,
		Email:        in.Email,
		Bio:          nullString(in.Bio),
		AvatarURL:    nullString(in.AvatarURL),
		CreatedAt:    Now(),
	}
	res, err := db.ExecContext(ctx,
		`INSERT INTO users (first_name, last_name, password_hash, email, bio, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.FirstName, u.LastName, u.PasswordHash, u.Email, u.Bio, u.AvatarURL, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	if u.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &u, nil
}

func GetUserByID(ctx context.Context, db *sqlx.DB, id int64) (*User, error) {
	return getUser(ctx, db, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

func GetUserByEmail(ctx context.Context, db *sqlx.DB, email string) (*User, error) {
	return getUser(ctx, db, `SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
}

func getUser(ctx context.Context, db *sqlx.DB, query string, arg any) (*User, error) {
	var u User
	if err := db.GetContext(ctx, &u, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// DeleteUser removes a user; their posts and likes go with them.
func DeleteUser(ctx context.Context, db *sqlx.DB, id int64) error {
	res, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectAffected(res)
}

func CountUsers(ctx context.Context, db *sqlx.DB) (int, error) {
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
