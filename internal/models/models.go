package models

import (
	"database/sql"
	"strings"
)

type User struct {
	ID           int64          `db:"id"`
	FirstName    string         `db:"first_name"`
	LastName     string         `db:"last_name"`
	PasswordHash string         `db:"password_hash"`
	Email        string         `db:"email"`
	Bio          sql.NullString `db:"bio"`
	AvatarURL    sql.NullString `db:"avatar_url"`
	CreatedAt    Timestamp      `db:"created_at"`
}

func (u *User) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Post is a post row joined with its author and like count.
type Post struct {
	ID        int64     `db:"id"`
	Title     string    `db:"title"`
	Slug      string    `db:"slug"`
	Category  string    `db:"category"`
	Level     string    `db:"level"`
	Content   string    `db:"content"`
	CreatedAt Timestamp `db:"created_at"`
	UserID    int64     `db:"user_id"`

	AuthorFirstName string `db:"author_first_name"`
	AuthorLastName  string `db:"author_last_name"`
	AuthorAvatarURL string `db:"author_avatar_url"`
	AuthorBio       string `db:"author_bio"`
	Likes           int    `db:"like_count"`
}

func (p *Post) AuthorName() string {
	return strings.TrimSpace(p.AuthorFirstName + " " + p.AuthorLastName)
}

// PostFilter holds the optional exact-match list filters. Empty fields do not
// filter.
type PostFilter struct {
	Category string
	Level    string
}

// PostInput is the validated form of a create or edit submission.
type PostInput struct {
	Title    string
	Slug     string
	Category string
	Level    string
	Content  string
}

// NewPostInput trims every field and normalizes the slug.
func NewPostInput(title, slug, category, level, content string) PostInput {
	return PostInput{
		Title:    strings.TrimSpace(title),
		Slug:     Slugify(slug),
		Category: strings.TrimSpace(category),
		Level:    strings.TrimSpace(level),
		Content:  strings.TrimSpace(content),
	}
}

func (in PostInput) Validate() error {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"title", in.Title},
		{"slug", in.Slug},
		{"category", in.Category},
		{"level", in.Level},
		{"content", in.Content},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

// Slugify lowercases s and replaces spaces with hyphens. Punctuation and
// accents are kept as typed.
func Slugify(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}

// RegistrationInput is the validated form of a sign-up submission. Password
// is the plain text password; it is hashed before it reaches storage.
type RegistrationInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Bio       string
	AvatarURL string
}

func NewRegistrationInput(firstName, lastName, email, password, bio, avatarURL string) RegistrationInput {
	return RegistrationInput{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		Email:     NormalizeEmail(email),
		Password:  password,
		Bio:       strings.TrimSpace(bio),
		AvatarURL: strings.TrimSpace(avatarURL),
	}
}

func (in RegistrationInput) Validate() error {
	var missing []string
	if in.FirstName == "" {
		missing = append(missing, "nome")
	}
	if in.LastName == "" {
		missing = append(missing, "sobrenome")
	}
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if strings.TrimSpace(in.Password) == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
