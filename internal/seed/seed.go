// Package seed loads the demo account and posts shipped with the site.
package seed

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"loggym/internal/auth"
	"loggym/internal/db"
	"loggym/internal/models"
)

//go:embed seed.yaml
var seedYAML []byte

type Data struct {
	User struct {
		FirstName string `yaml:"first_name"`
		LastName  string `yaml:"last_name"`
		Email     string `yaml:"email"`
		Password  string `yaml:"password"`
		Bio       string `yaml:"bio"`
		AvatarURL string `yaml:"avatar_url"`
	} `yaml:"user"`
	Posts []struct {
		Title    string `yaml:"title"`
		Slug     string `yaml:"slug"`
		Category string `yaml:"category"`
		Level    string `yaml:"level"`
		Content  string `yaml:"content"`
	} `yaml:"posts"`
}

// Load parses the embedded demo data.
func Load() (*Data, error) {
	var d Data
	if err := yaml.Unmarshal(seedYAML, &d); err != nil {
		return nil, fmt.Errorf("parse seed data: %w", err)
	}
	return &d, nil
}

// Run inserts the demo user when there are no users and the demo posts when
// there are no posts, so only the first start of a fresh database is seeded.
func Run(ctx context.Context, database *sqlx.DB, log logrus.FieldLogger) error {
	data, err := Load()
	if err != nil {
		return err
	}

	users, err := models.CountUsers(ctx, database)
	if err != nil {
		return err
	}
	if users == 0 {
		hash, err := auth.HashPassword(data.User.Password)
		if err != nil {
			return fmt.Errorf("hash demo password: %w", err)
		}
		in := models.NewRegistrationInput(data.User.FirstName, data.User.LastName, data.User.Email,
			data.User.Password, data.User.Bio, data.User.AvatarURL)
		u, err := models.CreateUser(ctx, database, in, hash)
		if err != nil {
			return fmt.Errorf("seed demo user: %w", err)
		}
		log.WithField("email", u.Email).Info("seeded demo user")
	}
	// Posts left without an owner by an upgraded install go to the first user.
	if err := db.BackfillOwners(ctx, database); err != nil {
		return err
	}

	posts, err := models.CountPosts(ctx, database)
	if err != nil {
		return err
	}
	if posts > 0 {
		return nil
	}
	owner, err := earliestUser(ctx, database)
	if err != nil {
		return err
	}
	for _, p := range data.Posts {
		in := models.NewPostInput(p.Title, p.Slug, p.Category, p.Level, p.Content)
		if _, err := models.CreatePost(ctx, database, in, owner); err != nil {
			return fmt.Errorf("seed post %q: %w", p.Slug, err)
		}
	}
	log.WithField("posts", len(data.Posts)).Info("seeded demo posts")
	return nil
}

func earliestUser(ctx context.Context, database *sqlx.DB) (int64, error) {
	var id int64
	if err := database.GetContext(ctx, &id, `SELECT id FROM users ORDER BY created_at, id LIMIT 1`); err != nil {
		return 0, fmt.Errorf("find seed owner: %w", err)
	}
	return id, nil
}
