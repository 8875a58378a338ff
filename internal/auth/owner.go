package auth

import (
	"errors"

	"loggym/internal/models"
)

var ErrForbidden = errors.New("forbidden")

// CheckOwner returns ErrForbidden unless u owns p.
func CheckOwner(u *models.User, p *models.Post) error {
	if u == nil || p == nil || p.UserID == 0 || p.UserID != u.ID {
		return ErrForbidden
	}
	return nil
}
