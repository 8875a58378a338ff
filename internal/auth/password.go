package auth

import (
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

func HashPassword(pw string) (string, error) {
	if len(pw) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

var (
	dummyOnce sync.Once
	dummyHash string
)

// CheckNoUser burns the same bcrypt work as CheckPassword so that unknown
// emails take as long to reject as wrong passwords. It always reports false.
func CheckNoUser(pw string) bool {
	dummyOnce.Do(func() {
		dummyHash, _ = HashPassword("loggym-no-such-user")
	})
	CheckPassword(pw, dummyHash)
	return false
}
