// Package session keeps the login state and one-shot flash messages in
// HMAC-signed cookies held by the browser.
package session

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName      = "loggym_session"
	FlashCookieName = "loggym_flash"

	issuer       = "loggym"
	subjectLogin = "session"
	subjectFlash = "flash"
	flashMaxAge  = 5 * time.Minute
)

type Flash struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type sessionClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

type flashClaims struct {
	Flashes []Flash `json:"flashes"`
	jwt.RegisteredClaims
}

type Manager struct {
	secret   []byte
	lifetime time.Duration
	secure   bool
}

func NewManager(secret string, lifetime time.Duration, secure bool) *Manager {
	return &Manager{secret: []byte(secret), lifetime: lifetime, secure: secure}
}

// Login sets the session cookie for userID.
func (m *Manager) Login(w http.ResponseWriter, userID int64) error {
	now := time.Now()
	exp := now.Add(m.lifetime)
	token, err := m.sign(&sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subjectLogin,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(CookieName, token, exp))
	return nil
}

func (m *Manager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, m.expired(CookieName))
}

// UserID returns the user id carried by a valid session cookie.
func (m *Manager) UserID(r *http.Request) (int64, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil || c.Value == "" {
		return 0, false
	}
	var claims sessionClaims
	if err := m.parse(c.Value, &claims); err != nil || claims.Subject != subjectLogin || claims.UserID <= 0 {
		return 0, false
	}
	return claims.UserID, true
}

// AddFlash queues a message for the next rendered page. It replaces any
// message still pending.
func (m *Manager) AddFlash(w http.ResponseWriter, kind, message string) error {
	now := time.Now()
	exp := now.Add(flashMaxAge)
	token, err := m.sign(&flashClaims{
		Flashes: []Flash{{Kind: kind, Message: message}},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectFlash,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		return err
	}
	http.SetCookie(w, m.cookie(FlashCookieName, token, exp))
	return nil
}

// PopFlashes returns pending messages and clears them. Must be called before
// the response header is written.
func (m *Manager) PopFlashes(w http.ResponseWriter, r *http.Request) []Flash {
	c, err := r.Cookie(FlashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	http.SetCookie(w, m.expired(FlashCookieName))

	var claims flashClaims
	if err := m.parse(c.Value, &claims); err != nil || claims.Subject != subjectFlash {
		return nil
	}
	return claims.Flashes
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *Manager) parse(token string, claims jwt.Claims) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return err
	}
	if !parsed.Valid {
		return errors.New("invalid token")
	}
	return nil
}

func (m *Manager) cookie(name, value string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
