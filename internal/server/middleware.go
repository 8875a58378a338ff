package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"loggym/internal/auth"
	"loggym/internal/logging"
	"loggym/internal/models"
)

const msgLoginRequired = "Faça login para acessar esta página."

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// logRequests tags every request with an id and writes one access log line.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)

		entry := s.Log.WithFields(logrus.Fields{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
		})
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(logging.WithEntry(r.Context(), entry)))

		entry.WithFields(logrus.Fields{
			"status":   sw.status,
			"duration": time.Since(start),
		}).Info("request")
	})
}

func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				s.serverError(w, r, fmt.Errorf("panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// loadCurrentUser puts the session user, if any, into the request context.
// A session naming a user that no longer exists is cleared.
func (s *Server) loadCurrentUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.Sessions.UserID(r)
		if ok {
			u, err := models.GetUserByID(r.Context(), s.DB, id)
			switch {
			case err == nil:
				r = r.WithContext(auth.WithUser(r.Context(), u))
			case errors.Is(err, models.ErrNotFound):
				s.Sessions.Logout(w)
			default:
				logging.FromContext(r.Context()).WithError(err).Warn("load session user")
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next func(http.ResponseWriter, *http.Request, *models.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.UserFrom(r.Context())
		if user == nil {
			// Only pages can be returned to; a form post goes back to where it was submitted from.
			target := r.URL.RequestURI()
			if r.Method != http.MethodGet {
				target = r.Referer()
			}
			s.flash(w, r, "info", msgLoginRequired)
			http.Redirect(w, r, "/login?next="+url.QueryEscape(auth.SafeRedirect(r, target)), http.StatusSeeOther)
			return
		}
		next(w, r, user)
	}
}
