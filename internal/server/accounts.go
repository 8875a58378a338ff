package server

import (
	"context"
	"errors"
	"net/http"

	"loggym/internal/auth"
	"loggym/internal/logging"
	"loggym/internal/metrics"
	"loggym/internal/models"
)

const (
	msgInvalidCredentials = "E-mail ou senha inválidos."
	msgLoggedIn           = "Bem-vindo de volta!"
	msgRegistered         = "Conta criada! Bem-vindo ao LogGYM."
	msgRegisterMissing    = "Preencha nome, sobrenome, e-mail e senha."
	msgEmailTaken         = "Já existe uma conta com esse e-mail."
	msgPasswordTooLong    = "A senha deve ter no máximo 72 bytes."
	msgLoggedOut          = "Você saiu da sua conta."
)

// authenticate returns ErrInvalidCredentials for both an unknown email and a
// wrong password. A hash comparison runs in either case.
func (s *Server) authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := models.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, models.ErrNotFound) {
		auth.CheckNoUser(password)
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return nil, models.ErrInvalidCredentials
	}
	return user, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.render(w, r, http.StatusOK, "login", map[string]any{
			"Title": "Entrar",
			"Next":  r.URL.Query().Get("next"),
		})
		return
	}

	email := models.NormalizeEmail(r.PostFormValue("email"))
	next := r.PostFormValue("next")
	if next == "" {
		next = r.URL.Query().Get("next")
	}

	user, err := s.authenticate(r.Context(), email, r.PostFormValue("password"))
	if errors.Is(err, models.ErrInvalidCredentials) {
		metrics.LoginAttempt(false)
		logging.FromContext(r.Context()).WithField("email", email).Warn("failed login")
		s.render(w, r, http.StatusOK, "login", map[string]any{
			"Title": "Entrar",
			"Error": msgInvalidCredentials,
			"Email": email,
			"Next":  next,
		})
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if err := s.Sessions.Login(w, user.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	metrics.LoginAttempt(true)
	s.flash(w, r, "success", msgLoggedIn)
	http.Redirect(w, r, auth.SafeRedirect(r, next), http.StatusSeeOther)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"Title": "Criar conta"}
	if r.Method == http.MethodGet {
		data["Form"] = models.RegistrationInput{}
		s.render(w, r, http.StatusOK, "register", data)
		return
	}

	in := models.NewRegistrationInput(
		r.PostFormValue("nome"),
		r.PostFormValue("sobrenome"),
		r.PostFormValue("email"),
		r.PostFormValue("password"),
		r.PostFormValue("biografia"),
		r.PostFormValue("avatar_url"),
	)
	form := in
	form.Password = ""
	data["Form"] = form

	if err := in.Validate(); err != nil {
		data["Error"] = msgRegisterMissing
		s.render(w, r, http.StatusOK, "register", data)
		return
	}
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		data["Error"] = msgPasswordTooLong
		s.render(w, r, http.StatusOK, "register", data)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	user, err := models.CreateUser(r.Context(), s.DB, in, hash)
	if errors.Is(err, models.ErrEmailTaken) {
		data["Error"] = msgEmailTaken
		s.render(w, r, http.StatusOK, "register", data)
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	if err := s.Sessions.Login(w, user.ID); err != nil {
		s.serverError(w, r, err)
		return
	}
	s.flash(w, r, "success", msgRegistered)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, _ *models.User) {
	s.Sessions.Logout(w)
	s.flash(w, r, "info", msgLoggedOut)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
