package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loggym/internal/db"
	"loggym/internal/logging"
	"loggym/internal/models"
	"loggym/internal/session"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	sessions := session.NewManager("test-secret", time.Hour, false)
	srv, err := New(database, sessions, logging.Discard())
	require.NoError(t, err)
	return srv
}

// client replays the cookies the server sets, like a browser would.
type client struct {
	t       *testing.T
	srv     *Server
	cookies map[string]*http.Cookie
}

func newClient(t *testing.T, srv *Server) *client {
	return &client{t: t, srv: srv, cookies: map[string]*http.Cookie{}}
}

func (c *client) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	c.srv.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 || ck.Value == "" {
			delete(c.cookies, ck.Name)
		} else {
			c.cookies[ck.Name] = ck
		}
	}
	return w
}

func (c *client) get(target string) *httptest.ResponseRecorder {
	return c.do(http.MethodGet, target, nil)
}

func (c *client) post(target string, form url.Values) *httptest.ResponseRecorder {
	return c.do(http.MethodPost, target, form)
}

func (c *client) loggedIn() bool {
	_, ok := c.cookies[session.CookieName]
	return ok
}

func (c *client) register(email, password string) {
	c.t.Helper()
	w := c.post("/registrar", url.Values{
		"nome":      {"Ana"},
		"sobrenome": {"Souza"},
		"email":     {email},
		"password":  {password},
	})
	require.Equal(c.t, http.StatusSeeOther, w.Code)
	require.True(c.t, c.loggedIn())
}

func postValues(title, slug, category, level string) url.Values {
	return url.Values{
		"title":    {title},
		"slug":     {slug},
		"category": {category},
		"level":    {level},
		"content":  {"Corpo do post."},
	}
}

func countPosts(t *testing.T, srv *Server) int {
	t.Helper()
	n, err := models.CountPosts(context.Background(), srv.DB)
	require.NoError(t, err)
	return n
}

func countLikes(t *testing.T, srv *Server) int {
	t.Helper()
	n, err := models.CountLikes(context.Background(), srv.DB)
	require.NoError(t, err)
	return n
}

func TestRegisterPostConflictLoginAndLike(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")

	w := a.post("/admin/novo", postValues("Foo", "foo", "Treinos", "Todos"))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, 1, countPosts(t, srv))

	w = a.post("/admin/novo", postValues("Outro", "foo", "Treinos", "Todos"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgSlugTaken)
	assert.Contains(t, w.Body.String(), `value="Outro"`)
	assert.Equal(t, 1, countPosts(t, srv))

	anon := newClient(t, srv)
	w = anon.post("/login", url.Values{"email": {"a@x.com"}, "password": {"wrong"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgInvalidCredentials)
	assert.False(t, anon.loggedIn())

	w = anon.post("/login", url.Values{"email": {"nobody@x.com"}, "password": {"secret1"}})
	assert.Contains(t, w.Body.String(), msgInvalidCredentials)
	assert.False(t, anon.loggedIn())

	w = a.post("/post/foo/curtir", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/post/foo", w.Header().Get("Location"))
	assert.Equal(t, 1, countLikes(t, srv))
	assert.Contains(t, a.get("/post/foo").Body.String(), "Descurtir")

	a.post("/post/foo/curtir", nil)
	assert.Equal(t, 0, countLikes(t, srv))
}

func TestCreatePostValidation(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")

	w := a.post("/admin/novo", postValues("   ", "foo", "Treinos", "Todos"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgMissingOnCreate)
	assert.Equal(t, 0, countPosts(t, srv))
}

func TestAnonymousIsSentToLogin(t *testing.T) {
	srv := newTestServer(t)
	anon := newClient(t, srv)

	w := anon.get("/admin/novo")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2Fadmin%2Fnovo", w.Header().Get("Location"))

	page := anon.get("/login?next=%2Fadmin%2Fnovo")
	assert.Contains(t, page.Body.String(), "Faça login para acessar esta página.")
	assert.Contains(t, page.Body.String(), `value="/admin/novo"`)

	w = anon.post("/post/foo/curtir", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2F", w.Header().Get("Location"))

	w = anon.post("/admin/foo/excluir", nil)
	assert.Equal(t, http.StatusSeeOther, w.Code)
}

func TestOwnershipAndNotFound(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")
	a.post("/admin/novo", postValues("Foo", "foo", "Treinos", "Todos"))

	b := newClient(t, srv)
	b.register("b@x.com", "secret2")

	assert.Equal(t, http.StatusForbidden, b.get("/admin/foo/editar").Code)
	assert.Equal(t, http.StatusForbidden, b.post("/admin/foo/editar", postValues("X", "x", "Y", "Z")).Code)
	assert.Equal(t, http.StatusForbidden, b.post("/admin/foo/excluir", nil).Code)
	assert.Equal(t, 1, countPosts(t, srv))
	assert.NotContains(t, b.get("/post/foo").Body.String(), "/admin/foo/editar")

	assert.Equal(t, http.StatusNotFound, b.get("/admin/nope/editar").Code)
	assert.Equal(t, http.StatusNotFound, b.post("/admin/nope/excluir", nil).Code)
	assert.Equal(t, http.StatusNotFound, b.post("/post/nope/curtir", nil).Code)
	assert.Equal(t, http.StatusNotFound, b.get("/post/nope").Code)

	w := a.post("/admin/foo/excluir", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, 0, countPosts(t, srv))
	assert.Contains(t, a.get("/").Body.String(), msgPostDeleted)
}

func TestEditPost(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")
	a.post("/admin/novo", postValues("Foo", "foo", "Treinos", "Todos"))
	a.post("/admin/novo", postValues("Taken", "taken", "Treinos", "Todos"))

	form := a.get("/admin/foo/editar")
	require.Equal(t, http.StatusOK, form.Code)
	assert.Contains(t, form.Body.String(), `value="Foo"`)

	w := a.post("/admin/foo/editar", postValues("Foo", "taken", "Treinos", "Todos"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgSlugTaken)

	w = a.post("/admin/foo/editar", postValues("", "foo", "Treinos", "Todos"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgMissingOnUpdate)

	w = a.post("/admin/foo/editar", postValues("Foo Bar", "Foo Bar", "Nutrição", "Avançado"))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/post/foo-bar", w.Header().Get("Location"))

	page := a.get("/post/foo-bar")
	assert.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), msgPostUpdated)
	assert.Equal(t, http.StatusNotFound, a.get("/post/foo").Code)
}

func TestLoginRedirectIsSanitized(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")

	for next, want := range map[string]string{
		"http://evil.example/x":    "/",
		"//evil.example/x":         "/",
		"/post/foo?x=1":            "/post/foo?x=1",
		"http://example.com/admin": "/admin",
		"":                         "/",
	} {
		c := newClient(t, srv)
		w := c.post("/login", url.Values{"email": {"A@x.com"}, "password": {"secret1"}, "next": {next}})
		require.Equal(t, http.StatusSeeOther, w.Code, next)
		assert.Equal(t, want, w.Header().Get("Location"), next)
		assert.True(t, c.loggedIn())
	}
}

func TestRegisterErrors(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")

	c := newClient(t, srv)
	w := c.post("/registrar", url.Values{
		"nome": {"Bia"}, "sobrenome": {"Lima"}, "email": {"A@X.com"}, "password": {"pw"},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgEmailTaken)
	assert.Contains(t, w.Body.String(), `value="Bia"`)
	assert.False(t, c.loggedIn())

	w = c.post("/registrar", url.Values{"nome": {"Bia"}, "email": {"b@x.com"}, "password": {"pw"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgRegisterMissing)
	assert.False(t, c.loggedIn())
}

func TestLogout(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")

	w := a.get("/logout")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.False(t, a.loggedIn())
	assert.Equal(t, http.StatusSeeOther, a.get("/admin/novo").Code)
}

func TestStaleSessionIsCleared(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")

	u, err := models.GetUserByEmail(context.Background(), srv.DB, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, models.DeleteUser(context.Background(), srv.DB, u.ID))

	w := a.get("/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, a.loggedIn())
	assert.Contains(t, w.Body.String(), `href="/login"`)
}

func TestIndexFilters(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")
	a.post("/admin/novo", postValues("Treino de pernas", "pernas", "Treinos", "Avançado"))
	a.post("/admin/novo", postValues("Café da manhã", "cafe", "Nutrição", "Todos"))

	body := a.get("/?categoria=Treinos").Body.String()
	assert.Contains(t, body, "Treino de pernas")
	assert.NotContains(t, body, "Café da manhã")

	body = a.get("/?categoria=Treinos&nivel=Todos").Body.String()
	assert.Contains(t, body, "Nenhum post encontrado.")

	body = a.get("/?categoria=&nivel=").Body.String()
	assert.Contains(t, body, "Treino de pernas")
	assert.Contains(t, body, "Café da manhã")
	assert.Contains(t, body, `<option value="Nutrição">Nutrição</option>`)
}

func TestUnknownRouteAndRequestID(t *testing.T) {
	srv := newTestServer(t)
	w := newClient(t, srv).get("/nao-existe")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Página não encontrada.")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = newClient(t, srv).get("/static/style.css")
	assert.Equal(t, http.StatusOK, w.Code)

	w = newClient(t, srv).do(http.MethodDelete, "/", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Body.String(), "Método não permitido para esta página.")
}

func TestRegisterRejectsOverlongPassword(t *testing.T) {
	srv := newTestServer(t)
	c := newClient(t, srv)
	w := c.post("/registrar", url.Values{
		"nome": {"Ana"}, "sobrenome": {"Souza"}, "email": {"a@x.com"}, "password": {strings.Repeat("a", 73)},
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgPasswordTooLong)
	assert.False(t, c.loggedIn())

	_, err := models.GetUserByEmail(context.Background(), srv.DB, "a@x.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSlugWithSlashIsReachable(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	a.register("a@x.com", "secret1")

	w := a.post("/admin/novo", postValues("Costas", "a/b", "Treinos", "Todos"))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Contains(t, a.get("/").Body.String(), `href="/post/a%2Fb"`)

	page := a.get("/post/a%2Fb")
	require.Equal(t, http.StatusOK, page.Code)
	assert.Contains(t, page.Body.String(), `action="/admin/a%2Fb/excluir"`)
	assert.Equal(t, http.StatusOK, a.get("/admin/a%2Fb/editar").Code)

	w = a.post("/post/a%2Fb/curtir", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/post/a%2Fb", w.Header().Get("Location"))
	assert.Equal(t, 1, countLikes(t, srv))

	w = a.post("/admin/a%2Fb/excluir", nil)
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, 0, countPosts(t, srv))
}

func TestAuthorAsideWithoutBio(t *testing.T) {
	srv := newTestServer(t)
	a := newClient(t, srv)
	w := a.post("/registrar", url.Values{
		"nome": {"Ana"}, "sobrenome": {"Souza"}, "email": {"a@x.com"}, "password": {"secret1"},
		"avatar_url": {"https://img.example/ana.png"},
	})
	require.Equal(t, http.StatusSeeOther, w.Code)
	a.post("/admin/novo", postValues("Foo", "foo", "Treinos", "Todos"))

	body := a.get("/post/foo").Body.String()
	assert.Contains(t, body, `<aside class="author">`)
	assert.Contains(t, body, `src="https://img.example/ana.png"`)
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "curto", excerpt("curto", 10))
	assert.Equal(t, "um dois…", excerpt("um dois três quatro", 10))
}
