package server

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"loggym/internal/auth"
	"loggym/internal/logging"
	"loggym/internal/metrics"
	"loggym/internal/models"
)

const (
	msgPostCreated     = "Novo post publicado com sucesso!"
	msgPostUpdated     = "Post atualizado!"
	msgPostDeleted     = "Post removido do LogGYM."
	msgSlugTaken       = "Já existe um post com esse slug. Escolha outro identificador."
	msgMissingOnCreate = "Preencha todos os campos para publicar."
	msgMissingOnUpdate = "Preencha todos os campos para atualizar."
)

func postPath(slug string) string {
	return "/post/" + url.PathEscape(slug)
}

func postForm(r *http.Request) models.PostInput {
	return models.NewPostInput(
		r.PostFormValue("title"),
		r.PostFormValue("slug"),
		r.PostFormValue("category"),
		r.PostFormValue("level"),
		r.PostFormValue("content"),
	)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := models.PostFilter{
		Category: strings.TrimSpace(q.Get("categoria")),
		Level:    strings.TrimSpace(q.Get("nivel")),
	}

	posts, err := models.ListPosts(ctx, s.DB, filter)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	categories, err := models.Categories(ctx, s.DB)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	levels, err := models.Levels(ctx, s.DB)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "index", map[string]any{
		"Posts":            posts,
		"Categories":       categories,
		"Levels":           levels,
		"SelectedCategory": filter.Category,
		"SelectedLevel":    filter.Level,
	})
}

// lookupPost loads the post named by the {slug} route variable, answering
// 404 itself when there is none.
func (s *Server) lookupPost(w http.ResponseWriter, r *http.Request) (*models.Post, bool) {
	slug, err := url.PathUnescape(mux.Vars(r)["slug"])
	if err != nil {
		s.renderError(w, r, http.StatusNotFound)
		return nil, false
	}
	post, err := models.GetPostBySlug(r.Context(), s.DB, slug)
	if errors.Is(err, models.ErrNotFound) {
		s.renderError(w, r, http.StatusNotFound)
		return nil, false
	}
	if err != nil {
		s.serverError(w, r, err)
		return nil, false
	}
	return post, true
}

// ownedPost is lookupPost plus the ownership check: 404 before 403.
func (s *Server) ownedPost(w http.ResponseWriter, r *http.Request, user *models.User) (*models.Post, bool) {
	post, ok := s.lookupPost(w, r)
	if !ok {
		return nil, false
	}
	if err := auth.CheckOwner(user, post); err != nil {
		logging.FromContext(r.Context()).WithFields(logrus.Fields{
			"user_id": user.ID,
			"post_id": post.ID,
		}).Warn("forbidden post change")
		s.renderError(w, r, http.StatusForbidden)
		return nil, false
	}
	return post, true
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	post, ok := s.lookupPost(w, r)
	if !ok {
		return
	}

	var liked bool
	user := auth.UserFrom(r.Context())
	if user != nil {
		var err error
		if liked, err = models.HasLiked(r.Context(), s.DB, user.ID, post.ID); err != nil {
			s.serverError(w, r, err)
			return
		}
	}

	s.render(w, r, http.StatusOK, "post_detail", map[string]any{
		"Title":   post.Title,
		"Post":    post,
		"Liked":   liked,
		"IsOwner": auth.CheckOwner(user, post) == nil,
	})
}

func (s *Server) handleNewPost(w http.ResponseWriter, r *http.Request, user *models.User) {
	data := map[string]any{"Title": "Novo post", "Action": "/admin/novo"}
	if r.Method == http.MethodGet {
		data["Form"] = models.PostInput{}
		s.render(w, r, http.StatusOK, "post_form", data)
		return
	}

	in := postForm(r)
	data["Form"] = in
	_, err := models.CreatePost(r.Context(), s.DB, in, user.ID)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		data["Error"] = msgMissingOnCreate
		s.render(w, r, http.StatusOK, "post_form", data)
		return
	case errors.Is(err, models.ErrSlugTaken):
		data["Error"] = msgSlugTaken
		s.render(w, r, http.StatusOK, "post_form", data)
		return
	case err != nil:
		s.serverError(w, r, err)
		return
	}

	metrics.PostCreated()
	s.flash(w, r, "success", msgPostCreated)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleEditPost(w http.ResponseWriter, r *http.Request, user *models.User) {
	post, ok := s.ownedPost(w, r, user)
	if !ok {
		return
	}
	data := map[string]any{
		"Title":  "Editar post",
		"Post":   post,
		"Action": "/admin/" + url.PathEscape(post.Slug) + "/editar",
	}
	if r.Method == http.MethodGet {
		data["Form"] = models.PostInput{
			Title:    post.Title,
			Slug:     post.Slug,
			Category: post.Category,
			Level:    post.Level,
			Content:  post.Content,
		}
		s.render(w, r, http.StatusOK, "post_form", data)
		return
	}

	in := postForm(r)
	data["Form"] = in
	err := models.UpdatePost(r.Context(), s.DB, post.ID, in)
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		data["Error"] = msgMissingOnUpdate
		s.render(w, r, http.StatusOK, "post_form", data)
		return
	case errors.Is(err, models.ErrSlugTaken):
		data["Error"] = msgSlugTaken
		s.render(w, r, http.StatusOK, "post_form", data)
		return
	case errors.Is(err, models.ErrNotFound):
		s.renderError(w, r, http.StatusNotFound)
		return
	case err != nil:
		s.serverError(w, r, err)
		return
	}

	s.flash(w, r, "success", msgPostUpdated)
	http.Redirect(w, r, postPath(in.Slug), http.StatusSeeOther)
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, user *models.User) {
	post, ok := s.ownedPost(w, r, user)
	if !ok {
		return
	}
	err := models.DeletePost(r.Context(), s.DB, post.ID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.serverError(w, r, err)
		return
	}
	s.flash(w, r, "success", msgPostDeleted)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request, user *models.User) {
	post, ok := s.lookupPost(w, r)
	if !ok {
		return
	}
	liked, err := models.ToggleLike(r.Context(), s.DB, user.ID, post.ID)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	metrics.LikeToggled(liked)
	http.Redirect(w, r, postPath(post.Slug), http.StatusSeeOther)
}
