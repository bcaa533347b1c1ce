// Package server implements the comment/rating service the widget panels
// consume: paginated threaded comments per content page, like/dislike
// toggles, and four-axis ratings with server-computed aggregates.
package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kyeoh/margins/backend"
)

// Server wires the HTTP surface to the store.
type Server struct {
	store    *Store
	log      zerolog.Logger
	validate *validator.Validate
}

// New creates a Server on top of the given store.
func New(store *Store, log zerolog.Logger) *Server {
	return &Server{
		store:    store,
		log:      log.With().Str("component", "server").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", backend.ViewerHeader},
	}))

	r.Get("/comments/{pageType}/{itemID}/{page}", s.getComments)
	r.Post("/compose/{pageType}", s.postCompose)
	r.Post("/reply/{commentID}", s.postReply)
	r.Get("/like/{commentID}", s.react(backend.ReactionLike))
	r.Get("/dislike/{commentID}", s.react(backend.ReactionDislike))
	r.Get("/rating/{itemID}", s.getRating)
	r.Post("/rating/{itemID}", s.postRating)

	return r
}

// requestLogger logs one line per request with a generated id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("viewer", viewerName(r)).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// viewerName is the display name the request acts as. Sessions are handled
// upstream of this service; it trusts the header.
func viewerName(r *http.Request) string {
	return r.Header.Get(backend.ViewerHeader)
}

// viewerID resolves the request's viewer to a user id, 0 for anonymous.
func (s *Server) viewerID(r *http.Request) (int64, error) {
	name := viewerName(r)
	if name == "" {
		return 0, nil
	}
	return s.store.EnsureUser(r.Context(), name)
}

func (s *Server) getComments(w http.ResponseWriter, r *http.Request) {
	ref, ok := pageRefParam(r, "itemID")
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid page number")
		return
	}

	viewerID, err := s.viewerID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	snap, err := s.store.Page(r.Context(), ref, page, viewerID)
	if errors.Is(err, ErrPageRange) {
		s.writeError(w, http.StatusBadRequest, "page out of range")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	snap.Viewer = viewerName(r)
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) postCompose(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
		ID   int64  `json:"id"`
	}
	if !s.decode(w, r, &body) {
		return
	}

	ref := backend.PageRef{Type: backend.PageType(chi.URLParam(r, "pageType")), ID: body.ID}
	if !ref.Type.Valid() {
		s.writeError(w, http.StatusBadRequest, "invalid page")
		return
	}
	if body.Text == "" {
		s.writeError(w, http.StatusBadRequest, "Comment can not be empty")
		return
	}

	userID, err := s.viewerID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if userID == 0 {
		s.writeError(w, http.StatusBadRequest, "User not login")
		return
	}

	if err := s.store.CreateComment(r.Context(), ref, userID, body.Text); err != nil {
		s.fail(w, err)
		return
	}
	s.writeMessage(w, http.StatusCreated, "Comment successfully saved")
}

func (s *Server) postReply(w http.ResponseWriter, r *http.Request) {
	parentID, err := strconv.ParseInt(chi.URLParam(r, "commentID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid comment id")
		return
	}

	var body struct {
		Text string `json:"text"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	if body.Text == "" {
		s.writeError(w, http.StatusBadRequest, "Comment can not be empty")
		return
	}

	userID, err := s.viewerID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if userID == 0 {
		s.writeError(w, http.StatusBadRequest, "User not login")
		return
	}

	err = s.store.CreateReply(r.Context(), parentID, userID, body.Text)
	if errors.Is(err, ErrNotFound) {
		s.writeError(w, http.StatusBadRequest, "Comment DoesNotExist")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeMessage(w, http.StatusCreated, "Comment successfully saved")
}

// react builds the handler for one reaction kind. Both kinds share the
// toggle semantics: repeating a reaction removes it, switching kinds
// replaces the old one.
func (s *Server) react(kind backend.ReactionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		commentID, err := strconv.ParseInt(chi.URLParam(r, "commentID"), 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid comment id")
			return
		}

		userID, err := s.viewerID(r)
		if err != nil {
			s.fail(w, err)
			return
		}
		if userID == 0 {
			s.writeError(w, http.StatusBadRequest, "User not login")
			return
		}

		err = s.store.ToggleReaction(r.Context(), commentID, userID, kind)
		if errors.Is(err, ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "Comment DoesNotExist")
			return
		}
		if err != nil {
			s.fail(w, err)
			return
		}
		s.writeMessage(w, http.StatusOK, "Reaction has been removed/added")
	}
}

func (s *Server) getRating(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	viewerID, err := s.viewerID(r)
	if err != nil {
		s.fail(w, err)
		return
	}

	state, err := s.store.Rating(r.Context(), itemID, viewerID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) postRating(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var scores backend.RatingScores
	if !s.decode(w, r, &scores) {
		return
	}
	if err := s.validate.Struct(scores); err != nil {
		s.writeError(w, http.StatusBadRequest, "scores must be between 1 and 10")
		return
	}

	userID, err := s.viewerID(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if userID == 0 {
		s.writeError(w, http.StatusBadRequest, "User not login")
		return
	}

	err = s.store.SubmitRating(r.Context(), itemID, userID, scores)
	if errors.Is(err, ErrAlreadyRated) {
		s.writeError(w, http.StatusBadRequest, "Already rated")
		return
	}
	if err != nil {
		s.fail(w, err)
		return
	}

	state, err := s.store.Rating(r.Context(), itemID, userID)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func pageRefParam(r *http.Request, idParam string) (backend.PageRef, bool) {
	ref := backend.PageRef{Type: backend.PageType(chi.URLParam(r, "pageType"))}
	if !ref.Type.Valid() {
		return ref, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, idParam), 10, 64)
	if err != nil {
		return ref, false
	}
	ref.ID = id
	return ref, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, out any) bool {
	raw, err := io.ReadAll(r.Body)
	if err == nil {
		err = sonic.Unmarshal(raw, out)
	}
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("encode response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(payload)
}

func (s *Server) writeMessage(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"message": msg})
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("request failed")
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
