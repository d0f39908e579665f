package httpapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/alphabot-ai/pressbutton/internal/auth"
	"github.com/alphabot-ai/pressbutton/internal/config"
	"github.com/alphabot-ai/pressbutton/internal/model"
	"github.com/alphabot-ai/pressbutton/internal/question"
	"github.com/alphabot-ai/pressbutton/internal/rate"
	"github.com/alphabot-ai/pressbutton/internal/store"

	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type Server struct {
	store     store.Store
	questions *question.Service
	auth      *auth.Service
	limiter   rate.Limiter
	cfg       config.Config
	logger    *slog.Logger
	validate  *validator.Validate
	handler   http.Handler
}

func NewServer(st store.Store, questions *question.Service, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:     st,
		questions: questions,
		auth:      authSvc,
		limiter:   limiter,
		cfg:       cfg,
		logger:    logger,
		validate:  newValidator(),
	}
	var h http.Handler = http.HandlerFunc(s.handleAPI)
	h = withTimeout(h, cfg.RequestTimeout)
	h = withCORS(h, cfg.CORSOrigins)
	h = withSecurityHeaders(h)
	h = withLogging(h, logger, cfg.TrustProxy)
	h = withRequestID(h)
	s.handler = h
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		notFound(w)
		return
	}
	path := strings.TrimPrefix(r.URL.Path, "/api")
	segments := splitPath(path)

	switch {
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "register":
		if r.Method == http.MethodPost {
			s.handleRegister(w, r)
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "login":
		if r.Method == http.MethodPost {
			s.handleLogin(w, r)
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 2 && segments[0] == "auth" && segments[1] == "me":
		if r.Method == http.MethodGet {
			s.handleMe(w, r)
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 2 && segments[0] == "users":
		if r.Method == http.MethodGet {
			s.handleGetUser(w, r, segments[1])
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 1 && segments[0] == "questions":
		switch r.Method {
		case http.MethodGet:
			s.handleListQuestions(w, r)
			return
		case http.MethodPost:
			s.handleCreateQuestion(w, r)
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 2 && segments[0] == "questions":
		switch r.Method {
		case http.MethodGet:
			s.handleGetQuestion(w, r, segments[1])
			return
		case http.MethodDelete:
			s.handleDeleteQuestion(w, r, segments[1])
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 3 && segments[0] == "questions" && segments[2] == "vote":
		switch r.Method {
		case http.MethodPost:
			s.handleVote(w, r, segments[1])
			return
		case http.MethodGet:
			s.handleGetMyVote(w, r, segments[1])
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 3 && segments[0] == "questions" && segments[2] == "vote-status":
		if r.Method == http.MethodGet {
			s.handleVoteStatus(w, r, segments[1])
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 3 && segments[0] == "questions" && segments[2] == "comments":
		switch r.Method {
		case http.MethodGet:
			s.handleListComments(w, r, segments[1])
			return
		case http.MethodPost:
			s.handleCreateComment(w, r, segments[1])
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 2 && segments[0] == "comments":
		if r.Method == http.MethodDelete {
			s.handleDeleteComment(w, r, segments[1])
			return
		}
		methodNotAllowed(w)
		return
	case len(segments) == 1 && segments[0] == "health":
		if r.Method == http.MethodGet {
			s.handleHealth(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "version":
		if r.Method == http.MethodGet {
			s.handleVersion(w, r)
			return
		}
	}

	notFound(w)
}

// Auth

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"omitempty,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	model.Token
	User model.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "auth", s.cfg.RateLimits.AuthPerMinute, 0) {
		return
	}
	var req registerRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	user, err := s.auth.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "user registered", "user_id", user.ID, "request_id", requestIDFrom(r.Context()))
	writeJSON(w, http.StatusCreated, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "auth", s.cfg.RateLimits.AuthPerMinute, 0) {
		return
	}
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	token, user, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	user, err := s.auth.GetUser(r.Context(), verified.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Token outlived its user.
			writeError(w, http.StatusUnauthorized, errors.New("unknown user"))
			return
		}
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr, "user")
	if !ok {
		return
	}
	user, err := s.auth.GetUser(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// Questions

type listQuestionsQuery struct {
	Page     int    `json:"page" validate:"min=1"`
	Limit    int    `json:"limit" validate:"min=1,max=100"`
	AuthorID int64  `json:"author_id" validate:"min=0"`
	SortBy   string `json:"sort_by" validate:"omitempty,oneof=newest oldest most_voted"`
	Search   string `json:"search" validate:"max=200"`
}

type createQuestionRequest struct {
	PositiveOutcome string `json:"positive_outcome" validate:"required,max=500"`
	NegativeOutcome string `json:"negative_outcome" validate:"required,max=500"`
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := listQuestionsQuery{
		SortBy: q.Get("sort_by"),
		Search: q.Get("search"),
	}
	var err error
	if query.Page, err = parseIntParam(q.Get("page"), 1); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("page must be an integer"))
		return
	}
	if query.Limit, err = parseIntParam(q.Get("limit"), question.DefaultPageSize); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("limit must be an integer"))
		return
	}
	if raw := q.Get("author_id"); raw != "" {
		if query.AuthorID, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("author_id must be an integer"))
			return
		}
	}
	if !s.validateStruct(w, query) {
		return
	}

	page, err := s.questions.ListQuestions(r.Context(), question.ListParams{
		Page:     query.Page,
		Limit:    query.Limit,
		Search:   query.Search,
		AuthorID: query.AuthorID,
		SortBy:   model.SortOrder(query.SortBy),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, verified.UserID) {
		return
	}
	var req createQuestionRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	created, err := s.questions.CreateQuestion(r.Context(), verified.UserID, req.PositiveOutcome, req.NegativeOutcome)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr, "question")
	if !ok {
		return
	}
	q, err := s.questions.GetQuestion(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, idStr, "question")
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, verified.UserID) {
		return
	}
	if err := s.questions.DeleteQuestion(r.Context(), id, verified.UserID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Votes

type voteRequest struct {
	Choice string `json:"choice" validate:"required,oneof=PRESS DONT_PRESS"`
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, idStr, "question")
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "vote", s.cfg.RateLimits.VotePerMinute, verified.UserID) {
		return
	}
	var req voteRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	vote, err := s.questions.VoteQuestion(r.Context(), id, verified.UserID, model.Choice(req.Choice))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vote)
}

func (s *Server) handleGetMyVote(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, idStr, "question")
	if !ok {
		return
	}
	vote, err := s.questions.GetUserVote(r.Context(), id, verified.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vote)
}

func (s *Server) handleVoteStatus(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr, "question")
	if !ok {
		return
	}
	status, err := s.questions.GetVoteStatus(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// Comments

type createCommentRequest struct {
	Content string `json:"content" validate:"required,max=1000"`
}

func (s *Server) handleListComments(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(w, idStr, "question")
	if !ok {
		return
	}
	page, err := parseIntParam(r.URL.Query().Get("page"), 1)
	if err != nil || page < 1 {
		writeError(w, http.StatusBadRequest, errors.New("page must be a positive integer"))
		return
	}
	limit, err := parseIntParam(r.URL.Query().Get("limit"), question.DefaultPageSize)
	if err != nil || limit < 1 || limit > question.MaxPageSize {
		writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and %d", question.MaxPageSize))
		return
	}
	comments, err := s.questions.ListComments(r.Context(), id, page, limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, idStr, "question")
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, verified.UserID) {
		return
	}
	var req createCommentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	comment, err := s.questions.AddComment(r.Context(), id, verified.UserID, req.Content)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleDeleteComment(w http.ResponseWriter, r *http.Request, idStr string) {
	verified, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, ok := parseID(w, idStr, "comment")
	if !ok {
		return
	}
	if !s.allowRateLimit(w, r, "write", s.cfg.RateLimits.WritePerMinute, verified.UserID) {
		return
	}
	if err := s.questions.DeleteComment(r.Context(), id, verified.UserID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Meta

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.ErrorContext(ctx, "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "database": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "database": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"version": s.cfg.Version})
}

// writeServiceError maps domain and store errors onto HTTP statuses. Unknown
// errors are logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, question.ErrInvalidChoice):
		writeError(w, http.StatusBadRequest, question.ErrInvalidChoice)
	case errors.Is(err, question.ErrInvalidQuestion):
		writeError(w, http.StatusBadRequest, question.ErrInvalidQuestion)
	case errors.Is(err, question.ErrInvalidComment):
		writeError(w, http.StatusBadRequest, question.ErrInvalidComment)
	case errors.Is(err, store.ErrDuplicateEmail):
		writeError(w, http.StatusConflict, store.ErrDuplicateEmail)
	case errors.Is(err, auth.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, auth.ErrPasswordTooLong)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials)
	case errors.Is(err, context.DeadlineExceeded):
		s.logger.WarnContext(r.Context(), "request timed out", "path", r.URL.Path, "request_id", requestIDFrom(r.Context()))
		writeError(w, http.StatusServiceUnavailable, errors.New("request timed out"))
	default:
		s.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestIDFrom(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, errors.New("internal server error"))
	}
}

// allowRateLimit applies the per-IP limit and, for authenticated calls, the
// per-user limit for the same action.
func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int, userID int64) bool {
	if limit <= 0 {
		return true
	}
	ipKey := fmt.Sprintf("%s:ip:%s", action, clientIP(r, s.cfg.TrustProxy))
	if ok, retry := s.limiter.Allow(ipKey, limit, time.Minute); !ok {
		writeRateLimit(w, retry)
		return false
	}
	if userID > 0 {
		userKey := fmt.Sprintf("%s:user:%d", action, userID)
		if ok, retry := s.limiter.Allow(userKey, limit, time.Minute); !ok {
			writeRateLimit(w, retry)
			return false
		}
	}
	return true
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Verified, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return auth.Verified{}, false
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	verified, err := s.auth.Authenticate(r.Context(), bearer)
	if err != nil {
		writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken)
		return auth.Verified{}, false
	}
	return verified, true
}

func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := readJSON(http.MaxBytesReader(w, r.Body, maxBodyBytes), dest); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON body: %w", err))
		return false
	}
	return s.validateStruct(w, dest)
}

func (s *Server) validateStruct(w http.ResponseWriter, v any) bool {
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationError(err))
		return false
	}
	return true
}

// clientIP reads the forwarding headers only when trustProxy is set; otherwise
// any client could pick its own rate-limit key.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			return strings.TrimSpace(parts[0])
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	secs := int(retry.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": secs,
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func parseID(w http.ResponseWriter, value, kind string) (int64, bool) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid %s id", kind))
		return 0, false
	}
	return id, true
}

func parseIntParam(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
