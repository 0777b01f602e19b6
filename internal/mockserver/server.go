// Package mockserver is an in-memory stand-in for the companion service,
// used for local development and integration tests.
package mockserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pslog"
)

const (
	maxRequestBody = 1 << 20
	statsWindow    = 7 * 24 * time.Hour
)

// Config configures a Server.
type Config struct {
	TokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
	Now        func() time.Time
	Logger     pslog.Logger
}

// Server implements the auth, chat, mood-stats and image endpoints.
type Server struct {
	users  *userStore
	moods  *moodHistory
	images *imageStore
	now    func() time.Time
	log    pslog.Logger
}

// New returns a Server with empty state.
func New(cfg Config) *Server {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		users:  newUserStore(ttl, now, cfg.BcryptCost),
		moods:  newMoodHistory(),
		images: newImageStore(),
		now:    now,
		log:    cfg.Logger,
	}
}

// Handler returns the HTTP handler with request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/register", s.handleRegister)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /chat/send", s.requireUser(s.handleChat))
	mux.HandleFunc("GET /chat/history-stats", s.requireUser(s.handleStats))
	mux.HandleFunc("GET /images/{file}", s.handleImage)
	return withRequestLogging(mux, s.log, s.lookupName)
}

type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeIssues(w http.ResponseWriter, issues []validationIssue) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"detail": issues})
}

func writeErr(w http.ResponseWriter, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		writeDetail(w, apiErr.status, apiErr.detail)
		return
	}
	writeDetail(w, http.StatusInternalServerError, "Internal Server Error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err == nil {
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		writeIssues(w, []validationIssue{{Loc: []string{"body"}, Msg: "JSON decode error", Type: "json_invalid"}})
		return false
	}
	return true
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (req registerRequest) validate() []validationIssue {
	var issues []validationIssue
	switch n := len([]rune(req.Username)); {
	case n < 3:
		issues = append(issues, validationIssue{Loc: []string{"body", "username"}, Msg: "String should have at least 3 characters", Type: "string_too_short"})
	case n > 50:
		issues = append(issues, validationIssue{Loc: []string{"body", "username"}, Msg: "String should have at most 50 characters", Type: "string_too_long"})
	}
	if !validEmail(req.Email) {
		issues = append(issues, invalidEmail())
	}
	if len([]rune(req.Password)) < 8 {
		issues = append(issues, validationIssue{Loc: []string{"body", "password"}, Msg: "String should have at least 8 characters", Type: "string_too_short"})
	}
	return issues
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

func invalidEmail() validationIssue {
	return validationIssue{Loc: []string{"body", "email"}, Msg: "value is not a valid email address", Type: "value_error"}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if issues := req.validate(); len(issues) > 0 {
		writeIssues(w, issues)
		return
	}
	id, err := s.users.register(req.Username, req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "User registered successfully", "user_id": id})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !validEmail(req.Email) {
		writeIssues(w, []validationIssue{invalidEmail()})
		return
	}
	tok, u, err := s.users.login(req.Email, req.Password)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access_token": tok, "token_type": "bearer", "username": u.username})
}

type userHandler func(w http.ResponseWriter, r *http.Request, u *user)

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	tok, ok := strings.CutPrefix(header, "Bearer ")
	return strings.TrimSpace(tok), ok && strings.TrimSpace(tok) != ""
}

func (s *Server) requireUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok, ok := bearerToken(r)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Unauthorized access")
			return
		}
		u, ok := s.users.lookup(tok)
		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Session expired")
			return
		}
		next(w, r, u)
	}
}

func (s *Server) lookupName(r *http.Request) string {
	tok, ok := bearerToken(r)
	if !ok {
		return ""
	}
	u, ok := s.users.lookup(tok)
	if !ok {
		return ""
	}
	return u.username
}

type chatRequest struct {
	Message        string `json:"message"`
	IsImageRequest bool   `json:"is_image_request"`
}

type chatResponse struct {
	Status   string  `json:"status"`
	Response string  `json:"response"`
	UserID   string  `json:"user_id"`
	Mood     string  `json:"mood"`
	ImageURL *string `json:"image_url"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, u *user) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeDetail(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}
	mood := moodOf(message)
	s.moods.add(u.id, mood, s.now())
	resp := chatResponse{
		Status: "success",
		UserID: fmt.Sprintf("%d", u.id),
		Mood:   mood,
	}
	if req.IsImageRequest {
		id := uuid.NewString()
		s.images.put(id, message)
		link := fmt.Sprintf("%s/images/%s.png", requestBase(r), id)
		resp.ImageURL = &link
		resp.Response = fmt.Sprintf("Here is what I imagined for you, %s.", u.username)
	} else {
		resp.Response = fmt.Sprintf("I hear you, %s. You seem %s right now.", u.username, strings.ToLower(mood))
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestBase(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request, u *user) {
	labels, values := s.moods.counts(u.id, s.now().Add(-statsWindow))
	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "labels": labels, "values": values})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	id, ok := strings.CutSuffix(r.PathValue("file"), ".png")
	if !ok {
		http.NotFound(w, r)
		return
	}
	prompt, ok := s.images.get(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	data, err := renderPNG(prompt)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "image generation failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(data)
}
