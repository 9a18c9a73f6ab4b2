package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"theduck/internal/app"
	"theduck/internal/ratelimit"
	"theduck/internal/util"
	"theduck/pkg/queue"
	"theduck/pkg/storage"
)

// TokenVerifier validates a bearer token and returns the subject user id.
type TokenVerifier interface {
	VerifySubject(token string) (string, error)
}

// Enqueuer schedules an end-of-session summarization job.
type Enqueuer interface {
	Enqueue(ctx context.Context, sessionID, userID string) (queue.JobStatus, error)
	GetJob(ctx context.Context, jobID string) (queue.JobStatus, bool, error)
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App           *app.App
	TokenVerifier TokenVerifier
	Objects       storage.ObjectStore
	Jobs          Enqueuer

	// Rate limiting is enabled when RedisAddr is set.
	RedisAddr              string
	RedisPassword          string
	ChatRateLimitPerMinute int
	APIRateLimitPerMinute  int
	MaxUploadBytes         int64
	AllowedExtensions      []string
	TrustedProxies         *util.TrustedProxies
}

// Server exposes HTTP endpoints for the chat backend.
type Server struct {
	app               *app.App
	tokenVerifier     TokenVerifier
	objects           storage.ObjectStore
	jobs              Enqueuer
	mux               *http.ServeMux
	maxUploadBytes    int64
	allowedExtensions map[string]struct{}
	trustedProxies    *util.TrustedProxies
	chatLimiter       *ratelimit.FixedWindowLimiter
	apiLimiter        *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("app required")
	}
	var chatLimiter, apiLimiter *ratelimit.FixedWindowLimiter
	if strings.TrimSpace(cfg.RedisAddr) != "" {
		chatLimit := cfg.ChatRateLimitPerMinute
		if chatLimit <= 0 {
			chatLimit = 30
		}
		apiLimit := cfg.APIRateLimitPerMinute
		if apiLimit <= 0 {
			apiLimit = 120
		}
		var err error
		chatLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "duck:ratelimit:chat", chatLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init chat limiter: %w", err)
		}
		apiLimiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "duck:ratelimit:api", apiLimit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init api limiter: %w", err)
		}
	}
	s := &Server{
		app:               cfg.App,
		tokenVerifier:     cfg.TokenVerifier,
		objects:           cfg.Objects,
		jobs:              cfg.Jobs,
		mux:               http.NewServeMux(),
		maxUploadBytes:    normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedExtensions: normalizeExtensions(cfg.AllowedExtensions),
		trustedProxies:    cfg.TrustedProxies,
		chatLimiter:       chatLimiter,
		apiLimiter:        apiLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithCORS(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// completion proxy + derivation endpoints; usable anonymously
	s.mux.Handle("/api/chat", s.optionalUser(s.handleChat))
	s.mux.Handle("/api/chat/title", s.optionalUser(s.handleTitle))
	s.mux.Handle("/api/chat/summary", s.optionalUser(s.handleSummary))

	// session-scoped resources (auth required)
	s.mux.Handle("/api/sessions", s.authenticated(s.handleSessions))
	s.mux.Handle("/api/sessions/", s.authenticated(s.handleSessionByID))
	s.mux.Handle("/api/preferences", s.authenticated(s.handlePreferences))
	s.mux.Handle("/api/uploads", s.authenticated(s.handleUploads))
	s.mux.Handle("/api/jobs/", s.authenticated(s.handleJobByID))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type userHandler func(http.ResponseWriter, *http.Request, string)

func (s *Server) authenticated(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.authorize(r)
		if !ok || userID == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !s.allowRate(w, r, s.apiLimiter, userID, "too many requests") {
			return
		}
		next(w, r, userID)
	})
}

// optionalUser resolves the caller when a valid token is present but never
// rejects the request; anonymous callers get an empty user id.
func (s *Server) optionalUser(next userHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := s.authorize(r)
		if !s.allowRate(w, r, s.chatLimiter, userID, "too many chat requests") {
			return
		}
		next(w, r, userID)
	})
}

func (s *Server) authorize(r *http.Request) (string, bool) {
	token, ok := bearerToken(r)
	if !ok {
		return "", false
	}
	if s.tokenVerifier == nil {
		return "", false
	}
	userID, err := s.tokenVerifier.VerifySubject(token)
	if err != nil {
		util.LoggerFromContext(r.Context()).Warn("token rejected", "path", r.URL.Path, "err", err)
		return "", false
	}
	return userID, true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, userID, msg string) bool {
	if limiter == nil {
		return true
	}
	key := userID
	if key == "" {
		key = "ip:" + util.ClientIP(r, s.trustedProxies)
	}
	if limiter.Allow(key) {
		return true
	}
	w.Header().Set("Retry-After", "60")
	writeError(w, http.StatusTooManyRequests, msg)
	return false
}

func (s *Server) isExtensionAllowed(filename string) bool {
	if len(s.allowedExtensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	_, ok := s.allowedExtensions[ext]
	return ok
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 10 * 1024 * 1024
	}
	return value
}

func normalizeExtensions(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = []string{".pdf", ".txt", ".md", ".png", ".jpg", ".jpeg"}
	}
	out := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out[ext] = struct{}{}
	}
	return out
}
