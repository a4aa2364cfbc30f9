package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/rentsync"
	"github.com/aretw0/rentsync/internal/logging"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Session is the consumer-facing view of the reconciler.
type Session interface {
	State() domain.CachedUser
	Identity() domain.Identity
	IsAuthenticated() bool
}

// Authenticator turns bearer tokens into identity transitions.
type Authenticator interface {
	SignIn(token string) (domain.Identity, error)
	SignOut()
}

// Server serves the session contract over HTTP.
type Server struct {
	Session Session
	Auth    Authenticator
	Streams *StreamManager

	metrics http.Handler
	logger  *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithStreams shares a StreamManager, typically one whose Hooks are installed on the reconciler.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(session Session, auth Authenticator, opts ...Option) http.Handler {
	s := &Server{
		Session: session,
		Auth:    auth,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.GetHealth)
	r.Get("/v1/info", s.GetInfo)
	r.Route("/v1/session", func(r chi.Router) {
		r.Get("/", s.GetSession)
		r.Post("/", s.SignIn)
		r.Delete("/", s.SignOut)
		r.Get("/events", s.SubscribeEvents)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SessionResponse is the body of GET /v1/session.
type SessionResponse struct {
	Status        domain.SessionStatus `json:"status"`
	Authenticated bool                 `json:"authenticated"`
	User          *domain.UserRecord   `json:"user"`
	IsLoading     bool                 `json:"isLoading"`
}

func (s *Server) snapshot() SessionResponse {
	state := s.Session.State()
	return SessionResponse{
		Status:        s.Session.Identity().Status,
		Authenticated: s.Session.IsAuthenticated(),
		User:          state.User,
		IsLoading:     state.IsLoading,
	}
}

// GetSession handles GET /v1/session.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

type signInRequest struct {
	Token string `json:"token"`
}

// SignIn handles POST /v1/session. The token comes from the Authorization
// header or a JSON body. The reconciler picks the new identity up asynchronously,
// so the response is 202 Accepted.
func (s *Server) SignIn(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		var body signInRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Token == "" {
			http.Error(w, "Missing bearer token", http.StatusBadRequest)
			s.logger.Warn("SignIn: missing token", "error", err)
			return
		}
		token = body.Token
	}

	id, err := s.Auth.SignIn(token)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidToken) {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			s.logger.Warn("SignIn: token rejected", "error", err)
			return
		}
		http.Error(w, fmt.Sprintf("Sign-in error: %v", err), http.StatusInternalServerError)
		s.logger.Error("SignIn failed", "error", err)
		return
	}

	s.logger.Info("signed in", "subject_id", id.SubjectID)
	s.writeJSON(w, http.StatusAccepted, id)
}

// SignOut handles DELETE /v1/session.
func (s *Server) SignOut(w http.ResponseWriter, r *http.Request) {
	s.Auth.SignOut()
	w.WriteHeader(http.StatusNoContent)
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /v1/info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "rentsync",
		"version": strings.TrimSpace(rentsync.Version),
	})
}

// SubscribeEvents handles GET /v1/session/events (SSE).
// A "session" event with the current view is sent first, then one "state"
// event per cached user change.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe()
	defer cancel()

	if data, err := json.Marshal(s.snapshot()); err == nil {
		fmt.Fprintf(w, "event: session\ndata: %s\n\n", data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: state\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// StreamManager fans state changes out to SSE clients.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[chan string]struct{}
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[chan string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a client. The returned func unregisters it and closes the channel.
func (sm *StreamManager) Subscribe() (<-chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	sm.subscribers[ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			delete(sm.subscribers, ch)
			close(ch)
		})
	}
}

// Broadcast sends msg to every client. Slow clients drop messages.
func (sm *StreamManager) Broadcast(msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping message")
		}
	}
}

// Len returns the number of connected clients.
func (sm *StreamManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers)
}

// Hooks broadcasts every state change to SSE clients.
func (sm *StreamManager) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStateChange: func(_ context.Context, state domain.CachedUser) {
			data, err := json.Marshal(state)
			if err != nil {
				sm.logger.Error("SSE: encode state", "error", err)
				return
			}
			sm.Broadcast(string(data))
		},
	}
}
