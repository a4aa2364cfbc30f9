// Package mcp exposes the session reconciler to Model Context Protocol clients,
// so agents can read the signed-in user and manage profile documents.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/rentsync"
	"github.com/aretw0/rentsync/internal/logging"
	"github.com/aretw0/rentsync/pkg/domain"
	"github.com/aretw0/rentsync/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SessionURI is the resource holding the current session view.
const SessionURI = "rentsync://session"

// SessionView is the payload of get_session and the session resource.
type SessionView struct {
	Status        domain.SessionStatus `json:"status"`
	Authenticated bool                 `json:"authenticated"`
	User          *domain.UserRecord   `json:"user"`
	IsLoading     bool                 `json:"isLoading"`
}

// UserView is the payload of get_user.
type UserView struct {
	Exists bool               `json:"exists"`
	User   *domain.UserRecord `json:"user,omitempty"`
}

// Session is the read side of the reconciler.
type Session interface {
	State() domain.CachedUser
	Identity() domain.Identity
}

// Authenticator turns bearer tokens into identity transitions.
type Authenticator interface {
	SignIn(token string) (domain.Identity, error)
	SignOut()
}

// UserWriter stamps and stores profile revisions.
type UserWriter interface {
	Put(ctx context.Context, user domain.UserRecord) (domain.UserRecord, error)
}

// Server wraps the reconciler and exposes it as an MCP Server.
type Server struct {
	session   Session
	auth      Authenticator
	source    ports.DocumentSource
	writer    UserWriter
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

type Option func(*Server)

// WithWriter enables the put_user tool.
func WithWriter(w UserWriter) Option {
	return func(s *Server) {
		s.writer = w
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(session Session, auth Authenticator, source ports.DocumentSource, opts ...Option) *Server {
	s := &Server{
		session:   session,
		auth:      auth,
		source:    source,
		logger:    logging.NewNop(),
		mcpServer: server.NewMCPServer("rentsync-mcp", strings.TrimSpace(rentsync.Version)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio serves MCP over in/out until ctx is done or in is closed.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

// ServeSSE serves MCP over SSE on ln until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, ln net.Listener) error {
	baseURL := "http://" + ln.Addr().String()
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP server listening (SSE)", "address", ln.Addr().String())
		serverErrors <- httpServer.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_session",
		mcp.WithDescription("Get the identity status and the cached user the client would render right now."),
	), s.handleGetSession)

	s.mcpServer.AddTool(mcp.NewTool("sign_in",
		mcp.WithDescription("Sign in with a bearer token. The cached user follows asynchronously; poll get_session."),
		mcp.WithString("token", mcp.Required(), mcp.Description("Signed JWT whose subject is the user id")),
	), s.handleSignIn)

	s.mcpServer.AddTool(mcp.NewTool("sign_out",
		mcp.WithDescription("Sign out and clear the cached user."),
	), s.handleSignOut)

	s.mcpServer.AddTool(mcp.NewTool("get_user",
		mcp.WithDescription("Fetch the current profile document of any user from the document store."),
		mcp.WithString("subject_id", mcp.Required(), mcp.Description("User id")),
	), s.handleGetUser)

	if s.writer != nil {
		s.mcpServer.AddTool(mcp.NewTool("put_user",
			mcp.WithDescription("Write a profile revision. updatedAt is stamped by the server."),
			mcp.WithString("profile", mcp.Required(), mcp.Description("JSON object with id and the profile fields")),
		), s.handlePutUser)
	}
}

func (s *Server) sessionView() SessionView {
	id := s.session.Identity()
	state := s.session.State()
	return SessionView{
		Status:        id.Status,
		Authenticated: id.Status == domain.StatusAuthenticated,
		User:          state.User,
		IsLoading:     state.IsLoading,
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sessionView())
}

func (s *Server) handleSignIn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	token, err := request.RequireString("token")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	id, err := s.auth.SignIn(strings.TrimSpace(strings.TrimPrefix(token, "Bearer ")))
	if err != nil {
		s.logger.Warn("MCP sign in rejected", "error", err)
		if errors.Is(err, domain.ErrInvalidToken) {
			return mcp.NewToolResultError("invalid token"), nil
		}
		return nil, err
	}
	return jsonResult(id)
}

func (s *Server) handleSignOut(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.auth.SignOut()
	return jsonResult(domain.Unauthenticated())
}

func (s *Server) handleGetUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	subjectID, err := request.RequireString("subject_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	snap, err := s.source.Fetch(ctx, subjectID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("fetch failed: %v", err)), nil
	}
	view := UserView{Exists: snap.Exists}
	if snap.Exists {
		user := snap.User
		view.User = &user
	}
	return jsonResult(view)
}

func (s *Server) handlePutUser(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireString("profile")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var user domain.UserRecord
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("profile is not valid JSON: %v", err)), nil
	}
	if user.ID == "" {
		return mcp.NewToolResultError("profile.id is required"), nil
	}

	stored, err := s.writer.Put(ctx, user)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("put failed: %v", err)), nil
	}
	return jsonResult(stored)
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SessionURI, "Current Session",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(s.sessionView())
		if err != nil {
			return nil, fmt.Errorf("failed to encode session: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SessionURI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	})
}
