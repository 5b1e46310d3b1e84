// Package bridge exposes the assistant core to the chat UI over a
// websocket message-passing protocol: commands in, events out.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/codelamp/codelamp/internal/agent"
	"github.com/codelamp/codelamp/internal/buildinfo"
	"github.com/codelamp/codelamp/internal/llm"
	"github.com/codelamp/codelamp/internal/secrets"
	"github.com/codelamp/codelamp/internal/session"
	"github.com/codelamp/codelamp/internal/tools"
)

// Server serves the UI protocol at /ws plus a health endpoint.
type Server struct {
	address string
	port    int

	secrets   *secrets.Store
	sessions  *session.Store
	loop      *agent.Loop
	workspace *tools.Workspace
	logger    *slog.Logger

	geminiModel   string
	geminiBaseURL string

	// newClient builds a backend client per turn, since the key can change
	// between turns. Tests swap this for a fake.
	newClient func(apiKey string) llm.Client

	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a bridge server. geminiBaseURL == "" selects the
// production endpoint.
func NewServer(address string, port int, sec *secrets.Store, sessions *session.Store, loop *agent.Loop, ws *tools.Workspace, geminiModel, geminiBaseURL string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		address:       address,
		port:          port,
		secrets:       sec,
		sessions:      sessions,
		loop:          loop,
		workspace:     ws,
		logger:        logger,
		geminiModel:   geminiModel,
		geminiBaseURL: geminiBaseURL,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The UI connects from an editor webview, not a browser origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.newClient = func(apiKey string) llm.Client {
		return llm.NewGeminiClient(apiKey, s.logger,
			llm.WithModel(s.geminiModel),
			llm.WithBaseURL(s.geminiBaseURL),
		)
	}
	return s
}

// Handler returns the HTTP routes for the bridge.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting bridge server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown stops the server, waiting for in-flight connections up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"version": buildinfo.Version,
	}); err != nil {
		s.logger.Debug("failed to write health response", "error", err)
	}
}

// handleWS upgrades the connection and runs the per-connection read loop.
// Commands dispatch sequentially on this goroutine, which serializes
// sendMessage turns for the session without further locking.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := s.logger.With("connection_id", uuid.NewString())
	logger.Info("UI connected", "remote", conn.RemoteAddr().String())

	send := func(v any) error {
		return conn.WriteJSON(v)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("UI connection lost", "error", err)
			} else {
				logger.Info("UI disconnected")
			}
			return
		}

		var cmd command
		if err := json.Unmarshal(raw, &cmd); err != nil {
			logger.Warn("malformed command", "error", err)
			continue
		}

		s.dispatch(r.Context(), logger, cmd, send)
	}
}
