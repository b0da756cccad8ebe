package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mailobot/internal/model"
	"github.com/nhle/mailobot/internal/relay"
	"github.com/nhle/mailobot/internal/store"
)

// Server exposes the chat backend over HTTP for non-terminal clients. It
// relays messages to the conversational backend, persists mail-account
// settings, and serves an optional static front end.
type Server struct {
	cfg    Config
	store  store.Store
	relay  *relay.Client
	logger *zap.Logger

	httpServer *http.Server
}

// Config holds the gateway's listen address and file locations.
type Config struct {
	// Listen is the address the HTTP server binds to, e.g. ":3000".
	Listen string
	// StaticDir, when set, is served at / with an index.html fallback.
	StaticDir string
	// SettingsFile, when set, receives a JSON copy of saved mail-account
	// settings for external tooling.
	SettingsFile string
}

// NewServer creates a gateway server. The relay client and store are
// shared with the rest of the application.
func NewServer(
	cfg Config,
	s store.Store,
	relayClient *relay.Client,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := &Server{
		cfg:    cfg,
		store:  s,
		relay:  relayClient,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/check_rasa", srv.handleCheckBackend)
	mux.HandleFunc("POST /api/send_message", srv.handleSendMessage)
	mux.HandleFunc("POST /api/rasa_message", srv.handleRelayMessage)
	mux.HandleFunc("POST /api/save_imap_settings", srv.handleSaveSettings)

	if cfg.StaticDir != "" {
		mux.HandleFunc("/", srv.handleStatic)
	}

	srv.httpServer = &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.withMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv
}

// Handler returns the gateway's HTTP handler, used for embedding and
// testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves HTTP until the context is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("gateway listening", zap.String("addr", s.cfg.Listen))
		if err := s.httpServer.ListenAndServe(); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("gateway shutting down")
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down gateway: %w", err)
	}
	return <-errCh
}

// withMiddleware wraps the mux with request logging and permissive CORS
// for browser front ends served from another origin.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// handleCheckBackend reports whether the conversational backend is
// reachable.
func (s *Server) handleCheckBackend(w http.ResponseWriter, r *http.Request) {
	health := s.relay.CheckHealth(r.Context())

	if !health.Available {
		s.logger.Warn("backend unavailable", zap.String("reason", health.Reason))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "unavailable",
			"reason": health.Reason,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "available",
		"version": health.Version,
	})
}

// messageRequest is the body accepted by the message endpoints.
type messageRequest struct {
	Message string         `json:"message"`
	Context map[string]any `json:"context,omitempty"`
}

// handleSendMessage forwards the message and returns the backend's
// response verbatim. When the backend is unreachable the client gets a
// fallback bubble it can render instead of an empty chat.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid request body",
		})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "message is required",
		})
		return
	}

	body, err := s.relay.SendRaw(r.Context(), req.Message, req.Context)
	if err != nil {
		s.writeFailure(w, err, req.Context)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// relayReply is the normalized shape emitted by /api/rasa_message.
type relayReply struct {
	Messages []relay.Segment   `json:"messages"`
	Actions  []json.RawMessage `json:"actions"`
	Context  map[string]any    `json:"context"`
}

// handleRelayMessage forwards the message and returns the normalized
// {messages, actions, context} reply with actions in wire form.
func (s *Server) handleRelayMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "invalid request body",
		})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "message is required",
		})
		return
	}

	reply, err := s.relay.SendMessage(r.Context(), req.Message, req.Context)
	if err != nil {
		s.writeFailure(w, err, req.Context)
		return
	}

	actions := make([]json.RawMessage, 0, len(reply.Actions))
	for _, a := range reply.Actions {
		actions = append(actions, relay.EncodeAction(a))
	}

	writeJSON(w, http.StatusOK, relayReply{
		Messages: reply.Messages,
		Actions:  actions,
		Context:  reply.Context,
	})
}

// settingsRequest is the body accepted by /api/save_imap_settings.
type settingsRequest struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	TLS      *bool  `json:"tls,omitempty"`
}

// handleSaveSettings validates and persists mail-account settings, and
// mirrors them to the settings file when one is configured.
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "error",
			"error":  "invalid request body",
		})
		return
	}

	if req.Host == "" || req.Username == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "error",
			"error":  "host and username are required",
		})
		return
	}

	settings := model.IMAPSettings{
		Host:     req.Host,
		Port:     req.Port,
		Username: req.Username,
		Password: req.Password,
		TLS:      true,
	}
	if settings.Port == "" {
		settings.Port = "993"
	}
	if req.TLS != nil {
		settings.TLS = *req.TLS
	}

	if err := s.store.SaveIMAPSettings(r.Context(), settings); err != nil {
		s.logger.Error("saving mail settings", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "error",
			"error":  "failed to save settings",
		})
		return
	}

	if s.cfg.SettingsFile != "" {
		if err := writeSettingsFile(s.cfg.SettingsFile, settings); err != nil {
			// The store is the source of truth; the file copy is advisory.
			s.logger.Warn("writing settings file", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success"})
}

// handleStatic serves the configured static directory, falling back to
// index.html for unknown paths so client-side routing works.
func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := filepath.Join(s.cfg.StaticDir, filepath.Clean("/"+r.URL.Path))

	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		name = filepath.Join(s.cfg.StaticDir, "index.html")
	}

	http.ServeFile(w, r, name)
}

// writeFailure maps a relay error to an HTTP status and attaches the
// fallback reply so clients always have something to display.
func (s *Server) writeFailure(
	w http.ResponseWriter, err error, convContext map[string]any,
) {
	class := relay.ClassifyFailure(err)

	status := http.StatusInternalServerError
	switch class {
	case relay.FailureTimeout:
		status = http.StatusGatewayTimeout
	case relay.FailureConnection:
		status = http.StatusServiceUnavailable
	}

	s.logger.Warn("backend request failed",
		zap.String("class", class), zap.Error(err))

	fallback := relay.FallbackReply(err, convContext)
	writeJSON(w, status, map[string]any{
		"error":             err.Error(),
		"fallback_response": fallback.Messages,
	})
}

// writeSettingsFile writes the settings JSON atomically next to the
// target path.
func writeSettingsFile(path string, settings model.IMAPSettings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing settings file: %w", err)
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
