// Package http serves an agent over HTTP: JSON chat, SSE streaming, health and metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/KamdynS/bedrock-agents/agent/core"
	"github.com/KamdynS/bedrock-agents/auth"
	"github.com/KamdynS/bedrock-agents/config"
	obs "github.com/KamdynS/bedrock-agents/observability"
)

// Server wraps an agent with HTTP endpoints
type Server struct {
	agent  core.Agent
	config Config
	router chi.Router
	server *http.Server
}

// Config holds HTTP server configuration
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// CORSOrigins enables CORS for these origins. Empty disables CORS handling.
	CORSOrigins []string
	// Metrics is served on MetricsPath when set, normally prom.Handler.
	Metrics     http.Handler
	MetricsPath string
	// Verifier guards the chat routes. Nil leaves them open.
	Verifier auth.Verifier
	// Service names the otelhttp server spans.
	Service string
	Logger  *slog.Logger
}

// ConfigFrom maps the server section of the service config.
func ConfigFrom(cfg config.Server) Config {
	return Config{
		Addr:         cfg.Addr,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		CORSOrigins:  cfg.CORSOrigins,
		MetricsPath:  cfg.MetricsPath,
	}
}

// NewServer creates a new HTTP server for an agent
func NewServer(agent core.Agent, config Config) *Server {
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 10 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 5 * time.Minute
	}
	if config.MetricsPath == "" {
		config.MetricsPath = "/metrics"
	}
	if config.Service == "" {
		config.Service = "agent"
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		agent:  agent,
		config: config,
	}
	s.router = s.routes()
	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           otelhttp.NewHandler(s.router, config.Service),
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(obs.RequestIDMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)
	if len(s.config.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", obs.HeaderRequestID},
			ExposedHeaders: []string{obs.HeaderRequestID},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.healthHandler)
	if s.config.Metrics != nil {
		r.Method(http.MethodGet, s.config.MetricsPath, s.config.Metrics)
	}
	r.Group(func(r chi.Router) {
		if s.config.Verifier != nil {
			r.Use(auth.Middleware(s.config.Verifier))
		}
		r.Post("/chat", s.chatHandler)
		r.Post("/chat/stream", s.streamHandler)
	})
	return r
}

// Mount attaches another handler under pattern, e.g. an MCP endpoint next to the chat API.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

// Handler is the full instrumented handler, for tests and Lambda adapters.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Message   string            `json:"message"`
	SessionID string            `json:"session_id,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// ChatResponse represents a chat response
type ChatResponse struct {
	Message   string            `json:"message"`
	SessionID string            `json:"session_id,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// instrument records a span and request metrics per request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		span, ctx := obs.TracerImpl.StartSpan(r.Context(), "http.request")
		defer span.End()
		span.SetAttribute(obs.AttrHTTPMethod, r.Method)
		if id, ok := obs.RequestIDFromContext(ctx); ok {
			span.SetAttribute(obs.AttrRequestID, id)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttribute(obs.AttrHTTPRoute, route)
		span.SetAttribute(obs.AttrHTTPStatus, status)
		if status >= 500 {
			span.SetStatus(obs.StatusCodeError, http.StatusText(status))
		} else {
			span.SetStatus(obs.StatusCodeOk, "")
		}
		labels := map[string]string{"route": route, "method": r.Method, "status_code": strconv.Itoa(status)}
		obs.MetricsImpl.IncrementRequests(labels)
		obs.MetricsImpl.RecordLatency(time.Since(start), labels)
	})
}

// healthHandler provides a health check endpoint
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// decodeChat parses the request body and builds the agent input.
func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (ChatRequest, core.Message, bool) {
	var req ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		s.writeError(w, "Invalid JSON", http.StatusBadRequest)
		return req, core.Message{}, false
	}
	if req.Message == "" {
		s.writeError(w, "Message is required", http.StatusBadRequest)
		return req, core.Message{}, false
	}

	meta := make(map[string]string, len(req.Meta)+2)
	for k, v := range req.Meta {
		meta[k] = v
	}
	if req.SessionID != "" {
		meta[core.MetaSessionID] = req.SessionID
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		meta["user"] = claims.User()
	}
	return req, core.Message{Role: "user", Content: req.Message, Meta: meta}, true
}

// chatHandler handles chat requests
func (s *Server) chatHandler(w http.ResponseWriter, r *http.Request) {
	req, input, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	response, err := s.agent.Run(r.Context(), input)
	if err != nil {
		s.config.Logger.ErrorContext(r.Context(), "agent run failed", "error", err)
		code := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusGatewayTimeout
		}
		s.writeError(w, "Internal server error", code)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(ChatResponse{
		Message:   response.Content,
		SessionID: req.SessionID,
		Meta:      response.Meta,
	})
}

// streamHandler handles streaming chat requests
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	req, input, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	output := make(chan core.Message)
	done := make(chan error, 1)
	go func() { done <- s.agent.RunStream(ctx, input, output) }()

	for {
		select {
		case message, ok := <-output:
			if !ok {
				if err := <-done; err != nil && ctx.Err() == nil {
					s.config.Logger.ErrorContext(ctx, "agent stream failed", "error", err)
					data, _ := json.Marshal(ChatResponse{SessionID: req.SessionID, Error: "Internal server error"})
					fmt.Fprintf(w, "event: error\ndata: %s\n\n", data)
				}
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(ChatResponse{
				Message:   message.Content,
				SessionID: req.SessionID,
				Meta:      message.Meta,
			})
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
			flusher.Flush()

		case <-ctx.Done():
			fmt.Fprintf(w, "event: done\ndata: {}\n\n")
			flusher.Flush()
			return
		}
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ChatResponse{Error: message})
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		s.config.Logger.Info("http server starting", "addr", s.config.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.config.Logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
