// Package web serves the local dashboard: status, history, stats, the
// latest Display result and a live websocket feed of stage changes.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"markestedt/tokenspark/config"
	"markestedt/tokenspark/pipeline"
	"markestedt/tokenspark/storage"
)

//go:embed static/*
var staticFiles embed.FS

// Orchestrator is the part of the pipeline the dashboard drives
type Orchestrator interface {
	InvokeProfile(mode pipeline.Mode, profile string) bool
	Stage() pipeline.Stage
	Last() (pipeline.Invocation, bool)
}

// Options configures a Server
type Options struct {
	Port  int
	Store *config.Store
	// DB is nil when history is disabled
	DB       *storage.DB
	Secrets  pipeline.SecretSource
	Gatherer prometheus.Gatherer
	// OnResult receives the result page URL after each Display result
	OnResult func(url string)
}

// Server represents the web server
type Server struct {
	store    *config.Store
	db       *storage.DB
	secrets  pipeline.SecretSource
	gatherer prometheus.Gatherer
	onResult func(url string)
	port     int
	hub      *Hub

	mu     sync.RWMutex
	orch   Orchestrator
	result *ResultMessage
}

// NewServer creates a new web server and starts its websocket hub
func NewServer(opts Options) *Server {
	hub := NewHub()
	go hub.Run()

	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.NewRegistry()
	}

	return &Server{
		store:    opts.Store,
		db:       opts.DB,
		secrets:  opts.Secrets,
		gatherer: gatherer,
		onResult: opts.OnResult,
		port:     opts.Port,
		hub:      hub,
	}
}

// SetOrchestrator attaches the pipeline. The server is itself one of the
// pipeline's collaborators, so this happens after both exist.
func (s *Server) SetOrchestrator(o Orchestrator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orch = o
}

func (s *Server) orchestrator() Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.orch
}

// URL returns the dashboard address
func (s *Server) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.port)
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/invoke", s.handleInvoke)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/stats", s.handleStats)
		r.Get("/history", s.handleGetHistory)
		r.Delete("/history/{id}", s.handleDeleteHistory)
	})
	r.Get("/result", s.handleResult)
	r.Get("/ws", s.handleWebSocket)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		// The embed pattern guarantees the directory
		panic(err)
	}
	r.Handle("/*", http.FileServer(http.FS(staticFS)))

	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	defer s.hub.Stop()

	slog.Info("Starting web server", "port", s.port, "url", s.URL())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Present implements pipeline.Presenter. The result replaces the previous
// one and is pushed to connected dashboards.
func (s *Server) Present(original, result string) {
	msg := ResultMessage{Original: original, Result: result}

	s.mu.Lock()
	s.result = &msg
	s.mu.Unlock()

	s.hub.BroadcastMessage(Message{Type: MessageTypeResult, Data: msg})

	if s.onResult != nil {
		s.onResult(s.URL() + "/result")
	}
}

// StageChanged implements pipeline.Observer
func (s *Server) StageChanged(t pipeline.Transition) {
	msg := StageMessage{
		Invocation: t.Invocation.ID,
		Mode:       t.Invocation.Mode.String(),
		From:       t.From.String(),
		To:         t.To.String(),
		Label:      t.To.Label(),
		Timestamp:  t.At.UTC().Format(time.RFC3339Nano),
	}
	if f := t.Invocation.Failure; f != nil && t.To == pipeline.Failed {
		msg.ErrorKind = f.Kind.String()
		msg.Error = f.Message()
	}
	s.hub.BroadcastMessage(Message{Type: MessageTypeStage, Data: msg})
}

func (s *Server) latestResult() *ResultMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// handleWebSocket handles WebSocket connections
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, 256),
	}

	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
