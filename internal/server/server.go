// Package server provides the HTTP server for the mudra recognition client.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/observe"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/store"
)

const shutdownTimeout = 5 * time.Second

// Config holds the server configuration. Only App is required.
type Config struct {
	App       *app.App
	Store     *store.Store
	Hub       *Hub
	StaticDir string

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Metrics        *observe.Metrics
	Logger         *logrus.Entry
}

// Server represents the HTTP server of the application.
type Server struct {
	config  Config
	mux     *http.ServeMux
	handler http.Handler
	log     *logrus.Entry
	start   time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	if config.Metrics == nil {
		config.Metrics = observe.DefaultMetrics()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		log:    config.Logger,
		start:  time.Now(),
	}
	s.setupRoutes()
	s.handler = observe.Middleware(config.Metrics, config.Logger)(s.mux)
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	a := s.config.App

	sessionHandler := api.NewSessionHandler(a)
	s.mux.Handle("/api/session", sessionHandler)
	s.mux.Handle("/api/session/", sessionHandler)

	practiceHandler := api.NewPracticeHandler(a.Drill(), s.config.Store)
	s.mux.Handle("/api/practice", practiceHandler)
	s.mux.Handle("/api/practice/", practiceHandler)

	s.mux.Handle("/api/stream", NewStreamHandler(a))

	if s.config.Hub != nil {
		s.mux.Handle("/api/feedback", s.config.Hub)
	}

	if plugins := a.Plugins(); plugins != nil {
		pluginHandler := api.NewPluginHandler(plugins)
		s.mux.Handle("/api/plugins", pluginHandler)
		s.mux.Handle("/api/plugins/", pluginHandler)
	}

	// History, bindings and samples need the database.
	if st := s.config.Store; st != nil {
		bindingHandler := api.NewBindingHandler(st, a.Plugins())
		s.mux.Handle("/api/bindings", bindingHandler)
		s.mux.Handle("/api/bindings/", bindingHandler)

		sampleHandler := api.NewSampleHandler(st, a.Recorder())
		s.mux.Handle("/api/samples", sampleHandler)
		s.mux.Handle("/api/samples/", sampleHandler)

		history := api.NewHistoryHandler(st)
		s.mux.HandleFunc("/api/predictions", history.Predictions)
		s.mux.HandleFunc("/api/predictions/", history.Predictions)
		s.mux.HandleFunc("/api/sessions", history.Sessions)
		s.mux.HandleFunc("/api/sessions/", history.Sessions)
	}

	if s.config.MetricsHandler != nil {
		s.mux.Handle("/metrics", s.config.MetricsHandler)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

type healthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Session   string `json:"session"`
	Capturing bool   `json:"capturing"`
	Speech    bool   `json:"speech"`
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sess := s.config.App.Session()
	response := healthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.start).Round(time.Second).String(),
		Session:   string(sess.State()),
		Capturing: s.config.App.Capturing(),
		Speech:    sess.SpeechAvailable(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully and disconnects feedback clients.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// Streams end with ctx so Shutdown is not held up by them.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	if s.config.Hub != nil {
		s.config.Hub.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}
