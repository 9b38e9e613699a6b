package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"inkday/internal/config"
	appLog "inkday/internal/log"
	"inkday/internal/model"
	"inkday/internal/publish"
)

// DaySource exposes the most recently composed DayModel.
type DaySource interface {
	CurrentDay() (model.DayModel, bool)
}

// Server serves the artifact to display clients plus a small status API.
//
// Routes:
//   - GET /health           always open
//   - GET /<name>.png       always open, served by the publisher
//   - GET /api/day          current DayModel as JSON
//   - GET /api/artifact     fingerprint / age of the served artifact
//
// /api/* is behind HTTP Basic Auth when credentials are configured.
type Server struct {
	cfg        *config.Config
	pub        *publish.Publisher
	days       DaySource
	staleAfter time.Duration
	now        func() time.Time

	router chi.Router
}

// NewServer wires the routes. staleAfter is the artifact age beyond which
// /api/artifact reports it as stale; zero disables the flag.
func NewServer(cfg *config.Config, pub *publish.Publisher, days DaySource, staleAfter time.Duration) *Server {
	s := &Server{
		cfg:        cfg,
		pub:        pub,
		days:       days,
		staleAfter: staleAfter,
		now:        time.Now,
		router:     chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "artifact", "/"+s.pub.Name()+".png")
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)

	artifact := s.pub.Handler()
	r.Method(http.MethodGet, "/"+s.pub.Name()+".png", artifact)
	r.Method(http.MethodHead, "/"+s.pub.Name()+".png", artifact)

	r.Route("/api", func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled for /api")
			r.Use(s.basicAuthMiddleware)
		}
		r.Get("/day", s.handleDay)
		r.Get("/artifact", s.handleArtifact)
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials mean disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="inkday", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleDay(w http.ResponseWriter, _ *http.Request) {
	if s.days == nil {
		writeError(w, http.StatusServiceUnavailable, "day model not available")
		return
	}
	m, ok := s.days.CurrentDay()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "day model not composed yet")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// artifactResponse is the JSON response shape for /api/artifact.
type artifactResponse struct {
	Name        string    `json:"name"`
	Fingerprint string    `json:"fingerprint"`
	ProducedAt  time.Time `json:"produced_at"`
	Size        int       `json:"size"`
	AgeSeconds  int64     `json:"age_seconds"`
	Stale       bool      `json:"stale"`
}

func (s *Server) handleArtifact(w http.ResponseWriter, _ *http.Request) {
	a := s.pub.Current()
	if a.Empty() {
		writeError(w, http.StatusServiceUnavailable, "artifact not rendered yet")
		return
	}
	age := s.now().Sub(a.ProducedAt)
	writeJSON(w, http.StatusOK, artifactResponse{
		Name:        s.pub.Name() + ".png",
		Fingerprint: a.Fingerprint,
		ProducedAt:  a.ProducedAt,
		Size:        len(a.Bytes),
		AgeSeconds:  int64(age / time.Second),
		Stale:       s.staleAfter > 0 && age > s.staleAfter,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
