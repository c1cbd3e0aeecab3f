package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/pranot/segtrans/internal/config"
	"github.com/pranot/segtrans/internal/persistence"
	"github.com/pranot/segtrans/internal/service"
)

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
}

// Server exposes the job queue, library state, and runtime settings
// over a small JSON API.
type Server struct {
	svc      *service.WatchService
	reports  *persistence.SQLiteStore
	settings runtimeSettingsStore

	mux    *http.ServeMux
	server *http.Server
}

type Option func(*Server)

// WithRuntimeSettingsStore enables the /api/settings endpoints.
func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) { s.settings = store }
}

// WithReportStore enables per-job run report lookups.
func WithReportStore(store *persistence.SQLiteStore) Option {
	return func(s *Server) { s.reports = store }
}

func NewServer(svc *service.WatchService, opts ...Option) *Server {
	s := &Server{svc: svc, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("/api/library", s.handleLibrary)
	s.mux.HandleFunc("/api/jobs", s.handleJobs)
	s.mux.HandleFunc("/api/jobs/stream", s.handleJobStream)
	s.mux.HandleFunc("/api/jobs/", s.handleJobDetailRoutes)
	s.mux.HandleFunc("/api/scan", s.handleScan)
	s.mux.HandleFunc("/api/settings", s.handleSettings)
	return s
}

func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
