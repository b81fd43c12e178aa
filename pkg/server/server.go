// Package server assembles the ledger's components into one HTTP process:
// session authority, intent log, execution coordinator, artifact store, and
// the discovery index projection.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gorm.io/gorm"

	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/artifact"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/audit"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/blob"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/cache"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/coordinator"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/discovery"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/intent"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/session"
	"github.com/Aaron-Lilly/symphainy-prod-sub020/pkg/tenancy"
)

// APIBasePath is where the versioned ledger API is mounted.
const APIBasePath = "/api/ledger/v1alpha1"

// Config carries the per-component configuration the server assembles from.
type Config struct {
	TenancyMode tenancy.TenancyMode
	Session     *session.Config
	Coordinator *coordinator.Config
	Cache       *cache.CacheConfig
	Blob        blob.BadgerConfig
}

// ConfigFromEnv builds the full server configuration from LEDGER_* env vars.
func ConfigFromEnv() *Config {
	return &Config{
		TenancyMode: tenancy.ModeFromEnv(),
		Session:     session.ConfigFromEnv(),
		Coordinator: coordinator.ConfigFromEnv(),
		Cache:       cache.CacheConfigFromEnv(),
		Blob:        blob.BadgerConfigFromEnv(),
	}
}

// Server owns every component and their background goroutines.
type Server struct {
	cfg    *Config
	db     *gorm.DB
	logger *slog.Logger

	Audit       *audit.Store
	Sessions    *session.Store
	Intents     *intent.Store
	Artifacts   *artifact.Store
	Index       *discovery.Store
	Projector   *discovery.Projector
	Blobs       blob.Store
	Cache       *cache.QueryCache
	Registry    *coordinator.Registry
	Coordinator *coordinator.Coordinator

	startedAt time.Time
	readyMu   sync.RWMutex
	ready     bool
	wg        sync.WaitGroup
}

// New wires the component graph. Nothing runs until Start.
func New(db *gorm.DB, cfg *Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = ConfigFromEnv()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		startedAt: time.Now(),
	}

	s.Audit = audit.NewStore(db)
	s.Index = discovery.NewStore(db)

	if cfg.Cache != nil && cfg.Cache.Enabled {
		s.Cache = cache.NewQueryCache(cfg.Cache.MaxSize, cfg.Cache.TTL)
	}

	var projectorOpts []discovery.ProjectorOption
	if s.Cache != nil {
		projectorOpts = append(projectorOpts, discovery.WithCache(s.Cache))
	}
	s.Projector = discovery.NewProjector(s.Index, logger, projectorOpts...)

	s.Artifacts = artifact.NewStore(db, logger,
		artifact.WithProjector(s.Projector),
		artifact.WithAudit(s.Audit))
	s.Intents = intent.NewStore(db, logger, intent.WithAudit(s.Audit))
	s.Sessions = session.NewStore(db, cfg.Session, logger, session.WithAudit(s.Audit))

	blobs, err := blob.NewBadgerStore(cfg.Blob, logger)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	s.Blobs = blobs

	s.Registry = coordinator.NewRegistry()
	s.Coordinator = coordinator.New(s.Intents, s.Artifacts, s.Index, s.Blobs,
		s.Registry, cfg.Coordinator, logger)

	return s, nil
}

// Init runs schema migrations for every store.
func (s *Server) Init() error {
	migrations := []func() error{
		s.Audit.AutoMigrate,
		s.Sessions.AutoMigrate,
		s.Intents.AutoMigrate,
		s.Artifacts.AutoMigrate,
		s.Index.AutoMigrate,
	}
	for _, migrate := range migrations {
		if err := migrate(); err != nil {
			return err
		}
	}
	return nil
}

// MountRoutes creates the HTTP router with every API mounted.
func (s *Server) MountRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", tenancy.TenantHeader, tenancy.SessionHeader},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(tenancy.NewMiddleware(s.cfg.TenancyMode))

	r.Get("/healthz", s.healthHandler)
	r.Get("/livez", s.healthHandler)
	r.Get("/readyz", s.readyHandler)

	r.Route(APIBasePath, func(api chi.Router) {
		api.Mount("/", session.Router(s.Sessions))
		api.Mount("/intent-log", intent.Router(s.Intents, s.Coordinator))
		api.Mount("/execution", coordinator.Router(s.Coordinator))
		api.Mount("/registry", artifact.Router(s.Artifacts))
		api.Mount("/discovery", discovery.Router(s.Index, s.Cache))
	})

	return r
}

// Start launches the background goroutines: the discovery projector, the
// coordinator worker pool, and the session idle sweep. Blocks only until
// everything is launched.
func (s *Server) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Projector.Run(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Coordinator.Run(ctx)
	}()

	if s.cfg.Session != nil && s.cfg.Session.IdleTimeout > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.idleSweepLoop(ctx)
		}()
	}

	s.setReady(true)
	s.logger.Info("ledger server components started")
}

// Stop waits for background goroutines and releases resources. The ctx that
// was passed to Start must already be cancelled.
func (s *Server) Stop() {
	s.setReady(false)
	s.wg.Wait()
	if err := s.Blobs.Close(); err != nil {
		s.logger.Error("failed to close blob store", "error", err)
	}
	s.logger.Info("ledger server components stopped")
}

func (s *Server) idleSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Session.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			revoked, err := s.Sessions.RevokeIdle(s.cfg.Session.IdleTimeout)
			if err != nil {
				s.logger.Error("session idle sweep failed", "error", err)
			} else if revoked > 0 {
				s.logger.Info("revoked idle sessions", "count", revoked)
			}
		}
	}
}

func (s *Server) setReady(ready bool) {
	s.readyMu.Lock()
	s.ready = ready
	s.readyMu.Unlock()
}

// healthHandler returns the liveness status of the server.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// readyHandler verifies DB connectivity and that Start has run.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	s.readyMu.RLock()
	ready := s.ready
	s.readyMu.RUnlock()

	status := http.StatusOK
	checks := map[string]string{"components": "started", "database": "ok"}

	if !ready {
		status = http.StatusServiceUnavailable
		checks["components"] = "not started"
	}

	if sqlDB, err := s.db.DB(); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	} else if err := sqlDB.Ping(); err != nil {
		status = http.StatusServiceUnavailable
		checks["database"] = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(checks)
}
