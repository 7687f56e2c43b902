/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/friendsincode/lectern/internal/api"
	"github.com/friendsincode/lectern/internal/auth"
	"github.com/friendsincode/lectern/internal/cache"
	"github.com/friendsincode/lectern/internal/config"
	"github.com/friendsincode/lectern/internal/db"
	"github.com/friendsincode/lectern/internal/eventbus"
	"github.com/friendsincode/lectern/internal/events"
	"github.com/friendsincode/lectern/internal/logbuffer"
	"github.com/friendsincode/lectern/internal/media"
	"github.com/friendsincode/lectern/internal/presentation"
	"github.com/friendsincode/lectern/internal/scheduler"
	"github.com/friendsincode/lectern/internal/storage"
	"github.com/friendsincode/lectern/internal/telemetry"
	"github.com/friendsincode/lectern/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	db        *gorm.DB
	cache     *cache.Cache
	logBuffer *logbuffer.Buffer
	bus       *events.Bus
	store     *presentation.Store
	scheduler *scheduler.Service
	media     media.Resolver
	relay     *eventbus.Relay
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New wires every component from cfg and starts the background workers.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	if cfg.JWTKeyGenerated {
		logger.Warn().Msg("LECTERN_JWT_SIGNING_KEY not set, sessions will not survive a restart")
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("lectern-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The events websocket is long-lived.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(30 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		bus:       events.NewBus(),
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.ListenAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// Websocket handlers manage their own write deadlines.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// The display surface runs full screen; remotes never frame it.
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'self' 'unsafe-inline' data: blob: https: http: ws: wss:; frame-ancestors 'none'; base-uri 'self'")

		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	ctx := context.Background()

	storeLabel := string(s.cfg.Store)
	if s.cfg.Store == config.StoreDatabase {
		storeLabel += "/" + string(s.cfg.DBBackend)
	}
	tracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Version:     version.Version,
		Environment: s.cfg.Environment,
		Store:       storeLabel,
		Endpoint:    s.cfg.OTLPEndpoint,
		SampleRate:  s.cfg.TracingSampleRate,
		Enabled:     s.cfg.TracingEnabled,
	}, s.logger)
	if err != nil {
		// Tracing is diagnostics only.
		s.logger.Warn().Err(err).Msg("tracing initialization failed, continuing without tracing")
	} else {
		s.DeferClose(func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracer.Shutdown(ctx)
		})
	}

	if s.cfg.Store == config.StoreDatabase {
		database, err := db.Connect(s.cfg)
		if err != nil {
			return err
		}
		s.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return err
		}
		s.db = database
	}

	repo, err := storage.New(s.cfg, s.db)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	if s.cfg.CacheEnabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.RedisAddr = s.cfg.RedisAddr
		cacheCfg.RedisPassword = s.cfg.RedisPassword
		cacheCfg.RedisDB = s.cfg.RedisDB
		mediaCache, err := cache.New(cacheCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("cache initialization failed, continuing without cache")
		} else {
			s.cache = mediaCache
			s.DeferClose(mediaCache.Close)
		}
	}

	if s.cfg.S3Bucket == "" {
		if err := os.MkdirAll(s.cfg.MediaRoot, 0o755); err != nil {
			return fmt.Errorf("failed to create media directory %s: %w", s.cfg.MediaRoot, err)
		}
		s.logger.Info().Str("path", s.cfg.MediaRoot).Msg("media directory ready")
	}
	resolver, err := media.New(ctx, s.cfg, s.cache, s.logger)
	if err != nil {
		return err
	}
	s.media = resolver

	s.store = presentation.NewStore(presentation.DefaultIdle(), s.logger)

	sched, err := scheduler.New(ctx, clockwork.NewRealClock(), s.store, repo, s.bus, s.logger,
		scheduler.WithResolver(resolver),
		scheduler.WithLocation(s.cfg.Location),
		scheduler.WithCleanupInterval(s.cfg.CleanupInterval),
	)
	if err != nil {
		return err
	}
	s.scheduler = sched
	s.DeferClose(func() error {
		sched.Close()
		return nil
	})

	if s.cfg.NATSURL != "" {
		natsCfg := eventbus.DefaultNATSConfig()
		natsCfg.URL = s.cfg.NATSURL
		conn, err := eventbus.Connect(natsCfg, s.logger)
		if err != nil {
			s.logger.Warn().Err(err).Msg("nats unavailable, external relay disabled")
		} else {
			s.relay = eventbus.NewRelay(conn, s.bus, s.logger)
			s.DeferClose(func() error { return drain(conn) })
		}
	}

	keys, err := auth.NewKeyVerifier(s.cfg.RemoteKey, s.cfg.RemoteKeyHash)
	if err != nil {
		return fmt.Errorf("invalid LECTERN_REMOTE_KEY_HASH: %w", err)
	}
	if !keys.Enabled() {
		s.logger.Warn().Msg("no remote key configured, API is open to the local network")
	}

	s.api = api.New(s.store, s.scheduler, s.media, s.bus, s.logBuffer, s.logger)
	s.api.SetSessions(keys, []byte(s.cfg.JWTSigningKey), s.cfg.SessionTTL)
	return nil
}

func drain(conn *nats.Conn) error {
	if conn.IsClosed() {
		return nil
	}
	return conn.Drain()
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer exposes the configured HTTP server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the server's log buffer for attaching to zerolog.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close releases owned resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	// Subscribe before returning so no commit made after New is missed.
	states, unsubscribe := s.store.Subscribe(64)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		defer unsubscribe()
		s.bridgeState(ctx, states)
	}()

	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		if err := s.scheduler.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("scheduler loop exited")
		}
	}()

	if s.relay != nil {
		s.relay.Start()
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			<-ctx.Done()
			s.relay.Stop()
		}()
	}

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}
}

// bridgeState republishes store snapshots on the bus for the external relay,
// and announces idle setting changes separately.
func (s *Server) bridgeState(ctx context.Context, states <-chan presentation.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-states:
			if !ok {
				return
			}
			s.bus.Publish(events.EventDisplayState, events.Payload{"snapshot": snap})
			if snap.Cause == presentation.CauseIdleSettings {
				s.bus.Publish(events.EventSettings, events.Payload{"idle": snap.State.Idle})
			}
		}
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","version":%q}`, version.Version)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	if s.cfg.S3Bucket == "" {
		s.router.Handle(media.PublicPrefix+"*", http.StripPrefix(media.PublicPrefix, http.FileServer(http.Dir(s.cfg.MediaRoot))))
	}

	s.api.Routes(s.router)
}
