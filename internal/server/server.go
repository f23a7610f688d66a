package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pilotodevendas/apiserver/config"
	"github.com/pilotodevendas/apiserver/internal/db"
	"github.com/pilotodevendas/apiserver/internal/events"
	"github.com/pilotodevendas/apiserver/internal/google"
	"github.com/pilotodevendas/apiserver/internal/handlers"
	"github.com/pilotodevendas/apiserver/internal/metrics"
	"github.com/pilotodevendas/apiserver/internal/mq"
	"github.com/pilotodevendas/apiserver/internal/oauthstate"
	"github.com/pilotodevendas/apiserver/internal/password"
	"github.com/pilotodevendas/apiserver/internal/services"
	"github.com/pilotodevendas/apiserver/internal/session"
	"github.com/pilotodevendas/apiserver/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// ErrMissingSessionSecret is returned when SESSION_SECRET is unset.
var ErrMissingSessionSecret = errors.New("SESSION_SECRET is required")

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	redis      *redis.Client
	broker     mq.Backend
	logger     *slog.Logger
}

// New constructs a Server with its backing stores and routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	secret := strings.TrimSpace(cfg.Session.Secret)
	if secret == "" {
		return nil, ErrMissingSessionSecret
	}

	s := &Server{logger: logger}
	ok := false
	defer func() {
		if !ok {
			s.closeBackends()
		}
	}()

	userRepo, err := s.openUsers(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sessions, states, err := s.openSessionStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	s.broker, err = mq.Open(ctx, cfg.MQ)
	if err != nil {
		return nil, fmt.Errorf("open mq: %w", err)
	}

	authCfg := services.AuthServiceConfig{
		Users:           services.NewUserService(userRepo),
		Hasher:          password.NewHasher(0),
		Sessions:        session.NewManager(sessions, session.NewTokens(secret)),
		States:          states,
		Events:          events.NewPublisher(s.broker, cfg.MQ.Channel, logger),
		DefaultRedirect: cfg.OAuth.DefaultRedirect,
	}
	if cfg.OAuth.Enabled() {
		authCfg.OAuth = google.NewClient(google.ClientConfig{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			RedirectURL:  cfg.OAuth.RedirectURL,
			Timeout:      cfg.OAuth.HTTPTimeout,
		})
		authCfg.Verifier = google.NewVerifier(cfg.OAuth.ClientID, cfg.OAuth.HTTPTimeout)
	} else {
		logger.Warn("google sign-in disabled: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set")
	}
	auth := services.NewAuthService(authCfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	authHandler := handlers.NewAuthHandler(handlers.AuthHandlerConfig{
		Auth: auth,
		Cookie: handlers.CookieConfig{
			Secure: cfg.Session.CookieSecure,
			Domain: cfg.Session.CookieDomain,
			MaxAge: cfg.Session.TTL,
		},
		Metrics: metrics.NewCollector(reg),
		Logger:  logger,
	})
	limiter := handlers.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst)
	dashboard := services.NewDashboardService(nil)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		// The rate limiter keys on RemoteAddr, so forwarded headers are only
		// honored when a trusted proxy sets them.
		router.Use(middleware.RealIP)
	}
	router.Use(
		middleware.Recoverer,
		handlers.RequestLogger(logger),
		middleware.Timeout(60*time.Second),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, authHandler, limiter)
	})
	router.Route("/api/dashboard", func(r chi.Router) {
		handlers.DashboardRouter(r, dashboard, handlers.RequireSession(auth, logger))
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	s.router = router
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	ok = true
	return s, nil
}

func (s *Server) openUsers(ctx context.Context, cfg config.Config) (services.UserRepository, error) {
	dbConn, err := db.Open(ctx, cfg)
	if err == nil {
		s.db = dbConn
		return store.NewUserRepository(dbConn), nil
	}
	if !cfg.Database.MemoryFallback {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.logger.Warn("postgres unavailable, serving users from memory; accounts will not survive a restart", "error", err)
	return store.NewMemoryUserRepository(), nil
}

func (s *Server) openSessionStores(ctx context.Context, cfg config.Config) (session.Store, oauthstate.Tracker, error) {
	switch cfg.Session.Backend {
	case "", "memory":
		return session.NewMemoryStore(cfg.Session.TTL), oauthstate.NewMemoryTracker(cfg.OAuth.StateTTL), nil
	case "redis":
		rdb, err := db.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		s.redis = rdb
		return session.NewRedisStore(rdb, cfg.Session.TTL), oauthstate.NewRedisTracker(rdb, cfg.OAuth.StateTTL), nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and releases the backing stores.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.closeBackends()
	return err
}

func (s *Server) closeBackends() {
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}
