// Package worker provides the HTTP service for retroboard.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm/logger"

	"github.com/thebtf/retroboard/internal/auth"
	"github.com/thebtf/retroboard/internal/config"
	"github.com/thebtf/retroboard/internal/db"
	"github.com/thebtf/retroboard/internal/db/gorm"
	"github.com/thebtf/retroboard/internal/events"
	"github.com/thebtf/retroboard/internal/grouping"
	"github.com/thebtf/retroboard/internal/worker/sse"
	"github.com/thebtf/retroboard/pkg/similarity"
)

// Service configuration constants
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ReadyPollInterval is how often WaitReady checks initialization status.
	ReadyPollInterval = 50 * time.Millisecond

	// MaxRequestBodyBytes caps JSON request bodies.
	MaxRequestBodyBytes = 1 << 20
)

// Service is the main worker service orchestrator.
type Service struct {
	// Version of the worker binary
	version string

	// Configuration. suggestDefaults is swapped when the settings file changes.
	config          *config.Config
	suggestDefaults atomic.Pointer[similarity.Config]

	// Database
	store  *gorm.Store
	retros db.RetrospectiveStore
	cards  db.CardStore
	groups *grouping.Service

	// Real-time sync
	bus            events.Bus
	sseBroadcaster *sse.Broadcaster

	// Request handling
	verifier       *auth.Verifier
	suggestLimiter *UserRateLimiter
	suggestGroup   singleflight.Group
	suggestRuns    metric.Int64Counter

	// HTTP server
	router    *chi.Mux
	server    *http.Server
	startTime time.Time

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Initialization state (for deferred init)
	ready     atomic.Bool
	initError error
	initMu    sync.RWMutex
}

// NewService creates a new worker service with deferred initialization.
// The service starts immediately with health endpoints available, while the
// database and event bus are initialized in the background.
func NewService(version string, cfg *config.Config) *Service {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &Service{
		version:        version,
		config:         cfg,
		sseBroadcaster: sse.NewBroadcaster(),
		verifier: auth.NewVerifier(auth.Config{
			Secret:   cfg.AuthSecret,
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
		}),
		suggestLimiter: NewUserRateLimiter(SuggestRate, SuggestBurst),
		router:         chi.NewRouter(),
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
	}
	suggest := cfg.Suggest
	svc.suggestDefaults.Store(&suggest)

	runs, err := otel.Meter("github.com/thebtf/retroboard/internal/worker").Int64Counter(
		"retroboard.suggestions.runs",
		metric.WithDescription("Suggestion scans, by algorithm"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create suggestion metrics counter")
	}
	svc.suggestRuns = runs

	svc.setupMiddleware()
	svc.setupRoutes()

	go svc.initializeAsync()

	return svc
}

// initializeAsync opens the database and the event bus in the background.
func (s *Service) initializeAsync() {
	log.Info().Msg("Starting async initialization...")

	if s.config.DatabaseDSN == "" {
		if err := config.EnsureDataDir(); err != nil {
			s.setInitError(fmt.Errorf("ensure data dir: %w", err))
			return
		}
	}

	store, err := gorm.NewStore(gorm.Config{
		DSN:      s.config.DatabaseDSN,
		Path:     s.config.DBPath,
		MaxConns: s.config.MaxConns,
		LogLevel: logger.Silent,
	})
	if err != nil {
		s.setInitError(fmt.Errorf("init database: %w", err))
		return
	}
	bus, err := s.openBus()
	if err != nil {
		_ = store.Close()
		s.setInitError(fmt.Errorf("init event bus: %w", err))
		return
	}
	bus.Subscribe(s.sseBroadcaster.Broadcast)

	s.initMu.Lock()
	s.store = store
	s.retros = gorm.NewRetrospectiveStore(store)
	s.cards = gorm.NewCardStore(store)
	s.groups = grouping.NewService(gorm.NewGroupStore(store))
	s.bus = bus
	s.initMu.Unlock()

	s.ready.Store(true)
	log.Info().Str("dialect", store.Dialect()).Msg("Async initialization complete - service ready")
}

// openBus connects to Redis when configured and falls back to in-process delivery.
func (s *Service) openBus() (events.Bus, error) {
	if s.config.RedisURL == "" {
		return events.NewLocalBus(), nil
	}
	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()
	return events.NewRedisBus(ctx, s.config.RedisURL, s.config.EventsChannel)
}

// setInitError records an initialization error.
func (s *Service) setInitError(err error) {
	s.initMu.Lock()
	s.initError = err
	s.initMu.Unlock()
	log.Error().Err(err).Msg("Async initialization failed")
}

// GetInitError returns any initialization error.
func (s *Service) GetInitError() error {
	s.initMu.RLock()
	defer s.initMu.RUnlock()
	return s.initError
}

// WaitReady blocks until initialization finishes, fails, or ctx ends.
func (s *Service) WaitReady(ctx context.Context) error {
	ticker := time.NewTicker(ReadyPollInterval)
	defer ticker.Stop()
	for {
		if s.ready.Load() {
			return nil
		}
		if err := s.GetInitError(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// SetSuggestDefaults replaces the suggestion defaults used when a request does not
// override them. Invalid configurations are rejected.
func (s *Service) SetSuggestDefaults(cfg similarity.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.suggestDefaults.Store(&cfg)
	log.Info().
		Str("algorithm", string(cfg.Algorithm)).
		Float64("threshold", cfg.Threshold).
		Int("min_group_size", cfg.MinGroupSize).
		Int("max_group_size", cfg.MaxGroupSize).
		Msg("Suggestion defaults updated")
	return nil
}

// SuggestDefaults returns the current suggestion defaults.
func (s *Service) SuggestDefaults() similarity.Config {
	return *s.suggestDefaults.Load()
}

// setupMiddleware configures HTTP middleware.
func (s *Service) setupMiddleware() {
	s.router.Use(RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(SecurityHeaders(s.config.AllowedOrigins))
}

// setupRoutes configures HTTP routes.
func (s *Service) setupRoutes() {
	// Available during initialization
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/version", s.handleVersion)
	s.router.Get("/api/ready", s.handleReady)

	s.router.Group(func(r chi.Router) {
		r.Use(s.requireReady)
		r.Use(s.verifier.Middleware)

		// Streams are long-lived and must not be cut by the request timeout.
		r.Get("/api/events", s.sseBroadcaster.HandleSSE)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(DefaultHTTPTimeout))
			r.Use(MaxBodySize(MaxRequestBodyBytes))
			r.Use(RequireJSONContentType)

			r.Route("/api/retrospectives", func(r chi.Router) {
				r.Post("/", s.handleCreateRetrospective)
				r.Get("/", s.handleListRetrospectives)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetBoard)
					r.Post("/cards", s.handleCreateCard)
					r.Get("/cards", s.handleListCards)
					r.Post("/groups", s.handleCreateGroup)
					r.Get("/groups", s.handleBoardGroups)
					r.With(s.suggestLimiter.Middleware).Post("/suggestions", s.handleFindSuggestions)
					r.Post("/suggestions/accept", s.handleAcceptSuggestion)
				})
			})

			r.Route("/api/cards/{id}", func(r chi.Router) {
				r.Patch("/", s.handleUpdateCard)
				r.Delete("/", s.handleDeleteCard)
				r.Post("/vote", s.handleVote)
				r.Post("/like", s.handleToggleLike)
				r.Put("/reaction", s.handleSetReaction)
				r.Delete("/reaction", s.handleRemoveReaction)
				r.Delete("/group", s.handleRemoveFromGroup)
			})

			r.Route("/api/groups/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetGroup)
				r.Delete("/", s.handleDisbandGroup)
				r.Post("/cards", s.handleAddToGroup)
				r.Post("/collapse", s.handleToggleCollapse)
				r.Put("/title", s.handleRenameGroup)
			})
		})
	})
}

// Handler returns the HTTP handler of the service.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server on the configured port.
// Initialization may still be in progress when it returns.
func (s *Service) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.WorkerPort),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	log.Info().
		Int("port", s.config.WorkerPort).
		Bool("auth_dev_mode", s.verifier.DevMode()).
		Msg("Worker HTTP server started (initialization in progress)")
	return nil
}

// Shutdown gracefully shuts down the service.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	s.initMu.RLock()
	bus, store := s.bus, s.store
	s.initMu.RUnlock()

	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Error().Err(err).Msg("Event bus close error")
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("Database close error")
		}
	}

	s.wg.Wait()

	log.Info().Msg("Worker service shutdown complete")
	return nil
}
