package rest

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/httpserver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/robalyx/cotd/internal/database/types"
	"github.com/robalyx/cotd/internal/settings"
	"github.com/robalyx/cotd/internal/setup/config"
	"github.com/robalyx/cotd/internal/worker/core"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SettingsStore reads and changes the bot settings.
type SettingsStore interface {
	Snapshot(ctx context.Context) settings.Snapshot
	SetNotificationsEnabled(ctx context.Context, enabled bool) (settings.Snapshot, error)
}

// TrackLister lists stored tracks.
type TrackLister interface {
	GetRecentTracks(ctx context.Context, limit int) ([]*types.Track, error)
}

// SubscriptionAdmin lists and clears subscriptions.
type SubscriptionAdmin interface {
	GetAllSubscriptions(ctx context.Context) ([]*types.Subscription, error)
	TruncateSubscriptions(ctx context.Context) error
}

// RefreshTrigger starts a refresh run in the background.
type RefreshTrigger interface {
	TriggerRefresh(suppressNotifications bool)
}

// StatusReader lists the last reported state of each job.
type StatusReader interface {
	GetAllStatuses(ctx context.Context) ([]core.Status, error)
}

// InteractionHandler answers raw Discord interaction payloads.
type InteractionHandler interface {
	HandleInteraction(ctx context.Context, body []byte) (discord.InteractionResponse, error)
}

// Dependencies bundles the collaborators of the API server.
type Dependencies struct {
	Settings      SettingsStore
	Tracks        TrackLister
	Subscriptions SubscriptionAdmin
	Trigger       RefreshTrigger
	Statuses      StatusReader
	Interactions  InteractionHandler
}

// Server implements the admin and interaction HTTP API.
type Server struct {
	deps       Dependencies
	adminKey   string
	envName    string
	publicKey  httpserver.PublicKey
	verify     bool
	trigger    *rate.Limiter
	validate   *validator.Validate
	router     *chi.Mux
	logger     *zap.Logger
	maxListing int
}

// NewServer creates the API server and its routes.
func NewServer(deps Dependencies, envName string, apiCfg *config.API, discordCfg *config.Discord, logger *zap.Logger) (*Server, error) {
	s := &Server{
		deps:       deps,
		adminKey:   apiCfg.AdminKey,
		envName:    envName,
		verify:     discordCfg.VerifySignatures,
		trigger:    newTriggerLimiter(apiCfg.TriggerRate, apiCfg.TriggerBurst),
		validate:   validator.New(),
		router:     chi.NewRouter(),
		logger:     logger.Named("rest"),
		maxListing: 100,
	}

	if s.verify {
		key, err := hex.DecodeString(discordCfg.PublicKey)
		if err != nil || len(key) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%w: discord public key must be %d hex encoded bytes",
				config.ErrInvalidConfig, ed25519.PublicKeySize)
		}

		s.publicKey = key
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// setupMiddleware configures the middleware stack.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleHealth)
	s.router.Post("/interaction", s.handleInteraction)

	s.router.Route("/admin", func(r chi.Router) {
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/maps", s.handleListMaps)
		r.Post("/maps", s.handleTriggerRefresh)
		r.Get("/subscriptions", s.handleListSubscriptions)
		r.Delete("/subscriptions", s.handleDeleteSubscriptions)
		r.Get("/jobs", s.handleListJobs)
	})
}

// requestLogger logs each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("Handled request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Duration("duration", time.Since(start)))
	})
}

// isProduction reports whether destructive admin routes are disabled.
func (s *Server) isProduction() bool {
	return config.IsProductionEnv(s.envName)
}

// newTriggerLimiter builds the manual refresh throttle. A zero rate disables it.
func newTriggerLimiter(perMinute, burst int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}

	if burst <= 0 {
		burst = 1
	}

	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst)
}
