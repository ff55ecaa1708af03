// Package handler provides HTTP handlers for all API endpoints.
// Handlers depend on narrow interfaces over the store, the pipeline trigger
// and the category service so they can be exercised without Postgres.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/stockwatch/stockwatch/internal/api/respond"
	"github.com/stockwatch/stockwatch/internal/cache"
	"github.com/stockwatch/stockwatch/internal/notifications"
	"github.com/stockwatch/stockwatch/internal/stock"
	"github.com/stockwatch/stockwatch/internal/store"
)

// Store is the persistence the handlers need.
type Store interface {
	HealthCheck(ctx context.Context) error
	ListItems(ctx context.Context, userID string) ([]stock.Item, error)
	LoadUserSettings(ctx context.Context, userID string) (store.UserSettings, time.Time, error)
	SaveUserSettings(ctx context.Context, userID string, us store.UserSettings) error
	SetPushToken(ctx context.Context, userID, token string) error
	ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]notifications.Record, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// CycleRunner runs a full stock check cycle.
type CycleRunner interface {
	Run(ctx context.Context) (notifications.CycleResult, error)
}

// UserRunner runs the stock check for one user.
type UserRunner interface {
	RunForUser(ctx context.Context, userID string) (notifications.UserResult, error)
}

// CategorySuggester proposes a category for a product name.
type CategorySuggester interface {
	Configured() bool
	Suggest(ctx context.Context, productName string) (string, error)
}

// Deps are the handler dependencies.
type Deps struct {
	Store      Store
	Cycle      CycleRunner
	Users      UserRunner
	Categories CategorySuggester
	Cache      *cache.Cache
	Logger     *slog.Logger
	Version    string
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store      Store
	cycle      CycleRunner
	users      UserRunner
	categories CategorySuggester
	cache      *cache.Cache
	validate   *validator.Validate
	logger     *slog.Logger
	version    string
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	c := d.Cache
	if c == nil {
		c = cache.New(false)
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      d.Store,
		cycle:      d.Cycle,
		users:      d.Users,
		categories: d.Categories,
		cache:      c,
		validate:   newValidator(),
		logger:     logger,
		version:    d.Version,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Stockwatch API",
		"version": h.version,
		"status":  "running",
		"docs":    "/docs",
		"features": map[string]bool{
			"cache":               h.cache.Enabled(),
			"categorySuggestions": h.categories != nil && h.categories.Configured(),
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
