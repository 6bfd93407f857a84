// Package api implements the /api/v1 JSON endpoints that read the simulated
// line and apply operator controls to it.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/qcline/internal/buildinfo"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/history"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/simulator"
)

// DefaultCacheTTL is how long rendered CSV exports are served from cache.
const DefaultCacheTTL = 5 * time.Second

// Controller manages the API routes and their dependencies.
type Controller struct {
	Echo    *echo.Echo
	Group   *echo.Group
	Runner  *simulator.Runner
	History *history.Store
	Info    buildinfo.BuildInfo

	exportCache *cache.Cache
	cacheTTL    time.Duration
	startTime   time.Time
	log         logger.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithHistory enables the history and export endpoints.
func WithHistory(store *history.Store) Option {
	return func(c *Controller) { c.History = store }
}

// WithBuildInfo sets the version reported by the health endpoint.
func WithBuildInfo(info buildinfo.BuildInfo) Option {
	return func(c *Controller) { c.Info = info }
}

// WithCacheTTL sets the lifetime of cached exports.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Controller) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// New creates the controller and registers its routes on e under /api/v1.
func New(e *echo.Echo, runner *simulator.Runner, opts ...Option) (*Controller, error) {
	if e == nil || runner == nil {
		return nil, errors.Newf("api controller needs an echo instance and a runner").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}

	c := &Controller{
		Echo:      e,
		Runner:    runner,
		cacheTTL:  DefaultCacheTTL,
		startTime: time.Now(),
		log:       logger.Global().Module("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.exportCache = cache.New(c.cacheTTL, 2*c.cacheTTL)

	c.Group = e.Group("/api/v1")
	c.initRoutes()
	return c, nil
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/system", c.GetSystemInfo)

	c.Group.GET("/snapshot", c.GetSnapshot)
	c.Group.GET("/lanes", c.GetLanes)
	c.Group.GET("/lanes/:id", c.GetLane)
	c.Group.PATCH("/lanes/:id", c.UpdateLane)
	c.Group.GET("/items", c.GetItems)
	c.Group.GET("/bins", c.GetBins)
	c.Group.GET("/alarms", c.GetAlarms)
	c.Group.DELETE("/alarms", c.ClearAlarms)
	c.Group.GET("/stats", c.GetStats)
	c.Group.GET("/profiles", c.GetProfiles)
	c.Group.PUT("/profiles/:name", c.UpsertProfile)

	c.Group.PUT("/scenario", c.SetScenario)
	c.Group.PUT("/noise", c.SetNoise)
	c.Group.PUT("/speed", c.SetSpeedMultiplier)

	c.initControlRoutes()
	c.initHistoryRoutes()
}

// HealthCheck handles GET /api/v1/health
func (c *Controller) HealthCheck(ctx echo.Context) error {
	snap := c.Runner.Snapshot()
	uptime := time.Since(c.startTime)

	resp := map[string]any{
		"status":         "healthy",
		"run_id":         c.Runner.ID(),
		"clock":          snap.Clock,
		"paused":         snap.Paused,
		"emergency_stop": snap.EmergencyStop,
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}
	if c.Info != nil {
		resp["version"] = c.Info.GetVersion()
		resp["build_date"] = c.Info.GetBuildDate()
	}
	return ctx.JSON(http.StatusOK, resp)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: uuid.NewString()[:8],
	}
}

// HandleError logs err and writes it as an ErrorResponse.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Debug("API request rejected", fields...)
	}

	return ctx.JSON(code, resp)
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	case errors.Is(err, line.ErrUnknownProfile), line.IsUnknownLane(err):
		return http.StatusNotFound
	case errors.Is(err, line.ErrInvalidProfileSpec),
		errors.Is(err, line.ErrInvalidLaneOperation),
		errors.Is(err, line.ErrInvalidSetting):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
