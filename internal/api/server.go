package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	mw "github.com/tphakala/qcline/internal/api/middleware"
	v1 "github.com/tphakala/qcline/internal/api/v1"
	"github.com/tphakala/qcline/internal/buildinfo"
	"github.com/tphakala/qcline/internal/conf"
	qerrors "github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/history"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/observability"
	"github.com/tphakala/qcline/internal/simulator"
)

// Server is the HTTP server for qcline. It manages the echo instance, the
// middleware stack and all routes.
type Server struct {
	echo   *echo.Echo
	config *Config
	log    logger.Logger

	runner  *simulator.Runner
	history *history.Store
	metrics *observability.Metrics
	info    buildinfo.BuildInfo

	apiController *v1.Controller
}

// ServerOption is a functional option for configuring the Server.
type ServerOption func(*Server)

// WithHistory enables the history and CSV export endpoints.
func WithHistory(store *history.Store) ServerOption {
	return func(s *Server) { s.history = store }
}

// WithMetrics exposes m on /metrics and records request metrics into it.
func WithMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// WithBuildInfo sets the version reported by the health endpoint.
func WithBuildInfo(info buildinfo.BuildInfo) ServerOption {
	return func(s *Server) { s.info = info }
}

// New creates a server for runner. Routes are registered immediately so the
// server can be exercised with ServeHTTP before it listens.
func New(settings *conf.Settings, runner *simulator.Runner, opts ...ServerOption) (*Server, error) {
	config := ConfigFromSettings(settings)
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: config,
		runner: runner,
		log:    GetLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo = echo.New()
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Debug = config.Debug

	s.echo.Server.ReadTimeout = config.ReadTimeout
	s.echo.Server.WriteTimeout = config.WriteTimeout
	s.echo.Server.IdleTimeout = config.IdleTimeout

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	s.log.Info("HTTP server initialized",
		logger.String("address", config.Address()),
		logger.Bool("debug", config.Debug))

	return s, nil
}

// setupMiddleware configures the echo middleware stack.
func (s *Server) setupMiddleware() {
	s.echo.Use(echomw.Recover())
	if s.metrics != nil {
		s.echo.Use(mw.NewHTTPMetrics(s.metrics.HTTP))
	}
	s.echo.Use(mw.NewRequestLoggerWithSkipper(s.log, func(c echo.Context) bool {
		return c.Path() == "/metrics"
	}))

	security := mw.DefaultSecurityConfig()
	security.AllowedOrigins = s.config.AllowedOrigins
	s.echo.Use(mw.NewCORS(security))
	s.echo.Use(mw.NewBodyLimit(s.config.BodyLimit))
	s.echo.Use(mw.NewSecureHeaders(security))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() error {
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	opts := []v1.Option{v1.WithCacheTTL(s.config.CacheTTL)}
	if s.history != nil {
		opts = append(opts, v1.WithHistory(s.history))
	}
	if s.info != nil {
		opts = append(opts, v1.WithBuildInfo(s.info))
	}

	controller, err := v1.New(s.echo, s.runner, opts...)
	if err != nil {
		return qerrors.New(err).
			Component("api").
			Category(qerrors.CategoryConfiguration).
			Context("operation", "setup_routes").
			Build()
	}
	s.apiController = controller
	return nil
}

// Run serves HTTP until ctx is cancelled and then shuts the server down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", logger.String("address", s.config.Address()))
		errCh <- s.echo.Start(s.config.Address())
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return qerrors.New(err).
			Component("api").
			Category(qerrors.CategoryNetwork).
			Context("address", s.config.Address()).
			Build()
	case <-ctx.Done():
	}

	if err := s.Shutdown(); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return qerrors.New(err).
			Component("api").
			Category(qerrors.CategoryTimeout).
			Context("operation", "shutdown").
			Timing("shutdown", s.config.ShutdownTimeout).
			Build()
	}
	s.log.Info("HTTP server stopped")
	return nil
}

// APIController returns the v1 controller.
func (s *Server) APIController() *v1.Controller {
	return s.apiController
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// ServeHTTP lets the server be used as an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
