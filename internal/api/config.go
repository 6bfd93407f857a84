// Package api provides the HTTP server for qcline. The server owns the echo
// instance and middleware stack while the JSON endpoints live in the v1
// subpackage.
package api

import (
	"net"
	"time"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
)

// GetLogger returns the api package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// Default constants for the HTTP server.
const (
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultCacheTTL        = 5 * time.Second
)

// Config holds the HTTP server configuration.
type Config struct {
	Host string
	Port string

	AllowedOrigins []string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	BodyLimit string        // e.g. "1M"
	CacheTTL  time.Duration // lifetime of cached export responses

	Debug bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		AllowedOrigins:  []string{"*"},
		ReadTimeout:     DefaultReadTimeout,
		WriteTimeout:    DefaultWriteTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		ShutdownTimeout: DefaultShutdownTimeout,
		BodyLimit:       "1M",
		CacheTTL:        DefaultCacheTTL,
	}
}

// ConfigFromSettings creates a Config from the application settings.
func ConfigFromSettings(settings *conf.Settings) *Config {
	cfg := DefaultConfig()
	if settings == nil {
		return cfg
	}

	cfg.Host = settings.WebServer.Host
	if settings.WebServer.Port != "" {
		cfg.Port = settings.WebServer.Port
	}
	if settings.WebServer.CacheTTL > 0 {
		cfg.CacheTTL = settings.WebServer.CacheTTL
	}
	cfg.Debug = settings.WebServer.Debug || settings.Debug
	return cfg
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.Newf("webserver port is required").
			Component("api").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if c.ShutdownTimeout <= 0 {
		return errors.Newf("shutdown timeout must be positive").
			Component("api").
			Category(errors.CategoryConfiguration).
			Context("shutdown_timeout", c.ShutdownTimeout.String()).
			Build()
	}
	return nil
}

// Address returns the listen address.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}
