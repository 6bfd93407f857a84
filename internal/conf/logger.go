// Package conf provides configuration management for qcline.
package conf

import "github.com/tphakala/qcline/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// It is fetched on every call so it follows SetGlobal, which runs after
// package init.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
