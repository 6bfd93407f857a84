package notification

import "github.com/tphakala/qcline/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("notification")
