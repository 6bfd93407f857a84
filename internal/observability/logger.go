package observability

import "github.com/tphakala/qcline/internal/logger"

// Package-level cached logger instance.
var log = logger.Global().Module("metrics")
