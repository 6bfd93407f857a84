package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/qcline/internal/observability/metrics"
)

// NewHTTPMetrics records every request in m. Requests are labelled with the
// route template so path parameters do not create new series.
func NewHTTPMetrics(m *metrics.HTTPMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			} else if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			m.RecordRequest(c.Request().Method, path, status, time.Since(start))
			return err
		}
	}
}
