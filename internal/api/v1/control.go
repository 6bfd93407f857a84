package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/logger"
)

// ControlResult represents the result of a control action
type ControlResult struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Action    string    `json:"action"`
	Clock     float64   `json:"clock"`
	Timestamp time.Time `json:"timestamp"`
}

// Available control actions
const (
	ActionPause   = "pause"
	ActionResume  = "resume"
	ActionEStop   = "estop"
	ActionRelease = "release"
	ActionReset   = "reset"
)

type controlAction struct {
	message string
	apply   func(*line.Engine)
}

var controlActions = map[string]controlAction{
	ActionPause:   {"Simulation paused", (*line.Engine).Pause},
	ActionResume:  {"Simulation resumed", (*line.Engine).Resume},
	ActionEStop:   {"Emergency stop engaged", func(e *line.Engine) { e.SetEmergencyStop(true) }},
	ActionRelease: {"Emergency stop released", func(e *line.Engine) { e.SetEmergencyStop(false) }},
	ActionReset:   {"Simulation reset", (*line.Engine).Reset},
}

// initControlRoutes registers all control-related API endpoints
func (c *Controller) initControlRoutes() {
	controlGroup := c.Group.Group("/control")
	for action := range controlActions {
		controlGroup.POST("/"+action, c.Control(action))
	}
}

// Control returns the handler for POST /api/v1/control/<action>.
func (c *Controller) Control(action string) echo.HandlerFunc {
	ca, known := controlActions[action]
	return func(ctx echo.Context) error {
		if !known {
			return c.HandleError(ctx, nil, "Unknown control action: "+action, http.StatusNotFound)
		}

		var clock float64
		err := c.Runner.Do(ctx.Request().Context(), func(e *line.Engine) error {
			ca.apply(e)
			clock = e.Clock()
			return nil
		})
		if err != nil {
			return c.HandleError(ctx, err, "Failed to apply control action", statusFor(err))
		}

		if action == ActionReset {
			c.exportCache.Flush()
		}

		c.log.Info("control action applied",
			logger.String("action", action),
			logger.String("ip", ctx.RealIP()))

		return ctx.JSON(http.StatusOK, ControlResult{
			Success:   true,
			Message:   ca.message,
			Action:    action,
			Clock:     clock,
			Timestamp: time.Now(),
		})
	}
}

// ClearAlarms handles DELETE /api/v1/alarms
func (c *Controller) ClearAlarms(ctx echo.Context) error {
	err := c.Runner.Do(ctx.Request().Context(), func(e *line.Engine) error {
		e.ClearAlarms()
		return nil
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to clear alarms", statusFor(err))
	}
	return ctx.NoContent(http.StatusNoContent)
}
