package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/profile"
)

// LaneUpdate is the body of PATCH /api/v1/lanes/:id. Omitted fields are
// left unchanged.
type LaneUpdate struct {
	Enabled   *bool    `json:"enabled,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	SpawnRate *float64 `json:"spawnRate,omitempty"`
	Profile   *string  `json:"profile,omitempty"`
}

// SpeedRequest is the body of PUT /api/v1/speed.
type SpeedRequest struct {
	Multiplier float64 `json:"multiplier"`
}

// UpdateLane handles PATCH /api/v1/lanes/:id. The update is all or nothing:
// when one field is rejected the fields already applied are rolled back.
func (c *Controller) UpdateLane(ctx echo.Context) error {
	id := ctx.Param("id")

	var req LaneUpdate
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid lane update", http.StatusBadRequest)
	}

	var updated line.Lane
	err := c.Runner.Do(ctx.Request().Context(), func(e *line.Engine) error {
		if err := e.RequireLane(id); err != nil {
			return err
		}
		prev, _ := e.Lane(id)

		applied, err := applyLaneUpdate(e, id, req)
		if err != nil {
			rollbackLane(e, &prev, applied)
			return err
		}

		updated, _ = e.Lane(id)
		return nil
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to update lane "+id, statusFor(err))
	}
	return ctx.JSON(http.StatusOK, updated)
}

// laneField names a LaneUpdate field that was applied to the engine.
type laneField int

const (
	fieldProfile laneField = iota
	fieldSpeed
	fieldSpawnRate
)

// applyLaneUpdate applies the validating fields first so that a rejected
// value never leaves the lane with a changed enabled state. It returns the
// fields applied before any error.
func applyLaneUpdate(e *line.Engine, id string, req LaneUpdate) ([]laneField, error) {
	var applied []laneField
	if req.Profile != nil {
		if err := e.SetProfile(id, *req.Profile); err != nil {
			return applied, err
		}
		applied = append(applied, fieldProfile)
	}
	if req.Speed != nil {
		if err := e.SetSpeed(id, *req.Speed); err != nil {
			return applied, err
		}
		applied = append(applied, fieldSpeed)
	}
	if req.SpawnRate != nil {
		if err := e.SetSpawnRate(id, *req.SpawnRate); err != nil {
			return applied, err
		}
		applied = append(applied, fieldSpawnRate)
	}
	if req.Enabled != nil {
		return applied, e.SetEnabled(id, *req.Enabled)
	}
	return applied, nil
}

// rollbackLane restores the applied fields to their values in prev.
func rollbackLane(e *line.Engine, prev *line.Lane, applied []laneField) {
	for _, f := range applied {
		switch f {
		case fieldProfile:
			_ = e.SetProfile(prev.ID, prev.Profile)
		case fieldSpeed:
			_ = e.SetSpeed(prev.ID, prev.Speed)
		case fieldSpawnRate:
			_ = e.SetSpawnRate(prev.ID, prev.SpawnRate)
		}
	}
}

// UpsertProfile handles PUT /api/v1/profiles/:name. The name in the path
// wins over any name in the body.
func (c *Controller) UpsertProfile(ctx echo.Context) error {
	var p profile.Profile
	if err := ctx.Bind(&p); err != nil {
		return c.HandleError(ctx, err, "Invalid profile", http.StatusBadRequest)
	}
	p.Name = ctx.Param("name")

	err := c.Runner.Do(ctx.Request().Context(), func(e *line.Engine) error {
		return e.UpsertProfile(p)
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to save profile "+p.Name, statusFor(err))
	}
	return ctx.JSON(http.StatusOK, p)
}

// SetScenario handles PUT /api/v1/scenario
func (c *Controller) SetScenario(ctx echo.Context) error {
	var sc line.Scenario
	if err := ctx.Bind(&sc); err != nil {
		return c.HandleError(ctx, err, "Invalid scenario", http.StatusBadRequest)
	}

	err := c.Runner.Do(ctx.Request().Context(), func(e *line.Engine) error {
		e.SetScenario(sc)
		return nil
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to set scenario", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, sc)
}

// SetNoise handles PUT /api/v1/noise
func (c *Controller) SetNoise(ctx echo.Context) error {
	var n line.Noise
	if err := ctx.Bind(&n); err != nil {
		return c.HandleError(ctx, err, "Invalid noise settings", http.StatusBadRequest)
	}

	err := c.Runner.Do(ctx.Request().Context(), func(e *line.Engine) error {
		return e.SetNoise(n.HeightSigma, n.SoftnessSigma)
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to set noise", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, n)
}

// SetSpeedMultiplier handles PUT /api/v1/speed
func (c *Controller) SetSpeedMultiplier(ctx echo.Context) error {
	var req SpeedRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid speed", http.StatusBadRequest)
	}

	err := c.Runner.Do(ctx.Request().Context(), func(e *line.Engine) error {
		return e.SetSpeedMultiplier(req.Multiplier)
	})
	if err != nil {
		return c.HandleError(ctx, err, "Failed to set speed multiplier", statusFor(err))
	}
	return ctx.JSON(http.StatusOK, req)
}
