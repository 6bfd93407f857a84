package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/profile"
)

// LaneDetail is a lane together with its items and counters.
type LaneDetail struct {
	line.Lane
	ActiveItems []*line.Item  `json:"active_items"`
	Sensors     []line.Sensor `json:"sensors"`
	Stats       line.Counts   `json:"stats"`
}

// GetSnapshot handles GET /api/v1/snapshot
func (c *Controller) GetSnapshot(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Runner.Snapshot())
}

// GetLanes handles GET /api/v1/lanes
func (c *Controller) GetLanes(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Runner.Snapshot().Lanes)
}

// GetLane handles GET /api/v1/lanes/:id
func (c *Controller) GetLane(ctx echo.Context) error {
	id := ctx.Param("id")
	snap := c.Runner.Snapshot()

	lane, ok := snap.Lane(id)
	if !ok {
		return c.HandleError(ctx, nil, "Lane not found: "+id, http.StatusNotFound)
	}

	detail := LaneDetail{
		Lane:        lane,
		ActiveItems: snap.ItemsOnLane(id),
		Stats:       snap.Stats.Lanes[id],
	}
	for _, s := range snap.Sensors {
		if s.Lane == id {
			detail.Sensors = append(detail.Sensors, s)
		}
	}
	return ctx.JSON(http.StatusOK, detail)
}

// GetItems handles GET /api/v1/items with an optional lane query parameter.
func (c *Controller) GetItems(ctx echo.Context) error {
	snap := c.Runner.Snapshot()

	laneID := ctx.QueryParam("lane")
	if laneID == "" {
		return ctx.JSON(http.StatusOK, snap.Items)
	}
	if _, ok := snap.Lane(laneID); !ok {
		return c.HandleError(ctx, nil, "Lane not found: "+laneID, http.StatusNotFound)
	}
	items := snap.ItemsOnLane(laneID)
	if items == nil {
		items = []*line.Item{}
	}
	return ctx.JSON(http.StatusOK, items)
}

// GetBins handles GET /api/v1/bins
func (c *Controller) GetBins(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.Runner.Snapshot().Bins)
}

// GetAlarms handles GET /api/v1/alarms. Alarms are returned newest first.
func (c *Controller) GetAlarms(ctx echo.Context) error {
	alarms := c.Runner.Snapshot().Alarms
	if alarms == nil {
		alarms = []line.Alarm{}
	}
	return ctx.JSON(http.StatusOK, alarms)
}

// StatsResponse adds derived yield figures to the counters.
type StatsResponse struct {
	line.StatsSnapshot
	Clock        float64            `json:"clock"`
	YieldPercent float64            `json:"yield_percent"`
	LaneYield    map[string]float64 `json:"lane_yield_percent"`
}

// GetStats handles GET /api/v1/stats
func (c *Controller) GetStats(ctx echo.Context) error {
	snap := c.Runner.Snapshot()

	resp := StatsResponse{
		StatsSnapshot: snap.Stats,
		Clock:         snap.Clock,
		YieldPercent:  snap.Stats.Global.YieldPercent(),
		LaneYield:     make(map[string]float64, len(snap.Stats.Lanes)),
	}
	for id, counts := range snap.Stats.Lanes {
		resp.LaneYield[id] = counts.YieldPercent()
	}
	return ctx.JSON(http.StatusOK, resp)
}

// GetProfiles handles GET /api/v1/profiles
func (c *Controller) GetProfiles(ctx echo.Context) error {
	profiles := c.Runner.Snapshot().Profiles
	if profiles == nil {
		profiles = []profile.Profile{}
	}
	return ctx.JSON(http.StatusOK, profiles)
}
