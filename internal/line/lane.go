package line

import (
	"math"
	"slices"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
)

// Lane is one transport belt. Lanes hold item ids only; the engine arena
// owns the items.
type Lane struct {
	ID        string   `json:"id"`
	Profile   string   `json:"profile"`
	Speed     float64  `json:"speed"`      // units per second
	SpawnRate float64  `json:"spawn_rate"` // items per minute
	Enabled   bool     `json:"enabled"`
	LastSpawn float64  `json:"last_spawn"` // simulation clock, seconds
	Items     []ItemID `json:"items"`      // active items in spawn order
}

// SpawnInterval is the time between spawns in seconds (60000/rate ms).
func (l *Lane) SpawnInterval() float64 {
	return 60 / l.SpawnRate
}

func (l *Lane) removeItem(id ItemID) {
	if i := slices.Index(l.Items, id); i >= 0 {
		l.Items = slices.Delete(l.Items, i, i+1)
	}
}

func (l *Lane) clone() Lane {
	c := *l
	c.Items = slices.Clone(l.Items)
	return c
}

func (e *Engine) lane(id string) (*Lane, error) {
	l, ok := e.lanes[id]
	if !ok {
		return nil, unknownLane(id)
	}
	return l, nil
}

// SetEnabled enables or disables spawning on a lane. Enabling a disabled
// lane restarts its spawn cadence from the current clock.
func (e *Engine) SetEnabled(laneID string, enabled bool) error {
	l, err := e.lane(laneID)
	if err != nil {
		return err
	}
	if enabled && !l.Enabled {
		l.LastSpawn = e.clock
	}
	l.Enabled = enabled
	e.log.Info("lane enabled state changed",
		logger.String("lane", laneID),
		logger.Bool("enabled", enabled))
	return nil
}

// SetSpeed changes the transport speed of a lane. Items already on the lane
// take the new speed immediately.
func (e *Engine) SetSpeed(laneID string, speed float64) error {
	l, err := e.lane(laneID)
	if err != nil {
		return err
	}
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 {
		return invalidLaneValue(laneID, "speed", speed)
	}

	l.Speed = speed
	for _, id := range l.Items {
		if it, ok := e.items[id]; ok {
			it.Velocity = speed
		}
	}
	e.log.Debug("lane speed changed",
		logger.String("lane", laneID),
		logger.Float64("speed", speed),
		logger.Int("items_affected", len(l.Items)))
	return nil
}

// SetProfile assigns a profile to a lane for future spawns. In-flight items
// keep the profile they were spawned with.
func (e *Engine) SetProfile(laneID, name string) error {
	l, err := e.lane(laneID)
	if err != nil {
		return err
	}
	if _, err := e.profiles.MustResolve(name); err != nil {
		return errors.New(err).
			Component("line").
			Category(errors.CategoryProfileLookup).
			Context("lane", laneID).
			Context("profile", name).
			Build()
	}
	l.Profile = name
	e.log.Info("lane profile changed",
		logger.String("lane", laneID),
		logger.String("profile", name))
	return nil
}

// SetSpawnRate changes the spawn cadence in items per minute.
func (e *Engine) SetSpawnRate(laneID string, perMinute float64) error {
	l, err := e.lane(laneID)
	if err != nil {
		return err
	}
	if math.IsNaN(perMinute) || math.IsInf(perMinute, 0) || perMinute <= 0 {
		return invalidLaneValue(laneID, "spawn rate", perMinute)
	}
	l.SpawnRate = perMinute
	return nil
}

// TrySpawnTick spawns one item on the lane when its cadence has elapsed.
// It returns nil without error when nothing was due or spawning is gated.
func (e *Engine) TrySpawnTick(laneID string, now float64) (*Item, error) {
	l, err := e.lane(laneID)
	if err != nil {
		return nil, err
	}
	if e.paused || e.estop || !l.Enabled {
		return nil, nil
	}
	if now-l.LastSpawn < l.SpawnInterval() {
		return nil, nil
	}

	item, err := e.Spawn(laneID)
	if err != nil {
		return nil, err
	}
	if item != nil {
		l.LastSpawn = now
	}
	return item, nil
}

// TrySpawnAll runs TrySpawnTick for every lane in id order. Failures on one
// lane do not stop the others.
func (e *Engine) TrySpawnAll(now float64) ([]*Item, error) {
	var spawned []*Item
	var errs []error
	for _, id := range e.laneOrder {
		item, err := e.TrySpawnTick(id, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if item != nil {
			spawned = append(spawned, item)
		}
	}
	return spawned, errors.Join(errs...)
}

// LaneIDs returns the lane ids in sorted order.
func (e *Engine) LaneIDs() []string {
	return slices.Clone(e.laneOrder)
}

// Lane returns a copy of one lane.
func (e *Engine) Lane(id string) (Lane, bool) {
	l, ok := e.lanes[id]
	if !ok {
		return Lane{}, false
	}
	return l.clone(), true
}

// RequireLane returns an unknown lane error when id is not configured.
func (e *Engine) RequireLane(id string) error {
	_, err := e.lane(id)
	return err
}
