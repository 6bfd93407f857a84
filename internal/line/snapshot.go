package line

import (
	"time"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/profile"
)

// Snapshot is a read-only copy of the engine state after a tick. It shares
// no memory with the engine and is safe to read from any goroutine.
type Snapshot struct {
	TakenAt         time.Time         `json:"taken_at"`
	Clock           float64           `json:"clock"`
	Paused          bool              `json:"paused"`
	EmergencyStop   bool              `json:"emergency_stop"`
	SpeedMultiplier float64           `json:"speed_multiplier"`
	Scenario        Scenario          `json:"scenario"`
	Noise           Noise             `json:"noise"`
	Geometry        Geometry          `json:"geometry"`
	Items           []*Item           `json:"items"`
	Lanes           []Lane            `json:"lanes"`
	Sensors         []Sensor          `json:"sensors"`
	Bins            []BinState        `json:"bins"`
	Alarms          []Alarm           `json:"alarms"`
	Stats           StatsSnapshot     `json:"stats"`
	Profiles        []profile.Profile `json:"profiles"`
}

// Snapshot copies the current state.
func (e *Engine) Snapshot() *Snapshot {
	s := &Snapshot{
		TakenAt:         e.now(),
		Clock:           e.clock,
		Paused:          e.paused,
		EmergencyStop:   e.estop,
		SpeedMultiplier: e.speedMultiplier,
		Scenario:        e.scenario,
		Noise:           e.gen.noise,
		Geometry:        e.geometry,
		Items:           e.Items(),
		Lanes:           make([]Lane, 0, len(e.laneOrder)),
		Bins:            make([]BinState, 0, len(classifier.Bins)),
		Alarms:          e.alarms.List(),
		Stats:           e.stats.Snapshot(),
		Profiles:        e.profiles.All(),
	}

	for _, id := range e.laneOrder {
		s.Lanes = append(s.Lanes, e.lanes[id].clone())
		for _, sensor := range e.sensors[id] {
			s.Sensors = append(s.Sensors, *sensor)
		}
	}
	for _, b := range classifier.Bins {
		bin := *e.bins[b]
		bin.Recent = append([]ItemID(nil), bin.Recent...)
		s.Bins = append(s.Bins, bin)
	}

	return s
}

// Lane returns the lane with the given id from the snapshot.
func (s *Snapshot) Lane(id string) (Lane, bool) {
	for _, l := range s.Lanes {
		if l.ID == id {
			return l, true
		}
	}
	return Lane{}, false
}

// Bin returns the state of one bin from the snapshot.
func (s *Snapshot) Bin(id classifier.Bin) (BinState, bool) {
	for _, b := range s.Bins {
		if b.ID == id {
			return b, true
		}
	}
	return BinState{}, false
}

// ItemsOnLane returns the snapshot items that belong to a lane.
func (s *Snapshot) ItemsOnLane(laneID string) []*Item {
	var out []*Item
	for _, it := range s.Items {
		if it.Lane == laneID {
			out = append(out, it)
		}
	}
	return out
}
