package line

import "github.com/tphakala/qcline/internal/classifier"

// Counts are the counters kept globally and for each lane.
type Counts struct {
	Spawned      int `json:"spawned"`
	Dropped      int `json:"dropped"`
	Completed    int `json:"completed"`
	Classified   int `json:"classified"`
	OK           int `json:"ok"`
	SoftFail     int `json:"soft_fail"`
	OverHeight   int `json:"over_height"`
	UnderHeight  int `json:"under_height"`
	SizeMismatch int `json:"size_mismatch"`
	Error        int `json:"error"`
}

// Verdict returns the count for one verdict.
func (c Counts) Verdict(v classifier.Verdict) int {
	switch v {
	case classifier.VerdictOK:
		return c.OK
	case classifier.VerdictSoftFail:
		return c.SoftFail
	case classifier.VerdictOverHeight:
		return c.OverHeight
	case classifier.VerdictUnderHeight:
		return c.UnderHeight
	case classifier.VerdictSizeMismatch:
		return c.SizeMismatch
	case classifier.VerdictError:
		return c.Error
	default:
		return 0
	}
}

// YieldPercent is the share of classified items that passed.
func (c Counts) YieldPercent() float64 {
	if c.Classified == 0 {
		return 0
	}
	return float64(c.OK) * 100 / float64(c.Classified)
}

func (c *Counts) addVerdict(v classifier.Verdict) {
	c.Classified++
	switch v {
	case classifier.VerdictOK:
		c.OK++
	case classifier.VerdictSoftFail:
		c.SoftFail++
	case classifier.VerdictOverHeight:
		c.OverHeight++
	case classifier.VerdictUnderHeight:
		c.UnderHeight++
	case classifier.VerdictSizeMismatch:
		c.SizeMismatch++
	case classifier.VerdictError:
		c.Error++
	}
}

// StatsSnapshot is a copy of the aggregator state.
type StatsSnapshot struct {
	Global Counts            `json:"global"`
	Lanes  map[string]Counts `json:"lanes"`
}

// Stats aggregates counters. Every update touches the lane and the global
// counters together so the global values always equal the lane sums.
type Stats struct {
	global Counts
	lanes  map[string]*Counts
}

// NewStats returns zeroed statistics for the given lanes.
func NewStats(laneIDs ...string) *Stats {
	s := &Stats{lanes: make(map[string]*Counts, len(laneIDs))}
	for _, id := range laneIDs {
		s.lanes[id] = &Counts{}
	}
	return s
}

func (s *Stats) lane(id string) *Counts {
	c, ok := s.lanes[id]
	if !ok {
		c = &Counts{}
		s.lanes[id] = c
	}
	return c
}

// RecordSpawn counts a spawned item.
func (s *Stats) RecordSpawn(laneID string) {
	s.global.Spawned++
	s.lane(laneID).Spawned++
}

// RecordDrop counts a force-dropped item.
func (s *Stats) RecordDrop(laneID string) {
	s.global.Dropped++
	s.lane(laneID).Dropped++
}

// RecordCompleted counts an item that reached its bin.
func (s *Stats) RecordCompleted(laneID string) {
	s.global.Completed++
	s.lane(laneID).Completed++
}

// RecordVerdict counts one classification.
func (s *Stats) RecordVerdict(laneID string, v classifier.Verdict) {
	s.global.addVerdict(v)
	s.lane(laneID).addVerdict(v)
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() StatsSnapshot {
	lanes := make(map[string]Counts, len(s.lanes))
	for id, c := range s.lanes {
		lanes[id] = *c
	}
	return StatsSnapshot{Global: s.global, Lanes: lanes}
}

// Reset zeroes every counter but keeps the known lanes.
func (s *Stats) Reset() {
	s.global = Counts{}
	for id := range s.lanes {
		s.lanes[id] = &Counts{}
	}
}
