package line

import (
	"slices"
	"time"

	"github.com/tphakala/qcline/internal/classifier"
)

// AlarmCapacity is the number of alarms kept; older ones are evicted.
const AlarmCapacity = 20

// Severity ranks an alarm for display and notification filtering.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities, low is 1. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// SeverityForBin maps a destination bin to the alarm severity.
func SeverityForBin(b classifier.Bin) Severity {
	switch b {
	case classifier.BinSoftFail:
		return SeverityHigh
	case classifier.BinOverHeight, classifier.BinUnderHeight:
		return SeverityMedium
	case classifier.BinSizeFail:
		return SeverityCritical
	default:
		return SeverityLow
	}
}

// Alarm records one non-passing classification.
type Alarm struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	SimTime   float64            `json:"sim_time"`
	Lane      string             `json:"lane"`
	Profile   string             `json:"profile"`
	ItemID    ItemID             `json:"item_id"`
	Kind      classifier.Verdict `json:"kind"`
	Bin       classifier.Bin     `json:"bin"`
	Message   string             `json:"message"`
	Severity  Severity           `json:"severity"`
}

// AlarmLog keeps the newest AlarmCapacity alarms, newest first.
type AlarmLog struct {
	entries []Alarm
}

// NewAlarmLog returns an empty log.
func NewAlarmLog() *AlarmLog {
	return &AlarmLog{entries: make([]Alarm, 0, AlarmCapacity)}
}

// Push inserts a at the front, evicting the oldest entry when full.
func (l *AlarmLog) Push(a Alarm) {
	if len(l.entries) == AlarmCapacity {
		l.entries = l.entries[:AlarmCapacity-1]
	}
	l.entries = slices.Insert(l.entries, 0, a)
}

// List returns a copy of the log, newest first.
func (l *AlarmLog) List() []Alarm {
	return slices.Clone(l.entries)
}

// Len returns the number of stored alarms.
func (l *AlarmLog) Len() int { return len(l.entries) }

// Clear drops every alarm.
func (l *AlarmLog) Clear() {
	l.entries = l.entries[:0]
}
