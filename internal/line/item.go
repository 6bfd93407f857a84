package line

import (
	"slices"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/profile"
)

// ItemID is the arena key of an item. IDs are assigned in spawn order.
type ItemID uint64

// Status is the lifecycle state of an item. Transitions only move forward.
type Status string

const (
	StatusSpawned    Status = "SPAWNED"
	StatusInTransit  Status = "IN_TRANSIT"
	StatusClassified Status = "CLASSIFIED"
	StatusCompleted  Status = "COMPLETED"
)

// SensorType is the quantity a sensor gate measures.
type SensorType string

const (
	SensorSoftness SensorType = "softness"
	SensorHeight   SensorType = "height"
	SensorSize     SensorType = "size"
)

// RequiredSensors must all report before an item is classified.
var RequiredSensors = []SensorType{SensorSoftness, SensorHeight, SensorSize}

// Reading is one value captured at a sensor gate.
type Reading struct {
	SensorID string     `json:"sensor_id"`
	Type     SensorType `json:"type"`
	Value    float64    `json:"value"`
	At       float64    `json:"at"` // simulation clock, seconds
}

// Tween moves a classified item into its bin. Progress runs from 0 to 1.
type Tween struct {
	Start    float64        `json:"start"` // belt position when disposition began
	Target   classifier.Bin `json:"target"`
	Progress float64        `json:"progress"`
	Duration float64        `json:"duration"` // seconds
}

// Advance moves the tween forward by dt seconds and reports completion.
func (t *Tween) Advance(dt float64) bool {
	if t.Duration <= 0 {
		t.Progress = 1
		return true
	}
	t.Progress = min(1, t.Progress+dt/t.Duration)
	return t.Progress >= 1
}

// Item is one unit under inspection.
type Item struct {
	ID           ItemID             `json:"id"`
	Lane         string             `json:"lane"`
	Profile      string             `json:"profile"`
	Diameter     float64            `json:"diameter"`
	TargetHeight float64            `json:"target_height"`
	Height       float64            `json:"height"`
	Softness     float64            `json:"softness"`
	Position     float64            `json:"position"`
	Velocity     float64            `json:"velocity"`
	CreatedAt    float64            `json:"created_at"`
	Readings     []Reading          `json:"readings"`
	Status       Status             `json:"status"`
	Verdict      classifier.Verdict `json:"verdict,omitempty"`
	Bin          classifier.Bin     `json:"bin,omitempty"`
	Reason       string             `json:"reason,omitempty"`
	Disposition  *Tween             `json:"disposition,omitempty"`

	// spec is the profile as it was at spawn. Profile edits never reach
	// items already on the belt.
	spec *profile.Profile
}

func (it *Item) hasReading(sensorID string) bool {
	return slices.ContainsFunc(it.Readings, func(r Reading) bool {
		return r.SensorID == sensorID
	})
}

func (it *Item) reading(typ SensorType) (Reading, bool) {
	for _, r := range it.Readings {
		if r.Type == typ {
			return r, true
		}
	}
	return Reading{}, false
}

func (it *Item) readyForClassification() bool {
	for _, typ := range RequiredSensors {
		if _, ok := it.reading(typ); !ok {
			return false
		}
	}
	return true
}

// measurement builds the classifier input from the recorded readings.
func (it *Item) measurement() classifier.Measurement {
	soft, _ := it.reading(SensorSoftness)
	height, _ := it.reading(SensorHeight)
	size, _ := it.reading(SensorSize)
	return classifier.Measurement{
		Softness: soft.Value,
		Height:   height.Value,
		Diameter: size.Value,
	}
}

// valueFor is what a sensor of the given type reads off the item.
func (it *Item) valueFor(typ SensorType) float64 {
	switch typ {
	case SensorSoftness:
		return it.Softness
	case SensorHeight:
		return it.Height
	default:
		return it.Diameter
	}
}

func (it *Item) clone() *Item {
	c := *it
	c.Readings = slices.Clone(it.Readings)
	if it.Disposition != nil {
		d := *it.Disposition
		c.Disposition = &d
	}
	return &c
}

// Sensor is a fixed gate on one lane.
type Sensor struct {
	ID        string     `json:"id"`
	Lane      string     `json:"lane"`
	Type      SensorType `json:"type"`
	Position  float64    `json:"position"`
	LastValue float64    `json:"last_value"`
	HasValue  bool       `json:"has_value"`
}

// BinState is the fill level of one outcome bin.
type BinState struct {
	ID     classifier.Bin `json:"id"`
	Name   string         `json:"name"`
	Count  int            `json:"count"`
	Recent []ItemID       `json:"recent"` // newest last, bounded
}

// maxRecentBinItems bounds BinState.Recent for long runs.
const maxRecentBinItems = 100

func (b *BinState) add(id ItemID) {
	b.Count++
	b.Recent = append(b.Recent, id)
	if over := len(b.Recent) - maxRecentBinItems; over > 0 {
		b.Recent = slices.Delete(b.Recent, 0, over)
	}
}
