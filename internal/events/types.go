// Package events provides an asynchronous event bus that fans alarms out to
// slow consumers (MQTT, push notifications) without blocking the simulation
// loop.
package events

import "github.com/tphakala/qcline/internal/line"

// AlarmEvent is an alarm raised by the line engine together with the name
// of the line instance that raised it.
type AlarmEvent struct {
	line.Alarm
	Source string `json:"source"`
}

// AlarmConsumer processes alarm events on a bus worker goroutine.
type AlarmConsumer interface {
	// Name returns the consumer name for identification
	Name() string

	// ProcessAlarm handles one event. Errors are counted and logged.
	ProcessAlarm(event AlarmEvent) error
}

// Stats contains runtime statistics for monitoring
type Stats struct {
	EventsReceived  uint64 `json:"events_received"`
	EventsProcessed uint64 `json:"events_processed"`
	EventsDropped   uint64 `json:"events_dropped"`
	ConsumerErrors  uint64 `json:"consumer_errors"`
}
