package events

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"
)

// DeduplicationConfig holds configuration for alarm deduplication
type DeduplicationConfig struct {
	TTL        time.Duration // repeats of the same lane and kind within TTL are suppressed
	MaxEntries int
}

// DefaultDeduplicationConfig returns default deduplication settings
func DefaultDeduplicationConfig() *DeduplicationConfig {
	return &DeduplicationConfig{
		TTL:        time.Minute,
		MaxEntries: 1000,
	}
}

// AlarmDeduplicator suppresses bursts of identical alarms, so a drifting
// lane produces one notification per TTL rather than one per item.
type AlarmDeduplicator struct {
	config *DeduplicationConfig
	now    func() time.Time

	mu       sync.Mutex
	lastSeen map[uint64]time.Time

	seen       atomic.Uint64
	suppressed atomic.Uint64
}

// NewAlarmDeduplicator creates a deduplicator.
func NewAlarmDeduplicator(config *DeduplicationConfig) *AlarmDeduplicator {
	if config == nil {
		config = DefaultDeduplicationConfig()
	}
	return &AlarmDeduplicator{
		config:   config,
		now:      time.Now,
		lastSeen: make(map[uint64]time.Time),
	}
}

// ShouldProcess reports whether the event is the first of its kind on its
// lane within the TTL.
func (d *AlarmDeduplicator) ShouldProcess(event AlarmEvent) bool {
	if d == nil || d.config.TTL <= 0 {
		return true
	}
	d.seen.Add(1)

	key := d.hash(event)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if last, ok := d.lastSeen[key]; ok && now.Sub(last) < d.config.TTL {
		d.suppressed.Add(1)
		return false
	}

	if len(d.lastSeen) >= d.config.MaxEntries {
		d.evictExpired(now)
	}
	d.lastSeen[key] = now
	return true
}

// evictExpired drops stale entries, or everything if none are stale; caller holds d.mu
func (d *AlarmDeduplicator) evictExpired(now time.Time) {
	for k, t := range d.lastSeen {
		if now.Sub(t) >= d.config.TTL {
			delete(d.lastSeen, k)
		}
	}
	if len(d.lastSeen) >= d.config.MaxEntries {
		clear(d.lastSeen)
	}
}

func (d *AlarmDeduplicator) hash(event AlarmEvent) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(event.Source))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(event.Lane))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(event.Kind))
	return h.Sum64()
}

// Stats returns how many events were checked and how many suppressed.
func (d *AlarmDeduplicator) Stats() (seen, suppressed uint64) {
	return d.seen.Load(), d.suppressed.Load()
}
