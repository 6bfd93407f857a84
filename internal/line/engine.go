// Package line is the simulation core of the QC line: lanes, the item
// arena, sensor gates, classification, disposition, alarms and statistics.
//
// An Engine is single-writer. It has no locks and must only be driven from
// one goroutine; readers take a Snapshot, which shares no memory with the
// engine.
package line

import (
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/profile"
)

// Geometry places the landmarks on the transport axis.
type Geometry struct {
	EntryPosition        float64 `json:"entry_position"`
	GateTolerance        float64 `json:"gate_tolerance"`
	DispositionThreshold float64 `json:"disposition_threshold"`
	MaxTransit           float64 `json:"max_transit"`
	DispositionDuration  float64 `json:"disposition_duration"`
}

// SensorSpec places one sensor gate; every lane gets the full set.
type SensorSpec struct {
	Type     SensorType
	Position float64
}

// LaneSpec is the startup configuration of a lane.
type LaneSpec struct {
	ID        string
	Profile   string
	Speed     float64
	SpawnRate float64
	Enabled   bool
}

// Config is everything NewEngine needs besides the profile registry.
type Config struct {
	Geometry          Geometry
	Sensors           []SensorSpec
	Lanes             []LaneSpec
	Noise             Noise
	HeightVariation   Variation
	SoftnessVariation Variation
	Faults            Faults
	Scenario          Scenario
	SpeedMultiplier   float64
}

// AlarmPublisher receives every alarm the engine raises. It is called from
// inside Tick and must not block.
type AlarmPublisher interface {
	PublishAlarm(Alarm)
}

// CompletedItem is the history record of an item that reached its bin.
type CompletedItem struct {
	ID           ItemID
	Lane         string
	Profile      string
	Diameter     float64
	TargetHeight float64
	Height       float64
	Softness     float64
	Status       Status
	Verdict      classifier.Verdict
	Bin          classifier.Bin
	Reason       string
	CreatedAt    float64 // simulation clock
	CompletedAt  float64 // simulation clock
	Timestamp    time.Time
}

// HistorySink stores completed items.
type HistorySink interface {
	RecordCompleted(CompletedItem) error
	Reset() error
}

// Observer receives lifecycle notifications, typically for metrics.
type Observer interface {
	ItemSpawned(lane string)
	ItemClassified(lane string, verdict classifier.Verdict)
	ItemCompleted(lane string, bin classifier.Bin, transitSeconds float64)
	ItemDropped(lane string)
	AlarmRaised(lane, severity string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source. Use a seeded source for reproducible runs.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.gen.rng = rng }
}

// WithAlarmPublisher forwards raised alarms to p.
func WithAlarmPublisher(p AlarmPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithHistory records completed items in h.
func WithHistory(h HistorySink) Option {
	return func(e *Engine) { e.history = h }
}

// WithObserver reports lifecycle events to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithWallClock overrides the wall clock used for alarm timestamps.
func WithWallClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// Engine owns all simulation state.
type Engine struct {
	geometry    Geometry
	sensorSpecs []SensorSpec
	profiles    *profile.Registry

	lanes     map[string]*Lane
	laneOrder []string
	sensors   map[string][]*Sensor

	items  map[ItemID]*Item
	order  []ItemID // active items in spawn order
	nextID ItemID

	bins   map[classifier.Bin]*BinState
	alarms *AlarmLog
	stats  *Stats
	gen    *generator

	clock           float64
	paused          bool
	estop           bool
	speedMultiplier float64
	scenario        Scenario

	publisher AlarmPublisher
	history   HistorySink
	observer  Observer
	log       logger.Logger
	now       func() time.Time
}

// NewEngine builds an engine from cfg. Lanes must reference registered
// profiles and every sensor type must be present.
func NewEngine(cfg Config, profiles *profile.Registry, opts ...Option) (*Engine, error) {
	if profiles == nil {
		return nil, errors.Newf("profile registry is required").
			Component("line").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := validateConfig(&cfg, profiles); err != nil {
		return nil, err
	}

	e := &Engine{
		geometry:        cfg.Geometry,
		sensorSpecs:     slices.Clone(cfg.Sensors),
		profiles:        profiles,
		lanes:           make(map[string]*Lane, len(cfg.Lanes)),
		sensors:         make(map[string][]*Sensor, len(cfg.Lanes)),
		items:           make(map[ItemID]*Item),
		bins:            make(map[classifier.Bin]*BinState, len(classifier.Bins)),
		alarms:          NewAlarmLog(),
		speedMultiplier: cfg.SpeedMultiplier,
		scenario:        cfg.Scenario,
		gen: &generator{
			rng:               rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec,gocritic // unseeded engines draw a random seed
			noise:             cfg.Noise,
			heightVariation:   cfg.HeightVariation,
			softnessVariation: cfg.SoftnessVariation,
			faults:            cfg.Faults,
		},
		log: logger.Global().Module("line"),
		now: time.Now,
	}

	for _, spec := range cfg.Lanes {
		e.lanes[spec.ID] = &Lane{
			ID:        spec.ID,
			Profile:   spec.Profile,
			Speed:     spec.Speed,
			SpawnRate: spec.SpawnRate,
			Enabled:   spec.Enabled,
		}
		e.laneOrder = append(e.laneOrder, spec.ID)
		for _, s := range cfg.Sensors {
			e.sensors[spec.ID] = append(e.sensors[spec.ID], &Sensor{
				ID:       spec.ID + "-" + string(s.Type),
				Lane:     spec.ID,
				Type:     s.Type,
				Position: s.Position,
			})
		}
	}
	slices.Sort(e.laneOrder)
	e.stats = NewStats(e.laneOrder...)
	e.resetBins()

	for _, opt := range opts {
		opt(e)
	}

	return e, nil
}

func validateConfig(cfg *Config, profiles *profile.Registry) error {
	fail := func(format string, args ...any) error {
		return errors.Newf(format, args...).
			Component("line").
			Category(errors.CategoryConfiguration).
			Build()
	}

	g := cfg.Geometry
	if !(g.GateTolerance > 0) || !(g.DispositionDuration > 0) || !(g.DispositionThreshold < g.MaxTransit) {
		return fail("invalid geometry %+v", g)
	}
	if !finite(cfg.SpeedMultiplier) || cfg.SpeedMultiplier < 0 {
		return fail("invalid speed multiplier %v", cfg.SpeedMultiplier)
	}
	for _, typ := range RequiredSensors {
		if !slices.ContainsFunc(cfg.Sensors, func(s SensorSpec) bool { return s.Type == typ }) {
			return fail("missing %s sensor", typ)
		}
	}
	if len(cfg.Lanes) == 0 {
		return fail("at least one lane is required")
	}

	seen := make(map[string]bool, len(cfg.Lanes))
	for _, l := range cfg.Lanes {
		if l.ID == "" || seen[l.ID] {
			return fail("lane id %q is empty or duplicated", l.ID)
		}
		seen[l.ID] = true
		if _, err := profiles.MustResolve(l.Profile); err != nil {
			return err
		}
		if !finite(l.Speed) || l.Speed < 0 || !finite(l.SpawnRate) || l.SpawnRate <= 0 {
			return fail("lane %s has invalid speed or spawn rate", l.ID)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func (e *Engine) resetBins() {
	for _, b := range classifier.Bins {
		e.bins[b] = &BinState{ID: b, Name: b.DisplayName()}
	}
}

// Spawn creates an item on the lane. It returns nil without error when the
// lane is disabled or the line is emergency-stopped.
func (e *Engine) Spawn(laneID string) (*Item, error) {
	l, err := e.lane(laneID)
	if err != nil {
		return nil, err
	}
	if !l.Enabled || e.estop {
		return nil, nil
	}

	p, err := e.profiles.MustResolve(l.Profile)
	if err != nil {
		return nil, err
	}

	s := e.gen.sample(p, e.scenario, e.profiles.All())

	e.nextID++
	item := &Item{
		ID:           e.nextID,
		Lane:         l.ID,
		Profile:      p.Name,
		Diameter:     s.diameter,
		TargetHeight: p.TargetHeight,
		Height:       s.height,
		Softness:     s.softness,
		Position:     e.geometry.EntryPosition,
		Velocity:     l.Speed,
		CreatedAt:    e.clock,
		Status:       StatusSpawned,
		spec:         &p,
	}

	e.items[item.ID] = item
	e.order = append(e.order, item.ID)
	l.Items = append(l.Items, item.ID)
	e.stats.RecordSpawn(l.ID)
	if e.observer != nil {
		e.observer.ItemSpawned(l.ID)
	}

	e.log.Trace("item spawned",
		logger.Uint64("item_id", uint64(item.ID)),
		logger.String("lane", l.ID),
		logger.String("profile", p.Name),
		logger.Float64("height", item.Height),
		logger.Float64("softness", item.Softness),
		logger.Float64("diameter", item.Diameter))

	return item.clone(), nil
}

// Tick advances the simulation by dt seconds. It does nothing while paused.
// Items are processed in spawn order and every transition happens within
// the call.
func (e *Engine) Tick(dt float64) {
	if e.paused || !finite(dt) || dt <= 0 {
		return
	}
	e.clock += dt

	var done []ItemID
	for _, id := range e.order {
		it := e.items[id]

		if it.Status == StatusSpawned {
			it.Status = StatusInTransit
		}

		if it.Disposition != nil {
			if it.Disposition.Advance(dt) {
				e.complete(it)
				done = append(done, id)
			}
			continue
		}

		it.Position += it.Velocity * dt * e.speedMultiplier

		if it.Status == StatusInTransit {
			e.checkGates(it)
			if it.readyForClassification() {
				e.classify(it)
			}
		}

		switch {
		case it.Status == StatusClassified && it.Position >= e.geometry.DispositionThreshold:
			it.Disposition = &Tween{
				Start:    it.Position,
				Target:   it.Bin,
				Duration: e.geometry.DispositionDuration,
			}
		case it.Status != StatusClassified && it.Position > e.geometry.MaxTransit:
			e.drop(it)
			done = append(done, id)
		}
	}

	for _, id := range done {
		e.remove(id)
	}
}

func (e *Engine) checkGates(it *Item) {
	for _, s := range e.sensors[it.Lane] {
		if math.Abs(it.Position-s.Position) > e.geometry.GateTolerance || it.hasReading(s.ID) {
			continue
		}
		v := it.valueFor(s.Type)
		it.Readings = append(it.Readings, Reading{
			SensorID: s.ID,
			Type:     s.Type,
			Value:    v,
			At:       e.clock,
		})
		s.LastValue = v
		s.HasValue = true
	}
}

func (e *Engine) classify(it *Item) {
	// A missing spawn-time profile classifies as ERROR.
	res := classifier.Classify(it.measurement(), it.spec)

	it.Status = StatusClassified
	it.Verdict = res.Verdict
	it.Bin = res.Bin
	it.Reason = res.Reason

	e.stats.RecordVerdict(it.Lane, res.Verdict)
	if e.observer != nil {
		e.observer.ItemClassified(it.Lane, res.Verdict)
	}

	if res.Verdict == classifier.VerdictOK {
		return
	}

	alarm := Alarm{
		ID:        uuid.NewString(),
		Timestamp: e.now(),
		SimTime:   e.clock,
		Lane:      it.Lane,
		Profile:   it.Profile,
		ItemID:    it.ID,
		Kind:      res.Verdict,
		Bin:       res.Bin,
		Message:   res.Reason,
		Severity:  SeverityForBin(res.Bin),
	}
	e.alarms.Push(alarm)
	if e.observer != nil {
		e.observer.AlarmRaised(it.Lane, string(alarm.Severity))
	}
	if e.publisher != nil {
		e.publisher.PublishAlarm(alarm)
	}

	e.log.Debug("item rejected",
		logger.Uint64("item_id", uint64(it.ID)),
		logger.String("lane", it.Lane),
		logger.String("verdict", string(res.Verdict)),
		logger.String("reason", res.Reason))
}

func (e *Engine) complete(it *Item) {
	it.Status = StatusCompleted
	e.bins[it.Bin].add(it.ID)
	e.stats.RecordCompleted(it.Lane)
	if e.observer != nil {
		e.observer.ItemCompleted(it.Lane, it.Bin, e.clock-it.CreatedAt)
	}

	if e.history == nil {
		return
	}
	rec := CompletedItem{
		ID:           it.ID,
		Lane:         it.Lane,
		Profile:      it.Profile,
		Diameter:     it.Diameter,
		TargetHeight: it.TargetHeight,
		Height:       it.Height,
		Softness:     it.Softness,
		Status:       it.Status,
		Verdict:      it.Verdict,
		Bin:          it.Bin,
		Reason:       it.Reason,
		CreatedAt:    it.CreatedAt,
		CompletedAt:  e.clock,
		Timestamp:    e.now(),
	}
	if err := e.history.RecordCompleted(rec); err != nil {
		e.log.Warn("failed to record completed item",
			logger.Uint64("item_id", uint64(it.ID)),
			logger.Error(err))
	}
}

func (e *Engine) drop(it *Item) {
	e.stats.RecordDrop(it.Lane)
	if e.observer != nil {
		e.observer.ItemDropped(it.Lane)
	}
	e.log.Warn("item dropped before classification",
		logger.Uint64("item_id", uint64(it.ID)),
		logger.String("lane", it.Lane),
		logger.Float64("position", it.Position),
		logger.Int("readings", len(it.Readings)))
}

func (e *Engine) remove(id ItemID) {
	it, ok := e.items[id]
	if !ok {
		return
	}
	delete(e.items, id)
	if i := slices.Index(e.order, id); i >= 0 {
		e.order = slices.Delete(e.order, i, i+1)
	}
	if l, ok := e.lanes[it.Lane]; ok {
		l.removeItem(id)
	}
}

// SafeStep returns the largest dt, capped at maxStep, that moves no item
// further than the gate tolerance, so a single tick can never jump a gate.
func (e *Engine) SafeStep(maxStep float64) float64 {
	fastest := 0.0
	for _, l := range e.lanes {
		fastest = max(fastest, l.Speed)
	}
	for _, it := range e.items {
		fastest = max(fastest, it.Velocity)
	}
	v := fastest * e.speedMultiplier
	if v <= 0 {
		return maxStep
	}
	return min(maxStep, e.geometry.GateTolerance/v)
}

// Pause stops Tick and TrySpawnTick until Resume.
func (e *Engine) Pause() {
	e.paused = true
	e.log.Info("simulation paused")
}

// Resume undoes Pause.
func (e *Engine) Resume() {
	e.paused = false
	e.log.Info("simulation resumed")
}

// SetEmergencyStop suppresses spawning while on. Items already on the belt
// keep moving and are still classified.
func (e *Engine) SetEmergencyStop(on bool) {
	e.estop = on
	if on {
		e.log.Warn("emergency stop engaged")
	} else {
		e.log.Info("emergency stop released")
	}
}

// Reset clears items, bins, alarms, statistics, history and the clock and
// releases the emergency stop. Lanes and profiles keep their configuration.
func (e *Engine) Reset() {
	clear(e.items)
	e.order = e.order[:0]
	e.nextID = 0
	e.clock = 0
	e.estop = false

	for _, l := range e.lanes {
		l.Items = nil
		l.LastSpawn = 0
	}
	for _, sensors := range e.sensors {
		for _, s := range sensors {
			s.LastValue = 0
			s.HasValue = false
		}
	}
	e.resetBins()
	e.alarms.Clear()
	e.stats.Reset()

	if e.history != nil {
		if err := e.history.Reset(); err != nil {
			e.log.Warn("failed to reset item history", logger.Error(err))
		}
	}
	e.log.Info("simulation reset")
}

// SetScenario replaces the active fault scenarios for future spawns.
func (e *Engine) SetScenario(sc Scenario) {
	e.scenario = sc
	e.log.Info("fault scenario changed",
		logger.Bool("spike_height", sc.SpikeHeight),
		logger.Bool("softness_drift", sc.SoftnessDrift),
		logger.Bool("wrong_product", sc.WrongProduct))
}

// SetNoise replaces the gaussian noise sigmas.
func (e *Engine) SetNoise(heightSigma, softnessSigma float64) error {
	if !finite(heightSigma) || heightSigma < 0 {
		return invalidSetting("height sigma", heightSigma, "must be finite and not negative")
	}
	if !finite(softnessSigma) || softnessSigma < 0 {
		return invalidSetting("softness sigma", softnessSigma, "must be finite and not negative")
	}
	e.gen.noise = Noise{HeightSigma: heightSigma, SoftnessSigma: softnessSigma}
	return nil
}

// SetSpeedMultiplier scales transport on every lane.
func (e *Engine) SetSpeedMultiplier(m float64) error {
	if !finite(m) || m < 0 {
		return invalidSetting("speed multiplier", m, "must be finite and not negative")
	}
	e.speedMultiplier = m
	return nil
}

// UpsertProfile adds or replaces a profile. Items already spawned keep
// the profile they were spawned with.
func (e *Engine) UpsertProfile(p profile.Profile) error {
	if err := e.profiles.Upsert(p); err != nil {
		return err
	}
	e.log.Info("profile updated", logger.String("profile", p.Name))
	return nil
}

// ClearAlarms empties the alarm log.
func (e *Engine) ClearAlarms() {
	e.alarms.Clear()
}

// Clock returns the simulation clock in seconds.
func (e *Engine) Clock() float64 { return e.clock }

// Paused reports whether the engine is paused.
func (e *Engine) Paused() bool { return e.paused }

// EmergencyStopped reports whether spawning is suppressed.
func (e *Engine) EmergencyStopped() bool { return e.estop }

// Item returns a copy of an active item.
func (e *Engine) Item(id ItemID) (*Item, bool) {
	it, ok := e.items[id]
	if !ok {
		return nil, false
	}
	return it.clone(), true
}

// Items returns copies of the active items in spawn order.
func (e *Engine) Items() []*Item {
	out := make([]*Item, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.items[id].clone())
	}
	return out
}

// Alarms returns the alarm log, newest first.
func (e *Engine) Alarms() []Alarm { return e.alarms.List() }

// Stats returns a copy of the counters.
func (e *Engine) Stats() StatsSnapshot { return e.stats.Snapshot() }

// Profiles returns the registry the engine classifies against.
func (e *Engine) Profiles() *profile.Registry { return e.profiles }
