package line

import (
	"io"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/qcline/internal/classifier"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
	"github.com/tphakala/qcline/internal/profile"
)

const step = 0.05

var (
	brush64 = profile.Profile{Name: "Brush-64", Diameter: 64, TargetHeight: 45, HeightTolerance: 1.0, SoftnessMin: 2.0, SoftnessMax: 3.5}
	puff48  = profile.Profile{Name: "Puff-48", Diameter: 48, TargetHeight: 30, HeightTolerance: 0.8, SoftnessMin: 1.5, SoftnessMax: 3.0}
)

type recordingPublisher struct {
	alarms []Alarm
}

func (p *recordingPublisher) PublishAlarm(a Alarm) { p.alarms = append(p.alarms, a) }

type fakeHistory struct {
	records []CompletedItem
	resets  int
}

func (h *fakeHistory) RecordCompleted(c CompletedItem) error {
	h.records = append(h.records, c)
	return nil
}

func (h *fakeHistory) Reset() error {
	h.resets++
	h.records = nil
	return nil
}

type countingObserver struct {
	spawned, classified, completed, dropped, alarms int
}

func (o *countingObserver) ItemSpawned(string)                            { o.spawned++ }
func (o *countingObserver) ItemClassified(string, classifier.Verdict)     { o.classified++ }
func (o *countingObserver) ItemCompleted(string, classifier.Bin, float64) { o.completed++ }
func (o *countingObserver) ItemDropped(string)                            { o.dropped++ }
func (o *countingObserver) AlarmRaised(string, string)                    { o.alarms++ }

// testConfig is a noiseless two-lane line, so Brush-64 items measure exactly
// at target unless a scenario is active.
func testConfig() Config {
	return Config{
		Geometry: Geometry{
			EntryPosition:        -10,
			GateTolerance:        0.25,
			DispositionThreshold: 7,
			MaxTransit:           14,
			DispositionDuration:  0.5,
		},
		Sensors: []SensorSpec{
			{Type: SensorSoftness, Position: -4},
			{Type: SensorHeight, Position: 0},
			{Type: SensorSize, Position: 4},
		},
		Lanes: []LaneSpec{
			{ID: "L1", Profile: "Brush-64", Speed: 2, SpawnRate: 12, Enabled: true},
			{ID: "L2", Profile: "Puff-48", Speed: 2, SpawnRate: 12, Enabled: true},
		},
		Faults:          Faults{HeightSpike: 1.2, SoftnessDrift: 1.25, DiameterOffset: 6},
		SpeedMultiplier: 1,
	}
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	reg, err := profile.NewRegistry(brush64, puff48)
	require.NoError(t, err)

	base := []Option{
		WithRand(rand.New(rand.NewPCG(1, 2))),
		WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)),
		WithWallClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	}
	e, err := NewEngine(cfg, reg, append(base, opts...)...)
	require.NoError(t, err)
	return e
}

func tickUntil(t *testing.T, e *Engine, maxTicks int, cond func() bool) {
	t.Helper()
	for range maxTicks {
		if cond() {
			return
		}
		e.Tick(step)
	}
	require.True(t, cond(), "condition not reached after %d ticks", maxTicks)
}

func spawn(t *testing.T, e *Engine, lane string) *Item {
	t.Helper()
	it, err := e.Spawn(lane)
	require.NoError(t, err)
	require.NotNil(t, it)
	return it
}

func TestNominalItemLifecycle(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{}
	obs := &countingObserver{}
	e := newTestEngine(t, testConfig(), WithHistory(hist), WithObserver(obs))

	it := spawn(t, e, "L1")
	assert.Equal(t, StatusSpawned, it.Status)
	assert.InDelta(t, -10.0, it.Position, 1e-9)
	assert.InDelta(t, 45.0, it.Height, 1e-9)
	assert.InDelta(t, 2.75, it.Softness, 1e-9)

	e.Tick(step)
	got, ok := e.Item(it.ID)
	require.True(t, ok)
	assert.Equal(t, StatusInTransit, got.Status)
	assert.InDelta(t, -9.9, got.Position, 1e-9)

	tickUntil(t, e, 1000, func() bool {
		cur, _ := e.Item(it.ID)
		return cur.Status == StatusClassified
	})
	got, _ = e.Item(it.ID)
	assert.Equal(t, classifier.VerdictOK, got.Verdict)
	assert.Equal(t, classifier.BinAccept, got.Bin)
	require.Len(t, got.Readings, 3)
	assert.Equal(t, SensorSoftness, got.Readings[0].Type)
	assert.Equal(t, SensorHeight, got.Readings[1].Type)
	assert.Equal(t, SensorSize, got.Readings[2].Type)
	assert.Nil(t, got.Disposition)

	tickUntil(t, e, 1000, func() bool {
		_, alive := e.Item(it.ID)
		return !alive
	})

	snap := e.Snapshot()
	accept, _ := snap.Bin(classifier.BinAccept)
	assert.Equal(t, 1, accept.Count)
	assert.Equal(t, []ItemID{it.ID}, accept.Recent)
	assert.Empty(t, snap.Items)
	lane, _ := snap.Lane("L1")
	assert.Empty(t, lane.Items)

	assert.Equal(t, 1, snap.Stats.Global.Classified)
	assert.Equal(t, 1, snap.Stats.Global.OK)
	assert.Equal(t, 1, snap.Stats.Global.Completed)
	assert.Empty(t, snap.Alarms)

	require.Len(t, hist.records, 1)
	rec := hist.records[0]
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, classifier.BinAccept, rec.Bin)
	assert.Equal(t, "Brush-64", rec.Profile)
	assert.InDelta(t, 45.0, rec.TargetHeight, 1e-9)
	assert.Greater(t, rec.CompletedAt, rec.CreatedAt)

	assert.Equal(t, countingObserver{spawned: 1, classified: 1, completed: 1}, *obs)
}

func TestDispositionStartsAtThresholdAndLastsDuration(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	it := spawn(t, e, "L1")

	tickUntil(t, e, 1000, func() bool {
		cur, _ := e.Item(it.ID)
		return cur.Disposition != nil
	})
	cur, _ := e.Item(it.ID)
	assert.GreaterOrEqual(t, cur.Disposition.Start, 7.0)
	assert.Equal(t, classifier.BinAccept, cur.Disposition.Target)
	assert.InDelta(t, 0.0, cur.Disposition.Progress, 1e-9)

	// 0.5 s at 0.05 s per tick
	for range 9 {
		e.Tick(step)
	}
	cur, ok := e.Item(it.ID)
	require.True(t, ok)
	assert.InDelta(t, 0.9, cur.Disposition.Progress, 1e-6)
	assert.InDelta(t, cur.Disposition.Start, cur.Position, 1e-9, "belt transport stops during disposition")

	e.Tick(step)
	e.Tick(step)
	_, ok = e.Item(it.ID)
	assert.False(t, ok)
}

func runSingle(t *testing.T, sc Scenario, profiles ...profile.Profile) (*Engine, *recordingPublisher) {
	t.Helper()
	cfg := testConfig()
	cfg.Scenario = sc

	pub := &recordingPublisher{}
	var e *Engine
	if len(profiles) > 0 {
		reg, err := profile.NewRegistry(profiles...)
		require.NoError(t, err)
		cfg.Lanes = cfg.Lanes[:1]
		e, err = NewEngine(cfg, reg,
			WithAlarmPublisher(pub),
			WithLogger(logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)))
		require.NoError(t, err)
	} else {
		e = newTestEngine(t, cfg, WithAlarmPublisher(pub))
	}

	it := spawn(t, e, "L1")
	tickUntil(t, e, 1000, func() bool {
		_, alive := e.Item(it.ID)
		return !alive
	})
	return e, pub
}

func TestFaultScenarios(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		scenario Scenario
		verdict  classifier.Verdict
		bin      classifier.Bin
		severity Severity
	}{
		{"spike height", Scenario{SpikeHeight: true}, classifier.VerdictOverHeight, classifier.BinOverHeight, SeverityMedium},
		{"softness drift", Scenario{SoftnessDrift: true}, classifier.VerdictSoftFail, classifier.BinSoftFail, SeverityHigh},
		{"softness wins over spike", Scenario{SpikeHeight: true, SoftnessDrift: true}, classifier.VerdictSoftFail, classifier.BinSoftFail, SeverityHigh},
		{"wrong product", Scenario{WrongProduct: true}, classifier.VerdictSizeMismatch, classifier.BinSizeFail, SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, pub := runSingle(t, tt.scenario)

			snap := e.Snapshot()
			bin, _ := snap.Bin(tt.bin)
			assert.Equal(t, 1, bin.Count)
			assert.Equal(t, 1, snap.Stats.Global.Verdict(tt.verdict))

			require.Len(t, snap.Alarms, 1)
			a := snap.Alarms[0]
			assert.Equal(t, tt.verdict, a.Kind)
			assert.Equal(t, tt.severity, a.Severity)
			assert.Equal(t, "L1", a.Lane)
			assert.NotEmpty(t, a.ID)
			assert.NotEmpty(t, a.Message)
			assert.Equal(t, snap.Alarms, pub.alarms)
		})
	}
}

func TestWrongProductFallsBackToOffset(t *testing.T) {
	t.Parallel()

	e, _ := runSingle(t, Scenario{WrongProduct: true}, brush64)
	alarms := e.Alarms()
	require.Len(t, alarms, 1)
	assert.Equal(t, classifier.VerdictSizeMismatch, alarms[0].Kind)
	assert.Contains(t, alarms[0].Message, "70.00")
}

func TestAlarmLogKeepsNewestTwenty(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Scenario = Scenario{SpikeHeight: true}
	e := newTestEngine(t, cfg)

	for range 25 {
		spawn(t, e, "L1")
	}
	tickUntil(t, e, 1000, func() bool { return e.Stats().Global.Classified == 25 })

	alarms := e.Alarms()
	require.Len(t, alarms, AlarmCapacity)
	assert.Equal(t, ItemID(25), alarms[0].ItemID)
	assert.Equal(t, ItemID(6), alarms[AlarmCapacity-1].ItemID)
	assert.Equal(t, 25, e.Stats().Global.OverHeight)

	e.ClearAlarms()
	assert.Empty(t, e.Alarms())
}

func TestGateReadingRecordedOnce(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	it := spawn(t, e, "L1")

	tickUntil(t, e, 1000, func() bool {
		cur, _ := e.Item(it.ID)
		return len(cur.Readings) == 1
	})

	// Crawl through the rest of the softness gate window
	require.NoError(t, e.SetSpeed("L1", 0.01))
	for range 200 {
		e.Tick(step)
	}
	cur, _ := e.Item(it.ID)
	require.Len(t, cur.Readings, 1)
	assert.Equal(t, "L1-softness", cur.Readings[0].SensorID)

	snap := e.Snapshot()
	for _, s := range snap.Sensors {
		if s.ID == "L1-softness" {
			assert.True(t, s.HasValue)
			assert.InDelta(t, 2.75, s.LastValue, 1e-9)
		}
	}
}

func TestDisabledLaneDoesNotSpawn(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	require.NoError(t, e.SetEnabled("L1", false))

	it, err := e.Spawn("L1")
	require.NoError(t, err)
	assert.Nil(t, it)

	it, err = e.TrySpawnTick("L1", 1000)
	require.NoError(t, err)
	assert.Nil(t, it)

	assert.Zero(t, e.Stats().Global.Spawned)
	assert.Empty(t, e.Items())
}

func TestReenableRestartsCadence(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	require.NoError(t, e.SetEnabled("L1", false))
	for range 200 {
		e.Tick(0.5)
	}
	now := e.Clock()
	require.Equal(t, 100.0, now)

	require.NoError(t, e.SetEnabled("L1", true))
	lane, _ := e.Lane("L1")
	assert.InDelta(t, now, lane.LastSpawn, 1e-9)

	it, err := e.TrySpawnTick("L1", now+4.9)
	require.NoError(t, err)
	assert.Nil(t, it, "12 per minute is one every 5 s")

	it, err = e.TrySpawnTick("L1", now+5)
	require.NoError(t, err)
	require.NotNil(t, it)

	lane, _ = e.Lane("L1")
	assert.InDelta(t, now+5, lane.LastSpawn, 1e-9)
}

func TestTrySpawnAllHonoursCadence(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())

	items, err := e.TrySpawnAll(4)
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = e.TrySpawnAll(5)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "L1", items[0].Lane)
	assert.Equal(t, "L2", items[1].Lane)
	assert.Equal(t, "Puff-48", items[1].Profile)

	items, err = e.TrySpawnAll(6)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestEmergencyStopOnlySuppressesSpawning(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	it := spawn(t, e, "L1")

	e.SetEmergencyStop(true)
	assert.True(t, e.EmergencyStopped())

	blocked, err := e.Spawn("L1")
	require.NoError(t, err)
	assert.Nil(t, blocked)
	blocked, err = e.TrySpawnTick("L2", 1000)
	require.NoError(t, err)
	assert.Nil(t, blocked)

	tickUntil(t, e, 1000, func() bool {
		_, alive := e.Item(it.ID)
		return !alive
	})
	stats := e.Stats().Global
	assert.Equal(t, 1, stats.Spawned)
	assert.Equal(t, 1, stats.Completed)

	e.SetEmergencyStop(false)
	spawn(t, e, "L1")
}

func TestPauseFreezesTickAndSpawn(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	it := spawn(t, e, "L1")
	e.Tick(step)
	clock := e.Clock()

	e.Pause()
	assert.True(t, e.Paused())
	for range 100 {
		e.Tick(step)
	}
	assert.InDelta(t, clock, e.Clock(), 1e-12)
	cur, _ := e.Item(it.ID)
	assert.InDelta(t, -9.9, cur.Position, 1e-9)

	spawned, err := e.TrySpawnTick("L1", 1000)
	require.NoError(t, err)
	assert.Nil(t, spawned)

	e.Resume()
	e.Tick(step)
	cur, _ = e.Item(it.ID)
	assert.InDelta(t, -9.8, cur.Position, 1e-9)
}

func TestLaneOperationErrors(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())

	err := e.SetSpeed("X", 1)
	require.ErrorIs(t, err, ErrInvalidLaneOperation)
	assert.True(t, IsUnknownLane(err))

	for _, bad := range []float64{-1, math.NaN(), math.Inf(1)} {
		err = e.SetSpeed("L1", bad)
		require.ErrorIs(t, err, ErrInvalidLaneOperation)
		assert.False(t, IsUnknownLane(err))
	}
	lane, _ := e.Lane("L1")
	assert.InDelta(t, 2.0, lane.Speed, 1e-9)

	assert.ErrorIs(t, e.SetSpawnRate("L1", 0), ErrInvalidLaneOperation)
	assert.ErrorIs(t, e.SetEnabled("nope", true), ErrInvalidLaneOperation)

	_, err = e.Spawn("nope")
	assert.ErrorIs(t, err, ErrInvalidLaneOperation)
	_, err = e.TrySpawnTick("nope", 0)
	assert.ErrorIs(t, err, ErrInvalidLaneOperation)

	err = e.SetProfile("L1", "Ghost")
	require.ErrorIs(t, err, ErrUnknownProfile)
	assert.NotErrorIs(t, err, ErrInvalidLaneOperation)
	lane, _ = e.Lane("L1")
	assert.Equal(t, "Brush-64", lane.Profile)
}

func TestSetSpeedPropagatesToInFlightItems(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	a := spawn(t, e, "L1")
	b := spawn(t, e, "L2")

	require.NoError(t, e.SetSpeed("L1", 5))

	cur, _ := e.Item(a.ID)
	assert.InDelta(t, 5.0, cur.Velocity, 1e-9)
	other, _ := e.Item(b.ID)
	assert.InDelta(t, 2.0, other.Velocity, 1e-9)
}

func TestSetProfileAffectsOnlyFutureSpawns(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	first := spawn(t, e, "L1")
	require.NoError(t, e.SetProfile("L1", "Puff-48"))
	second := spawn(t, e, "L1")

	cur, _ := e.Item(first.ID)
	assert.Equal(t, "Brush-64", cur.Profile)
	assert.InDelta(t, 64.0, cur.Diameter, 1e-9)
	assert.Equal(t, "Puff-48", second.Profile)
	assert.InDelta(t, 48.0, second.Diameter, 1e-9)

	tickUntil(t, e, 1000, func() bool { return len(e.Items()) == 0 })
	assert.Equal(t, 2, e.Stats().Global.OK)
}

func TestUnclassifiedItemIsDropped(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	e := newTestEngine(t, testConfig(), WithObserver(obs))
	require.NoError(t, e.SetSpeed("L1", 2.3))
	it := spawn(t, e, "L1")

	// One second steps jump the gate windows
	for range 20 {
		e.Tick(1)
	}

	_, alive := e.Item(it.ID)
	assert.False(t, alive)
	stats := e.Stats()
	assert.Equal(t, 1, stats.Global.Dropped)
	assert.Equal(t, 1, stats.Lanes["L1"].Dropped)
	assert.Zero(t, stats.Global.Classified)
	assert.Equal(t, 1, obs.dropped)
}

func TestSpeedMultiplier(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	require.NoError(t, e.SetSpeedMultiplier(2))
	it := spawn(t, e, "L1")
	e.Tick(step)

	cur, _ := e.Item(it.ID)
	assert.InDelta(t, -9.8, cur.Position, 1e-9)

	assert.ErrorIs(t, e.SetSpeedMultiplier(-1), ErrInvalidSetting)
	assert.ErrorIs(t, e.SetSpeedMultiplier(math.NaN()), ErrInvalidSetting)
}

func TestSetNoiseValidation(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	require.NoError(t, e.SetNoise(0.4, 0.1))
	assert.Equal(t, Noise{HeightSigma: 0.4, SoftnessSigma: 0.1}, e.Snapshot().Noise)

	assert.ErrorIs(t, e.SetNoise(-0.1, 0.1), ErrInvalidSetting)
	assert.ErrorIs(t, e.SetNoise(0.1, math.Inf(1)), ErrInvalidSetting)
	assert.Equal(t, Noise{HeightSigma: 0.4, SoftnessSigma: 0.1}, e.Snapshot().Noise)
}

func TestInvalidSettingDoesNotMatchOtherValidationErrors(t *testing.T) {
	t.Parallel()

	other := errors.Newf("broker url is empty").
		Component("mqtt").
		Category(errors.CategoryValidation).
		Build()
	assert.NotErrorIs(t, other, ErrInvalidSetting)
	assert.NotErrorIs(t, other, ErrInvalidLaneOperation)

	e := newTestEngine(t, testConfig())
	err := e.SetSpeedMultiplier(-1)
	require.ErrorIs(t, err, ErrInvalidSetting)
	assert.True(t, errors.IsCategory(err, errors.CategoryLineSetting))
}

func TestUpsertProfileKeepsPreviousOnError(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	bad := brush64
	bad.SoftnessMin, bad.SoftnessMax = 4, 3
	require.ErrorIs(t, e.UpsertProfile(bad), ErrInvalidProfileSpec)

	got, _ := e.Profiles().Get("Brush-64")
	assert.Equal(t, brush64, got)

	edited := brush64
	edited.TargetHeight = 47
	require.NoError(t, e.UpsertProfile(edited))

	// Target height is copied at spawn
	it := spawn(t, e, "L1")
	assert.InDelta(t, 47.0, it.TargetHeight, 1e-9)
	assert.InDelta(t, 47.0, it.Height, 1e-9)
}

func TestProfileEditDoesNotReachInFlightItems(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{}
	e := newTestEngine(t, testConfig(), WithHistory(hist))

	it := spawn(t, e, "L1")
	e.Tick(step)

	edited := brush64
	edited.TargetHeight = 50
	edited.HeightTolerance = 0.5
	require.NoError(t, e.UpsertProfile(edited))

	tickUntil(t, e, 1000, func() bool { return len(hist.records) == 1 })
	rec := hist.records[0]
	assert.Equal(t, it.ID, rec.ID)
	assert.Equal(t, classifier.VerdictOK, rec.Verdict, "classified against the spawn-time profile")
	assert.Equal(t, classifier.BinAccept, rec.Bin)
	assert.InDelta(t, 45.0, rec.TargetHeight, 1e-9)

	// Only new spawns pick up the edit.
	next := spawn(t, e, "L1")
	assert.InDelta(t, 50.0, next.TargetHeight, 1e-9)
	tickUntil(t, e, 1000, func() bool { return len(hist.records) == 2 })
	assert.Equal(t, classifier.VerdictOK, hist.records[1].Verdict)
	assert.InDelta(t, 50.0, hist.records[1].TargetHeight, 1e-9)
}

func TestResetClearsRunState(t *testing.T) {
	t.Parallel()

	hist := &fakeHistory{}
	cfg := testConfig()
	cfg.Scenario = Scenario{SpikeHeight: true}
	e := newTestEngine(t, cfg, WithHistory(hist))

	spawn(t, e, "L1")
	spawn(t, e, "L1")
	tickUntil(t, e, 1000, func() bool { return e.Stats().Global.Completed == 1 || len(e.Items()) == 0 })
	e.SetEmergencyStop(true)
	require.NoError(t, e.SetSpeedMultiplier(1.5))

	e.Reset()

	snap := e.Snapshot()
	assert.Zero(t, snap.Clock)
	assert.False(t, snap.EmergencyStop)
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Alarms)
	assert.Equal(t, Counts{}, snap.Stats.Global)
	assert.Equal(t, Counts{}, snap.Stats.Lanes["L1"])
	for _, b := range snap.Bins {
		assert.Zero(t, b.Count)
	}
	for _, l := range snap.Lanes {
		assert.Zero(t, l.LastSpawn)
		assert.Empty(t, l.Items)
	}
	for _, s := range snap.Sensors {
		assert.False(t, s.HasValue)
	}
	assert.Equal(t, 1, hist.resets)
	assert.InDelta(t, 1.5, snap.SpeedMultiplier, 1e-9, "settings survive reset")
	assert.Len(t, snap.Profiles, 2)

	it := spawn(t, e, "L1")
	assert.Equal(t, ItemID(1), it.ID)
}

func TestStatisticsInvariantsUnderLoad(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Noise = Noise{HeightSigma: 0.5, SoftnessSigma: 0.3}
	cfg.HeightVariation = Variation{OverProbability: 0.1, OverBias: 2, UnderProbability: 0.1, UnderBias: -2, JitterProbability: 0.3, JitterAmplitude: 0.5}
	cfg.Lanes[0].SpawnRate = 60
	cfg.Lanes[1].SpawnRate = 45
	e := newTestEngine(t, cfg)

	prev := e.Stats()
	for i := range 4000 {
		_, err := e.TrySpawnAll(e.Clock())
		require.NoError(t, err)
		e.Tick(e.SafeStep(step))

		if i%50 != 0 {
			continue
		}
		cur := e.Stats()
		var sum Counts
		for _, c := range cur.Lanes {
			sum.Spawned += c.Spawned
			sum.Dropped += c.Dropped
			sum.Completed += c.Completed
			sum.Classified += c.Classified
			sum.OK += c.OK
			sum.SoftFail += c.SoftFail
			sum.OverHeight += c.OverHeight
			sum.UnderHeight += c.UnderHeight
			sum.SizeMismatch += c.SizeMismatch
			sum.Error += c.Error
		}
		require.Equal(t, sum, cur.Global)
		require.GreaterOrEqual(t, cur.Global.Classified, prev.Global.Classified)
		require.GreaterOrEqual(t, cur.Global.Spawned, prev.Global.Spawned)

		verdictSum := 0
		for _, v := range classifier.Verdicts {
			verdictSum += cur.Global.Verdict(v)
		}
		require.Equal(t, cur.Global.Classified, verdictSum)
		prev = cur
	}

	final := e.Stats().Global
	assert.Positive(t, final.Classified)
	assert.Positive(t, final.OverHeight+final.UnderHeight)
	assert.Zero(t, final.Dropped, "safe steps never skip a gate")
	assert.LessOrEqual(t, final.Completed, final.Classified)
	assert.Equal(t, final.Spawned, final.Dropped+final.Completed+len(e.Items()))
}

func TestSameSeedSameItems(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Noise = Noise{HeightSigma: 0.5, SoftnessSigma: 0.3}

	run := func() []float64 {
		e := newTestEngine(t, cfg, WithRand(rand.New(rand.NewPCG(7, 7))))
		var out []float64
		for range 10 {
			it := spawn(t, e, "L1")
			out = append(out, it.Height, it.Softness)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestSnapshotIsIsolated(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	it := spawn(t, e, "L1")
	e.Tick(step)

	snap := e.Snapshot()
	snap.Items[0].Position = 999
	snap.Lanes[0].Items[0] = 42
	snap.Stats.Lanes["L1"] = Counts{Spawned: 100}

	cur, _ := e.Item(it.ID)
	assert.InDelta(t, -9.9, cur.Position, 1e-9)
	lane, _ := e.Lane("L1")
	assert.Equal(t, []ItemID{it.ID}, lane.Items)
	assert.Equal(t, 1, e.Stats().Lanes["L1"].Spawned)
	assert.Len(t, snap.ItemsOnLane("L1"), 1)
	assert.Empty(t, snap.ItemsOnLane("L2"))
}

func TestSafeStep(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, testConfig())
	assert.InDelta(t, 0.05, e.SafeStep(0.05), 1e-12)

	require.NoError(t, e.SetSpeedMultiplier(10))
	assert.InDelta(t, 0.25/20, e.SafeStep(0.05), 1e-12)

	require.NoError(t, e.SetSpeedMultiplier(0))
	assert.InDelta(t, 0.05, e.SafeStep(0.05), 1e-12)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	t.Parallel()

	reg, err := profile.NewRegistry(brush64)
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Sensors = cfg.Sensors[:2]
	_, err = NewEngine(cfg, reg)
	require.Error(t, err)

	cfg = testConfig()
	_, err = NewEngine(cfg, reg)
	require.ErrorIs(t, err, ErrUnknownProfile, "L2 references Puff-48")

	_, err = NewEngine(testConfig(), nil)
	assert.Error(t, err)
}
