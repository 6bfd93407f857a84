package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func defaultSettings(t *testing.T) *conf.Settings {
	t.Helper()
	return testutil.SeededSettings(t, 42)
}

type frameRecorder struct {
	mu        sync.Mutex
	snapshots int
	ticks     int
}

func (f *frameRecorder) ObserveSnapshot(*line.Snapshot) {
	f.mu.Lock()
	f.snapshots++
	f.mu.Unlock()
}

func (f *frameRecorder) ObserveTick(float64) {
	f.mu.Lock()
	f.ticks++
	f.mu.Unlock()
}

func (f *frameRecorder) counts() (snapshots, ticks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshots, f.ticks
}

func TestBuildEngineFromDefaults(t *testing.T) {
	engine, err := BuildEngine(defaultSettings(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"L1", "L2", "L3"}, engine.LaneIDs())
	assert.Equal(t, []string{"Brush-64", "Puff-48", "Sponge-72"}, engine.Profiles().Names())

	l3, ok := engine.Lane("L3")
	require.True(t, ok)
	assert.Equal(t, "Sponge-72", l3.Profile)
	assert.InDelta(t, 10, l3.SpawnRate, 1e-9)
}

func TestBuildEngineRejectsBadInput(t *testing.T) {
	_, err := BuildEngine(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))

	settings := defaultSettings(t)
	settings.Lanes[0].Profile = "Mascara-9"
	_, err = BuildEngine(settings)
	require.Error(t, err)
	assert.ErrorIs(t, err, line.ErrUnknownProfile)
}

func TestSeedMakesRunsReproducible(t *testing.T) {
	run := func() []line.Alarm {
		settings := defaultSettings(t)
		settings.Simulation.Scenario.SoftnessDrift = true
		engine, err := BuildEngine(settings)
		require.NoError(t, err)
		r := New(engine)
		for range 60 {
			r.Step(1)
		}
		return r.Snapshot().Alarms
	}

	a, b := run(), run()
	require.NotEmpty(t, a)
	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Message, b[i].Message)
		assert.Equal(t, a[i].ItemID, b[i].ItemID)
	}
}

func TestStepSubdividesLargeFrames(t *testing.T) {
	engine, err := BuildEngine(defaultSettings(t))
	require.NoError(t, err)
	frames := &frameRecorder{}
	r := New(engine, WithFrameObserver(frames))

	// One huge frame must still pass every item through every gate
	r.Step(120)

	snap := r.Snapshot()
	assert.InDelta(t, 120, snap.Clock, 1e-6)
	assert.Positive(t, snap.Stats.Global.Spawned)
	assert.Positive(t, snap.Stats.Global.Completed)
	assert.Zero(t, snap.Stats.Global.Dropped)

	snapshots, ticks := frames.counts()
	assert.Equal(t, 1, snapshots)
	assert.Equal(t, 1, ticks)
}

func TestDoWithoutRunAppliesDirectly(t *testing.T) {
	engine, err := BuildEngine(defaultSettings(t))
	require.NoError(t, err)
	r := New(engine)

	require.NoError(t, r.Do(t.Context(), func(e *line.Engine) error {
		e.Pause()
		return nil
	}))
	assert.True(t, r.Snapshot().Paused)

	err = r.Do(t.Context(), func(e *line.Engine) error {
		return e.SetSpeed("L9", 1)
	})
	assert.True(t, line.IsUnknownLane(err))
}

func TestRunProcessesCommandsAndStops(t *testing.T) {
	engine, err := BuildEngine(defaultSettings(t))
	require.NoError(t, err)
	r := New(engine, WithTickRate(200), WithMaxStep(0.02))

	ctx, cancel := context.WithCancel(t.Context())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return r.Snapshot().Clock > 0.1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.Do(ctx, func(e *line.Engine) error {
		e.Pause()
		return nil
	}))
	paused := r.Snapshot()
	assert.True(t, paused.Paused)

	time.Sleep(50 * time.Millisecond)
	assert.InDelta(t, paused.Clock, r.Snapshot().Clock, 1e-9, "clock frozen while paused")

	assert.ErrorIs(t, r.Run(ctx), ErrRunnerStarted)

	cancel()
	require.NoError(t, testutil.ReceiveWithin(t, errCh, testutil.DefaultTestTimeout, "runner did not stop"))

	// After the loop exits commands still apply
	require.NoError(t, r.Do(t.Context(), func(e *line.Engine) error {
		e.Resume()
		return nil
	}))
	assert.False(t, r.Snapshot().Paused)
}

func TestDoHonoursContext(t *testing.T) {
	engine, err := BuildEngine(defaultSettings(t))
	require.NoError(t, err)
	r := New(engine, WithTickRate(100))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	require.Eventually(t, r.started.Load, time.Second, time.Millisecond)

	block := make(chan struct{})
	entered := make(chan struct{})
	go func() {
		_ = r.Do(t.Context(), func(*line.Engine) error {
			close(entered)
			<-block
			return nil
		})
	}()
	<-entered

	short, cancelShort := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancelShort()
	err = r.Do(short, func(*line.Engine) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	cancel()
	require.NoError(t, <-errCh)
}

func TestRunnerID(t *testing.T) {
	engine, err := BuildEngine(defaultSettings(t))
	require.NoError(t, err)

	assert.Len(t, New(engine).ID(), 36)
	assert.Equal(t, "run-7", New(engine, WithID("run-7")).ID())
	assert.NotEmpty(t, New(engine, WithID("")).ID())
}
