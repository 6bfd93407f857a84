package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/qcline/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadEmptyFileUsesDefaults(t *testing.T) {
	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, 60, settings.Simulation.TickRate)
	assert.InDelta(t, 0.25, settings.Simulation.Geometry.GateTolerance, 1e-9)
	require.Len(t, settings.Simulation.Sensors, 3)
	assert.Equal(t, "softness", settings.Simulation.Sensors[0].Type)
	require.Len(t, settings.Profiles, 3)
	assert.Equal(t, "Brush-64", settings.Profiles[0].Name)
	assert.InDelta(t, 45.0, settings.Profiles[0].TargetHeight, 1e-9)
	require.Len(t, settings.Lanes, 3)
	assert.Equal(t, "L1", settings.Lanes[0].ID)
	assert.True(t, settings.Lanes[0].Enabled)
	assert.Equal(t, 5*time.Second, settings.WebServer.CacheTTL)
	assert.Equal(t, DefaultHistoryDSN, settings.History.DSN)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	assert.False(t, settings.MQTT.Enabled)

	assert.Same(t, settings, GetSettings())
}

func TestEmbeddedConfigMatchesDefaults(t *testing.T) {
	data, err := DefaultConfig()
	require.NoError(t, err)

	fromFile, err := Load(writeConfig(t, string(data)))
	require.NoError(t, err)
	fromDefaults, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	assert.Equal(t, fromDefaults.Simulation, fromFile.Simulation)
	assert.Equal(t, fromDefaults.Profiles, fromFile.Profiles)
	assert.Equal(t, fromDefaults.Lanes, fromFile.Lanes)
	assert.Equal(t, fromDefaults.WebServer, fromFile.WebServer)
	assert.Equal(t, fromDefaults.MQTT, fromFile.MQTT)
	assert.Equal(t, fromDefaults.History, fromFile.History)
}

func TestLoadOverridesFromFile(t *testing.T) {
	settings, err := Load(writeConfig(t, `
simulation:
  seed: 42
  scenario:
    wrongproduct: true
lanes:
  - id: A
    profile: Puff-48
    speed: 1.5
    spawnrate: 30
    enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, int64(42), settings.Simulation.Seed)
	assert.True(t, settings.Simulation.Scenario.WrongProduct)
	require.Len(t, settings.Lanes, 1)
	assert.Equal(t, LaneSettings{ID: "A", Profile: "Puff-48", Speed: 1.5, SpawnRate: 30}, settings.Lanes[0])
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("QCLINE_WEBSERVER_PORT", "9090")
	t.Setenv("QCLINE_SIMULATION_SPEEDMULTIPLIER", "2.5")

	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)
	assert.Equal(t, "9090", settings.WebServer.Port)
	assert.InDelta(t, 2.5, settings.Simulation.SpeedMultiplier, 1e-9)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryFileIO))
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, `
simulation:
  tickrate: 0
lanes:
  - id: L1
    profile: Ghost
    speed: -1
    spawnrate: 0
`))
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Errors, "simulation tick rate must be between 1 and 1000")
	assert.Contains(t, ve.Errors, `lane L1: profile "Ghost" is not configured`)
	assert.Contains(t, ve.Errors, "lane L1: speed must not be negative")
	assert.Contains(t, ve.Errors, "lane L1: spawn rate must be positive")
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	settings, err := Load(writeConfig(t, "debug: false\n"))
	require.NoError(t, err)

	settings.Main.Name = "line-7"
	settings.Simulation.Noise.HeightSigma = 0.9
	settings.Notification.URLs = []string{"ntfy://ntfy.sh/qc"}
	settings.MQTT.Timeout = 3 * time.Second

	path := filepath.Join(t.TempDir(), "saved.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "line-7", reloaded.Main.Name)
	assert.InDelta(t, 0.9, reloaded.Simulation.Noise.HeightSigma, 1e-9)
	assert.Equal(t, []string{"ntfy://ntfy.sh/qc"}, reloaded.Notification.URLs)
	assert.Equal(t, 3*time.Second, reloaded.MQTT.Timeout)
	assert.Equal(t, settings.Lanes, reloaded.Lanes)
	assert.Equal(t, settings.Profiles, reloaded.Profiles)
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefaultConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Brush-64")

	assert.Error(t, WriteDefaultConfig(path, false))
	assert.NoError(t, WriteDefaultConfig(path, true))
}
