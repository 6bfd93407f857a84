// config.go: settings struct for qcline and functions to load and save it.
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// EnvPrefix is prepended to every environment override, e.g.
// QCLINE_WEBSERVER_PORT=9090.
const EnvPrefix = "QCLINE"

// GeometrySettings places the lane landmarks on the transport axis.
// Positions are in scene units; items move in the positive direction.
type GeometrySettings struct {
	EntryPosition        float64 // coordinate where new items appear
	GateTolerance        float64 // max distance from a sensor for a reading to register
	DispositionThreshold float64 // classified items past this point head to their bin
	MaxTransit           float64 // unclassified items past this point are dropped
	DispositionDuration  float64 // seconds for the move into the bin
}

// SensorSettings describes one sensor gate; every lane gets the same set.
type SensorSettings struct {
	Type     string  // softness, height or size
	Position float64 // coordinate along the lane
}

// NoiseSettings holds the gaussian measurement noise.
type NoiseSettings struct {
	HeightSigma   float64 // mm
	SoftnessSigma float64 // softness scale units
}

// VariationSettings describes the process variation draw. Trials run in the
// order over, under, jitter and the first one that triggers is applied.
type VariationSettings struct {
	OverProbability   float64
	OverBias          float64
	UnderProbability  float64
	UnderBias         float64 // negative value
	JitterProbability float64
	JitterAmplitude   float64 // uniform in ±amplitude
}

// ScenarioSettings toggles fault injection for subsequent spawns.
type ScenarioSettings struct {
	SpikeHeight   bool
	SoftnessDrift bool
	WrongProduct  bool
}

// FaultSettings holds the magnitudes used by the fault scenarios.
type FaultSettings struct {
	HeightSpike    float64 // added to height under spikeHeight
	SoftnessDrift  float64 // subtracted from softness under softnessDrift
	DiameterOffset float64 // fallback shift under wrongProduct
}

// SimulationSettings contains everything the line engine and runner need.
type SimulationSettings struct {
	TickRate          int     // ticks per second in run mode
	MaxStep           float64 // largest dt handed to a single engine tick, seconds
	SpeedMultiplier   float64 // global transport speed multiplier
	Seed              int64   // random seed, 0 picks one from the clock
	Geometry          GeometrySettings
	Sensors           []SensorSettings
	Noise             NoiseSettings
	HeightVariation   VariationSettings
	SoftnessVariation VariationSettings
	Scenario          ScenarioSettings
	Faults            FaultSettings
}

// ProfileSettings is a product quality specification.
type ProfileSettings struct {
	Name            string
	Diameter        float64
	TargetHeight    float64
	HeightTolerance float64
	SoftnessMin     float64
	SoftnessMax     float64
}

// LaneSettings configures one transport lane at startup.
type LaneSettings struct {
	ID        string
	Profile   string
	Speed     float64 // units per second
	SpawnRate float64 // items per minute
	Enabled   bool
}

// WebServerSettings contains settings for the HTTP API.
type WebServerSettings struct {
	Enabled  bool
	Host     string
	Port     string
	CacheTTL time.Duration // lifetime of cached export responses
	Debug    bool
}

// MQTTSettings contains settings for the MQTT alarm publisher.
type MQTTSettings struct {
	Enabled  bool
	Broker   string // e.g. tcp://localhost:1883
	Topic    string // base topic, alarms go to <topic>/alarms/<lane>
	ClientID string
	Username string
	Password string
	QoS      int
	Retain   bool
	Timeout  time.Duration
}

// NotificationSettings contains settings for push notifications.
type NotificationSettings struct {
	Enabled     bool
	URLs        []string      // shoutrrr service URLs
	MinSeverity string        // low, medium, high or critical
	RateLimit   int           // notifications per minute
	Timeout     time.Duration // per send
}

// SentrySettings contains settings for error reporting.
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64
}

// HistorySettings contains settings for the completed-item history.
type HistorySettings struct {
	DSN                string        // sqlite DSN, in-memory by default
	SlowQueryThreshold time.Duration // queries slower than this log at WARN
}

// EventBusSettings sizes the asynchronous alarm bus.
type EventBusSettings struct {
	BufferSize int
	Workers    int
}

// Settings is the root of the qcline configuration.
type Settings struct {
	Debug bool // true to enable debug mode

	Main struct {
		Name string // instance name shown in API responses and notifications
	}

	Logging      logger.LoggingConfig `mapstructure:"logging"`
	Simulation   SimulationSettings
	Profiles     []ProfileSettings
	Lanes        []LaneSettings
	WebServer    WebServerSettings
	MQTT         MQTTSettings
	Notification NotificationSettings
	Sentry       SentrySettings
	History      HistorySettings
	EventBus     EventBusSettings
}

// settingsInstance is the last successfully loaded settings
var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads configFile, or searches the default config paths when it is
// empty, applies defaults and environment overrides and validates the
// result. A missing config file is not an error; defaults are used.
func Load(configFile string) (*Settings, error) {
	v, err := initViper(configFile)
	if err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()

	if used := v.ConfigFileUsed(); used != "" {
		GetLogger().Info("configuration loaded", logger.String("path", used))
	} else {
		GetLogger().Info("no config file found, using defaults")
	}

	return settings, nil
}

// initViper creates a viper instance with defaults, environment bindings and
// the config file if one is found.
func initViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configFile != "" {
		if _, err := os.Stat(configFile); err != nil {
			return nil, errors.New(err).
				Component("conf").
				Category(errors.CategoryFileIO).
				Context("path", configFile).
				Build()
		}
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		configPaths, err := GetDefaultConfigPaths()
		if err != nil {
			return nil, fmt.Errorf("error getting default config paths: %w", err)
		}
		for _, path := range configPaths {
			v.AddConfigPath(path)
		}
	}

	setDefaultConfig(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "read-config").
			Build()
	}

	return v, nil
}

// DefaultConfig returns the embedded default config.yaml.
func DefaultConfig() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// WriteDefaultConfig writes the embedded default config to path, creating
// parent directories. An existing file is left alone unless overwrite is set.
func WriteDefaultConfig(path string, overwrite bool) error {
	if _, err := os.Stat(path); err == nil && !overwrite {
		return errors.Newf("config file %s already exists", path).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}

	data, err := DefaultConfig()
	if err != nil {
		return fmt.Errorf("error reading embedded config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // config file is meant to be readable
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", path))
	return nil
}

// GetSettings returns the last loaded settings, nil before Load.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SaveYAMLConfig writes settings to configPath. It overwrites the existing
// file without preserving comments.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	// Write to a temp file in the same directory so the rename is atomic
	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // gone after a successful rename

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		// Cross-device rename, fall back to copy
		if err := moveFile(tempFileName, configPath); err != nil {
			return fmt.Errorf("error copying config file: %w", err)
		}
	}

	return nil
}
