// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/qcline/internal/logger"
)

// DefaultHistoryDSN keeps the history in a shared in-memory SQLite database.
const DefaultHistoryDSN = "file:qcline?mode=memory&cache=shared"

// Sets default values for the configuration.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("main.name", "qcline")

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	v.SetDefault("simulation.tickrate", 60)
	v.SetDefault("simulation.maxstep", 0.05)
	v.SetDefault("simulation.speedmultiplier", 1.0)
	v.SetDefault("simulation.seed", 0)

	v.SetDefault("simulation.geometry.entryposition", -10.0)
	v.SetDefault("simulation.geometry.gatetolerance", 0.25)
	v.SetDefault("simulation.geometry.dispositionthreshold", 7.0)
	v.SetDefault("simulation.geometry.maxtransit", 14.0)
	v.SetDefault("simulation.geometry.dispositionduration", 0.8)

	v.SetDefault("simulation.sensors", []map[string]any{
		{"type": "softness", "position": -4.0},
		{"type": "height", "position": 0.0},
		{"type": "size", "position": 4.0},
	})

	v.SetDefault("simulation.noise.heightsigma", 0.35)
	v.SetDefault("simulation.noise.softnesssigma", 0.12)

	v.SetDefault("simulation.heightvariation.overprobability", 0.04)
	v.SetDefault("simulation.heightvariation.overbias", 2.0)
	v.SetDefault("simulation.heightvariation.underprobability", 0.04)
	v.SetDefault("simulation.heightvariation.underbias", -2.0)
	v.SetDefault("simulation.heightvariation.jitterprobability", 0.25)
	v.SetDefault("simulation.heightvariation.jitteramplitude", 0.4)

	v.SetDefault("simulation.softnessvariation.overprobability", 0.03)
	v.SetDefault("simulation.softnessvariation.overbias", 1.2)
	v.SetDefault("simulation.softnessvariation.underprobability", 0.03)
	v.SetDefault("simulation.softnessvariation.underbias", -1.2)
	v.SetDefault("simulation.softnessvariation.jitterprobability", 0.2)
	v.SetDefault("simulation.softnessvariation.jitteramplitude", 0.2)

	v.SetDefault("simulation.scenario.spikeheight", false)
	v.SetDefault("simulation.scenario.softnessdrift", false)
	v.SetDefault("simulation.scenario.wrongproduct", false)

	v.SetDefault("simulation.faults.heightspike", 3.0)
	v.SetDefault("simulation.faults.softnessdrift", 1.5)
	v.SetDefault("simulation.faults.diameteroffset", 6.0)

	v.SetDefault("profiles", []map[string]any{
		{"name": "Brush-64", "diameter": 64.0, "targetheight": 45.0, "heighttolerance": 1.0, "softnessmin": 2.0, "softnessmax": 3.5},
		{"name": "Puff-48", "diameter": 48.0, "targetheight": 30.0, "heighttolerance": 0.8, "softnessmin": 1.5, "softnessmax": 3.0},
		{"name": "Sponge-72", "diameter": 72.0, "targetheight": 52.0, "heighttolerance": 1.2, "softnessmin": 3.0, "softnessmax": 4.5},
	})

	v.SetDefault("lanes", []map[string]any{
		{"id": "L1", "profile": "Brush-64", "speed": 2.0, "spawnrate": 12.0, "enabled": true},
		{"id": "L2", "profile": "Puff-48", "speed": 2.0, "spawnrate": 12.0, "enabled": true},
		{"id": "L3", "profile": "Sponge-72", "speed": 1.6, "spawnrate": 10.0, "enabled": true},
	})

	v.SetDefault("webserver.enabled", true)
	v.SetDefault("webserver.host", "0.0.0.0")
	v.SetDefault("webserver.port", "8080")
	v.SetDefault("webserver.cachettl", 5*time.Second)
	v.SetDefault("webserver.debug", false)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", "qcline")
	v.SetDefault("mqtt.clientid", "qcline")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.timeout", 5*time.Second)

	v.SetDefault("notification.enabled", false)
	v.SetDefault("notification.urls", []string{})
	v.SetDefault("notification.minseverity", "high")
	v.SetDefault("notification.ratelimit", 6)
	v.SetDefault("notification.timeout", 10*time.Second)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "production")
	v.SetDefault("sentry.samplerate", 1.0)

	v.SetDefault("history.dsn", DefaultHistoryDSN)
	v.SetDefault("history.slowquerythreshold", 200*time.Millisecond)

	v.SetDefault("eventbus.buffersize", 1000)
	v.SetDefault("eventbus.workers", 2)
}
