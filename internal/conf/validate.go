// conf/validate.go

package conf

import (
	"fmt"
	"math"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// SensorTypes are the gate types every lane must carry.
var SensorTypes = []string{"softness", "height", "size"}

// Severities are the accepted alarm severities, lowest first.
var Severities = []string{"low", "medium", "high", "critical"}

// ValidateSettings validates the entire Settings struct and reports every
// problem at once.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateSimulationSettings(&settings.Simulation)...)
	profiles, errs := validateProfiles(settings.Profiles)
	ve.Errors = append(ve.Errors, errs...)
	ve.Errors = append(ve.Errors, validateLanes(settings.Lanes, profiles)...)
	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)
	ve.Errors = append(ve.Errors, validateMQTTSettings(&settings.MQTT)...)
	ve.Errors = append(ve.Errors, validateNotificationSettings(&settings.Notification)...)
	ve.Errors = append(ve.Errors, validateSentrySettings(&settings.Sentry)...)

	if settings.EventBus.BufferSize <= 0 {
		ve.Errors = append(ve.Errors, "event bus buffer size must be positive")
	}
	if settings.EventBus.Workers <= 0 {
		ve.Errors = append(ve.Errors, "event bus workers must be positive")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateSimulationSettings(s *SimulationSettings) []string {
	var errs []string

	if s.TickRate <= 0 || s.TickRate > 1000 {
		errs = append(errs, "simulation tick rate must be between 1 and 1000")
	}
	if !finite(s.MaxStep) || s.MaxStep <= 0 {
		errs = append(errs, "simulation max step must be positive")
	}
	if !finite(s.SpeedMultiplier) || s.SpeedMultiplier < 0 {
		errs = append(errs, "simulation speed multiplier must not be negative")
	}

	g := s.Geometry
	if !finite(g.GateTolerance) || g.GateTolerance <= 0 {
		errs = append(errs, "gate tolerance must be positive")
	}
	if !finite(g.EntryPosition) || !finite(g.DispositionThreshold) || !finite(g.MaxTransit) {
		errs = append(errs, "geometry positions must be finite")
	} else if g.DispositionThreshold >= g.MaxTransit {
		errs = append(errs, "disposition threshold must be before max transit")
	}
	if !finite(g.DispositionDuration) || g.DispositionDuration <= 0 {
		errs = append(errs, "disposition duration must be positive")
	}

	seen := make(map[string]bool)
	for i, sensor := range s.Sensors {
		if !slices.Contains(SensorTypes, sensor.Type) {
			errs = append(errs, fmt.Sprintf("sensor %d: unknown type %q", i, sensor.Type))
			continue
		}
		if seen[sensor.Type] {
			errs = append(errs, fmt.Sprintf("sensor %d: duplicate type %q", i, sensor.Type))
		}
		seen[sensor.Type] = true
		if !finite(sensor.Position) || sensor.Position <= g.EntryPosition || sensor.Position >= g.DispositionThreshold {
			errs = append(errs, fmt.Sprintf("sensor %s must sit between entry and disposition threshold", sensor.Type))
		}
	}
	for _, typ := range SensorTypes {
		if !seen[typ] {
			errs = append(errs, fmt.Sprintf("missing %s sensor", typ))
		}
	}

	if !finite(s.Noise.HeightSigma) || s.Noise.HeightSigma < 0 ||
		!finite(s.Noise.SoftnessSigma) || s.Noise.SoftnessSigma < 0 {
		errs = append(errs, "noise sigmas must be finite and not negative")
	}

	errs = append(errs, validateVariation("height", s.HeightVariation)...)
	errs = append(errs, validateVariation("softness", s.SoftnessVariation)...)

	return errs
}

func validateVariation(name string, v VariationSettings) []string {
	var errs []string
	for _, p := range []float64{v.OverProbability, v.UnderProbability, v.JitterProbability} {
		if !finite(p) || p < 0 || p > 1 {
			errs = append(errs, name+" variation probabilities must be between 0 and 1")
			break
		}
	}
	if !finite(v.OverBias) || !finite(v.UnderBias) || !finite(v.JitterAmplitude) || v.JitterAmplitude < 0 {
		errs = append(errs, name+" variation magnitudes must be finite and jitter amplitude not negative")
	}
	return errs
}

// validateProfiles returns the set of valid profile names alongside errors.
func validateProfiles(profiles []ProfileSettings) (map[string]bool, []string) {
	var errs []string
	names := make(map[string]bool, len(profiles))

	if len(profiles) == 0 {
		errs = append(errs, "at least one profile must be configured")
	}

	for i, p := range profiles {
		label := p.Name
		if strings.TrimSpace(label) == "" {
			errs = append(errs, fmt.Sprintf("profile %d: name must not be empty", i))
			continue
		}
		if names[label] {
			errs = append(errs, fmt.Sprintf("profile %s: duplicate name", label))
		}
		names[label] = true

		for _, f := range []float64{p.Diameter, p.TargetHeight, p.HeightTolerance, p.SoftnessMin, p.SoftnessMax} {
			if !finite(f) {
				errs = append(errs, fmt.Sprintf("profile %s: values must be finite", label))
				break
			}
		}
		if p.SoftnessMin > p.SoftnessMax {
			errs = append(errs, fmt.Sprintf("profile %s: softness min exceeds max", label))
		}
		if p.Diameter <= 0 {
			errs = append(errs, fmt.Sprintf("profile %s: diameter must be positive", label))
		}
		if p.HeightTolerance <= 0 {
			errs = append(errs, fmt.Sprintf("profile %s: height tolerance must be positive", label))
		}
	}

	return names, errs
}

func validateLanes(lanes []LaneSettings, profiles map[string]bool) []string {
	var errs []string

	if len(lanes) == 0 {
		errs = append(errs, "at least one lane must be configured")
	}

	ids := make(map[string]bool, len(lanes))
	for i, lane := range lanes {
		if strings.TrimSpace(lane.ID) == "" {
			errs = append(errs, fmt.Sprintf("lane %d: id must not be empty", i))
			continue
		}
		if ids[lane.ID] {
			errs = append(errs, fmt.Sprintf("lane %s: duplicate id", lane.ID))
		}
		ids[lane.ID] = true

		if !profiles[lane.Profile] {
			errs = append(errs, fmt.Sprintf("lane %s: profile %q is not configured", lane.ID, lane.Profile))
		}
		if !finite(lane.Speed) || lane.Speed < 0 {
			errs = append(errs, fmt.Sprintf("lane %s: speed must not be negative", lane.ID))
		}
		if !finite(lane.SpawnRate) || lane.SpawnRate <= 0 {
			errs = append(errs, fmt.Sprintf("lane %s: spawn rate must be positive", lane.ID))
		}
	}

	return errs
}

func validateWebServerSettings(s *WebServerSettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("webserver port %q must be between 1 and 65535", s.Port))
	}
	if s.CacheTTL < 0 {
		errs = append(errs, "webserver cache ttl must not be negative")
	}
	return errs
}

func validateMQTTSettings(s *MQTTSettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if s.Broker == "" {
		errs = append(errs, "MQTT broker URL is required when MQTT is enabled")
	} else if u, err := url.Parse(s.Broker); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("MQTT broker %q is not a valid URL", s.Broker))
	}
	if s.Topic == "" {
		errs = append(errs, "MQTT topic is required when MQTT is enabled")
	}
	if s.QoS < 0 || s.QoS > 2 {
		errs = append(errs, "MQTT QoS must be 0, 1 or 2")
	}
	return errs
}

func validateNotificationSettings(s *NotificationSettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if len(s.URLs) == 0 {
		errs = append(errs, "notification URLs are required when notifications are enabled")
	}
	if !slices.Contains(Severities, s.MinSeverity) {
		errs = append(errs, fmt.Sprintf("notification min severity %q must be one of %v", s.MinSeverity, Severities))
	}
	if s.RateLimit <= 0 {
		errs = append(errs, "notification rate limit must be positive")
	}
	return errs
}

func validateSentrySettings(s *SentrySettings) []string {
	if !s.Enabled {
		return nil
	}

	var errs []string
	if s.DSN == "" {
		errs = append(errs, "Sentry DSN is required when Sentry is enabled")
	}
	if s.SampleRate < 0 || s.SampleRate > 1 {
		errs = append(errs, "Sentry sample rate must be between 0 and 1")
	}
	return errs
}
