package conf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func validSettings() *Settings {
	s := &Settings{
		Simulation: SimulationSettings{
			TickRate:        60,
			MaxStep:         0.05,
			SpeedMultiplier: 1,
			Geometry: GeometrySettings{
				EntryPosition:        -10,
				GateTolerance:        0.25,
				DispositionThreshold: 7,
				MaxTransit:           14,
				DispositionDuration:  0.8,
			},
			Sensors: []SensorSettings{
				{Type: "softness", Position: -4},
				{Type: "height", Position: 0},
				{Type: "size", Position: 4},
			},
		},
		Profiles: []ProfileSettings{
			{Name: "Brush-64", Diameter: 64, TargetHeight: 45, HeightTolerance: 1, SoftnessMin: 2, SoftnessMax: 3.5},
		},
		Lanes: []LaneSettings{
			{ID: "L1", Profile: "Brush-64", Speed: 2, SpawnRate: 12, Enabled: true},
		},
		EventBus: EventBusSettings{BufferSize: 10, Workers: 1},
	}
	return s
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(*Settings) {}, ""},
		{"missing sensor", func(s *Settings) { s.Simulation.Sensors = s.Simulation.Sensors[:2] }, "missing size sensor"},
		{"unknown sensor", func(s *Settings) { s.Simulation.Sensors[0].Type = "color" }, `sensor 0: unknown type "color"`},
		{"sensor past threshold", func(s *Settings) { s.Simulation.Sensors[2].Position = 9 }, "sensor size must sit between entry and disposition threshold"},
		{"threshold after max transit", func(s *Settings) { s.Simulation.Geometry.MaxTransit = 5 }, "disposition threshold must be before max transit"},
		{"nan noise", func(s *Settings) { s.Simulation.Noise.HeightSigma = math.NaN() }, "noise sigmas must be finite and not negative"},
		{"probability above one", func(s *Settings) { s.Simulation.HeightVariation.OverProbability = 1.5 }, "height variation probabilities must be between 0 and 1"},
		{"duplicate profile", func(s *Settings) { s.Profiles = append(s.Profiles, s.Profiles[0]) }, "profile Brush-64: duplicate name"},
		{"softness range inverted", func(s *Settings) { s.Profiles[0].SoftnessMin = 5 }, "profile Brush-64: softness min exceeds max"},
		{"zero height tolerance", func(s *Settings) { s.Profiles[0].HeightTolerance = 0 }, "profile Brush-64: height tolerance must be positive"},
		{"duplicate lane", func(s *Settings) { s.Lanes = append(s.Lanes, s.Lanes[0]) }, "lane L1: duplicate id"},
		{"no lanes", func(s *Settings) { s.Lanes = nil }, "at least one lane must be configured"},
		{"bad port", func(s *Settings) { s.WebServer = WebServerSettings{Enabled: true, Port: "http"} }, `webserver port "http" must be between 1 and 65535`},
		{"mqtt without broker", func(s *Settings) { s.MQTT = MQTTSettings{Enabled: true, Topic: "qc"} }, "MQTT broker URL is required when MQTT is enabled"},
		{"notification severity", func(s *Settings) {
			s.Notification = NotificationSettings{Enabled: true, URLs: []string{"generic://x"}, MinSeverity: "urgent", RateLimit: 1}
		}, `notification min severity "urgent" must be one of [low medium high critical]`},
		{"sentry without dsn", func(s *Settings) { s.Sentry = SentrySettings{Enabled: true, SampleRate: 1} }, "Sentry DSN is required when Sentry is enabled"},
		{"zero workers", func(s *Settings) { s.EventBus.Workers = 0 }, "event bus workers must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tt.mutate(s)

			err := ValidateSettings(s)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			var ve ValidationError
			if assert.ErrorAs(t, err, &ve) {
				assert.Contains(t, ve.Errors, tt.wantErr)
			}
		})
	}
}
