package simulator

import (
	"math/rand/v2"
	"time"

	"github.com/tphakala/qcline/internal/conf"
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/line"
	"github.com/tphakala/qcline/internal/profile"
)

// ProfilesFromSettings builds the profile registry from the configured profiles.
func ProfilesFromSettings(settings *conf.Settings) (*profile.Registry, error) {
	profiles := make([]profile.Profile, 0, len(settings.Profiles))
	for i := range settings.Profiles {
		p := &settings.Profiles[i]
		profiles = append(profiles, profile.Profile{
			Name:            p.Name,
			Diameter:        p.Diameter,
			TargetHeight:    p.TargetHeight,
			HeightTolerance: p.HeightTolerance,
			SoftnessMin:     p.SoftnessMin,
			SoftnessMax:     p.SoftnessMax,
		})
	}
	return profile.NewRegistry(profiles...)
}

// ConfigFromSettings maps the simulation settings onto an engine config.
func ConfigFromSettings(settings *conf.Settings) line.Config {
	sim := &settings.Simulation

	cfg := line.Config{
		Geometry: line.Geometry{
			EntryPosition:        sim.Geometry.EntryPosition,
			GateTolerance:        sim.Geometry.GateTolerance,
			DispositionThreshold: sim.Geometry.DispositionThreshold,
			MaxTransit:           sim.Geometry.MaxTransit,
			DispositionDuration:  sim.Geometry.DispositionDuration,
		},
		Noise: line.Noise{
			HeightSigma:   sim.Noise.HeightSigma,
			SoftnessSigma: sim.Noise.SoftnessSigma,
		},
		HeightVariation:   variation(sim.HeightVariation),
		SoftnessVariation: variation(sim.SoftnessVariation),
		Faults: line.Faults{
			HeightSpike:    sim.Faults.HeightSpike,
			SoftnessDrift:  sim.Faults.SoftnessDrift,
			DiameterOffset: sim.Faults.DiameterOffset,
		},
		Scenario: line.Scenario{
			SpikeHeight:   sim.Scenario.SpikeHeight,
			SoftnessDrift: sim.Scenario.SoftnessDrift,
			WrongProduct:  sim.Scenario.WrongProduct,
		},
		SpeedMultiplier: sim.SpeedMultiplier,
	}

	for _, s := range sim.Sensors {
		cfg.Sensors = append(cfg.Sensors, line.SensorSpec{
			Type:     line.SensorType(s.Type),
			Position: s.Position,
		})
	}
	for _, l := range settings.Lanes {
		cfg.Lanes = append(cfg.Lanes, line.LaneSpec{
			ID:        l.ID,
			Profile:   l.Profile,
			Speed:     l.Speed,
			SpawnRate: l.SpawnRate,
			Enabled:   l.Enabled,
		})
	}
	return cfg
}

func variation(v conf.VariationSettings) line.Variation {
	return line.Variation{
		OverProbability:   v.OverProbability,
		OverBias:          v.OverBias,
		UnderProbability:  v.UnderProbability,
		UnderBias:         v.UnderBias,
		JitterProbability: v.JitterProbability,
		JitterAmplitude:   v.JitterAmplitude,
	}
}

// NewRand returns the engine's random source. A zero seed picks one from
// the wall clock.
func NewRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := uint64(seed)
	return rand.New(rand.NewPCG(s, s^0x9e3779b97f4a7c15))
}

// BuildEngine creates an engine from settings. Extra options are applied
// after the random source so callers can override it.
func BuildEngine(settings *conf.Settings, opts ...line.Option) (*line.Engine, error) {
	if settings == nil {
		return nil, errors.Newf("settings are required").
			Component("simulator").
			Category(errors.CategoryConfiguration).
			Build()
	}

	registry, err := ProfilesFromSettings(settings)
	if err != nil {
		return nil, err
	}

	all := append([]line.Option{line.WithRand(NewRand(settings.Simulation.Seed))}, opts...)
	return line.NewEngine(ConfigFromSettings(settings), registry, all...)
}
