package line

import (
	"math"
	"math/rand/v2"

	"github.com/tphakala/qcline/internal/profile"
)

// Noise is the gaussian measurement noise added to every spawned item.
type Noise struct {
	HeightSigma   float64 `json:"height_sigma"`
	SoftnessSigma float64 `json:"softness_sigma"`
}

// Variation is the process variation draw. The over, under and jitter
// trials are independent and evaluated in that order; the first one that
// triggers is applied and the rest are ignored.
type Variation struct {
	OverProbability   float64 `json:"over_probability"`
	OverBias          float64 `json:"over_bias"`
	UnderProbability  float64 `json:"under_probability"`
	UnderBias         float64 `json:"under_bias"`
	JitterProbability float64 `json:"jitter_probability"`
	JitterAmplitude   float64 `json:"jitter_amplitude"`
}

func (v Variation) draw(rng *rand.Rand) float64 {
	switch {
	case rng.Float64() < v.OverProbability:
		return v.OverBias
	case rng.Float64() < v.UnderProbability:
		return v.UnderBias
	case rng.Float64() < v.JitterProbability:
		return (rng.Float64()*2 - 1) * v.JitterAmplitude
	default:
		return 0
	}
}

// Scenario toggles fault injection for subsequently spawned items.
type Scenario struct {
	SpikeHeight   bool `json:"spike_height"`
	SoftnessDrift bool `json:"softness_drift"`
	WrongProduct  bool `json:"wrong_product"`
}

// Faults are the magnitudes applied by the scenarios.
type Faults struct {
	HeightSpike    float64 `json:"height_spike"`
	SoftnessDrift  float64 `json:"softness_drift"`
	DiameterOffset float64 `json:"diameter_offset"`
}

// sample is the simulated physical state of a new item.
type sample struct {
	height   float64
	softness float64
	diameter float64
}

type generator struct {
	rng               *rand.Rand
	noise             Noise
	heightVariation   Variation
	softnessVariation Variation
	faults            Faults
}

// gaussian draws N(0, sigma) with the Box-Muller transform.
func (g *generator) gaussian(sigma float64) float64 {
	if sigma == 0 {
		return 0
	}
	u1 := 1 - g.rng.Float64() // (0, 1], keeps the log finite
	u2 := g.rng.Float64()
	return math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2) * sigma
}

func (g *generator) sample(p profile.Profile, sc Scenario, others []profile.Profile) sample {
	s := sample{
		height:   p.TargetHeight + g.heightVariation.draw(g.rng) + g.gaussian(g.noise.HeightSigma),
		softness: p.SoftnessMidpoint() + g.softnessVariation.draw(g.rng) + g.gaussian(g.noise.SoftnessSigma),
		diameter: p.Diameter,
	}

	if sc.SpikeHeight {
		s.height += g.faults.HeightSpike
	}
	if sc.SoftnessDrift {
		s.softness -= g.faults.SoftnessDrift
	}
	if sc.WrongProduct {
		s.diameter = g.wrongDiameter(p, others)
	}

	return s
}

// wrongDiameter picks the diameter of a profile that would fail the size
// check, or shifts the nominal one when no such profile exists.
func (g *generator) wrongDiameter(p profile.Profile, others []profile.Profile) float64 {
	var candidates []float64
	for _, o := range others {
		if o.Name != p.Name && math.Abs(o.Diameter-p.Diameter) > 1 {
			candidates = append(candidates, o.Diameter)
		}
	}
	if len(candidates) == 0 {
		return p.Diameter + g.faults.DiameterOffset
	}
	return candidates[g.rng.IntN(len(candidates))]
}
