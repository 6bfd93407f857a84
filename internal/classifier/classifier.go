// Package classifier implements the ordered quality decision tree applied to
// every inspected item.
//
// Checks run in a fixed order and the first failing check decides the
// outcome: softness, then height, then diameter. Classify is pure and safe
// for concurrent use.
package classifier

import (
	"fmt"
	"math"

	"github.com/tphakala/qcline/internal/profile"
)

// Verdict is the outcome of classifying one item.
type Verdict string

const (
	VerdictOK           Verdict = "OK"
	VerdictSoftFail     Verdict = "SOFT_FAIL"
	VerdictOverHeight   Verdict = "OVER_HEIGHT"
	VerdictUnderHeight  Verdict = "UNDER_HEIGHT"
	VerdictSizeMismatch Verdict = "SIZE_MISMATCH"
	VerdictError        Verdict = "ERROR"
)

// Verdicts lists every verdict in report order.
var Verdicts = []Verdict{
	VerdictOK,
	VerdictSoftFail,
	VerdictOverHeight,
	VerdictUnderHeight,
	VerdictSizeMismatch,
	VerdictError,
}

// Bin identifies an outcome bin.
type Bin string

const (
	BinAccept      Bin = "accept"
	BinSoftFail    Bin = "soft-fail"
	BinOverHeight  Bin = "over-height"
	BinUnderHeight Bin = "under-height"
	BinSizeFail    Bin = "size-fail"
)

// Bins lists the fixed bins in display order.
var Bins = []Bin{BinAccept, BinSoftFail, BinOverHeight, BinUnderHeight, BinSizeFail}

// Bin returns the bin items with verdict v are routed to.
func (v Verdict) Bin() Bin {
	switch v {
	case VerdictOK:
		return BinAccept
	case VerdictSoftFail:
		return BinSoftFail
	case VerdictOverHeight:
		return BinOverHeight
	case VerdictUnderHeight:
		return BinUnderHeight
	default:
		return BinSizeFail
	}
}

// DisplayName returns the operator-facing bin label.
func (b Bin) DisplayName() string {
	switch b {
	case BinAccept:
		return "Accept"
	case BinSoftFail:
		return "Softness reject"
	case BinOverHeight:
		return "Over height reject"
	case BinUnderHeight:
		return "Under height reject"
	case BinSizeFail:
		return "Size / error reject"
	default:
		return string(b)
	}
}

// DiameterTolerance is the fixed allowed deviation from the nominal diameter.
const DiameterTolerance = 1.0

// Measurement holds the values captured at the sensor gates.
type Measurement struct {
	Height   float64
	Softness float64
	Diameter float64
}

// Result is the verdict, destination bin and operator-readable reason.
type Result struct {
	Verdict Verdict `json:"verdict"`
	Bin     Bin     `json:"bin"`
	Reason  string  `json:"reason"`
}

// Classify evaluates m against p. A nil profile yields VerdictError routed
// to the size-fail bin.
func Classify(m Measurement, p *profile.Profile) Result {
	if p == nil {
		return Result{
			Verdict: VerdictError,
			Bin:     BinSizeFail,
			Reason:  "profile not registered",
		}
	}

	if m.Softness < p.SoftnessMin || m.Softness > p.SoftnessMax {
		return Result{
			Verdict: VerdictSoftFail,
			Bin:     BinSoftFail,
			Reason: fmt.Sprintf("softness %.2f outside range [%.2f, %.2f]",
				m.Softness, p.SoftnessMin, p.SoftnessMax),
		}
	}

	if dh := m.Height - p.TargetHeight; math.Abs(dh) >= p.HeightTolerance {
		if dh > 0 {
			return Result{
				Verdict: VerdictOverHeight,
				Bin:     BinOverHeight,
				Reason: fmt.Sprintf("height %.2f mm is %.2f mm over target %.2f mm (tolerance ±%.2f)",
					m.Height, dh, p.TargetHeight, p.HeightTolerance),
			}
		}
		return Result{
			Verdict: VerdictUnderHeight,
			Bin:     BinUnderHeight,
			Reason: fmt.Sprintf("height %.2f mm is %.2f mm under target %.2f mm (tolerance ±%.2f)",
				m.Height, -dh, p.TargetHeight, p.HeightTolerance),
		}
	}

	if math.Abs(m.Diameter-p.Diameter) > DiameterTolerance {
		return Result{
			Verdict: VerdictSizeMismatch,
			Bin:     BinSizeFail,
			Reason: fmt.Sprintf("diameter %.2f mm differs from nominal %.2f mm by more than %.1f mm",
				m.Diameter, p.Diameter, DiameterTolerance),
		}
	}

	return Result{Verdict: VerdictOK, Bin: BinAccept, Reason: "within spec"}
}
