package line

import (
	"github.com/tphakala/qcline/internal/errors"
	"github.com/tphakala/qcline/internal/profile"
)

// Error kinds returned by engine operations. Match them with errors.Is.
var (
	ErrUnknownProfile     = profile.ErrUnknownProfile
	ErrInvalidProfileSpec = profile.ErrInvalidProfileSpec

	// ErrInvalidLaneOperation covers unknown lane ids and rejected lane values.
	ErrInvalidLaneOperation = errors.Newf("invalid lane operation").
				Component("line").
				Category(errors.CategoryLaneControl).
				Build()

	// ErrInvalidSetting is returned for rejected global settings.
	ErrInvalidSetting = errors.Newf("invalid setting").
				Component("line").
				Category(errors.CategoryLineSetting).
				Build()
)

const (
	ctxLaneError   = "lane_error"
	laneErrUnknown = "unknown-lane"
	laneErrValue   = "invalid-value"
)

func unknownLane(laneID string) error {
	return errors.Newf("lane %q does not exist", laneID).
		Component("line").
		Category(errors.CategoryLaneControl).
		Context("lane", laneID).
		Context(ctxLaneError, laneErrUnknown).
		Build()
}

func invalidLaneValue(laneID, field string, value any) error {
	return errors.Newf("lane %q: invalid %s %v", laneID, field, value).
		Component("line").
		Category(errors.CategoryLaneControl).
		Context("lane", laneID).
		Context("field", field).
		Context(ctxLaneError, laneErrValue).
		Build()
}

func invalidSetting(name string, value any, reason string) error {
	return errors.Newf("invalid %s %v: %s", name, value, reason).
		Component("line").
		Category(errors.CategoryLineSetting).
		Context("setting", name).
		Build()
}

// IsUnknownLane reports whether err was caused by a lane id that does not
// exist, as opposed to a rejected value on an existing lane.
func IsUnknownLane(err error) bool {
	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return false
	}
	return ee.GetContext()[ctxLaneError] == laneErrUnknown
}
