package privacy

import "errors"

// scrubbedError hides credentials in notification URLs, broker addresses and
// DSNs from Error() while keeping the cause reachable for errors.Is/As.
type scrubbedError struct {
	cause error
	msg   string
}

func (e *scrubbedError) Error() string { return e.msg }

func (e *scrubbedError) Unwrap() error { return e.cause }

// WrapError returns err with its message passed through ScrubMessage. It
// returns nil for nil, and an already scrubbed error is returned as is.
//
//	errs = append(errs, privacy.WrapError(err))
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	var se *scrubbedError
	if errors.As(err, &se) && se == err {
		return err
	}
	return &scrubbedError{cause: err, msg: ScrubMessage(err.Error())}
}
