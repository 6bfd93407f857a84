//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// DeferredTimeSince detects deferred calls whose time.Since argument is
// evaluated when the defer statement runs rather than at function exit.
//
//	start := time.Now()
//	defer observe(time.Since(start)) // always ~0
//
// Wrap the call in a closure instead.
func DeferredTimeSince(m dsl.Matcher) {
	m.Match(
		`defer $fn(time.Since($start))`,
		`defer $fn(time.Since($start), $*args)`,
		`defer $fn($arg, time.Since($start))`,
		`defer $fn($arg, time.Since($start).Seconds())`,
	).
		Report("time.Since($start) is evaluated at defer time, not function exit; wrap in func() to measure actual duration")
}

// TimerChannelLen detects len() on timer and ticker channels, which are
// unbuffered since Go 1.23.
func TimerChannelLen(m dsl.Matcher) {
	m.Match(`len($t.C)`, `cap($t.C)`).
		Where(m["t"].Type.Is("*time.Timer") || m["t"].Type.Is("*time.Ticker")).
		Report("len/cap on a timer channel is always 0 in Go 1.23+; use a non-blocking select")
}

// TimeFormatConstants suggests the named layouts added in Go 1.20.
func TimeFormatConstants(m dsl.Matcher) {
	m.Match(`$t.Format("2006-01-02 15:04:05")`).
		Report(`use $t.Format(time.DateTime)`).
		Suggest(`$t.Format(time.DateTime)`)
	m.Match(`$t.Format("2006-01-02")`).
		Report(`use $t.Format(time.DateOnly)`).
		Suggest(`$t.Format(time.DateOnly)`)
}
