//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// TestingContext suggests t.Context() over context.Background() in tests so
// goroutines started by the test see cancellation when it ends (Go 1.24+).
func TestingContext(m dsl.Matcher) {
	m.Match(
		`$ctx := context.Background()`,
		`$ctx = context.Background()`,
		`$fn(context.Background(), $*args)`,
		`$ctx := context.TODO()`,
		`$fn(context.TODO(), $*args)`,
	).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("in tests, use t.Context() instead of a background context (Go 1.24+)")
}

// BenchmarkLoop suggests b.Loop() over b.N iteration (Go 1.24+).
func BenchmarkLoop(m dsl.Matcher) {
	m.Match(`for range $b.N { $*body }`).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... } instead of for range $b.N (Go 1.24+)").
		Suggest("for $b.Loop() { $body }")

	m.Match(`for $i := 0; $i < $b.N; $i++ { $*body }`).
		Where(m["b"].Type.Is("*testing.B")).
		Report("use for $b.Loop() { ... } instead of counting to $b.N (Go 1.24+)")
}

// SleepSync flags fixed sleeps used to wait for a goroutine; require.Eventually
// or testutil.ReceiveWithin do not flake under load.
func SleepSync(m dsl.Matcher) {
	m.Match(`time.Sleep($d); $x := <-$ch`, `time.Sleep($d); <-$ch`).
		Where(m.File().Name.Matches(`_test\.go$`)).
		Report("waiting on $ch after a fixed sleep; use testutil.ReceiveWithin instead")
}
