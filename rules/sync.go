//go:build ruleguard

// Package gorules contains custom linting rules for golangci-lint via ruleguard.
package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// WaitGroupGo detects the manual Add/Done goroutine pattern and suggests
// wg.Go (Go 1.25+).
//
//	wg.Add(1)
//	go func() {
//	    defer wg.Done()
//	    work()
//	}()
//
// becomes
//
//	wg.Go(work)
func WaitGroupGo(m dsl.Matcher) {
	m.Match(
		`$wg.Add(1); go func() { defer $wg.Done(); $*body }()`,
	).
		Where(m["wg"].Type.Is("*sync.WaitGroup") || m["wg"].Type.Is("sync.WaitGroup")).
		Report("use $wg.Go(func() { $body }) instead of manual Add/Done pattern (Go 1.25+)").
		Suggest("$wg.Go(func() { $body })")

	m.Match(`go func() { defer $wg.Done(); $*_ }()`).
		Where(m["wg"].Type.Is("*sync.WaitGroup")).
		Report("use $wg.Go(func() { ... }) instead of go func() { defer $wg.Done(); ... }() (Go 1.25+)")
}

// MutexByValue flags mutexes copied into function parameters.
func MutexByValue(m dsl.Matcher) {
	m.Match(`func $_($*_, $mu sync.Mutex, $*_) $*_ { $*_ }`,
		`func $_($*_, $mu sync.RWMutex, $*_) $*_ { $*_ }`).
		Report("$mu is passed by value; pass a pointer so the lock is shared")
}
