//go:build ruleguard

package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

// simulationCore matches the deterministic packages: everything they do must
// be a function of the seed, the settings and the simulated clock.
const simulationCore = `internal/(line|profile|classifier)$`

// EngineWallClock flags wall clock reads in the simulation core. Simulated
// time is Engine.clock; wall timestamps come from the injected e.now.
func EngineWallClock(m dsl.Matcher) {
	m.Match(`time.Now()`, `time.Since($_)`).
		Where(m.File().PkgPath.Matches(simulationCore) && !m.File().Name.Matches(`_test\.go$`)).
		Report("simulation core must not read the wall clock; use the engine clock or e.now")
}

// GlobalRand flags the package level generators of math/rand and
// math/rand/v2 in the simulation core. Draws go through the engine's
// injected *rand.Rand so a seed reproduces a run.
func GlobalRand(m dsl.Matcher) {
	m.Import("math/rand/v2")
	m.Match(`rand.Float64()`, `rand.NormFloat64()`, `rand.IntN($_)`, `rand.Int64()`, `rand.Uint64()`).
		Where(m.File().PkgPath.Matches(simulationCore) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the engine's seeded *rand.Rand instead of the global generator")

	m.Match(`$_.Intn($_)`, `$_.Float64()`).
		Where(m.File().Imports("math/rand") && m.File().PkgPath.Matches(simulationCore)).
		Report("math/rand is frozen; use math/rand/v2 with an injected source")
}

// CategorizedErrors flags fmt.Errorf and errors.New from the standard
// library in packages that report through internal/errors. Uncategorized
// errors cannot be matched with errors.Is against the category sentinels.
func CategorizedErrors(m dsl.Matcher) {
	m.Match(`fmt.Errorf($*_)`).
		Where(m.File().PkgPath.Matches(`internal/(line|profile|classifier|simulator|api/v1)$`)).
		Report("build errors with errors.Newf(...).Component(...).Category(...).Build()")
}

// ModuleLogger flags printing from library packages. Output goes through
// logger.Global().Module(name) so it honours the configured level and sinks.
func ModuleLogger(m dsl.Matcher) {
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `println($*_)`).
		Where(m.File().PkgPath.Matches(`/internal/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report("use the package's module logger instead of printing")
}
