// Package kclock provides a suspend-aware logical clock for watchdog goroutines.
//
// Platforms that suspend and resume whole processes (mobile backgrounding,
// laptop sleep, VM migration) present a problem for hang detection:
// after a resume, the wall clock has jumped forward by the entire suspension,
// which is indistinguishable from every monitored goroutine having hung.
//
// A [Clock] instead accumulates its own time on the goroutine that owns it.
// Each call to Tick advances the accumulated time by the real elapsed delta,
// clamped to a configured maximum step.
// While the process is suspended the owning goroutine does not run,
// so on resume the single oversized delta is clamped
// and the clock continues roughly where it left off.
package kclock
