// Package kstack captures best-effort call stacks of other goroutines,
// for inclusion in hang and hitch reports.
//
// Go offers no supported way to asynchronously sample a single goroutine,
// so the default [RuntimeWalker] snapshots every goroutine stack through
// [runtime.Stack] and extracts the record for the requested goroutine.
// The target goroutine does not need to cooperate or pause itself,
// but the snapshot cost grows with the total number of goroutines;
// callers are expected to invoke capture rarely,
// on the order of once per detected hang or hitch.
package kstack
