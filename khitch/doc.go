// Package khitch detects individual slow frames ("hitches") on one
// designated goroutine, typically the main or render loop of a process.
//
// The monitored goroutine calls [Watchdog] FrameStart at each frame
// boundary. A dedicated capture goroutine wakes on a short interval and,
// when the current frame's age exceeds the hitch threshold, captures the
// monitored goroutine's stack and reports it. Hitches are informative:
// unlike a hang, a hitch never terminates anything.
//
// [ThreadedWatchdog] is the portable reference implementation.
// Platform-specific variants (such as a signal-timer design) implement
// the same [Watchdog] contract and are selected at build time.
package khitch
