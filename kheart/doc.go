// Package kheart implements multi-thread hang detection.
//
// Monitored goroutines ("threads" in the registry's vocabulary) call
// [*Registry.HeartBeat] once per frame or tick. A [Supervisor] goroutine
// wakes on a short interval, scans the registry for threads whose silence
// exceeds their effective timeout, and reports the worst offender through
// a [kreport.Reporter]. Whether a hang is fatal is a configuration
// decision: a fatal hang cancels the supervisor-derived context with a
// [HangError] cause, and the embedder decides what to do about it.
//
// Heartbeats are cheap: one mutex acquisition and a couple of field
// writes. No I/O or capture work ever happens under the registry lock.
package kheart
