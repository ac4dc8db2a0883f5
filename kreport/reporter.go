// Package kreport defines the reporting boundary of the watchdogs.
//
// The watchdogs only decide that a hang or hitch happened;
// what to do with that observation (logging, crash reporting, telemetry)
// belongs to the embedding process and is expressed as a [Reporter].
package kreport

import (
	"log/slog"
	"time"

	"github.com/kestrel-watch/kestrel/kstack"
)

// HangReport describes one detected hang of one monitored thread.
type HangReport struct {
	// ThreadID is the registry identity of the hung thread.
	ThreadID uint32

	// Duration is how long the thread had been silent when detected.
	Duration time.Duration

	// Fingerprint is a checksum of the hung thread's call site,
	// suitable for grouping repeated hangs at the same location.
	Fingerprint uint32

	// Trace is the best-effort captured stack.
	// It may be empty if the goroutine exited before capture.
	Trace kstack.Trace
}

// HitchReport describes one frame of the monitored thread
// exceeding the hitch threshold.
type HitchReport struct {
	// Duration is the frame's age when the hitch was detected.
	Duration time.Duration

	Trace kstack.Trace
}

// Reporter consumes detection events.
//
// Implementations must tolerate being called from watchdog goroutines;
// slow work should be handed off rather than performed inline.
type Reporter interface {
	ReportHang(r HangReport)
	ReportHitch(r HitchReport)
}

// SlogReporter logs every report through an slog.Logger.
// Hangs log at Error level, hitches at Warn.
type SlogReporter struct {
	Log *slog.Logger
}

var _ Reporter = SlogReporter{}

func (s SlogReporter) ReportHang(r HangReport) {
	s.Log.Error(
		"Hang detected",
		"thread_id", r.ThreadID,
		"duration", r.Duration,
		"fingerprint", r.Fingerprint,
		"stack", r.Trace.String(),
	)
}

func (s SlogReporter) ReportHitch(r HitchReport) {
	s.Log.Warn(
		"Hitch detected",
		"duration", r.Duration,
		"stack", r.Trace.String(),
	)
}

// NopReporter discards every report.
type NopReporter struct{}

var _ Reporter = NopReporter{}

func (NopReporter) ReportHang(HangReport)   {}
func (NopReporter) ReportHitch(HitchReport) {}
