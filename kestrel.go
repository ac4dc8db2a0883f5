// Package kestrel detects hangs and hitches in long-running processes.
//
// The heart of the module is [kheart.Registry] (per-thread heartbeats
// and timeout decisions) paired with [kheart.Supervisor] (the background
// scan loop), and [khitch.ThreadedWatchdog] (per-frame latency spikes on
// one designated goroutine). Processes are expected to construct those
// pieces explicitly and thread the handles to where they are needed.
//
// [New] wires a standard arrangement from one [kconfig.Config].
// For the outermost layer of a process, where threading a handle is
// impractical, [SetDefault] installs a process-wide instance reachable
// through the package-level convenience functions; those functions are
// no-ops until SetDefault is called.
package kestrel

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/kestrel-watch/kestrel/kconfig"
	"github.com/kestrel-watch/kestrel/kheart"
	"github.com/kestrel-watch/kestrel/khitch"
	"github.com/kestrel-watch/kestrel/kreport"
)

// Watchdogs bundles one process's detection pieces.
type Watchdogs struct {
	Registry   *kheart.Registry
	Supervisor *kheart.Supervisor
	Hitch      khitch.Watchdog

	// History retains recent detections for debug surfaces.
	History *kreport.History
}

// historyLen bounds the event history retained for debug surfaces.
const historyLen = 32

// New builds the standard arrangement from cfg: a registry and
// supervisor for hang detection, a threaded hitch watchdog, and a
// bounded history in front of an slog reporter.
//
// The registry starts armed. The returned context is the supervisor
// context; when cfg.HangsAreFatal is set, it is cancelled with a
// [kheart.HangError] cause on the first detected hang.
//
// Both background goroutines stop when ctx is cancelled;
// [*Watchdogs.Wait] blocks until they have.
func New(ctx context.Context, log *slog.Logger, cfg kconfig.Config) (*Watchdogs, context.Context) {
	reporter := kreport.NewHistory(historyLen, kreport.SlogReporter{Log: log})

	reg := kheart.NewRegistry(log.With("sys", "heartbeat"), cfg)
	reg.Start()

	sup, sCtx := kheart.NewSupervisor(
		ctx,
		log.With("sys", "supervisor"),
		reg,
		kheart.SupervisorConfig{
			Interval:   cfg.CheckInterval(),
			Jitter:     cfg.CheckInterval() / 10,
			FatalHangs: cfg.HangsAreFatal,
			StackDepth: cfg.MaxStackDepth,
		},
		nil,
		reporter,
	)

	hitch := khitch.NewThreaded(
		ctx,
		log.With("sys", "hitch"),
		khitch.ConfigFrom(cfg),
		khitch.WithReporter(reporter),
	)

	return &Watchdogs{
		Registry:   reg,
		Supervisor: sup,
		Hitch:      hitch,
		History:    reporter,
	}, sCtx
}

// Wait blocks until both background goroutines have completed.
func (w *Watchdogs) Wait() {
	w.Supervisor.Wait()
	if t, ok := w.Hitch.(*khitch.ThreadedWatchdog); ok {
		t.Wait()
	}
}

var defaultWatchdogs atomic.Pointer[Watchdogs]

// SetDefault installs w as the process-wide instance behind the
// package-level convenience functions. Call it once at process start,
// from the outermost layer only; everything else should take a handle.
func SetDefault(w *Watchdogs) {
	defaultWatchdogs.Store(w)
}

// Default returns the process-wide instance, or nil before SetDefault.
func Default() *Watchdogs {
	return defaultWatchdogs.Load()
}

// HeartBeat records a heartbeat for the calling thread on the default
// instance. It is a no-op before SetDefault.
func HeartBeat() {
	if w := Default(); w != nil {
		w.Registry.HeartBeat(false)
	}
}

// PresentFrame records a frame presentation on the default instance.
// It is a no-op before SetDefault.
func PresentFrame() {
	if w := Default(); w != nil {
		w.Registry.PresentFrame()
	}
}

// FrameStart marks a frame boundary on the default instance's hitch
// watchdog. It is a no-op before SetDefault.
func FrameStart(skipThisFrame bool) {
	if w := Default(); w != nil {
		w.Hitch.FrameStart(skipThisFrame)
	}
}
