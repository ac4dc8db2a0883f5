package khitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/kestrel-watch/kestrel/kassert"
	"github.com/kestrel-watch/kestrel/kclock"
	"github.com/kestrel-watch/kestrel/kconfig"
	"github.com/kestrel-watch/kestrel/kreport"
	"github.com/kestrel-watch/kestrel/kstack"
)

// noFrame marks the absence of an evaluatable frame window.
const noFrame = time.Duration(-1)

// Config controls a [ThreadedWatchdog].
type Config struct {
	// Threshold is the frame age beyond which a hitch is reported.
	Threshold time.Duration

	// Interval is the capture goroutine's wake interval.
	// It must be smaller than Threshold.
	Interval time.Duration

	// Grace suppresses detection for this long after the first
	// FrameStart, avoiding false positives during process start-up.
	Grace time.Duration

	// StackDepth bounds captured stacks. Zero means a reasonable default.
	StackDepth int

	// RawStacks drops file and line resolution from captured frames.
	RawStacks bool

	// ClockMaxStep clamps the watchdog's logical clock ticks.
	// Zero means one second.
	ClockMaxStep time.Duration
}

const defaultStackDepth = 128

// ConfigFrom extracts the hitch watchdog settings from a full
// watchdog configuration.
func ConfigFrom(c kconfig.Config) Config {
	return Config{
		Threshold:    c.HitchThreshold(),
		Interval:     c.CaptureInterval(),
		Grace:        c.StartupGrace(),
		StackDepth:   c.MaxStackDepth,
		RawStacks:    !c.ResolveHitchSymbols,
		ClockMaxStep: c.ClockMaxStep(),
	}
}

func (c Config) validate() error {
	var err error
	if c.Threshold <= 0 {
		err = errors.Join(err, errors.New("Config.Threshold must be positive"))
	}
	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("Config.Interval must be positive"))
	}
	if c.Threshold > 0 && c.Interval >= c.Threshold {
		err = errors.Join(err, errors.New("Config.Interval must be less than Config.Threshold"))
	}
	if c.Grace < 0 {
		err = errors.Join(err, errors.New("Config.Grace must not be negative"))
	}
	if c.StackDepth < 0 {
		err = errors.Join(err, errors.New("Config.StackDepth must not be negative"))
	}
	return err
}

// ThreadedWatchdog is the portable [Watchdog] implementation:
// a dedicated goroutine polls the current frame's age on an interval.
type ThreadedWatchdog struct {
	log *slog.Logger

	cfg      Config
	walker   kstack.Walker
	reporter kreport.Reporter

	mu sync.Mutex

	// clock is shared between the monitored goroutine (FrameStart)
	// and the capture goroutine, always under mu.
	clock *kclock.Clock

	// frameStart is the logical time of the open frame window,
	// or noFrame when the window is skipped, consumed, or absent.
	frameStart time.Duration

	// firstStart is the logical time of the first FrameStart ever,
	// anchoring the startup grace window; noFrame until then.
	firstStart time.Duration

	suspendCount int

	// monitoredGoroutineID is fixed by the first FrameStart call
	// unless set explicitly at construction.
	monitoredGoroutineID int64

	assertEnv kassert.Env

	// clockSrc holds the time source until options are applied;
	// the clock itself is built at the end of NewThreaded.
	clockSrc clock.Clock

	wg sync.WaitGroup
}

var _ Watchdog = (*ThreadedWatchdog)(nil)

// Option customizes a ThreadedWatchdog at construction.
type Option func(*ThreadedWatchdog)

// WithWalker replaces the default [kstack.RuntimeWalker].
func WithWalker(w kstack.Walker) Option {
	return func(t *ThreadedWatchdog) { t.walker = w }
}

// WithReporter sets the hitch report destination.
// Without it, hitches are only logged.
func WithReporter(r kreport.Reporter) Option {
	return func(t *ThreadedWatchdog) { t.reporter = r }
}

// WithClockSource replaces the real time source behind the watchdog's
// logical clock.
func WithClockSource(src clock.Clock) Option {
	return func(t *ThreadedWatchdog) { t.clockSrc = src }
}

// WithMonitoredGoroutine pins the monitored goroutine id instead of
// adopting the first FrameStart caller.
func WithMonitoredGoroutine(id int64) Option {
	return func(t *ThreadedWatchdog) { t.monitoredGoroutineID = id }
}

// WithAssertEnv installs the assertion environment gating
// protocol-misuse checks (debug builds only).
func WithAssertEnv(env kassert.Env) Option {
	return func(t *ThreadedWatchdog) { t.assertEnv = env }
}

// NewThreaded starts the capture goroutine and returns the watchdog.
// The goroutine runs until ctx is cancelled.
func NewThreaded(ctx context.Context, log *slog.Logger, cfg Config, opts ...Option) *ThreadedWatchdog {
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("khitch.NewThreaded: Config is invalid: %w", err))
	}
	if cfg.StackDepth == 0 {
		cfg.StackDepth = defaultStackDepth
	}
	if cfg.ClockMaxStep == 0 {
		cfg.ClockMaxStep = time.Second
	}

	t := &ThreadedWatchdog{
		log:        log,
		cfg:        cfg,
		walker:     kstack.RuntimeWalker{RawOnly: cfg.RawStacks},
		frameStart: noFrame,
		firstStart: noFrame,
		clockSrc:   clock.New(),
	}

	for _, o := range opts {
		o(t)
	}

	if t.walker == nil {
		t.walker = kstack.RuntimeWalker{RawOnly: cfg.RawStacks}
	}
	t.clock = kclock.NewWithSource(cfg.ClockMaxStep, t.clockSrc)

	t.wg.Add(1)
	go t.kernel(ctx)
	return t
}

// Wait blocks until the capture goroutine completes.
func (t *ThreadedWatchdog) Wait() {
	t.wg.Wait()
}

func (t *ThreadedWatchdog) FrameStart(skipThisFrame bool) {
	gid := kstack.CurrentGoroutineID()

	t.mu.Lock()
	defer t.mu.Unlock()

	t.clock.Tick()
	now := t.clock.Elapsed()

	if t.monitoredGoroutineID == 0 {
		t.monitoredGoroutineID = gid
	}
	if t.firstStart < 0 {
		t.firstStart = now
	}

	if skipThisFrame {
		t.frameStart = noFrame
	} else {
		t.frameStart = now
	}
}

func (t *ThreadedWatchdog) FrameStartTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameStart
}

func (t *ThreadedWatchdog) CurrentTime() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.clock.Elapsed()
}

func (t *ThreadedWatchdog) SuspendHeartBeat() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.suspendCount++

	// No pending window survives a suspension.
	t.frameStart = noFrame
}

// ResumeHeartBeat undoes one SuspendHeartBeat. Detection stays dormant
// until the next FrameStart opens a fresh window.
//
// Resuming without a matching suspend is a contract violation: it trips
// the assertion environment in debug builds and is ignored otherwise.
func (t *ThreadedWatchdog) ResumeHeartBeat() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.suspendCount == 0 {
		t.assertFailure("hitch.resume_balanced", "ResumeHeartBeat without matching suspend")
		return
	}
	t.suspendCount--
}

func (t *ThreadedWatchdog) kernel(ctx context.Context) {
	defer t.wg.Done()

	timer := time.NewTimer(t.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Stopping hitch capture due to context cancellation", "cause", context.Cause(ctx))
			return
		case <-timer.C:
			t.poll()
			timer.Reset(t.cfg.Interval)
		}
	}
}

// poll performs one hitch evaluation. Stack capture and reporting
// happen strictly after the lock is released.
func (t *ThreadedWatchdog) poll() {
	t.mu.Lock()

	t.clock.Tick()
	now := t.clock.Elapsed()

	capture := false
	var elapsed time.Duration
	var gid int64

	if t.suspendCount == 0 && t.frameStart >= 0 &&
		t.firstStart >= 0 && now-t.firstStart >= t.cfg.Grace {
		elapsed = now - t.frameStart
		if elapsed > t.cfg.Threshold {
			capture = true
			gid = t.monitoredGoroutineID

			// Consume the window: one capture per frame at most.
			t.frameStart = noFrame
		}
	}

	t.mu.Unlock()

	if !capture {
		return
	}

	var tr kstack.Trace
	if gid != 0 {
		var err error
		tr, err = t.walker.Capture(gid, t.cfg.StackDepth)
		if err != nil {
			t.log.Warn("Failed to capture monitored goroutine stack", "goroutine", gid, "err", err)
		}
	}

	t.log.Warn("Frame hitch detected", "duration", elapsed, "threshold", t.cfg.Threshold)

	if t.reporter != nil {
		t.reporter.ReportHitch(kreport.HitchReport{
			Duration: elapsed,
			Trace:    tr,
		})
	}
}
