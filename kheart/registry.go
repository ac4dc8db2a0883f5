package kheart

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/kestrel-watch/kestrel/kassert"
	"github.com/kestrel-watch/kestrel/kclock"
	"github.com/kestrel-watch/kestrel/kconfig"
	"github.com/kestrel-watch/kestrel/kstack"
)

// heartbeatInfo is the per-thread bookkeeping, owned by the registry
// under its lock. Times are readings of the registry's logical clock.
type heartbeatInfo struct {
	// lastBeat is when the thread last reported liveness.
	lastBeat time.Duration

	// lastHang is when the thread was last reported hung.
	lastHang time.Duration

	// suspendCount is the nesting depth of suspend requests.
	// While positive, the thread is exempt from timeout checks.
	suspendCount int

	// timeoutOverride widens this thread's timeout beyond the global
	// default; zero means no override.
	timeoutOverride time.Duration

	// goroutineID is the runtime goroutine id observed on the last
	// heartbeat, used to capture the thread's stack on a hang.
	goroutineID int64
}

func (hb *heartbeatInfo) suspend() {
	hb.suspendCount++
}

// resume decrements the suspend depth, resetting the heartbeat on the
// 1->0 transition so suspended time is never charged as silence.
// It reports false if the depth was already zero.
func (hb *heartbeatInfo) resume(now time.Duration) bool {
	if hb.suspendCount <= 0 {
		return false
	}
	hb.suspendCount--
	if hb.suspendCount == 0 {
		hb.lastBeat = now
	}
	return true
}

// Registry tracks per-thread heartbeats and decides which thread,
// if any, has hung. All methods are safe for concurrent use.
//
// A Registry starts disabled; [*Registry.Start] arms checking once the
// process is far enough into startup that heartbeats are flowing.
type Registry struct {
	log *slog.Logger

	mu sync.Mutex

	// clock is ticked only from CheckHeartBeat (the supervisor goroutine);
	// every other method just reads the accumulated time under the lock.
	clock *kclock.Clock

	threads map[ThreadID]*heartbeatInfo

	// present is the dedicated frame-presentation slot,
	// inactive until the first PresentFrame call.
	present       heartbeatInfo
	presentActive bool

	globalSuspendCount int

	hangDuration    time.Duration
	presentDuration time.Duration
	multiplier      float64

	enabled bool

	lastHungThreadID    ThreadID
	lastHangFingerprint uint32

	identity  IdentityFn
	source    kconfig.Source
	assertEnv kassert.Env

	// clockSrc and clockMaxStep hold the clock inputs until options are
	// applied; the clock itself is built at the end of NewRegistry.
	clockSrc     clock.Clock
	clockMaxStep time.Duration
}

// RegistryOption customizes a Registry at construction.
type RegistryOption func(*Registry)

// WithIdentity replaces the default goroutine-id-based thread identity.
func WithIdentity(fn IdentityFn) RegistryOption {
	return func(r *Registry) { r.identity = fn }
}

// WithClockSource replaces the real time source behind the registry's
// logical clock; tests use a mock to drive timeouts deterministically.
func WithClockSource(src clock.Clock) RegistryOption {
	return func(r *Registry) { r.clockSrc = src }
}

// WithConfigSource enables the HeartBeat(reloadConfig=true) path,
// re-reading the global timeout settings from the given source.
func WithConfigSource(src kconfig.Source) RegistryOption {
	return func(r *Registry) { r.source = src }
}

// WithAssertEnv installs the assertion environment gating
// protocol-misuse checks (debug builds only).
func WithAssertEnv(env kassert.Env) RegistryOption {
	return func(r *Registry) { r.assertEnv = env }
}

// NewRegistry returns a disabled Registry configured from cfg.
func NewRegistry(log *slog.Logger, cfg kconfig.Config, opts ...RegistryOption) *Registry {
	r := &Registry{
		log:              log,
		threads:          make(map[ThreadID]*heartbeatInfo),
		hangDuration:     cfg.HangDuration(),
		presentDuration:  cfg.PresentDuration(),
		multiplier:       1.0,
		identity:         runtimeIdentity,
		lastHungThreadID: InvalidThreadID,
		clockSrc:         clock.New(),
		clockMaxStep:     cfg.ClockMaxStep(),
	}

	for _, o := range opts {
		o(r)
	}

	r.clock = kclock.NewWithSource(r.clockMaxStep, r.clockSrc)
	return r
}

// Start arms heartbeat checking. Heartbeats received before Start are
// still recorded; they simply cannot trigger a hang yet.
func (r *Registry) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}

// Stop disarms heartbeat checking without discarding any state.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
}

// HeartBeat records the calling thread as alive right now,
// creating its entry on first use.
//
// If reloadConfig is set and the registry has a config source,
// the global timeout settings are re-read before the beat is recorded;
// the read happens outside the registry lock.
func (r *Registry) HeartBeat(reloadConfig bool) {
	var cfg kconfig.Config
	haveCfg := false
	if reloadConfig && r.source != nil {
		c, err := r.source.Load()
		if err != nil {
			r.log.Warn("Failed to reload watchdog config; keeping previous settings", "err", err)
		} else {
			cfg = c
			haveCfg = true
		}
	}

	id := r.identity()
	gid := kstack.CurrentGoroutineID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if haveCfg {
		r.hangDuration = cfg.HangDuration()
		r.presentDuration = cfg.PresentDuration()
	}

	hb := r.ensureLocked(id)
	hb.lastBeat = r.clock.Elapsed()
	hb.goroutineID = gid
}

// PresentFrame records a frame presentation on the dedicated present slot.
// The slot only participates in checks once the first frame is presented.
func (r *Registry) PresentFrame() {
	gid := kstack.CurrentGoroutineID()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.present.lastBeat = r.clock.Elapsed()
	r.present.goroutineID = gid
	r.presentActive = true
}

// SuspendHeartBeat exempts the calling thread from timeout checks until
// a matching ResumeHeartBeat. With allThreads, the whole registry is
// exempted instead. Calls nest.
func (r *Registry) SuspendHeartBeat(allThreads bool) {
	var id ThreadID
	if !allThreads {
		id = r.identity()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if allThreads {
		r.globalSuspendCount++
		return
	}
	r.ensureLocked(id).suspend()
}

// ResumeHeartBeat undoes one SuspendHeartBeat with the same scope.
// On the final resume, the affected threads' silence clocks restart from
// now, so suspended time is never charged as silence.
//
// Resuming a never-suspended scope is a contract violation: it trips the
// assertion environment in debug builds and is ignored otherwise.
func (r *Registry) ResumeHeartBeat(allThreads bool) {
	var id ThreadID
	if !allThreads {
		id = r.identity()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Elapsed()

	if allThreads {
		if r.globalSuspendCount == 0 {
			r.assertFailure("heartbeat.resume_balanced", "global ResumeHeartBeat without matching suspend")
			return
		}
		r.globalSuspendCount--
		if r.globalSuspendCount == 0 {
			for _, hb := range r.threads {
				hb.lastBeat = now
			}
			r.present.lastBeat = now
		}
		return
	}

	hb, ok := r.threads[id]
	if !ok || !hb.resume(now) {
		r.assertFailure("heartbeat.resume_balanced", "ResumeHeartBeat for thread %d without matching suspend", id)
	}
}

// SetDurationMultiplier scales every thread's effective timeout.
// Values below 1.0 are a contract violation and clamp to 1.0.
// Use it to widen tolerance during known-slow phases such as loading screens.
func (r *Registry) SetDurationMultiplier(m float64) {
	if m < 1.0 {
		r.assertFailure("heartbeat.multiplier_range", "duration multiplier %v below 1.0", m)
		m = 1.0
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.multiplier = m
}

// SetThreadTimeout sets a per-thread timeout override for the calling
// thread. The effective timeout is the larger of the override and the
// global default, scaled by the multiplier. A zero d clears the override.
func (r *Registry) SetThreadTimeout(d time.Duration) {
	id := r.identity()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(id).timeoutOverride = d
}

// IsBeating reports whether the registry is armed and the calling thread
// is currently subject to timeout checks.
func (r *Registry) IsBeating() bool {
	id := r.identity()

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled || r.globalSuspendCount > 0 {
		return false
	}
	hb, ok := r.threads[id]
	return ok && hb.suspendCount == 0
}

// KillHeartBeat removes the calling thread's entry; subsequent checks
// ignore it. Killing a thread that was never registered is a contract
// violation, tripping the assertion environment in debug builds.
func (r *Registry) KillHeartBeat() {
	id := r.identity()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.threads[id]; !ok {
		r.assertFailure("heartbeat.kill_registered", "KillHeartBeat for unregistered thread %d", id)
		return
	}
	delete(r.threads, id)
}

// CheckHeartBeat advances the registry's logical clock and scans every
// non-suspended entry for a timeout breach. If multiple threads breach
// in the same scan, the one with the largest elapsed-over-timeout margin
// is reported; at most one hang is returned per scan.
//
// The breaching thread's silence clock restarts, so a continuing hang is
// only re-reported after another full effective timeout.
//
// CheckHeartBeat is intended to be called only from the supervisor
// goroutine; it returns [InvalidThreadID] when nothing is hung.
func (r *Registry) CheckHeartBeat() (ThreadID, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.enabled {
		return InvalidThreadID, 0
	}

	r.clock.Tick()
	now := r.clock.Elapsed()

	if r.globalSuspendCount > 0 {
		return InvalidThreadID, 0
	}

	worstID := InvalidThreadID
	var worstInfo *heartbeatInfo
	var worstElapsed time.Duration
	worstRatio := 0.0

	consider := func(id ThreadID, hb *heartbeatInfo, base time.Duration) {
		if hb.suspendCount > 0 {
			return
		}
		timeout := r.effectiveTimeoutLocked(hb, base)
		elapsed := now - hb.lastBeat
		if elapsed <= timeout {
			return
		}
		ratio := float64(elapsed) / float64(timeout)
		if ratio > worstRatio {
			worstRatio = ratio
			worstID = id
			worstInfo = hb
			worstElapsed = elapsed
		}
	}

	for id, hb := range r.threads {
		consider(id, hb, r.hangDuration)
	}
	if r.presentActive {
		consider(PresentThreadID, &r.present, r.presentDuration)
	}

	if worstID == InvalidThreadID {
		return InvalidThreadID, 0
	}

	worstInfo.lastHang = now
	worstInfo.lastBeat = now
	r.lastHungThreadID = worstID

	return worstID, worstElapsed
}

// effectiveTimeoutLocked computes max(override, base) * multiplier.
func (r *Registry) effectiveTimeoutLocked(hb *heartbeatInfo, base time.Duration) time.Duration {
	timeout := base
	if hb.timeoutOverride > timeout {
		timeout = hb.timeoutOverride
	}
	return time.Duration(float64(timeout) * r.multiplier)
}

// GoroutineIDFor returns the runtime goroutine id last observed for the
// given thread, for stack capture after a hang is detected.
func (r *Registry) GoroutineIDFor(id ThreadID) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == PresentThreadID {
		if !r.presentActive {
			return 0, false
		}
		return r.present.goroutineID, true
	}
	hb, ok := r.threads[id]
	if !ok {
		return 0, false
	}
	return hb.goroutineID, true
}

// RecordHangFingerprint stores the call-site fingerprint of the last
// detected hang, for later querying alongside [*Registry.LastHungThreadID].
func (r *Registry) RecordHangFingerprint(fp uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastHangFingerprint = fp
}

// LastHungThreadID returns the id of the last thread to trigger the hang
// detector, or [InvalidThreadID] if it has never triggered.
func (r *Registry) LastHungThreadID() ThreadID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHungThreadID
}

// LastHangFingerprint returns the stack fingerprint recorded for the
// last detected hang, or zero if none was recorded.
func (r *Registry) LastHangFingerprint() uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastHangFingerprint
}

// ensureLocked returns the entry for id, creating it with a fresh
// heartbeat if absent. Caller must hold r.mu.
func (r *Registry) ensureLocked(id ThreadID) *heartbeatInfo {
	hb, ok := r.threads[id]
	if !ok {
		hb = &heartbeatInfo{lastBeat: r.clock.Elapsed()}
		r.threads[id] = hb
	}
	return hb
}
