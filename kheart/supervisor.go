package kheart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/kestrel-watch/kestrel/internal/kchan"
	"github.com/kestrel-watch/kestrel/kreport"
	"github.com/kestrel-watch/kestrel/kstack"
)

// SupervisorConfig controls the hang supervisor loop.
type SupervisorConfig struct {
	// The supervisor scans the registry every Interval + [-Jitter, +Jitter)
	// duration; the jitter range is uniformly distributed.
	// Interval must be materially smaller than the smallest configured
	// timeout or breaches will be detected late.
	Interval, Jitter time.Duration

	// FatalHangs cancels the supervisor context with a [HangError]
	// cause when a hang is detected.
	FatalHangs bool

	// StackDepth bounds the stack captured from a hung thread.
	// Zero means a reasonable default.
	StackDepth int
}

const defaultStackDepth = 128

func (c SupervisorConfig) validate() error {
	var err error
	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("SupervisorConfig.Interval must be positive"))
	}
	if c.Jitter < 0 {
		err = errors.Join(err, errors.New("SupervisorConfig.Jitter must not be negative"))
	}
	if c.Jitter > 0 && c.Jitter >= c.Interval {
		err = errors.Join(err, errors.New("SupervisorConfig.Jitter must be less than SupervisorConfig.Interval"))
	}
	if c.StackDepth < 0 {
		err = errors.Join(err, errors.New("SupervisorConfig.StackDepth must not be negative"))
	}
	return err
}

// Hang is the value delivered to [*Supervisor.Hangs] subscribers.
type Hang struct {
	ThreadID    ThreadID
	Duration    time.Duration
	Fingerprint uint32
	Trace       kstack.Trace
}

// Supervisor runs the periodic heartbeat scan on its own goroutine.
//
// Reporting (stack capture, logging) happens strictly after the registry
// lock is released, on the supervisor goroutine.
type Supervisor struct {
	log *slog.Logger

	reg      *Registry
	cfg      SupervisorConfig
	walker   kstack.Walker
	reporter kreport.Reporter

	cancel      context.CancelCauseFunc
	subRequests chan subRequest

	wg sync.WaitGroup
}

// subRequest is sent from a goroutine calling [*Supervisor.Hangs]
// to the supervisor's kernel goroutine.
type subRequest struct {
	// Response to the caller, who needs a receive-only channel of hangs.
	Resp chan (<-chan Hang)
}

// NewSupervisor starts the scan loop against reg and returns the
// supervisor together with a context derived from ctx.
//
// The returned context is cancelled with a [HangError] cause when a hang
// is detected and cfg.FatalHangs is set, or upon [*Supervisor.Terminate].
//
// A nil walker defaults to [kstack.RuntimeWalker]; a nil reporter
// defaults to [kreport.NopReporter].
func NewSupervisor(
	ctx context.Context,
	log *slog.Logger,
	reg *Registry,
	cfg SupervisorConfig,
	walker kstack.Walker,
	reporter kreport.Reporter,
) (*Supervisor, context.Context) {
	if err := cfg.validate(); err != nil {
		panic(fmt.Errorf("NewSupervisor: SupervisorConfig is invalid: %w", err))
	}

	if walker == nil {
		walker = kstack.RuntimeWalker{}
	}
	if reporter == nil {
		reporter = kreport.NopReporter{}
	}
	if cfg.StackDepth == 0 {
		cfg.StackDepth = defaultStackDepth
	}

	sCtx, cancel := context.WithCancelCause(ctx)
	s := &Supervisor{
		log:         log,
		reg:         reg,
		cfg:         cfg,
		walker:      walker,
		reporter:    reporter,
		cancel:      cancel,
		subRequests: make(chan subRequest), // Unbuffered since requests are synchronous.
	}

	s.wg.Add(1)
	go s.kernel(ctx, sCtx)
	return s, sCtx
}

// Wait blocks until the supervisor's goroutine completes.
// The goroutine is tied to the lifecycle of the context passed to
// [NewSupervisor]; a fatal hang alone does not unblock Wait, because the
// derived context shares the parent's lifecycle.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

// Terminate forces the supervisor context to be cancelled
// with a cause of [ForcedTerminationError].
func (s *Supervisor) Terminate(reason string) {
	s.cancel(ForcedTerminationError{Reason: reason})
}

// Hangs subscribes to hang detections. Every detected hang is offered to
// each subscriber's buffered channel; a subscriber that is not keeping
// up misses intermediate hangs rather than stalling the scan loop.
//
// If the context is cancelled before the subscription is registered,
// the returned channel is nil.
func (s *Supervisor) Hangs(ctx context.Context) <-chan Hang {
	req := subRequest{Resp: make(chan (<-chan Hang), 1)}

	ch, _ := kchan.ReqResp(
		ctx, s.log,
		s.subRequests, req,
		req.Resp,
		"requesting hang subscription",
	)
	return ch
}

func (s *Supervisor) kernel(rootCtx, sCtx context.Context) {
	defer s.wg.Done()

	// The kernel gets its own RNG for wake jitter,
	// seeded from the global RNG, to avoid a mutex on the shared one.
	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	var subs []chan Hang

	timer := time.NewTimer(s.nextWake(rng))
	defer timer.Stop()

	for {
		select {
		case <-rootCtx.Done():
			s.log.Info("Stopping due to root context cancellation", "cause", context.Cause(rootCtx))
			return

		case req := <-s.subRequests:
			ch := make(chan Hang, 1)
			subs = append(subs, ch)
			req.Resp <- ch

		case <-timer.C:
			s.scan(subs)
			timer.Reset(s.nextWake(rng))
		}
	}
}

func (s *Supervisor) nextWake(rng *rand.Rand) time.Duration {
	d := s.cfg.Interval
	if s.cfg.Jitter > 0 {
		d += time.Duration(rng.Int64N(int64(2*s.cfg.Jitter)) - int64(s.cfg.Jitter))
	}
	return d
}

// scan performs one CheckHeartBeat pass and, on a breach, captures the
// offender's stack and dispatches the report. At most one hang is
// processed per scan, per the registry's tie-break contract.
func (s *Supervisor) scan(subs []chan Hang) {
	id, dur := s.reg.CheckHeartBeat()
	if id == InvalidThreadID {
		return
	}

	hang := Hang{ThreadID: id, Duration: dur}

	// The registry lock is released here; capture is allowed to be slow.
	if gid, ok := s.reg.GoroutineIDFor(id); ok {
		tr, err := s.walker.Capture(gid, s.cfg.StackDepth)
		if err != nil {
			s.log.Warn("Failed to capture hung thread stack", "thread_id", id, "err", err)
		} else {
			hang.Trace = tr
			hang.Fingerprint = tr.Fingerprint()
		}
	}

	s.reg.RecordHangFingerprint(hang.Fingerprint)

	s.reporter.ReportHang(kreport.HangReport{
		ThreadID:    uint32(hang.ThreadID),
		Duration:    hang.Duration,
		Fingerprint: hang.Fingerprint,
		Trace:       hang.Trace,
	})

	for _, ch := range subs {
		select {
		case ch <- hang:
		default:
			// Subscriber still has an undelivered hang; skip it.
		}
	}

	if s.cfg.FatalHangs {
		s.cancel(HangError{ThreadID: hang.ThreadID, Duration: hang.Duration})
	}
}
