package kheart

import (
	"sort"
	"time"
)

// ThreadStatus is a point-in-time view of one monitored thread.
type ThreadStatus struct {
	ID ThreadID `json:"id"`

	// SinceBeat is how long the thread has been silent as of the
	// registry's last clock tick.
	SinceBeat time.Duration `json:"since_beat"`

	// Timeout is the thread's current effective timeout,
	// including any override and the global multiplier.
	Timeout time.Duration `json:"timeout"`

	SuspendCount int   `json:"suspend_count,omitempty"`
	GoroutineID  int64 `json:"goroutine_id"`
}

// Snapshot is a point-in-time view of the whole registry,
// intended for debug surfaces. It is a copy; holding one does not
// block the registry.
type Snapshot struct {
	Enabled            bool    `json:"enabled"`
	GlobalSuspendCount int     `json:"global_suspend_count,omitempty"`
	Multiplier         float64 `json:"multiplier"`

	HangDuration    time.Duration `json:"hang_duration"`
	PresentDuration time.Duration `json:"present_duration"`

	// Now is the registry's logical clock reading as of its last tick.
	Now time.Duration `json:"now"`

	// Threads is sorted by id for stable output.
	Threads []ThreadStatus `json:"threads"`

	// Present is nil until the first frame has been presented.
	Present *ThreadStatus `json:"present,omitempty"`

	LastHungThreadID    ThreadID `json:"last_hung_thread_id"`
	LastHangFingerprint uint32   `json:"last_hang_fingerprint,omitempty"`
}

// Snapshot copies the registry's current state.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Elapsed()

	s := Snapshot{
		Enabled:            r.enabled,
		GlobalSuspendCount: r.globalSuspendCount,
		Multiplier:         r.multiplier,
		HangDuration:       r.hangDuration,
		PresentDuration:    r.presentDuration,
		Now:                now,
		Threads:            make([]ThreadStatus, 0, len(r.threads)),

		LastHungThreadID:    r.lastHungThreadID,
		LastHangFingerprint: r.lastHangFingerprint,
	}

	for id, hb := range r.threads {
		s.Threads = append(s.Threads, ThreadStatus{
			ID:           id,
			SinceBeat:    now - hb.lastBeat,
			Timeout:      r.effectiveTimeoutLocked(hb, r.hangDuration),
			SuspendCount: hb.suspendCount,
			GoroutineID:  hb.goroutineID,
		})
	}
	sort.Slice(s.Threads, func(i, j int) bool {
		return s.Threads[i].ID < s.Threads[j].ID
	})

	if r.presentActive {
		s.Present = &ThreadStatus{
			ID:           PresentThreadID,
			SinceBeat:    now - r.present.lastBeat,
			Timeout:      r.effectiveTimeoutLocked(&r.present, r.presentDuration),
			SuspendCount: r.present.suspendCount,
			GoroutineID:  r.present.goroutineID,
		}
	}

	return s
}
