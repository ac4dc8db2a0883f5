package kheart

// noCopy triggers a go vet warning when a containing struct is copied.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// SuspendScope brackets a suspend/resume pair over a region of code.
//
// Acquire one with [*Registry.Suspend] and release it with
// [*SuspendScope.Release] on every exit path, typically via defer.
// Scopes nest freely with each other and with manual
// SuspendHeartBeat/ResumeHeartBeat calls, because the underlying
// bookkeeping is a depth counter.
//
// Release must be called from the goroutine that acquired the scope,
// since the thread identity is resolved at release time.
// A SuspendScope must not be copied.
type SuspendScope struct {
	noCopy noCopy

	reg        *Registry
	allThreads bool
	released   bool
}

// Suspend suspends heartbeat checking for the calling thread
// (or for all threads) and returns the scope that undoes it.
func (r *Registry) Suspend(allThreads bool) *SuspendScope {
	r.SuspendHeartBeat(allThreads)
	return &SuspendScope{reg: r, allThreads: allThreads}
}

// Release resumes with the same scope the guard suspended with.
// Releasing twice is a contract violation: it trips the assertion
// environment in debug builds and is otherwise ignored, so the
// suspend depth never goes negative through a guard.
func (s *SuspendScope) Release() {
	if s.released {
		s.reg.assertFailure("heartbeat.scope_release_once", "SuspendScope released more than once")
		return
	}
	s.released = true
	s.reg.ResumeHeartBeat(s.allThreads)
}
