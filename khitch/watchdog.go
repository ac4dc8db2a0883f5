package khitch

import "time"

// Watchdog is the frame hitch detection contract.
//
// Implementations monitor exactly one goroutine. All methods are safe
// for concurrent use, though FrameStart and the suspend pair are
// expected to be called from the monitored goroutine itself.
type Watchdog interface {
	// FrameStart marks a frame boundary: the previous frame's pending
	// hitch evaluation (if any) is abandoned and a new window opens.
	// With skipThisFrame, the new window is exempt from evaluation;
	// use it when the coming frame is known to block, such as a
	// deliberate synchronous load.
	FrameStart(skipThisFrame bool)

	// FrameStartTime returns the logical time of the current frame's
	// start, or a negative value when no evaluatable window is open.
	FrameStartTime() time.Duration

	// CurrentTime returns the watchdog's logical clock reading
	// as of its most recent tick.
	CurrentTime() time.Duration

	// SuspendHeartBeat pauses hitch detection until a matching
	// ResumeHeartBeat. Calls nest.
	SuspendHeartBeat()

	// ResumeHeartBeat undoes one SuspendHeartBeat.
	// Detection resumes at the next FrameStart.
	ResumeHeartBeat()
}

// DisableScope brackets a suspend/resume pair over a region of code.
// Release it on every exit path, typically via defer.
// Releasing more than once is ignored, so the suspend depth never goes
// negative through a scope. A DisableScope must not be copied.
type DisableScope struct {
	noCopy noCopy

	w        Watchdog
	released bool
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Disable suspends hitch detection on w for the current scope.
func Disable(w Watchdog) *DisableScope {
	w.SuspendHeartBeat()
	return &DisableScope{w: w}
}

// Release resumes hitch detection. Only the first call has any effect.
func (s *DisableScope) Release() {
	if s.released {
		return
	}
	s.released = true
	s.w.ResumeHeartBeat()
}
