package kheart

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// HangError is the context cancellation cause when the supervisor
// detects a hang and hangs are configured as fatal.
type HangError struct {
	ThreadID ThreadID
	Duration time.Duration
}

func (e HangError) Error() string {
	return fmt.Sprintf(
		"thread %d failed to heartbeat within its effective timeout (silent for %v)",
		e.ThreadID, e.Duration,
	)
}

// ForcedTerminationError is the cancellation cause after a call to
// [*Supervisor.Terminate].
type ForcedTerminationError struct {
	Reason string
}

func (e ForcedTerminationError) Error() string {
	return "supervisor forced termination: " + e.Reason
}

// IsHang reports whether the context was cancelled because of a
// detected fatal hang.
func IsHang(ctx context.Context) bool {
	var he HangError
	return errors.As(context.Cause(ctx), &he)
}

// IsTermination reports whether the context was cancelled by the
// supervisor, for any reason.
func IsTermination(ctx context.Context) bool {
	e := context.Cause(ctx)
	if e == nil {
		return false
	}

	var he HangError
	if errors.As(e, &he) {
		return true
	}

	var ft ForcedTerminationError
	return errors.As(e, &ft)
}
