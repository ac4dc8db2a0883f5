package kheart

import "github.com/kestrel-watch/kestrel/kstack"

// ThreadID identifies one monitored thread in the registry.
//
// The top two values are reserved and never identify a real thread.
type ThreadID uint32

const (
	// InvalidThreadID is the sentinel returned by checks that found no hang.
	InvalidThreadID ThreadID = ^ThreadID(0)

	// PresentThreadID is the reserved identity of the frame-presentation slot,
	// a distinct namespace from generic thread ids.
	PresentThreadID ThreadID = ^ThreadID(0) - 1
)

// IdentityFn supplies the calling thread's registry identity.
//
// The default derives it from the runtime goroutine id;
// embedders with stable worker ids of their own install a replacement
// through [WithIdentity].
type IdentityFn func() ThreadID

func runtimeIdentity() ThreadID {
	id := ThreadID(kstack.CurrentGoroutineID())
	if id == InvalidThreadID || id == PresentThreadID {
		// Reserved values never identify a real thread.
		id -= 2
	}
	return id
}
