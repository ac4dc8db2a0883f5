package kstack

import (
	"fmt"
	"hash/crc32"
	"strings"
)

// Frame is a single call site in a captured [Trace].
type Frame struct {
	// Function is the fully qualified function name,
	// e.g. "github.com/kestrel-watch/kestrel/khitch.(*ThreadedWatchdog).FrameStart".
	Function string

	// Offset is the program counter offset within the function,
	// as reported by the runtime.
	Offset uintptr

	// File and Line are only populated when the capturing walker
	// resolves source locations; otherwise they are "" and 0.
	File string
	Line int
}

// Trace is a bounded capture of one goroutine's call stack.
type Trace struct {
	// GoroutineID is the runtime id of the captured goroutine.
	GoroutineID int64

	// State is the runtime's scheduling state at capture time,
	// e.g. "running", "chan receive" or "sleep".
	State string

	Frames []Frame

	// Truncated indicates the goroutine's stack was deeper than
	// the walker's frame bound.
	Truncated bool
}

// Fingerprint returns a CRC-32 checksum identifying the call site of the trace.
//
// The checksum covers function names and in-function offsets only,
// so it is stable regardless of whether source locations were resolved.
// A zero-frame trace fingerprints to zero.
func (t Trace) Fingerprint() uint32 {
	if len(t.Frames) == 0 {
		return 0
	}

	h := crc32.NewIEEE()
	for _, f := range t.Frames {
		fmt.Fprintf(h, "%s+0x%x\n", f.Function, f.Offset)
	}
	return h.Sum32()
}

// String renders the trace in a format close to the runtime's own.
func (t Trace) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "goroutine %d [%s]:\n", t.GoroutineID, t.State)
	for _, f := range t.Frames {
		fmt.Fprintf(&sb, "%s(...)\n", f.Function)
		if f.File != "" {
			fmt.Fprintf(&sb, "\t%s:%d +0x%x\n", f.File, f.Line, f.Offset)
		}
	}
	if t.Truncated {
		sb.WriteString("...additional frames elided...\n")
	}
	return sb.String()
}
