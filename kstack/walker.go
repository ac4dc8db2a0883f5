package kstack

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"

	"github.com/petermattis/goid"
)

// ErrGoroutineNotFound indicates the requested goroutine did not appear
// in the runtime's stack snapshot, typically because it already exited.
var ErrGoroutineNotFound = errors.New("goroutine not found in stack snapshot")

// CurrentGoroutineID returns the runtime id of the calling goroutine.
func CurrentGoroutineID() int64 {
	return goid.Get()
}

// Walker captures a bounded call stack for a given goroutine.
//
// Implementations must be safe for concurrent use and must not require
// the target goroutine's cooperation.
type Walker interface {
	// Capture returns at most maxDepth frames of the goroutine's stack.
	// It returns [ErrGoroutineNotFound] if the goroutine no longer exists.
	Capture(goroutineID int64, maxDepth int) (Trace, error)
}

// RuntimeWalker is the default [Walker], backed by [runtime.Stack].
//
// The zero value captures with source locations resolved.
type RuntimeWalker struct {
	// RawOnly drops file and line information from captured frames,
	// leaving only function symbols and offsets.
	// Reports built from raw frames are cheaper to produce and log.
	RawOnly bool
}

// Snapshot buffer sizing. The all-goroutine dump does not fit a fixed
// buffer on busy processes, so the buffer doubles up to the bound.
const (
	snapshotInitialSize = 64 << 10
	snapshotMaxSize     = 1 << 20
)

func (w RuntimeWalker) Capture(goroutineID int64, maxDepth int) (Trace, error) {
	if maxDepth <= 0 {
		return Trace{}, fmt.Errorf("kstack: maxDepth must be positive (got %d)", maxDepth)
	}

	buf := make([]byte, snapshotInitialSize)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		if len(buf) >= snapshotMaxSize {
			// Bounded: parse what we have and hope the target is present.
			break
		}
		buf = make([]byte, len(buf)*2)
	}

	section, state, ok := findGoroutineSection(string(buf), goroutineID)
	if !ok {
		return Trace{}, fmt.Errorf("kstack: goroutine %d: %w", goroutineID, ErrGoroutineNotFound)
	}

	t := Trace{
		GoroutineID: goroutineID,
		State:       state,
	}
	w.parseFrames(&t, section, maxDepth)
	return t, nil
}

// findGoroutineSection locates the stack record for the given goroutine id
// in an all-goroutine dump, returning the frame lines and the scheduling state.
func findGoroutineSection(dump string, goroutineID int64) (section, state string, ok bool) {
	wantHeader := "goroutine " + strconv.FormatInt(goroutineID, 10) + " ["

	for _, sec := range strings.Split(dump, "\n\n") {
		header, rest, found := strings.Cut(sec, "\n")
		if !found {
			continue
		}
		if !strings.HasPrefix(header, wantHeader) {
			continue
		}

		state = strings.TrimPrefix(header, wantHeader)
		state, _, _ = strings.Cut(state, "]")
		return rest, state, true
	}

	return "", "", false
}

// parseFrames fills t.Frames from the runtime's two-line-per-frame format:
// a function line such as "pkg.Func(0x1, 0x2)" followed by a tab-indented
// location line such as "\t/src/pkg/file.go:42 +0x1b".
func (w RuntimeWalker) parseFrames(t *Trace, section string, maxDepth int) {
	lines := strings.Split(section, "\n")

	for i := 0; i+1 < len(lines); i += 2 {
		funcLine := lines[i]
		locLine := lines[i+1]

		if strings.HasPrefix(funcLine, "created by ") {
			// The creation site is not part of the goroutine's live stack.
			break
		}
		if !strings.HasPrefix(locLine, "\t") {
			break
		}

		if len(t.Frames) >= maxDepth {
			t.Truncated = true
			break
		}

		f := Frame{Function: trimCallArgs(funcLine)}

		loc := strings.TrimPrefix(locLine, "\t")
		if file, line, off, ok := parseLocation(loc); ok {
			f.Offset = off
			if !w.RawOnly {
				f.File = file
				f.Line = line
			}
		}

		t.Frames = append(t.Frames, f)
	}
}

// trimCallArgs strips the argument list from a runtime function line,
// turning "pkg.Func(0x1, 0x2)" into "pkg.Func".
func trimCallArgs(funcLine string) string {
	if i := strings.LastIndexByte(funcLine, '('); i >= 0 {
		return funcLine[:i]
	}
	return funcLine
}

// parseLocation splits "/src/pkg/file.go:42 +0x1b" into its parts.
// The offset component is absent for some runtime-internal frames.
func parseLocation(loc string) (file string, line int, offset uintptr, ok bool) {
	fileAndLine, offPart, _ := strings.Cut(loc, " +0x")

	colon := strings.LastIndexByte(fileAndLine, ':')
	if colon < 0 {
		return "", 0, 0, false
	}

	line, err := strconv.Atoi(fileAndLine[colon+1:])
	if err != nil {
		return "", 0, 0, false
	}

	if offPart != "" {
		off, err := strconv.ParseUint(offPart, 16, 64)
		if err == nil {
			offset = uintptr(off)
		}
	}

	return fileAndLine[:colon], line, offset, true
}
