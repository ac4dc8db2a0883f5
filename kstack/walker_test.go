package kstack_test

import (
	"strings"
	"testing"
	"time"

	"github.com/kestrel-watch/kestrel/kstack"
	"github.com/stretchr/testify/require"
)

// blockForCapture parks a goroutine in a recognizable function
// and reports its goroutine id.
func blockForCapture(t *testing.T) (id int64, release chan struct{}) {
	t.Helper()

	release = make(chan struct{})
	idCh := make(chan int64, 1)

	go func() {
		idCh <- kstack.CurrentGoroutineID()
		<-release
	}()

	t.Cleanup(func() { close(release) })
	return <-idCh, release
}

func TestRuntimeWalker_capturesBlockedGoroutine(t *testing.T) {
	t.Parallel()

	id, _ := blockForCapture(t)

	// The target goroutine sends its id before blocking,
	// but give the scheduler a moment to park it on the channel receive.
	time.Sleep(10 * time.Millisecond)

	tr, err := kstack.RuntimeWalker{}.Capture(id, 32)
	require.NoError(t, err)

	require.Equal(t, id, tr.GoroutineID)
	require.NotEmpty(t, tr.Frames)

	found := false
	for _, f := range tr.Frames {
		if strings.Contains(f.Function, "blockForCapture") {
			found = true
			require.NotEmpty(t, f.File)
			require.Positive(t, f.Line)
		}
	}
	require.True(t, found, "expected a frame in blockForCapture, got:\n%s", tr)
}

func TestRuntimeWalker_rawOnlyOmitsLocations(t *testing.T) {
	t.Parallel()

	id, _ := blockForCapture(t)
	time.Sleep(10 * time.Millisecond)

	tr, err := kstack.RuntimeWalker{RawOnly: true}.Capture(id, 32)
	require.NoError(t, err)
	require.NotEmpty(t, tr.Frames)

	for _, f := range tr.Frames {
		require.Empty(t, f.File)
		require.Zero(t, f.Line)
		require.NotEmpty(t, f.Function)
	}
}

func TestRuntimeWalker_maxDepthBoundsFrames(t *testing.T) {
	t.Parallel()

	id, _ := blockForCapture(t)
	time.Sleep(10 * time.Millisecond)

	tr, err := kstack.RuntimeWalker{}.Capture(id, 1)
	require.NoError(t, err)
	require.Len(t, tr.Frames, 1)
	require.True(t, tr.Truncated)
}

func TestRuntimeWalker_missingGoroutine(t *testing.T) {
	t.Parallel()

	// Goroutine ids are monotonically assigned;
	// a huge id cannot belong to a live goroutine in a test process.
	_, err := kstack.RuntimeWalker{}.Capture(1<<40, 32)
	require.ErrorIs(t, err, kstack.ErrGoroutineNotFound)
}

func TestTrace_fingerprint(t *testing.T) {
	t.Parallel()

	id, _ := blockForCapture(t)
	time.Sleep(10 * time.Millisecond)

	full, err := kstack.RuntimeWalker{}.Capture(id, 32)
	require.NoError(t, err)
	raw, err := kstack.RuntimeWalker{RawOnly: true}.Capture(id, 32)
	require.NoError(t, err)

	require.NotZero(t, full.Fingerprint())

	// The fingerprint only covers symbols and offsets,
	// so raw and resolved captures of the same stack agree.
	require.Equal(t, full.Fingerprint(), raw.Fingerprint())

	// Zero-frame traces fingerprint to zero.
	require.Zero(t, kstack.Trace{}.Fingerprint())
}
