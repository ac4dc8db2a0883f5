package kheart_test

import (
	"testing"
	"time"

	"github.com/kestrel-watch/kestrel/kheart"
	"github.com/stretchr/testify/require"
)

func TestSuspendScope_releaseResumesAndRestartsSilence(t *testing.T) {
	t.Parallel()

	r, mock, _ := newTestRegistry(t, testConfig())

	r.HeartBeat(false)

	scope := r.Suspend(false)

	mock.Add(time.Minute)
	id, _ := r.CheckHeartBeat()
	require.Equal(t, kheart.InvalidThreadID, id)

	scope.Release()

	// Silence restarts at the release instant.
	mock.Add(4 * time.Second)
	id, _ = r.CheckHeartBeat()
	require.Equal(t, kheart.InvalidThreadID, id)

	mock.Add(2 * time.Second)
	id, _ = r.CheckHeartBeat()
	require.Equal(t, kheart.ThreadID(1), id)
}

func TestSuspendScope_nesting(t *testing.T) {
	t.Parallel()

	r, mock, _ := newTestRegistry(t, testConfig())

	r.HeartBeat(false)

	outer := r.Suspend(false)
	inner := r.Suspend(false)

	// Releasing only the inner scope leaves the thread suspended.
	inner.Release()
	mock.Add(time.Minute)
	id, _ := r.CheckHeartBeat()
	require.Equal(t, kheart.InvalidThreadID, id)

	outer.Release()
	mock.Add(6 * time.Second)
	id, _ = r.CheckHeartBeat()
	require.Equal(t, kheart.ThreadID(1), id)
}

func TestSuspendScope_nestsWithManualCalls(t *testing.T) {
	t.Parallel()

	r, mock, _ := newTestRegistry(t, testConfig())

	r.HeartBeat(false)

	r.SuspendHeartBeat(false)
	scope := r.Suspend(false)
	scope.Release()

	// The manual suspend is still in effect.
	mock.Add(time.Minute)
	id, _ := r.CheckHeartBeat()
	require.Equal(t, kheart.InvalidThreadID, id)

	r.ResumeHeartBeat(false)
	mock.Add(6 * time.Second)
	id, _ = r.CheckHeartBeat()
	require.Equal(t, kheart.ThreadID(1), id)
}

func TestSuspendScope_doubleReleaseIsIgnored(t *testing.T) {
	t.Parallel()

	r, mock, _ := newTestRegistry(t, testConfig())

	r.HeartBeat(false)

	scope := r.Suspend(false)
	scope.Release()
	// With assertions disabled the second release is ignored;
	// the depth stays at zero rather than going negative.
	scope.Release()

	mock.Add(6 * time.Second)
	id, _ := r.CheckHeartBeat()
	require.Equal(t, kheart.ThreadID(1), id)
}

func TestSuspendScope_allThreads(t *testing.T) {
	t.Parallel()

	r, mock, ident := newTestRegistry(t, testConfig())

	ident.set(1)
	r.HeartBeat(false)
	ident.set(2)
	r.HeartBeat(false)

	scope := r.Suspend(true)

	mock.Add(time.Minute)
	id, _ := r.CheckHeartBeat()
	require.Equal(t, kheart.InvalidThreadID, id)

	scope.Release()

	mock.Add(4 * time.Second)
	id, _ = r.CheckHeartBeat()
	require.Equal(t, kheart.InvalidThreadID, id)
}
