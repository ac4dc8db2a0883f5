package kclock_test

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/kestrel-watch/kestrel/kclock"
	"github.com/stretchr/testify/require"
)

func TestClock_smallStepsAccumulateExactly(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	c := kclock.NewWithSource(time.Second, mock)

	for i := 0; i < 10; i++ {
		mock.Add(100 * time.Millisecond)
		c.Tick()
	}

	require.Equal(t, time.Second, c.Elapsed())
	require.InDelta(t, 1.0, c.Seconds(), 1e-9)
}

func TestClock_oversizedDeltaIsClamped(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	c := kclock.NewWithSource(time.Second, mock)

	// Simulates the process being suspended for an hour between ticks:
	// the single giant delta must only advance the clock by the max step.
	mock.Add(time.Hour)
	c.Tick()

	require.Equal(t, time.Second, c.Elapsed())

	// The real baseline moved to the current reading,
	// so a subsequent normal delta accumulates normally.
	mock.Add(250 * time.Millisecond)
	c.Tick()
	require.Equal(t, time.Second+250*time.Millisecond, c.Elapsed())
}

func TestClock_totalNeverExceedsMaxStepPerTick(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	const maxStep = 50 * time.Millisecond
	c := kclock.NewWithSource(maxStep, mock)

	deltas := []time.Duration{
		time.Millisecond,
		time.Minute,
		49 * time.Millisecond,
		time.Hour,
		0,
		51 * time.Millisecond,
	}

	prev := c.Elapsed()
	for _, d := range deltas {
		mock.Add(d)
		c.Tick()

		// Seconds() is non-decreasing.
		require.GreaterOrEqual(t, c.Elapsed(), prev)
		prev = c.Elapsed()
	}

	require.LessOrEqual(t, c.Elapsed(), maxStep*time.Duration(len(deltas)))
}

func TestClock_realClockRegressionAdvancesZero(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	c := kclock.NewWithSource(time.Second, mock)

	mock.Add(100 * time.Millisecond)
	c.Tick()
	require.Equal(t, 100*time.Millisecond, c.Elapsed())

	// Step the mock backwards; the tick must not regress accumulated time.
	mock.Set(mock.Now().Add(-time.Minute))
	c.Tick()
	require.Equal(t, 100*time.Millisecond, c.Elapsed())

	// And the baseline follows the regressed reading,
	// so the clock resumes normal accumulation from there.
	mock.Add(100 * time.Millisecond)
	c.Tick()
	require.Equal(t, 200*time.Millisecond, c.Elapsed())
}

func TestClock_invalidMaxStepPanics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		kclock.NewWithSource(0, clock.NewMock())
	})
}
