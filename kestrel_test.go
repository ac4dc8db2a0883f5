package kestrel_test

import (
	"context"
	"testing"

	"github.com/kestrel-watch/kestrel"
	"github.com/kestrel-watch/kestrel/internal/ktest"
	"github.com/kestrel-watch/kestrel/kconfig"
	"github.com/kestrel-watch/kestrel/kheart"
	"github.com/stretchr/testify/require"
)

func TestNew_wiresTheStandardArrangement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, sCtx := kestrel.New(ctx, ktest.NewLogger(t), kconfig.Default())
	defer w.Wait()
	defer cancel()

	require.NotNil(t, w.Registry)
	require.NotNil(t, w.Supervisor)
	require.NotNil(t, w.Hitch)
	require.NotNil(t, w.History)
	require.NoError(t, sCtx.Err())

	w.Registry.HeartBeat(false)
	w.Hitch.FrameStart(false)

	snap := w.Registry.Snapshot()
	require.True(t, snap.Enabled)
	require.Len(t, snap.Threads, 1)
	require.Equal(t, kheart.InvalidThreadID, snap.LastHungThreadID)
}

// The default-instance tests share package-level state,
// so they deliberately do not run in parallel.

func TestDefault_unsetConvenienceFunctionsAreNoOps(t *testing.T) {
	require.Nil(t, kestrel.Default())

	require.NotPanics(t, func() {
		kestrel.HeartBeat()
		kestrel.PresentFrame()
		kestrel.FrameStart(false)
	})
}

func TestDefault_setAndUse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, _ := kestrel.New(ctx, ktest.NewLogger(t), kconfig.Default())
	defer w.Wait()
	defer cancel()

	kestrel.SetDefault(w)
	defer kestrel.SetDefault(nil)

	require.Same(t, w, kestrel.Default())

	kestrel.HeartBeat()
	kestrel.FrameStart(false)
	kestrel.PresentFrame()

	snap := w.Registry.Snapshot()
	require.Len(t, snap.Threads, 1)
	require.NotNil(t, snap.Present)
}
