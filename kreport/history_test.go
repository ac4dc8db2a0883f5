package kreport_test

import (
	"testing"
	"time"

	"github.com/kestrel-watch/kestrel/kreport"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	hangs   []kreport.HangReport
	hitches []kreport.HitchReport
}

func (r *recordingReporter) ReportHang(h kreport.HangReport)   { r.hangs = append(r.hangs, h) }
func (r *recordingReporter) ReportHitch(h kreport.HitchReport) { r.hitches = append(r.hitches, h) }

func TestHistory_boundedRetention(t *testing.T) {
	t.Parallel()

	h := kreport.NewHistory(3, nil)

	for i := 1; i <= 5; i++ {
		h.ReportHang(kreport.HangReport{ThreadID: uint32(i)})
	}

	got := h.Recent()
	require.Len(t, got, 3)

	// Oldest first; threads 1 and 2 were evicted.
	require.Equal(t, uint32(3), got[0].Hang.ThreadID)
	require.Equal(t, uint32(5), got[2].Hang.ThreadID)
}

func TestHistory_forwardsToNext(t *testing.T) {
	t.Parallel()

	next := &recordingReporter{}
	h := kreport.NewHistory(8, next)

	h.ReportHang(kreport.HangReport{ThreadID: 7, Duration: time.Second})
	h.ReportHitch(kreport.HitchReport{Duration: 200 * time.Millisecond})

	require.Len(t, next.hangs, 1)
	require.Equal(t, uint32(7), next.hangs[0].ThreadID)
	require.Len(t, next.hitches, 1)

	events := h.Recent()
	require.Len(t, events, 2)
	require.Equal(t, kreport.EventHang, events[0].Kind)
	require.Equal(t, kreport.EventHitch, events[1].Kind)
}

func TestHistory_lastHang(t *testing.T) {
	t.Parallel()

	h := kreport.NewHistory(8, nil)

	_, ok := h.LastHang()
	require.False(t, ok)

	h.ReportHang(kreport.HangReport{ThreadID: 1})
	h.ReportHitch(kreport.HitchReport{})
	h.ReportHang(kreport.HangReport{ThreadID: 2})
	h.ReportHitch(kreport.HitchReport{})

	last, ok := h.LastHang()
	require.True(t, ok)
	require.Equal(t, uint32(2), last.ThreadID)
}

func TestNewHistory_invalidMax(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { kreport.NewHistory(0, nil) })
}
