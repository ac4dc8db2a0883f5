package khttp_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/kestrel-watch/kestrel/internal/ktest"
	"github.com/kestrel-watch/kestrel/kconfig"
	"github.com/kestrel-watch/kestrel/kheart"
	"github.com/kestrel-watch/kestrel/khttp"
	"github.com/kestrel-watch/kestrel/kreport"
	"github.com/kestrel-watch/kestrel/kstack"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	Registry *kheart.Registry
	History  *kreport.History

	BaseURL string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	reg := kheart.NewRegistry(ktest.NewLogger(t), kconfig.Default())
	reg.Start()

	hist := kreport.NewHistory(16, nil)

	srv := khttp.NewHTTPServer(ctx, ktest.NewLogger(t), khttp.HTTPServerConfig{
		Listener: ln,
		Registry: reg,
		History:  hist,
	})
	t.Cleanup(srv.Wait)
	t.Cleanup(cancel)

	return &fixture{
		Registry: reg,
		History:  hist,
		BaseURL:  fmt.Sprintf("http://%s", ln.Addr()),
	}
}

func getJSON(t *testing.T, url string, dst any) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHTTPServer_status(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	fx.Registry.HeartBeat(false)

	var got kheart.Snapshot
	getJSON(t, fx.BaseURL+"/watchdog/status", &got)

	require.True(t, got.Enabled)
	require.Len(t, got.Threads, 1)
	require.Equal(t, 1.0, got.Multiplier)
	require.Equal(t, kheart.InvalidThreadID, got.LastHungThreadID)
}

func TestHTTPServer_events(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	var got []kreport.Event
	getJSON(t, fx.BaseURL+"/watchdog/events", &got)
	require.Empty(t, got)

	fx.History.ReportHitch(kreport.HitchReport{Duration: 200 * time.Millisecond})
	fx.History.ReportHang(kreport.HangReport{
		ThreadID: 7,
		Duration: 30 * time.Second,
		Trace:    kstack.Trace{GoroutineID: 42},
	})

	getJSON(t, fx.BaseURL+"/watchdog/events", &got)
	require.Len(t, got, 2)
	require.Equal(t, kreport.EventHitch, got[0].Kind)
	require.Equal(t, kreport.EventHang, got[1].Kind)
}

func TestHTTPServer_lastHang(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp, err := http.Get(fx.BaseURL + "/watchdog/hangs/last")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	fx.History.ReportHang(kreport.HangReport{ThreadID: 3, Duration: 26 * time.Second})

	var got kreport.HangReport
	getJSON(t, fx.BaseURL+"/watchdog/hangs/last", &got)
	require.Equal(t, uint32(3), got.ThreadID)
	require.Equal(t, 26*time.Second, got.Duration)
}

func TestHTTPServer_unknownRouteIs404(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)

	resp, err := http.Get(fx.BaseURL + "/watchdog/nope")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
