// Package khttp exposes the watchdogs' debug state over HTTP.
//
// The endpoints are read-only and intended for operators inspecting a
// live process; nothing here is a stable machine API.
package khttp

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kestrel-watch/kestrel/kheart"
	"github.com/kestrel-watch/kestrel/khitch"
	"github.com/kestrel-watch/kestrel/kreport"
)

type HTTPServer struct {
	done chan struct{}
}

type HTTPServerConfig struct {
	Listener net.Listener

	Registry *kheart.Registry

	// History, if set, backs the /watchdog/events and
	// /watchdog/hangs/last endpoints.
	History *kreport.History

	// Hitch, if set, backs the /watchdog/hitch endpoint.
	Hitch khitch.Watchdog
}

func NewHTTPServer(ctx context.Context, log *slog.Logger, cfg HTTPServerConfig) *HTTPServer {
	srv := &http.Server{
		Handler: newMux(log, cfg),

		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	h := &HTTPServer{
		done: make(chan struct{}),
	}
	go h.serve(log, cfg.Listener, srv)
	go h.waitForShutdown(ctx, srv)

	return h
}

func (h *HTTPServer) Wait() {
	<-h.done
}

func (h *HTTPServer) waitForShutdown(ctx context.Context, srv *http.Server) {
	select {
	case <-h.done:
		// h.serve returned on its own, nothing left to do here.
		return
	case <-ctx.Done():
		_ = srv.Close()
	}
}

func (h *HTTPServer) serve(log *slog.Logger, ln net.Listener, srv *http.Server) {
	defer close(h.done)

	if err := srv.Serve(ln); err != nil {
		if errors.Is(err, net.ErrClosed) || errors.Is(err, http.ErrServerClosed) {
			log.Info("HTTP server shutting down")
		} else {
			log.Info("HTTP server shutting down due to error", "err", err)
		}
	}
}

func newMux(log *slog.Logger, cfg HTTPServerConfig) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/watchdog/status", handleStatus(log, cfg)).Methods("GET")

	if cfg.History != nil {
		r.HandleFunc("/watchdog/events", handleEvents(log, cfg)).Methods("GET")
		r.HandleFunc("/watchdog/hangs/last", handleLastHang(log, cfg)).Methods("GET")
	}

	if cfg.Hitch != nil {
		r.HandleFunc("/watchdog/hitch", handleHitch(log, cfg)).Methods("GET")
	}

	return r
}

func handleStatus(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	reg := cfg.Registry
	return func(w http.ResponseWriter, req *http.Request) {
		if err := json.NewEncoder(w).Encode(reg.Snapshot()); err != nil {
			log.Warn("Failed to marshal registry snapshot", "err", err)
			return
		}
	}
}

func handleEvents(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	hist := cfg.History
	return func(w http.ResponseWriter, req *http.Request) {
		events := hist.Recent()

		// Encode an empty list rather than null when nothing happened.
		if events == nil {
			events = []kreport.Event{}
		}

		if err := json.NewEncoder(w).Encode(events); err != nil {
			log.Warn("Failed to marshal event history", "err", err)
			return
		}
	}
}

func handleLastHang(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	hist := cfg.History
	return func(w http.ResponseWriter, req *http.Request) {
		hang, ok := hist.LastHang()
		if !ok {
			http.Error(w, "no hang recorded", http.StatusNotFound)
			return
		}

		if err := json.NewEncoder(w).Encode(hang); err != nil {
			log.Warn("Failed to marshal last hang", "err", err)
			return
		}
	}
}

func handleHitch(log *slog.Logger, cfg HTTPServerConfig) func(w http.ResponseWriter, req *http.Request) {
	wd := cfg.Hitch
	return func(w http.ResponseWriter, req *http.Request) {
		var frame struct {
			FrameStart  time.Duration `json:"frame_start"`
			CurrentTime time.Duration `json:"current_time"`
			FrameOpen   bool          `json:"frame_open"`
		}

		frame.FrameStart = wd.FrameStartTime()
		frame.CurrentTime = wd.CurrentTime()
		frame.FrameOpen = frame.FrameStart >= 0

		if err := json.NewEncoder(w).Encode(frame); err != nil {
			log.Warn("Failed to marshal hitch state", "err", err)
			return
		}
	}
}
