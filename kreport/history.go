package kreport

import (
	"fmt"
	"sync"
	"time"

	"github.com/eapache/queue"
)

// EventKind discriminates entries in a [History].
type EventKind string

const (
	EventHang  EventKind = "hang"
	EventHitch EventKind = "hitch"
)

// Event is one recorded detection.
type Event struct {
	Time time.Time
	Kind EventKind

	// Exactly one of Hang or Hitch is set, matching Kind.
	Hang  *HangReport
	Hitch *HitchReport
}

// History is a [Reporter] decorator keeping a bounded ring
// of the most recent events, oldest dropped first.
// It is intended for debug surfaces such as the khttp status endpoint.
//
// History is safe for concurrent use.
type History struct {
	mu     sync.Mutex
	max    int
	events *queue.Queue

	// next receives every report after recording; may be nil.
	next Reporter
}

var _ Reporter = (*History)(nil)

// NewHistory returns a History retaining at most max events,
// forwarding each report to next after recording it.
// A nil next only records.
func NewHistory(max int, next Reporter) *History {
	if max <= 0 {
		panic(fmt.Errorf("kreport.NewHistory: max must be positive (got %d)", max))
	}

	return &History{
		max:    max,
		events: queue.New(),
		next:   next,
	}
}

func (h *History) ReportHang(r HangReport) {
	h.record(Event{Time: time.Now(), Kind: EventHang, Hang: &r})
	if h.next != nil {
		h.next.ReportHang(r)
	}
}

func (h *History) ReportHitch(r HitchReport) {
	h.record(Event{Time: time.Now(), Kind: EventHitch, Hitch: &r})
	if h.next != nil {
		h.next.ReportHitch(r)
	}
}

func (h *History) record(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events.Add(e)
	for h.events.Length() > h.max {
		h.events.Remove()
	}
}

// Recent returns the retained events, oldest first.
func (h *History) Recent() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Event, h.events.Length())
	for i := range out {
		out[i] = h.events.Get(i).(Event)
	}
	return out
}

// LastHang returns the most recent hang event, if any is retained.
func (h *History) LastHang() (HangReport, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := h.events.Length() - 1; i >= 0; i-- {
		e := h.events.Get(i).(Event)
		if e.Kind == EventHang {
			return *e.Hang, true
		}
	}
	return HangReport{}, false
}
