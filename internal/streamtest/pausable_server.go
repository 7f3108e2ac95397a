package streamtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Action describes what a Controls-triggered intervention does to an
// in-flight range response.
type Action int

const (
	// Pause blocks the response from starting until Controls.Resume is
	// called.
	Pause Action = iota
	// Cut closes the connection after At bytes of the response body have
	// been written, simulating a dropped connection mid-transfer.
	Cut
	// Crash closes the connection immediately, before any body bytes are
	// written.
	Crash
)

// Event selects when a pending Action fires.
type Event struct {
	// Any matches whichever request arrives next if true.
	Any bool
	// ByteRequested fires the action only for a request whose Range
	// header start equals this offset.
	ByteRequested uint32
	hasByteReq    bool
}

// ByteRequested builds an Event matching a request starting at pos.
func ByteRequested(pos uint32) Event {
	return Event{ByteRequested: pos, hasByteReq: true}
}

// AnyRequest builds an Event matching every request.
func AnyRequest() Event {
	return Event{Any: true}
}

func (e Event) matches(start uint32) bool {
	if e.Any {
		return true
	}
	return e.hasByteReq && e.ByteRequested == start
}

type pending struct {
	event  Event
	action Action
	at     uint32
}

// Controls lets a test arm interventions on a PausableServer and resume
// any currently paused request.
type Controls struct {
	mu      sync.Mutex
	pending []pending
	paused  chan struct{}
}

// NewControls constructs an empty, unpaused Controls.
func NewControls() *Controls {
	return &Controls{}
}

// Arm schedules action to fire the next time a request matches event.
func (c *Controls) Arm(event Event, action Action, at uint32) {
	c.mu.Lock()
	c.pending = append(c.pending, pending{event: event, action: action, at: at})
	c.mu.Unlock()
}

// Resume releases a request currently blocked by a Pause action.
func (c *Controls) Resume() {
	c.mu.Lock()
	p := c.paused
	c.paused = nil
	c.mu.Unlock()
	if p != nil {
		close(p)
	}
}

func (c *Controls) take(start uint32) (pending, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, p := range c.pending {
		if p.event.matches(start) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return p, true
		}
	}
	return pending{}, false
}

func (c *Controls) armPause() chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.paused = ch
	c.mu.Unlock()
	return ch
}

// PausableServer starts an httptest server serving size bytes of
// TestData at "/stream_test" whose responses can be paused, cut short,
// or crashed mid-request via controls, grounded on the
// original implementation's pause-then-notify range handler.
func PausableServer(size uint32, controls *Controls) *httptest.Server {
	data := TestData(size)
	mux := http.NewServeMux()
	mux.HandleFunc("/stream_test", func(w http.ResponseWriter, r *http.Request) {
		start, end, ok := parseRange(r.Header.Get("Range"), uint32(len(data)))
		if !ok {
			start, end = 0, uint32(len(data))
		}

		if p, found := controls.take(start); found {
			switch p.action {
			case Pause:
				<-controls.armPause()
			case Crash:
				hj, ok := w.(http.Hijacker)
				if ok {
					conn, _, _ := hj.Hijack()
					conn.Close()
					return
				}
				return
			case Cut:
				body := data[start:end]
				cutAt := p.at
				if cutAt > uint32(len(body)) {
					cutAt = uint32(len(body))
				}
				w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, len(data)))
				w.Header().Set("Accept-Ranges", "bytes")
				w.WriteHeader(http.StatusPartialContent)
				w.Write(body[:cutAt])
				hj, ok := w.(http.Hijacker)
				if ok {
					conn, _, _ := hj.Hijack()
					conn.Close()
				}
				return
			}
		}

		body := data[start:end]
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, len(data)))
		w.Header().Set("Accept-Ranges", "bytes")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(body)
	})
	return httptest.NewServer(mux)
}

func parseRange(header string, total uint32) (start, end uint32, ok bool) {
	if header == "" {
		return 0, 0, false
	}
	spec := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	s, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	if parts[1] == "" {
		return uint32(s), total, true
	}
	e, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	end = uint32(e) + 1
	if end > total {
		end = total
	}
	return uint32(s), end, true
}
