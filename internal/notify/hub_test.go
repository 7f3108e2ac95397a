package notify

import (
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func startTestHub(t *testing.T) *Hub {
	t.Helper()
	h := New(slog.Default())
	go h.Run()
	return h
}

func unregisterAll(h *Hub, clients ...*client) {
	for _, c := range clients {
		h.unregister <- c
	}
	time.Sleep(20 * time.Millisecond)
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	resp.Body.Close()
	return conn
}

func TestHub_RegisterAndCount(t *testing.T) {
	h := startTestHub(t)
	c := &client{hub: h, send: make(chan []byte, 16)}
	h.register <- c
	time.Sleep(20 * time.Millisecond)

	if h.ClientCount() != 1 {
		t.Fatalf("count = %d, want 1", h.ClientCount())
	}
	unregisterAll(h, c)
	if h.ClientCount() != 0 {
		t.Fatalf("count = %d, want 0", h.ClientCount())
	}
}

func TestHub_PublishReachesClients(t *testing.T) {
	h := startTestHub(t)
	c1 := &client{hub: h, send: make(chan []byte, 16)}
	c2 := &client{hub: h, send: make(chan []byte, 16)}
	h.register <- c1
	h.register <- c2
	time.Sleep(20 * time.Millisecond)

	h.Publish(Event{Type: EventStateChanged, StreamID: 7, Data: StateChangedData{State: "fetching"}})
	time.Sleep(20 * time.Millisecond)

	for i, c := range []*client{c1, c2} {
		select {
		case got := <-c.send:
			var ev Event
			if err := json.Unmarshal(got, &ev); err != nil {
				t.Fatalf("client %d: unmarshal: %v", i, err)
			}
			if ev.Type != EventStateChanged || ev.StreamID != 7 {
				t.Fatalf("client %d: got %+v", i, ev)
			}
		default:
			t.Fatalf("client %d: no message received", i)
		}
	}
	unregisterAll(h, c1, c2)
}

func TestHub_PublishDropsSlowClient(t *testing.T) {
	h := startTestHub(t)
	slow := &client{hub: h, send: make(chan []byte, 1)}
	h.register <- slow
	time.Sleep(20 * time.Millisecond)

	slow.send <- []byte("fill")
	h.Publish(Event{Type: EventSizeKnown, StreamID: 1, Data: SizeKnownData{Size: 100}})
	time.Sleep(20 * time.Millisecond)

	if h.ClientCount() != 0 {
		t.Fatalf("expected slow client dropped, got %d clients", h.ClientCount())
	}
}

func TestHub_PublishNoClients(t *testing.T) {
	h := startTestHub(t)
	h.Publish(Event{Type: EventMigrationStarted, StreamID: 1})
}

func TestHub_ServeHTTP_RoundTrip(t *testing.T) {
	h := startTestHub(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialWS(t, srv)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	h.Publish(Event{Type: EventMigrationFinished, StreamID: 3, Data: MigrationData{Backend: "disk"}})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if ev.Type != EventMigrationFinished || ev.StreamID != 3 {
		t.Fatalf("got %+v", ev)
	}
}

func TestHub_Close_DisconnectsClients(t *testing.T) {
	h := New(slog.Default())
	go h.Run()
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dialWS(t, srv)
	time.Sleep(50 * time.Millisecond)

	h.Close()
	time.Sleep(100 * time.Millisecond)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, _, err := conn.ReadMessage()
	if err == nil {
		t.Fatal("expected error after hub close")
	}
	conn.Close()
}
