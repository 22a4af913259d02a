package realtime

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"freightline/internal/events"
)

func TestHub_BroadcastStatus(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("listener not permitted in this environment: %v", err)
	}

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Fatalf("upgrade: %v", err)
		}
		hub.Register <- conn
	}))
	srv.Listener = ln
	srv.Start()
	t.Cleanup(srv.Close)

	wsURL := "ws" + srv.URL[len("http"):]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})

	hub.BroadcastStatus(events.OrderStatusEvent{
		OrderID:    5,
		CustomerID: "cust-1",
		Status:     "SHIPPED",
		Timestamp:  time.Now().UTC(),
	})

	readCh := make(chan []byte, 1)
	go func() {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("read message: %v", err)
			return
		}
		readCh <- data
	}()

	select {
	case got := <-readCh:
		var ev events.OrderStatusEvent
		if err := json.Unmarshal(got, &ev); err != nil {
			t.Fatalf("unmarshal broadcast: %v", err)
		}
		if ev.OrderID != 5 || ev.Status != "SHIPPED" {
			t.Fatalf("unexpected broadcast %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for broadcast")
	}
}

func TestHub_BroadcastWithoutClientsDoesNotBlock(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	// No Run loop and no clients: the queue absorbs what it can and the
	// rest is dropped without blocking the caller.
	for i := 0; i < 200; i++ {
		hub.BroadcastStatus(events.OrderStatusEvent{OrderID: int64(i), Status: "PROCESSING"})
	}
}
