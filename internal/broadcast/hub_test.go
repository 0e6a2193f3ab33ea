package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/i474232898/location-data-aggregation/internal/location"
	"github.com/i474232898/location-data-aggregation/internal/store"
)

func startHub(t *testing.T) (*Hub, *store.MemoryStore, string) {
	t.Helper()
	memStore := store.NewMemoryStore()
	hub := NewHub(memStore, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx)
	}()

	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	// Run subscribes asynchronously; wait until it is attached.
	deadline := time.Now().Add(2 * time.Second)
	for memStore.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("hub did not subscribe to the store")
		}
		time.Sleep(5 * time.Millisecond)
	}

	return hub, memStore, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func TestHubSendsCurrentSnapshotOnConnect(t *testing.T) {
	_, memStore, url := startHub(t)
	memStore.Update(func(s location.Snapshot) location.Snapshot {
		s.Position = &location.Position{Latitude: 35.6812, Longitude: 139.7671}
		return s
	})

	conn := dial(t, url)
	f := readFrame(t, conn)
	for f.Snapshot.Position == nil {
		// The broadcast of the update may race the initial frame.
		f = readFrame(t, conn)
	}
	if f.Snapshot.Position.Latitude != 35.6812 {
		t.Fatalf("unexpected position %+v", f.Snapshot.Position)
	}
	if f.Stamp == 0 {
		t.Fatal("expected a timestamp")
	}
}

func TestHubBroadcastsReplacements(t *testing.T) {
	hub, memStore, url := startHub(t)
	conn := dial(t, url)

	initial := readFrame(t, conn)
	if initial.Snapshot.LocationStatus != location.StatusWaiting {
		t.Fatalf("unexpected initial status %q", initial.Snapshot.LocationStatus)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	memStore.ToggleStationListExpanded()
	for {
		f := readFrame(t, conn)
		if f.Snapshot.StationListExpanded {
			break
		}
	}
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	hub, _, url := startHub(t)
	conn := dial(t, url)
	readFrame(t, conn)

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("expected no clients, got %d", hub.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubRefusesClientsAfterRun(t *testing.T) {
	memStore := store.NewMemoryStore()
	hub := NewHub(memStore, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatal("expected the handshake to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected status %d, got %+v", http.StatusServiceUnavailable, resp)
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", hub.ClientCount())
	}
}
