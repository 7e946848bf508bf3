package observer

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/logging"
	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

func dialHub(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.SubscriberCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %d subscribers, have %d", want, hub.SubscriberCount())
}

func TestHubStreamsTickSnapshots(t *testing.T) {
	hub := NewHub(logging.Discard())
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		_ = hub.Close()
	})

	conn := dialHub(t, server)
	waitForSubscribers(t, hub, 1)

	sent := model.TickSnapshot{
		Tick: 7,
		Entities: []model.EntitySnapshot{{
			ID:       "ent-000001",
			Position: []float64{3, 5},
			Salience: 0.6,
		}},
		RenderOrder: []string{"ent-000001"},
	}
	hub.PublishTick(sent)

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}

	var got model.TickSnapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if got.Tick != 7 || len(got.Entities) != 1 || got.Entities[0].ID != "ent-000001" {
		t.Fatalf("unexpected frame: %+v", got)
	}
}

func TestHubFansOutToAllSubscribers(t *testing.T) {
	hub := NewHub(logging.Discard())
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		_ = hub.Close()
	})

	first := dialHub(t, server)
	second := dialHub(t, server)
	waitForSubscribers(t, hub, 2)

	hub.PublishTick(model.TickSnapshot{Tick: 1})

	for _, conn := range []*websocket.Conn{first, second} {
		if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
			t.Fatalf("set deadline: %v", err)
		}
		if _, _, err := conn.ReadMessage(); err != nil {
			t.Fatalf("read frame: %v", err)
		}
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(logging.Discard())
	t.Cleanup(func() {
		_ = hub.Close()
	})

	hub.PublishTick(model.TickSnapshot{Tick: 1})
	if hub.DroppedFrames() != 0 {
		t.Fatalf("unexpected drops: %d", hub.DroppedFrames())
	}
}

func TestHubCloseDisconnectsSubscribers(t *testing.T) {
	hub := NewHub(logging.Discard())
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	conn := dialHub(t, server)
	waitForSubscribers(t, hub, 1)

	if err := hub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if hub.SubscriberCount() != 0 {
		t.Fatalf("expected no subscribers, have %d", hub.SubscriberCount())
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected closed connection")
	}
}
