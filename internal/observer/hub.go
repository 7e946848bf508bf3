package observer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jerry-samek/tick-frame-space-sub001/internal/model"
)

const (
	writeWait        = 5 * time.Second
	subscriberBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans tick snapshots out to websocket subscribers. A slow subscriber
// never stalls the simulation: frames past its buffer are dropped and
// counted instead.
type Hub struct {
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[uint64]*subscriber
	closed      bool

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

type subscriber struct {
	conn   *websocket.Conn
	frames chan []byte
	done   chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:      logger,
		subscribers: make(map[uint64]*subscriber),
	}
}

// PublishTick encodes the snapshot once and offers it to every subscriber.
func (h *Hub) PublishTick(snapshot model.TickSnapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Warn("encode tick snapshot", "tick", snapshot.Tick, "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subscribers {
		select {
		case sub.frames <- data:
		default:
			h.dropped.Add(1)
			h.logger.Debug("subscriber backpressure, frame dropped", "subscriber", id, "tick", snapshot.Tick)
		}
	}
}

// DroppedFrames reports frames discarded due to subscriber backpressure.
func (h *Hub) DroppedFrames() uint64 {
	return h.dropped.Load()
}

// SubscriberCount reports the number of connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request and streams tick frames until the client
// disconnects or the hub closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	sub := &subscriber{
		conn:   conn,
		frames: make(chan []byte, subscriberBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	id := h.nextID.Add(1)
	h.subscribers[id] = sub
	h.mu.Unlock()

	h.logger.Info("subscriber connected", "subscriber", id, "remote", r.RemoteAddr)

	go h.writeLoop(id, sub)
	h.readLoop(sub)

	h.remove(id)
	h.logger.Info("subscriber disconnected", "subscriber", id)
}

func (h *Hub) writeLoop(id uint64, sub *subscriber) {
	for {
		select {
		case frame, ok := <-sub.frames:
			if !ok {
				return
			}
			if err := sub.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				h.remove(id)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.remove(id)
				return
			}
		case <-sub.done:
			return
		}
	}
}

// readLoop drains incoming control frames so pings and close messages are
// processed. Clients are not expected to send data frames.
func (h *Hub) readLoop(sub *subscriber) {
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	sub, ok := h.subscribers[id]
	if ok {
		delete(h.subscribers, id)
	}
	h.mu.Unlock()

	if !ok {
		return
	}
	close(sub.done)
	_ = sub.conn.Close()
}

// Close disconnects every subscriber and rejects new connections.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := make([]*subscriber, 0, len(h.subscribers))
	for _, sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.subscribers = make(map[uint64]*subscriber)
	h.mu.Unlock()

	for _, sub := range subs {
		close(sub.done)
		_ = sub.conn.Close()
	}
	return nil
}
