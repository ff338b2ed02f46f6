package service

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-leave-api/internal/models"
)

const (
	streamWriteWait  = 10 * time.Second
	streamSendBuffer = 8
)

type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// StreamHub fans refresh events out to websocket subscribers so dashboards
// can re-query instead of polling. Subscribers that fall behind are dropped.
type StreamHub struct {
	mu       sync.Mutex
	clients  map[*streamClient]struct{}
	upgrader websocket.Upgrader
	ping     time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewStreamHub builds a hub. allowOrigin decides cross-origin upgrades; nil
// accepts every origin.
func NewStreamHub(ping time.Duration, allowOrigin func(origin string) bool, metrics *MetricsService, logger *zap.Logger) *StreamHub {
	if ping <= 0 {
		ping = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamHub{
		clients: make(map[*streamClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowOrigin == nil || allowOrigin(origin)
			},
		},
		ping:    ping,
		metrics: metrics,
		logger:  logger,
	}
}

// Publish broadcasts an event to every subscriber.
func (h *StreamHub) Publish(event models.LeaveRefreshEvent) {
	if h == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("encode stream event", zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping slow stream subscriber")
			h.removeLocked(client)
		}
	}
}

// Clients reports the number of connected subscribers.
func (h *StreamHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams events until the peer goes away.
// hello, when set, is sent first so a new subscriber knows the current
// sequence.
func (h *StreamHub) Serve(w http.ResponseWriter, r *http.Request, hello *models.LeaveRefreshEvent) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	client := &streamClient{conn: conn, send: make(chan []byte, streamSendBuffer)}
	if hello != nil {
		if payload, err := json.Marshal(hello); err == nil {
			client.send <- payload
		}
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.metrics.AddStreamClients(1)

	go h.writeLoop(client)
	h.readLoop(client)
	return nil
}

// Close disconnects every subscriber.
func (h *StreamHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		h.removeLocked(client)
	}
}

func (h *StreamHub) remove(client *streamClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(client)
}

func (h *StreamHub) removeLocked(client *streamClient) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	client.close()
	h.metrics.AddStreamClients(-1)
}

// readLoop discards inbound frames; it exists to notice the peer closing.
func (h *StreamHub) readLoop(client *streamClient) {
	defer func() {
		h.remove(client)
		_ = client.conn.Close()
	}()
	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(2 * h.ping))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) writeLoop(client *streamClient) {
	ticker := time.NewTicker(h.ping)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				h.remove(client)
				return
			}
		}
	}
}
