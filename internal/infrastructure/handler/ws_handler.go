package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/lohitverma/hoteltracking/internal/application/tracker"
	"github.com/lohitverma/hoteltracking/internal/domain/tracking"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// WSHandler upgrades price-stream connections and registers them with the
// tracker. Each connection receives the city snapshot immediately and then
// on every poll cycle until it disconnects.
type WSHandler struct {
	tracker  *tracker.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(trackerService *tracker.Service, logger *slog.Logger) *WSHandler {
	return &WSHandler{
		tracker: trackerService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// StreamCityPrices handles GET /ws/prices/{city}.
func (h *WSHandler) StreamCityPrices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	city := vars["city"]
	if city == "" {
		http.Error(w, "city is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", "city", city, "error", err)
		return
	}

	client := newWSClient(conn)
	h.logger.Info("WebSocket client connected", "city", city, "remote_addr", r.RemoteAddr)

	// Subscribe after the upgrade so the initial snapshot goes over the socket.
	h.tracker.Subscribe(r.Context(), city, client)

	go client.pingLoop()
	h.readLoop(client, city)
}

// readLoop consumes control frames until the peer goes away, then tears the
// subscription down. Clients do not send data frames; anything readable is
// drained and ignored.
func (h *WSHandler) readLoop(client *wsClient, city string) {
	defer func() {
		h.tracker.Unsubscribe(city, client)
		_ = client.Close()
		h.logger.Info("WebSocket client disconnected", "city", city)
	}()

	client.conn.SetReadLimit(512)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// wsClient adapts one websocket connection to the tracker's Subscriber
// interface. Writes are serialized: snapshots and pings share the socket.
type wsClient struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		done: make(chan struct{}),
	}
}

var _ tracker.Subscriber = (*wsClient)(nil)

func (c *wsClient) Send(snapshot *tracking.CitySnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return websocket.ErrCloseSent
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(snapshot)
}

func (c *wsClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	return c.conn.Close()
}

func (c *wsClient) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
