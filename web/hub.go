package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/walker_sim/control"
	"github.com/example/walker_sim/logging"
)

type wsClient struct {
	id   uuid.UUID
	conn *websocket.Conn
}

type wsHub struct {
	upgrader  websocket.Upgrader
	clients   map[*wsClient]bool
	register  chan *wsClient
	remove    chan *wsClient
	broadcast chan []byte
	stop      chan struct{}

	// bridge is headless while no viewer is connected.
	bridge *Bridge

	mu      sync.Mutex
	closed  bool
	viewers int
	wg      sync.WaitGroup
}

func newHub(bridge *Bridge) *wsHub {
	hub := &wsHub{
		bridge: bridge,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*wsClient]bool),
		register:  make(chan *wsClient),
		remove:    make(chan *wsClient),
		broadcast: make(chan []byte, 16),
		stop:      make(chan struct{}),
	}
	hub.wg.Add(1)
	go hub.run()
	return hub
}

func (h *wsHub) run() {
	defer h.wg.Done()
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.remove:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				c.conn.Close()
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					logging.GetLogger().Warnf("Failed to send frame to WebSocket client %s: %v", c.id, err)
					delete(h.clients, c)
					c.conn.Close()
				}
			}
		case <-h.stop:
			for c := range h.clients {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "simulation ended"))
				c.conn.Close()
				delete(h.clients, c)
			}
			return
		}
	}
}

func (h *wsHub) handle(ws *WebServer, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.GetLogger().Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	c := &wsClient{id: uuid.New(), conn: conn}
	log := logging.GetLogger().With("session", c.id.String())

	// The first frame is written before registration so it cannot race a broadcast.
	if frame := ws.refresh(); frame != nil {
		if data, err := json.Marshal(frame); err == nil {
			conn.WriteMessage(websocket.TextMessage, data)
		}
	}
	if !h.track() {
		conn.Close()
		return
	}
	select {
	case h.register <- c:
	case <-h.stop:
		conn.Close()
		h.untrack()
		return
	}
	log.Infof("WebSocket viewer connected")

	go func() {
		defer h.untrack()
		defer func() {
			select {
			case h.remove <- c:
			case <-h.stop:
			}
			log.Infof("WebSocket viewer disconnected")
		}()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Warnf("WebSocket error: %v", err)
				}
				break
			}
			var req controlRequest
			if err := json.Unmarshal(message, &req); err == nil {
				reply := control.Apply(ws.target, req.Command)
				log.Debugf("%q -> %s", req.Command, reply)
			}
		}
	}()
}

func (h *wsHub) broadcastFrame(frame *Frame) {
	if frame == nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		logging.GetLogger().Errorf("Failed to marshal frame for WebSocket: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	case <-h.stop:
	}
}

// track registers a reader goroutine unless the hub is closing.
func (h *wsHub) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	h.viewers++
	h.bridge.SetHeadless(false)
	return true
}

// untrack releases a reader registered by track.
func (h *wsHub) untrack() {
	h.mu.Lock()
	h.viewers--
	if h.viewers == 0 {
		h.bridge.SetHeadless(true)
	}
	h.mu.Unlock()
	h.wg.Done()
}

// close disconnects every client and waits for their readers.
func (h *wsHub) close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.stop)
	}
	h.mu.Unlock()
	h.wg.Wait()
}
