package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/example/walker_sim/control"
	"github.com/example/walker_sim/logging"
	"github.com/example/walker_sim/snapshot"
)

// DefaultPumpInterval caps how often frames are rebuilt and broadcast.
const DefaultPumpInterval = 100 * time.Millisecond

// Source supplies consistent snapshots.
type Source interface {
	Snapshot() snapshot.Snapshot
}

// WebServer provides HTTP endpoints for visualization and control.
type WebServer struct {
	mu          sync.RWMutex
	latestFrame *Frame
	latestStats *Stats

	source Source
	target control.Target
	bridge *Bridge
	hub    *wsHub

	addr     string
	server   *http.Server
	listener net.Listener
	interval time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewWebServer creates a new web server instance. The returned bridge must be added to
// the coordinator's publishers for frames to follow the simulation.
func NewWebServer(addr string, source Source, target control.Target) *WebServer {
	bridge := NewBridge(true)
	ws := &WebServer{
		source:   source,
		target:   target,
		bridge:   bridge,
		hub:      newHub(bridge),
		addr:     addr,
		interval: DefaultPumpInterval,
		stop:     make(chan struct{}),
	}
	ws.server = &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ws),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ws.refresh()
	return ws
}

// Bridge returns the publisher that wakes the frame pump.
func (ws *WebServer) Bridge() *Bridge { return ws.bridge }

func (ws *WebServer) routes() map[string]route {
	return map[string]route{
		"/api/snapshot": {http.MethodGet, ws.handleSnapshot},
		"/api/stats":    {http.MethodGet, ws.handleStats},
		"/api/control":  {http.MethodPost, ws.handleControl},
		"/ws": {http.MethodGet, func(w http.ResponseWriter, r *http.Request) {
			ws.hub.handle(ws, w, r)
		}},
	}
}

// Start binds the listener and serves in the background.
func (ws *WebServer) Start() error {
	ln, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return fmt.Errorf("web: listen %s: %w", ws.addr, err)
	}
	ws.listener = ln
	logging.GetLogger().Infof("Web viewer listening on http://%s", ln.Addr())

	ws.wg.Add(2)
	go func() {
		defer ws.wg.Done()
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.GetLogger().Errorf("Web server stopped: %v", err)
		}
	}()
	go func() {
		defer ws.wg.Done()
		ws.pump()
	}()
	return nil
}

// Addr returns the bound address once started.
func (ws *WebServer) Addr() string {
	if ws.listener == nil {
		return ws.addr
	}
	return ws.listener.Addr().String()
}

// pump rebuilds the frame after publishes, at most once per interval.
func (ws *WebServer) pump() {
	tick := time.NewTicker(ws.interval)
	defer tick.Stop()
	pending := false
	for {
		select {
		case <-ws.stop:
			return
		case <-ws.bridge.Updates():
			pending = true
		case <-tick.C:
			if !pending {
				continue
			}
			pending = false
			ws.hub.broadcastFrame(ws.refresh())
		}
	}
}

// refresh pulls a snapshot and stores the derived frame and stats.
func (ws *WebServer) refresh() *Frame {
	if ws.source == nil {
		return nil
	}
	snap := ws.source.Snapshot()
	frame := NewFrame(&snap)
	stats := NewStats(&snap)
	ws.UpdateFrame(frame, stats)
	return frame
}

// UpdateFrame updates the latest frame and stats.
func (ws *WebServer) UpdateFrame(frame *Frame, stats *Stats) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.latestFrame = frame
	ws.latestStats = stats
}

// LatestFrame returns the most recent frame.
func (ws *WebServer) LatestFrame() *Frame {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.latestFrame
}

// Shutdown pushes a last frame, stops the HTTP server and disconnects websocket viewers.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	select {
	case <-ws.stop:
		return nil
	default:
	}
	ws.hub.broadcastFrame(ws.refresh())
	close(ws.stop)
	err := ws.server.Shutdown(ctx)
	ws.hub.close()
	ws.wg.Wait()
	return err
}
