package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/snapshot"
	"github.com/example/walker_sim/state"
)

func newCoordinator(t *testing.T, size int) *state.Coordinator {
	t.Helper()
	g, err := core.NewGrid(size)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}
	g.SetObstacle(0, 0, true)
	c, err := state.New(state.Config{Grid: g, Probabilities: core.Uniform(), Bounded: true, Replications: 4, MaxSteps: 5})
	if err != nil {
		t.Fatalf("state.New: %v", err)
	}
	return c
}

func TestWebServer_SnapshotEndpoint(t *testing.T) {
	coord := newCoordinator(t, 3)
	server := NewWebServer("127.0.0.1:0", coord, coord)

	tally := core.NewTally(3)
	tally.Add(1, 1, 0)
	tally.Add(2, 1, 3)
	coord.CommitReplication(tally)

	req := httptest.NewRequest("GET", "/api/snapshot", nil)
	w := httptest.NewRecorder()
	server.handleSnapshot(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var frame Frame
	if err := json.NewDecoder(w.Body).Decode(&frame); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if frame.WorldSize != 3 || frame.CurrentRep != 1 || frame.Replications != 4 {
		t.Fatalf("unexpected header %+v", frame)
	}
	if len(frame.Obstacles) != 3 || frame.Obstacles[0][0] != 1 {
		t.Fatalf("obstacles not exported: %v", frame.Obstacles)
	}
	if frame.SuccessCount[1][2] != 1 || frame.TotalSteps[1][2] != 3 {
		t.Fatalf("statistics not exported: %v %v", frame.SuccessCount, frame.TotalSteps)
	}
	if frame.Walker != (Point{X: 1, Y: 1}) {
		t.Fatalf("walker = %+v", frame.Walker)
	}

	req = httptest.NewRequest("POST", "/api/snapshot", nil)
	w = httptest.NewRecorder()
	NewRouter(server).ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed || w.Header().Get("Allow") != http.MethodGet {
		t.Fatalf("Expected 405 allowing GET, got %d %q", w.Code, w.Header().Get("Allow"))
	}
}

func TestWebServer_StatsEndpoint(t *testing.T) {
	coord := newCoordinator(t, 3)
	server := NewWebServer("127.0.0.1:0", coord, coord)
	tally := core.NewTally(3)
	tally.Add(1, 1, 0)
	tally.Add(2, 2, 7)
	coord.CommitReplication(tally)
	tally.Reset()
	tally.Add(1, 1, 0)
	coord.CommitReplication(tally)

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()
	server.handleStats(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var stats Stats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stats.AverageSteps[0][1] != nil {
		t.Fatalf("cell without successes should report no data")
	}
	if stats.AverageSteps[2][2] == nil || *stats.AverageSteps[2][2] != 7 {
		t.Fatalf("average at (2,2) = %v", stats.AverageSteps[2][2])
	}
	if stats.Probability[1][1] != 100 || stats.Probability[2][2] != 50 {
		t.Fatalf("probabilities = %v", stats.Probability)
	}
}

func TestWebServer_ControlEndpoint(t *testing.T) {
	coord := newCoordinator(t, 3)
	server := NewWebServer("127.0.0.1:0", coord, coord)

	post := func(body string) (int, string) {
		req := httptest.NewRequest("POST", "/api/control", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		server.handleControl(w, req)
		var resp controlResponse
		json.NewDecoder(w.Body).Decode(&resp)
		return w.Code, resp.Reply
	}

	if code, reply := post(`{"command":"MODE 1"}`); code != http.StatusOK || reply != "OK" {
		t.Fatalf("MODE 1 -> %d %q", code, reply)
	}
	if code, reply := post(`{"command":"PING"}`); code != http.StatusOK || reply != "PONG" {
		t.Fatalf("PING -> %d %q", code, reply)
	}
	if code, reply := post(`{"command":"JUMP"}`); code != http.StatusOK || reply != "ERR" {
		t.Fatalf("JUMP -> %d %q", code, reply)
	}
	if code, _ := post(`not json`); code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for invalid body, got %d", code)
	}
	if mode, _ := coord.View(); mode != snapshot.ModeInteractive {
		t.Fatalf("mode = %d", mode)
	}

	req := httptest.NewRequest("GET", "/api/control", nil)
	w := httptest.NewRecorder()
	NewRouter(server).ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("Expected 405, got %d", w.Code)
	}
}

func TestWebServer_WebSocketStreamsFrames(t *testing.T) {
	coord := newCoordinator(t, 3)
	server := NewWebServer("127.0.0.1:0", coord, coord)
	server.interval = 5 * time.Millisecond
	coord.AddPublisher(server.Bridge())

	ts := httptest.NewServer(NewRouter(server))
	defer ts.Close()
	server.wg.Add(1)
	go func() {
		defer server.wg.Done()
		server.pump()
	}()

	if !server.Bridge().IsHeadless() {
		t.Fatalf("bridge should be headless before any viewer connects")
	}
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first Frame
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("initial frame: %v", err)
	}
	if first.CurrentRep != 0 {
		t.Fatalf("initial frame rep = %d", first.CurrentRep)
	}

	if err := conn.WriteJSON(controlRequest{Command: "SUMMARY 1"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for summary change: %v", err)
		}
		if f.SummaryView == snapshot.SummaryProbability {
			break
		}
	}
	if server.Bridge().IsHeadless() {
		t.Fatalf("bridge still headless with a viewer connected")
	}

	coord.CommitReplication(core.NewTally(3))
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("waiting for replication frame: %v", err)
		}
		if f.CurrentRep == 1 {
			break
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// Buffered frames may still arrive; the connection must end.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	if !server.Bridge().IsHeadless() {
		t.Fatalf("bridge not headless after the last viewer left")
	}
}

func TestWebServer_StartAndShutdown(t *testing.T) {
	coord := newCoordinator(t, 3)
	server := NewWebServer("127.0.0.1:0", coord, coord)
	if err := server.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + server.Addr() + "/api/snapshot")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := server.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestBridgeHeadless(t *testing.T) {
	b := NewBridge(true)
	b.Publish(nil)
	select {
	case <-b.Updates():
		t.Fatalf("headless bridge signalled")
	default:
	}
	b.SetHeadless(false)
	b.Publish(nil)
	b.Publish(nil)
	select {
	case <-b.Updates():
	default:
		t.Fatalf("bridge did not signal")
	}
}
