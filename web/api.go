package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/example/walker_sim/control"
	"github.com/example/walker_sim/logging"
)

type controlRequest struct {
	Command string `json:"command"`
}

type controlResponse struct {
	Reply string `json:"reply"`
}

func (ws *WebServer) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	frame := ws.refresh()
	if frame == nil {
		http.Error(w, "No snapshot available", http.StatusNotFound)
		return
	}
	writeJSON(w, frame)
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	ws.refresh()
	ws.mu.RLock()
	stats := ws.latestStats
	ws.mu.RUnlock()
	if stats == nil {
		http.Error(w, "No stats available", http.StatusNotFound)
		return
	}
	writeJSON(w, stats)
}

func (ws *WebServer) handleControl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		logging.GetLogger().Debugf("Error reading request body: %v", err)
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}
	var req controlRequest
	if err := json.Unmarshal(body, &req); err != nil {
		logging.GetLogger().Debugf("Error decoding JSON: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if ws.target == nil {
		http.Error(w, "Control not available", http.StatusServiceUnavailable)
		return
	}
	reply := control.Apply(ws.target, req.Command)
	logging.GetLogger().Debugf("Web control %q -> %s", req.Command, reply)
	writeJSON(w, controlResponse{Reply: reply})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
