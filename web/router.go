package web

import (
	"net/http"

	"github.com/example/walker_sim/logging"
)

// Router dispatches viewer requests by path and rejects methods a route does not accept.
type Router struct {
	mux *http.ServeMux
}

// route binds one path to the single method it serves.
type route struct {
	method  string
	handler http.HandlerFunc
}

// NewRouter builds the route table of server.
func NewRouter(server *WebServer) *Router {
	mux := http.NewServeMux()
	for path, rt := range server.routes() {
		mux.Handle(path, rt)
	}
	return &Router{mux: mux}
}

func (rt route) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != rt.method {
		w.Header().Set("Allow", rt.method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt.handler(w, req)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r == nil || r.mux == nil {
		http.NotFound(w, req)
		return
	}
	logging.GetLogger().Debugf("HTTP %s %s from %s", req.Method, req.URL.Path, req.RemoteAddr)
	r.mux.ServeHTTP(w, req)
}
