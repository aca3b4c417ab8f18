package events

import (
	"io"
	"log"
	"net/http"
	"sync"

	"github.com/strefethen/sonos-broker-go/internal/sonos/soap"
)

type route struct {
	service soap.Service
	host    string
	handler Handler
	seq     int
	seen    bool
}

// Router handles UPnP NOTIFY requests and dispatches them by SID.
type Router struct {
	logger *log.Logger

	mu     sync.Mutex
	routes map[string]*route
}

// NewRouter creates an empty router. A nil logger uses log.Default().
func NewRouter(logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{
		logger: logger,
		routes: make(map[string]*route),
	}
}

// Register routes the notifications of sid to handler.
func (r *Router) Register(sid string, service soap.Service, host string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[sid] = &route{service: service, host: host, handler: handler}
}

// Unregister stops routing sid.
func (r *Router) Unregister(sid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, sid)
}

// Len returns the number of routed subscriptions.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}

// ServeHTTP handles incoming NOTIFY requests.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != "NOTIFY" {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sid := req.Header.Get("SID")
	if sid == "" {
		http.Error(w, "Missing SID", http.StatusBadRequest)
		return
	}
	if req.Header.Get("NT") != "upnp:event" {
		http.Error(w, "Invalid NT", http.StatusBadRequest)
		return
	}
	if req.Header.Get("NTS") != "upnp:propchange" {
		http.Error(w, "Invalid NTS", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}

	seq := ParseSEQ(req.Header.Get("SEQ"))
	rt, ok := r.track(sid, seq)
	if !ok {
		r.logger.Printf("UPNP: Received event for unknown SID: %s", sid)
		w.WriteHeader(http.StatusOK)
		return
	}

	props, err := ParseNotifyBody(body)
	if err != nil {
		r.logger.Printf("UPNP: Failed to parse %s event body from %s: %v", rt.service, rt.host, err)
		http.Error(w, "Malformed body", http.StatusBadRequest)
		return
	}

	rt.handler(req.Context(), Notification{
		SID:        sid,
		Seq:        seq,
		Service:    rt.service,
		Host:       rt.host,
		Properties: props,
	})
	w.WriteHeader(http.StatusOK)
}

// track records the sequence number of sid and returns a copy of its route.
func (r *Router) track(sid string, seq int) (route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routes[sid]
	if !ok {
		return route{}, false
	}
	if rt.seen && seq > 0 && seq != rt.seq+1 {
		r.logger.Printf("UPNP: Sequence gap on %s: expected %d, got %d", sid, rt.seq+1, seq)
	}
	rt.seq = seq
	rt.seen = true
	return *rt, true
}
