package server

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/strefethen/sonos-broker-go/internal/api"
	"github.com/strefethen/sonos-broker-go/internal/auth"
	"github.com/strefethen/sonos-broker-go/internal/broker"
	"github.com/strefethen/sonos-broker-go/internal/config"
	"github.com/strefethen/sonos-broker-go/internal/metrics"
	"github.com/strefethen/sonos-broker-go/internal/notify"
	"github.com/strefethen/sonos-broker-go/internal/sonos/events"
)

func init() {
	chi.RegisterMethod("NOTIFY")
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade through the logger.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

// requestLoggerMiddleware logs all incoming HTTP requests
func requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		if r.Method == "NOTIFY" {
			return
		}
		log.Printf("HTTP: %s %s %d %s %s", r.Method, r.URL.Path, wrapped.status, time.Since(start).Round(time.Millisecond), api.RequestID(r.Context()))
	})
}

// Deps are the components served over HTTP.
type Deps struct {
	Broker *broker.Broker
	Hub    *notify.Hub
	// Callbacks receives GENA NOTIFY requests from speakers.
	Callbacks http.Handler
}

// NewHandler builds the HTTP handler.
func NewHandler(cfg config.Config, deps Deps) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestIDMiddleware)
	router.Use(requestLoggerMiddleware)
	router.Use(api.RecovererMiddleware)
	router.Use(auth.Middleware(cfg.JWTSecret))

	registerHealthRoutes(router, deps)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	if deps.Callbacks != nil {
		router.Method("NOTIFY", events.CallbackPrefix+"/*", deps.Callbacks)
	}
	if deps.Hub != nil {
		router.Method(http.MethodGet, "/ws", deps.Hub)
	}
	if deps.Broker != nil {
		broker.RegisterRoutes(router, deps.Broker)
	}
	return router
}

func registerHealthRoutes(router chi.Router, deps Deps) {
	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		response := map[string]any{
			"status":    "healthy",
			"service":   "sonos-broker",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		}
		if deps.Broker != nil {
			response["speakers"] = deps.Broker.Registry().Len()
		}
		if deps.Hub != nil {
			response["websocket_clients"] = deps.Hub.ClientCount()
		}
		return api.WriteJSON(w, http.StatusOK, response)
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		if deps.Broker == nil || deps.Broker.Registry().Len() == 0 {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "waiting_for_speakers"})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
