package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

const (
	checkOK       = "ok"
	checkDown     = "down"
	checkDisabled = "disabled"
)

// Health check endpoint
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}

// Ready reports each configured backend. Disabled backends never fail readiness.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{
		"postgres":   checkDisabled,
		"clickhouse": checkDisabled,
		"redis":      checkDisabled,
	}
	if h.pg != nil {
		checks["postgres"] = pingStatus(h.pg.Ping(ctx))
	}
	if h.ch != nil {
		checks["clickhouse"] = pingStatus(h.ch.Ping(ctx))
	}
	if h.redis != nil {
		checks["redis"] = pingStatus(h.redis.Ping(ctx))
	}

	ready := true
	for _, status := range checks {
		if status == checkDown {
			ready = false
			break
		}
	}

	depth := 0
	if h.sink != nil {
		depth = h.sink.QueueDepth()
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	h.jsonResponse(w, status, map[string]interface{}{
		"ready":      ready,
		"checks":     checks,
		"queueDepth": depth,
	})
}

func pingStatus(err error) string {
	if err != nil {
		return checkDown
	}
	return checkOK
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debugw("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (h *Handler) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Warnw("Failed to encode response", "error", err)
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
