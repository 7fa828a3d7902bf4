package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rickgao/salesfeed/internal/connection"
	"github.com/rickgao/salesfeed/internal/router"
	"github.com/rickgao/salesfeed/internal/stats"
)

type sessionStatser interface {
	Stats() connection.SessionStats
}

type statsStatser interface {
	Stats() stats.ClientStats
}

type routerStatser interface {
	Stats() router.RouterStats
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthSources are the components the health endpoint reports on. db is
// nil when persistence is disabled.
type healthSources struct {
	session sessionStatser
	stats   statsStatser
	router  routerStatser
	db      pinger
}

type healthResponse struct {
	Status     string         `json:"status"`
	Components map[string]any `json:"components"`
}

// newHealthHandler creates the HTTP handler for health checks.
//
// The instance is unhealthy while the session is disconnected or the
// database is unreachable, and degraded while the stats breaker is open.
func newHealthHandler(src healthSources) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := healthResponse{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		ss := src.session.Stats()
		health.Components["session"] = map[string]any{
			"connected":     ss.Connected,
			"subscriptions": ss.Subscriptions,
			"reconnects":    ss.Reconnects,
		}
		if !ss.Connected {
			health.Status = "unhealthy"
		}

		cs := src.stats.Stats()
		health.Components["stats"] = map[string]any{
			"breaker": cs.BreakerState,
			"hits":    cs.Hits,
			"misses":  cs.Misses,
		}
		if cs.BreakerState != "closed" && health.Status == "healthy" {
			health.Status = "degraded"
		}

		rs := src.router.Stats()
		health.Components["router"] = map[string]any{
			"listeners": rs.Listeners,
			"queued":    rs.Queue.Count,
		}

		if src.db != nil {
			if err := src.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["database"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["database"] = "connected"
			}
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
