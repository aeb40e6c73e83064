package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessCheck reports whether a dependency can serve traffic. A failing
// Optional check marks the instance degraded but keeps it ready.
type ReadinessCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Optional bool
}

// HealthHandler serves /healthz, /readyz and, when withMetrics is set, /metrics.
func HealthHandler(checks []ReadinessCheck, withMetrics bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		var degraded []string
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				if c.Optional {
					degraded = append(degraded, c.Name)
					continue
				}
				http.Error(w, c.Name+" not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if len(degraded) > 0 {
			_, _ = w.Write([]byte("ready (degraded: " + strings.Join(degraded, ", ") + ")"))
			return
		}
		_, _ = w.Write([]byte("ready"))
	})
	if withMetrics {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	return mux
}
