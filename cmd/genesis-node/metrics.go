package main

import (
	"context"
	"encoding/json"
	"net/http"

	liblog "github.com/nabbar/genesis-mesh/logger"
	"github.com/nabbar/genesis-mesh/node"
	"github.com/nabbar/genesis-mesh/status"
)

// serveMetrics starts the Prometheus exposition and health-check HTTP
// server in the background, if addr is non-empty. It stops when ctx is
// cancelled.
func serveMetrics(ctx context.Context, n *node.Node, addr string, logger liblog.Logger) {
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", n.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		overall, details := n.Health.Overall()
		w.Header().Set("Content-Type", "application/json")
		if overall == status.KO {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  overall.String(),
			"details": details,
		})
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", liblog.Fields{"error": err.Error()})
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
}
