package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"ont-watchdog/internal/monitor"
)

// startStatusServer serves Prometheus metrics on /metrics and the
// diagnostics snapshot on /status. Server failures are logged; the
// watchdog keeps running without them.
func startStatusServer(addr string, ctl *monitor.Controller, clk clock.PassiveClock, log *zap.SugaredLogger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           statusMux(ctl, clk),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infow("status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("status server error", "error", err)
		}
	}()
	return srv
}

func statusMux(ctl *monitor.Controller, clk clock.PassiveClock) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ctl.Snapshot(clk.Now()))
	})
	return mux
}
