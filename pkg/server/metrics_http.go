package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// StartMetricsHTTP starts a lightweight HTTP server that exposes /metrics
// in Prometheus text exposition format. It runs in the background and
// shuts down when the server context is cancelled.
//
// Bind address is :9702 by default — configurable via Config.MetricsAddr.
func (s *Server) StartMetricsHTTP() {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		return // metrics endpoint disabled
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("metrics HTTP listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("metrics HTTP error", "err", err)
		}
	}()

	go func() {
		<-s.ctx.Done()
		_ = srv.Close()
	}()
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Helper for gauge/counter lines.
	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("spothoot_uptime_seconds", "Server uptime in seconds.", "gauge", uptime)

	write("spothoot_connections_active", "Current active websocket connections.", "gauge",
		m.ActiveConnections.Load())
	write("spothoot_connections_total", "Lifetime websocket connections accepted.", "counter",
		m.TotalConnections.Load())
	write("spothoot_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())

	write("spothoot_messages_dispatched_total", "Messages routed to an action handler.", "counter",
		m.MessagesDispatched.Load())
	write("spothoot_parse_failures_total", "Inbound frames dropped as unparseable.", "counter",
		m.ParseFailures.Load())
	write("spothoot_unknown_actions_total", "Messages with an unrecognized action.", "counter",
		m.UnknownActions.Load())

	write("spothoot_broadcasts_total", "Fan-out operations started.", "counter",
		m.Broadcasts.Load())
	write("spothoot_deliveries_total", "Frames delivered successfully.", "counter",
		m.Deliveries.Load())
	write("spothoot_delivery_failures_total", "Frames that failed to deliver.", "counter",
		m.DeliveryFailures.Load())
	write("spothoot_evictions_total", "Sessions evicted after a failed send.", "counter",
		m.Evictions.Load())

	write("spothoot_logins_total", "Successful login and setUser bindings.", "counter",
		m.Logins.Load())
	write("spothoot_quizzes_created_total", "Quizzes created.", "counter",
		m.QuizzesCreated.Load())
}
