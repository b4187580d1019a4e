package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Run starts the server and blocks until shutdown signal.
func (s *Server) Run() error {
	if s.catalogue == nil {
		return fmt.Errorf("server: missing catalogue dependency")
	}
	if s.provider == nil {
		return fmt.Errorf("server: missing provider dependency")
	}
	defer func() { _ = s.catalogue.Close() }()

	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.WSPath, s.handleWS)

	httpServer := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("SpotHoot server running",
		"addr", s.cfg.Addr,
		"ws_path", s.cfg.WSPath,
	)

	// Start Prometheus metrics HTTP endpoint
	s.StartMetricsHTTP()

	// Start periodic metrics logging (every 60s)
	s.metrics.StartPeriodicLog(60*time.Second, s.ctx.Done())

	// Wait for shutdown signal or listener failure
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		s.Shutdown(httpServer)
		return fmt.Errorf("server: listen: %w", err)
	case <-sigCh:
	}

	slog.Info("shutting down...")
	s.Shutdown(httpServer)
	return nil
}

// Shutdown gracefully stops the server, closing all live connections.
func (s *Server) Shutdown(httpServer *http.Server) {
	s.cancel()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}

	for _, sess := range s.registry.All() {
		s.registry.Remove(sess)
		_ = sess.Conn().Close()
	}
}
