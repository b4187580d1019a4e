// Package server implements the SpotHoot quiz server.
package server

import (
	"context"

	"github.com/jcber/spothoot/pkg/music"
	"github.com/jcber/spothoot/pkg/store"
)

// Dependencies holds external dependencies for the server.
// Server assumes ownership of Catalogue and will Close() it on shutdown.
type Dependencies struct {
	Catalogue store.Catalogue
	Provider  music.Provider
}

// Server is the main SpotHoot server. It owns the session registry, the
// router and the dispatcher, and serves the websocket endpoint.
type Server struct {
	cfg        Config
	registry   *Registry
	router     *Router
	dispatcher *Dispatcher
	metrics    *Metrics
	catalogue  store.Catalogue
	provider   music.Provider
	ctx        context.Context
	cancel     context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	registry := NewRegistry()
	metrics := NewMetrics()
	router := NewRouter(registry, metrics)
	dispatcher := NewDispatcher(ctx, registry, router, deps.Catalogue, deps.Provider, metrics, cfg)
	return &Server{
		cfg:        cfg,
		registry:   registry,
		router:     router,
		dispatcher: dispatcher,
		metrics:    metrics,
		catalogue:  deps.Catalogue,
		provider:   deps.Provider,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Registry returns the session registry.
func (s *Server) Registry() *Registry {
	return s.registry
}

// Dispatcher returns the message dispatcher.
func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
