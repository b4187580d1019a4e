package server

import (
	"fmt"
	"log/slog"

	"github.com/jcber/spothoot/pkg/model"
	"github.com/jcber/spothoot/pkg/protocol"
)

// DeliveryError reports a failed frame delivery to a single session.
// The session has already been evicted when this error is returned.
type DeliveryError struct {
	ConnID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("server: delivery to %s failed: %v", e.ConnID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Router delivers envelopes to sessions. A failed write marks the peer
// dead: the session is evicted from the registry and the connection
// closed. Fan-out operations tolerate individual failures and keep
// delivering to the remaining targets.
type Router struct {
	registry *Registry
	metrics  *Metrics
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry, metrics *Metrics) *Router {
	return &Router{registry: registry, metrics: metrics}
}

// SendToSession delivers one envelope to one session. On write failure
// the session is evicted and a DeliveryError returned.
func (r *Router) SendToSession(s *Session, env *protocol.Envelope) error {
	text, err := env.Encode()
	if err != nil {
		return fmt.Errorf("server: encode envelope: %w", err)
	}

	if err := s.Conn().WriteText(text); err != nil {
		r.evict(s, err)
		return &DeliveryError{ConnID: s.ConnID(), Err: err}
	}
	r.metrics.Deliveries.Add(1)
	return nil
}

// SendToAll delivers an envelope to every active session. Failed targets
// are evicted; the fan-out continues.
func (r *Router) SendToAll(env *protocol.Envelope) {
	r.metrics.Broadcasts.Add(1)
	for _, s := range r.registry.All() {
		_ = r.SendToSession(s, env) // eviction already handled
	}
}

// SendToParticipants delivers an envelope to every quiz participant that
// is currently online. Offline participants are skipped silently.
func (r *Router) SendToParticipants(quiz *model.Quiz, env *protocol.Envelope) {
	r.metrics.Broadcasts.Add(1)
	for _, playerID := range quiz.PlayerIDs {
		s := r.registry.ByUserID(playerID)
		if s == nil {
			continue
		}
		_ = r.SendToSession(s, env)
	}
}

func (r *Router) evict(s *Session, cause error) {
	r.registry.Remove(s)
	_ = s.Conn().Close()
	r.metrics.DeliveryFailures.Add(1)
	r.metrics.Evictions.Add(1)
	// The transport's close path finds no session for an evicted
	// connection, so the connection gauges are settled here.
	r.metrics.ActiveConnections.Add(-1)
	r.metrics.TotalDisconnects.Add(1)
	slog.Warn("evicted unreachable session",
		"conn_id", s.ConnID(),
		"user_id", s.Identity().ID,
		"err", cause,
	)
}
