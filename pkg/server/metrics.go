package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks server runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime websocket connections accepted
	ActiveConnections atomic.Int64 // current active connections
	TotalDisconnects  atomic.Int64 // total client disconnects (clean + unclean)

	// Dispatch counters
	MessagesDispatched atomic.Int64 // messages routed to an action handler
	ParseFailures      atomic.Int64 // inbound frames dropped as unparseable
	UnknownActions     atomic.Int64 // messages with an unrecognized action

	// Delivery counters
	Broadcasts       atomic.Int64 // fan-out operations started
	Deliveries       atomic.Int64 // frames delivered successfully
	DeliveryFailures atomic.Int64 // frames that failed to deliver
	Evictions        atomic.Int64 // sessions evicted after a failed send

	// Domain counters
	Logins         atomic.Int64 // successful login/setUser bindings
	QuizzesCreated atomic.Int64 // quizzes created during this run
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all metrics as a serializable struct.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`

	MessagesDispatched int64 `json:"messages_dispatched"`
	ParseFailures      int64 `json:"parse_failures"`
	UnknownActions     int64 `json:"unknown_actions"`

	Broadcasts       int64 `json:"broadcasts"`
	Deliveries       int64 `json:"deliveries"`
	DeliveryFailures int64 `json:"delivery_failures"`
	Evictions        int64 `json:"evictions"`

	Logins         int64 `json:"logins"`
	QuizzesCreated int64 `json:"quizzes_created"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:             uptime.Truncate(time.Second).String(),
		UptimeSeconds:      int64(uptime.Seconds()),
		ActiveConnections:  m.ActiveConnections.Load(),
		TotalConnections:   m.TotalConnections.Load(),
		TotalDisconnects:   m.TotalDisconnects.Load(),
		MessagesDispatched: m.MessagesDispatched.Load(),
		ParseFailures:      m.ParseFailures.Load(),
		UnknownActions:     m.UnknownActions.Load(),
		Broadcasts:         m.Broadcasts.Load(),
		Deliveries:         m.Deliveries.Load(),
		DeliveryFailures:   m.DeliveryFailures.Load(),
		Evictions:          m.Evictions.Load(),
		Logins:             m.Logins.Load(),
		QuizzesCreated:     m.QuizzesCreated.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to the logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"dispatched", s.MessagesDispatched,
		"deliveries", s.Deliveries,
		"evictions", s.Evictions,
		"quizzes", s.QuizzesCreated,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}
