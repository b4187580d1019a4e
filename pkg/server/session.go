package server

import (
	"sync"

	"github.com/jcber/spothoot/pkg/model"
)

// Conn is the transport surface a session writes to. The websocket
// transport implements it; tests supply fakes.
type Conn interface {
	// ID returns the stable identifier of the underlying connection.
	ID() string
	// WriteText sends a single text frame.
	WriteText(text string) error
	// Close closes the connection.
	Close() error
}

// Session binds a connection to the identity currently logged in on it.
// A freshly opened session carries the guest identity.
type Session struct {
	conn Conn

	mu       sync.RWMutex
	identity model.UserIdentity
}

// NewSession wraps a connection in a session with the guest identity.
func NewSession(conn Conn) *Session {
	return &Session{conn: conn, identity: model.Guest()}
}

// ConnID returns the identifier of the underlying connection.
func (s *Session) ConnID() string {
	return s.conn.ID()
}

// Conn returns the underlying connection.
func (s *Session) Conn() Conn {
	return s.conn
}

// Identity returns the identity currently bound to the session.
func (s *Session) Identity() model.UserIdentity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// SetIdentity rebinds the session to another identity.
func (s *Session) SetIdentity(identity model.UserIdentity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
}

// Registry tracks active client sessions keyed by connection id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session // connID -> session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Add registers a session. Adding a session whose connection id is
// already present is a no-op; the existing session stays registered.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[s.ConnID()]; exists {
		return
	}
	r.sessions[s.ConnID()] = s
}

// Remove unregisters a session. Removing an unknown session is a no-op.
func (r *Registry) Remove(s *Session) {
	if s == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ConnID())
}

// ByConnID retrieves a session by connection id.
func (r *Registry) ByConnID(connID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[connID]
}

// ByUserID retrieves the session a user id is logged in on, if any.
func (r *Registry) ByUserID(userID int64) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if identity := s.Identity(); !identity.IsGuest() && identity.ID == userID {
			return s
		}
	}
	return nil
}

// UserByName retrieves the identity logged in under the given name, if any.
func (r *Registry) UserByName(name string) *model.UserIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		identity := s.Identity()
		if !identity.IsGuest() && identity.Name == name {
			return &identity
		}
	}
	return nil
}

// Identities returns a snapshot of the identities bound to all sessions,
// guests included.
func (r *Registry) Identities() []model.UserIdentity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]model.UserIdentity, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s.Identity())
	}
	return result
}

// Count returns the number of active sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns all active sessions (snapshot).
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		result = append(result, s)
	}
	return result
}
