package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jcber/spothoot/pkg/model"
	"github.com/jcber/spothoot/pkg/music"
	"github.com/jcber/spothoot/pkg/protocol"
	"github.com/jcber/spothoot/pkg/store"
)

// Dispatcher routes inbound envelopes to action handlers. It is the only
// entry point the transport layer calls: HandleOpen, HandleMessage,
// HandleClose and HandleError.
//
// Handlers run to completion on the calling connection's goroutine, so
// message ordering within one connection is preserved. Failures degrade
// to a failure flag or guest fallback in the response payload; they never
// terminate the connection.
type Dispatcher struct {
	ctx       context.Context
	registry  *Registry
	router    *Router
	catalogue store.Catalogue
	provider  music.Provider
	metrics   *Metrics
	cfg       Config
}

// NewDispatcher creates a dispatcher over the given collaborators.
func NewDispatcher(ctx context.Context, registry *Registry, router *Router,
	catalogue store.Catalogue, provider music.Provider, metrics *Metrics, cfg Config) *Dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Dispatcher{
		ctx:       ctx,
		registry:  registry,
		router:    router,
		catalogue: catalogue,
		provider:  provider,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// HandleOpen registers a new connection with a guest session. It must run
// before any message from that connection is dispatched.
func (d *Dispatcher) HandleOpen(conn Conn) {
	s := NewSession(conn)
	d.registry.Add(s)
	d.metrics.TotalConnections.Add(1)
	d.metrics.ActiveConnections.Add(1)
	slog.Info("session opened", "conn_id", conn.ID(), "active", d.registry.Count())
}

// HandleClose unregisters the connection's session.
func (d *Dispatcher) HandleClose(conn Conn) {
	s := d.registry.ByConnID(conn.ID())
	if s == nil {
		return // already evicted by a failed send
	}
	d.registry.Remove(s)
	d.metrics.ActiveConnections.Add(-1)
	d.metrics.TotalDisconnects.Add(1)
	slog.Info("session closed", "conn_id", conn.ID(), "user_id", s.Identity().ID)
}

// HandleError logs a transport-level error for a connection.
func (d *Dispatcher) HandleError(err error, conn Conn) {
	connID := ""
	if conn != nil {
		connID = conn.ID()
	}
	slog.Warn("connection error", "conn_id", connID, "err", err)
}

// HandleMessage parses one inbound text frame and dispatches it to the
// matching action handler. Unparseable frames are logged and dropped.
func (d *Dispatcher) HandleMessage(text string, conn Conn) {
	env, err := protocol.Parse([]byte(text))
	if err != nil {
		d.metrics.ParseFailures.Add(1)
		slog.Warn("dropping unparseable message", "conn_id", conn.ID(), "err", err)
		return
	}

	s := d.registry.ByConnID(conn.ID())
	if s == nil {
		// Registration happens at open time, before dispatch. A message
		// from an unregistered connection means the lifecycle broke for
		// this connection; give up on it without touching the others.
		slog.Error("message from unregistered connection", "conn_id", conn.ID(), "action", env.Action)
		_ = conn.Close()
		return
	}

	d.metrics.MessagesDispatched.Add(1)
	slog.Debug("dispatching", "conn_id", conn.ID(), "action", env.Action, "request_id", env.RequestID)

	switch env.Action {
	case protocol.ActionGetLoginURL:
		d.handleGetLoginURL(s, env)
	case protocol.ActionLogin:
		d.handleLogin(s, env)
	case protocol.ActionSetUser:
		d.handleSetUser(s, env)
	case protocol.ActionGetPlaylists:
		d.handleGetPlaylists(s, env)
	case protocol.ActionGetUsers:
		d.handleGetUsers(s, env)
	case protocol.ActionLogout:
		d.handleLogout(s)
	case protocol.ActionAnswer:
		// Answer collection is not implemented yet; accepted and ignored.
	case protocol.ActionCreateQuiz:
		d.handleCreateQuiz(s, env)
	default:
		d.handleUnknown(s, env)
	}
}

func (d *Dispatcher) handleGetLoginURL(s *Session, env *protocol.Envelope) {
	url := d.provider.AuthorizeURL()
	d.respond(s, env, url)
}

// handleLogin exchanges an authorization code for an identity and binds
// it to the session. If an identity with the same name already exists in
// the catalogue the stored one wins; the tokens from this login are
// discarded.
func (d *Dispatcher) handleLogin(s *Session, env *protocol.Envelope) {
	var data protocol.LoginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		d.metrics.ParseFailures.Add(1)
		slog.Warn("login: malformed data", "conn_id", s.ConnID(), "err", err)
		return
	}

	user, err := d.provider.ExchangeCode(d.ctx, data.Code)
	if err != nil {
		slog.Error("login: code exchange failed", "conn_id", s.ConnID(), "err", err)
		d.respond(s, env, model.Guest())
		return
	}

	existing, err := d.catalogue.GetUserByName(user.Name)
	if err != nil {
		slog.Error("login: catalogue lookup failed", "name", user.Name, "err", err)
		d.respond(s, env, model.Guest())
		return
	}
	if existing != nil {
		user = existing
	} else {
		created, err := d.catalogue.CreateUser(*user)
		if err != nil {
			slog.Error("login: create user failed", "name", user.Name, "err", err)
			d.respond(s, env, model.Guest())
			return
		}
		user = created
	}

	s.SetIdentity(*user)
	d.metrics.Logins.Add(1)
	slog.Info("user logged in", "conn_id", s.ConnID(), "user_id", user.ID, "name", user.Name)
	d.respond(s, env, user)
}

// handleSetUser rebinds the session to a persisted identity by id and
// refreshes its access token. An unknown id or a failed refresh reports
// success=false and leaves the session bound to the guest identity.
func (d *Dispatcher) handleSetUser(s *Session, env *protocol.Envelope) {
	var data protocol.SetUserData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		d.metrics.ParseFailures.Add(1)
		slog.Warn("setUser: malformed data", "conn_id", s.ConnID(), "err", err)
		return
	}

	user, err := d.catalogue.GetUserByID(data.ID)
	if err != nil {
		slog.Error("setUser: catalogue lookup failed", "user_id", data.ID, "err", err)
		user = nil
	}
	if user == nil {
		s.SetIdentity(model.Guest())
		d.respond(s, env, false)
		return
	}

	accessToken, err := d.provider.RefreshAccessToken(d.ctx, user.RefreshToken)
	if err != nil {
		slog.Error("setUser: token refresh failed", "user_id", user.ID, "err", err)
		s.SetIdentity(model.Guest())
		d.respond(s, env, false)
		return
	}
	user.AccessToken = accessToken
	d.provider.SetTokens(user.AccessToken, user.RefreshToken)
	if err := d.catalogue.UpdateUserTokens(user.ID, user.AccessToken, user.RefreshToken); err != nil {
		slog.Warn("setUser: persisting refreshed token failed", "user_id", user.ID, "err", err)
	}

	s.SetIdentity(*user)
	d.metrics.Logins.Add(1)
	slog.Info("user bound", "conn_id", s.ConnID(), "user_id", user.ID, "name", user.Name)
	d.respond(s, env, true)
}

func (d *Dispatcher) handleGetPlaylists(s *Session, env *protocol.Envelope) {
	playlists, err := d.provider.UserPlaylists(d.ctx)
	if err != nil {
		slog.Error("getPlaylists: provider call failed", "conn_id", s.ConnID(), "err", err)
		playlists = []model.Playlist{}
	}
	d.respond(s, env, playlists)
}

func (d *Dispatcher) handleGetUsers(s *Session, env *protocol.Envelope) {
	d.respond(s, env, d.registry.Identities())
}

// handleLogout rebinds the session to the guest identity. No response is
// sent; the client treats logout as fire-and-forget.
func (d *Dispatcher) handleLogout(s *Session) {
	previous := s.Identity()
	s.SetIdentity(model.Guest())
	slog.Info("user logged out", "conn_id", s.ConnID(), "user_id", previous.ID)
}

// handleCreateQuiz builds a quiz from a playlist, persists it, broadcasts
// it to the online invitees and separately responds to the requester.
func (d *Dispatcher) handleCreateQuiz(s *Session, env *protocol.Envelope) {
	var data protocol.CreateQuizData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		d.metrics.ParseFailures.Add(1)
		slog.Warn("createQuiz: malformed data", "conn_id", s.ConnID(), "err", err)
		return
	}

	tracks, err := d.provider.PlaylistTracks(d.ctx, data.Playlist)
	if err != nil {
		slog.Error("createQuiz: fetching tracks failed", "playlist", data.Playlist, "err", err)
		d.respond(s, env, nil)
		return
	}
	selected := d.provider.SimilarTracks(tracks, data.NbrOfSongs)

	questions := make([]model.Question, 0, len(selected))
	for _, track := range selected {
		options, err := d.provider.ArtistOptions(d.ctx, track)
		if err != nil {
			slog.Error("createQuiz: building options failed", "track", track.ID, "err", err)
			d.respond(s, env, nil)
			return
		}
		questions = append(questions, model.Question{TrackID: track.ID, Options: options})
	}

	quiz := &model.Quiz{
		CreatorID: s.Identity().ID,
		PlayerIDs: data.Users,
		Questions: questions,
	}
	if err := d.catalogue.CreateQuiz(quiz); err != nil {
		slog.Error("createQuiz: persisting quiz failed", "creator_id", quiz.CreatorID, "err", err)
		d.respond(s, env, nil)
		return
	}
	d.metrics.QuizzesCreated.Add(1)
	slog.Info("quiz created",
		"quiz_id", quiz.ID,
		"creator_id", quiz.CreatorID,
		"players", len(quiz.PlayerIDs),
		"questions", len(quiz.Questions),
	)

	broadcast, err := protocol.NewEnvelope(env.Action, env.RequestID, quiz)
	if err != nil {
		slog.Error("createQuiz: building broadcast failed", "quiz_id", quiz.ID, "err", err)
		return
	}
	d.router.SendToParticipants(quiz, broadcast)
	d.respond(s, env, quiz)
}

// handleUnknown echoes the action and request id with no data. The echo
// historically goes to every connected session; Config.BroadcastUnknownActions
// keeps that behavior toggleable, with false restricting the echo to the
// requester.
func (d *Dispatcher) handleUnknown(s *Session, env *protocol.Envelope) {
	d.metrics.UnknownActions.Add(1)
	slog.Warn("unknown action", "conn_id", s.ConnID(), "action", env.Action)

	echo, err := protocol.NewEnvelope(env.Action, env.RequestID, nil)
	if err != nil {
		slog.Error("unknown action: building echo failed", "action", env.Action, "err", err)
		return
	}
	if d.cfg.BroadcastUnknownActions {
		d.router.SendToAll(echo)
		return
	}
	_ = d.router.SendToSession(s, echo)
}

// respond sends a correlated response envelope to the originating session.
func (d *Dispatcher) respond(s *Session, req *protocol.Envelope, data any) {
	resp, err := protocol.NewEnvelope(req.Action, req.RequestID, data)
	if err != nil {
		slog.Error("building response failed", "action", req.Action, "err", err)
		return
	}
	_ = d.router.SendToSession(s, resp) // eviction handled inside
}
