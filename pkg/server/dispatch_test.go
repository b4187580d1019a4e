package server_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/jcber/spothoot/pkg/model"
	"github.com/jcber/spothoot/pkg/protocol"
	"github.com/jcber/spothoot/pkg/server"
	"github.com/jcber/spothoot/pkg/store"

	"github.com/stretchr/testify/require"
)

type dispatchEnv struct {
	dispatcher *server.Dispatcher
	registry   *server.Registry
	catalogue  *store.MemoryStore
	provider   *fakeProvider
	metrics    *server.Metrics
}

func newDispatchEnv(t *testing.T, cfg server.Config) *dispatchEnv {
	t.Helper()
	registry := server.NewRegistry()
	metrics := server.NewMetrics()
	router := server.NewRouter(registry, metrics)
	catalogue := store.NewMemory()
	provider := newFakeProvider()
	dispatcher := server.NewDispatcher(context.Background(), registry, router, catalogue, provider, metrics, cfg)
	return &dispatchEnv{
		dispatcher: dispatcher,
		registry:   registry,
		catalogue:  catalogue,
		provider:   provider,
		metrics:    metrics,
	}
}

// open registers a fresh connection and returns it.
func (e *dispatchEnv) open(t *testing.T, id string) *fakeConn {
	t.Helper()
	conn := newFakeConn(id)
	e.dispatcher.HandleOpen(conn)
	return conn
}

// bind persists an identity and binds it to the connection's session.
func (e *dispatchEnv) bind(t *testing.T, conn *fakeConn, name string) *model.UserIdentity {
	t.Helper()
	user, err := e.catalogue.CreateUser(model.UserIdentity{Name: name, RefreshToken: "rt-" + name})
	require.NoError(t, err)
	s := e.registry.ByConnID(conn.ID())
	require.NotNil(t, s)
	s.SetIdentity(*user)
	return user
}

func (e *dispatchEnv) send(conn *fakeConn, action string, requestID int, data string) {
	text := fmt.Sprintf(`{"action":%q,"request_id":%d`, action, requestID)
	if data != "" {
		text += `,"data":` + data
	}
	text += "}"
	e.dispatcher.HandleMessage(text, conn)
}

func TestGetLoginURL(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")

	env.send(conn, "getLoginURL", 1, "")

	resp := conn.lastEnvelope(t)
	require.Equal(t, "getLoginURL", resp.Action)
	require.Equal(t, 1, resp.RequestID)
	url := decodeData[string](t, resp)
	require.Contains(t, url, "https://accounts.example/authorize")
}

func TestRequestResponseCorrelation(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")

	env.send(conn, "getUsers", 42, "")

	resp := conn.lastEnvelope(t)
	require.Equal(t, "getUsers", resp.Action)
	require.Equal(t, 42, resp.RequestID)
}

func TestLoginBindsAndPersists(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	env.provider.codeNames["code-1"] = "alice"
	conn := env.open(t, "c1")

	env.send(conn, "login", 1, `{"code":"code-1"}`)

	resp := conn.lastEnvelope(t)
	identity := decodeData[model.UserIdentity](t, resp)
	require.Equal(t, "alice", identity.Name)
	require.NotZero(t, identity.ID)

	s := env.registry.ByConnID("c1")
	require.Equal(t, identity.ID, s.Identity().ID)

	stored, err := env.catalogue.GetUserByName("alice")
	require.NoError(t, err)
	require.NotNil(t, stored)
}

func TestLoginIdempotence(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	// Two different codes resolving to the same identity name
	env.provider.codeNames["code-1"] = "alice"
	env.provider.codeNames["code-2"] = "alice"

	first := env.open(t, "c1")
	env.send(first, "login", 1, `{"code":"code-1"}`)
	firstIdentity := decodeData[model.UserIdentity](t, first.lastEnvelope(t))

	second := env.open(t, "c2")
	env.send(second, "login", 2, `{"code":"code-2"}`)
	secondIdentity := decodeData[model.UserIdentity](t, second.lastEnvelope(t))

	require.Equal(t, firstIdentity.ID, secondIdentity.ID, "same name must resolve to the same identity")

	users, err := env.catalogue.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 1, "no duplicate identity may be created")

	// Existing wins: the stored refresh token is kept, not replaced
	require.Equal(t, "rt-code-1", secondIdentity.RefreshToken)
}

func TestLoginBadCodeFallsBackToGuest(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")

	env.send(conn, "login", 1, `{"code":"bogus"}`)

	resp := conn.lastEnvelope(t)
	identity := decodeData[model.UserIdentity](t, resp)
	require.True(t, identity.IsGuest())
	require.True(t, env.registry.ByConnID("c1").Identity().IsGuest())
}

func TestSetUserKnownID(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	user, err := env.catalogue.CreateUser(model.UserIdentity{Name: "alice", RefreshToken: "rt-alice"})
	require.NoError(t, err)
	conn := env.open(t, "c1")

	env.send(conn, "setUser", 3, fmt.Sprintf(`{"id":%d}`, user.ID))

	resp := conn.lastEnvelope(t)
	require.Equal(t, 3, resp.RequestID)
	require.True(t, decodeData[bool](t, resp))

	bound := env.registry.ByConnID("c1").Identity()
	require.Equal(t, user.ID, bound.ID)
	require.Equal(t, "refreshed-rt-alice", bound.AccessToken)

	// The refreshed token is persisted
	stored, err := env.catalogue.GetUserByID(user.ID)
	require.NoError(t, err)
	require.Equal(t, "refreshed-rt-alice", stored.AccessToken)
}

func TestSetUserUnknownIDReportsFailure(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")

	env.send(conn, "setUser", 3, `{"id":99}`)

	resp := conn.lastEnvelope(t)
	require.False(t, decodeData[bool](t, resp))
	require.True(t, env.registry.ByConnID("c1").Identity().IsGuest())
}

func TestSetUserRefreshFailureReportsFailure(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	env.provider.failRefresh = true
	user, err := env.catalogue.CreateUser(model.UserIdentity{Name: "alice", RefreshToken: "rt"})
	require.NoError(t, err)
	conn := env.open(t, "c1")

	env.send(conn, "setUser", 1, fmt.Sprintf(`{"id":%d}`, user.ID))

	require.False(t, decodeData[bool](t, conn.lastEnvelope(t)))
	require.True(t, env.registry.ByConnID("c1").Identity().IsGuest())
}

func TestGetPlaylists(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")

	env.send(conn, "getPlaylists", 5, "")

	playlists := decodeData[[]model.Playlist](t, conn.lastEnvelope(t))
	require.Len(t, playlists, 1)
	require.Equal(t, "Roadtrip", playlists[0].Name)
}

func TestGetUsersListsOnlineIdentities(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	alice := env.open(t, "c1")
	env.bind(t, alice, "alice")
	env.open(t, "c2") // stays guest

	env.send(alice, "getUsers", 1, "")

	identities := decodeData[[]model.UserIdentity](t, alice.lastEnvelope(t))
	require.Len(t, identities, 2, "guests are part of the snapshot")
}

func TestLogoutResetsIdentity(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")
	user := env.bind(t, conn, "alice")
	framesBefore := len(conn.Frames())

	env.send(conn, "logout", 9, "")

	require.True(t, env.registry.ByConnID("c1").Identity().IsGuest())
	require.Nil(t, env.registry.ByUserID(user.ID), "previous id must no longer resolve")
	require.Len(t, conn.Frames(), framesBefore, "logout sends no response")
}

func TestAnswerIsNoOp(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")

	env.send(conn, "answer", 4, `{"question":1,"option":2}`)

	require.Empty(t, conn.Frames())
	require.Equal(t, int64(1), env.metrics.MessagesDispatched.Load())
}

func TestCreateQuizScenario(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())

	connA := env.open(t, "a")
	userA := env.bind(t, connA, "alice")
	connB := env.open(t, "b")
	userB := env.bind(t, connB, "bob")
	require.Equal(t, int64(1), userA.ID)
	require.Equal(t, int64(2), userB.ID)

	// Player id 3 is offline and must be skipped without error
	env.send(connA, "createQuiz", 11, `{"users":[1,2,3],"playlist":"pl1","nbrOfSongs":3}`)

	// The requester gets the broadcast plus the direct response
	framesA := connA.Frames()
	require.Len(t, framesA, 2)
	framesB := connB.Frames()
	require.Len(t, framesB, 1)

	for _, frame := range append(framesA, framesB...) {
		parsed, err := protocol.Parse([]byte(frame))
		require.NoError(t, err)
		require.Equal(t, "createQuiz", parsed.Action)
		require.Equal(t, 11, parsed.RequestID)
		quiz := decodeData[model.Quiz](t, parsed)
		require.Len(t, quiz.Questions, 3)
		require.Equal(t, userA.ID, quiz.CreatorID)
		require.Equal(t, []int64{1, 2, 3}, quiz.PlayerIDs)
	}

	// The quiz is persisted
	quizzes, err := env.catalogue.ListQuizzesByPlayer(userB.ID)
	require.NoError(t, err)
	require.Len(t, quizzes, 1)
	require.Equal(t, int64(1), env.metrics.QuizzesCreated.Load())
}

func TestUnknownActionBroadcastsToAll(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conns := []*fakeConn{env.open(t, "c1"), env.open(t, "c2"), env.open(t, "c3")}

	env.send(conns[0], "foo", 7, `{"ignored":true}`)

	for _, conn := range conns {
		frames := conn.Frames()
		require.Len(t, frames, 1)
		require.JSONEq(t, `{"action":"foo","request_id":7}`, frames[0])
	}
	require.Equal(t, int64(1), env.metrics.UnknownActions.Load())
}

func TestUnknownActionRequesterOnly(t *testing.T) {
	t.Parallel()

	cfg := server.DefaultConfig()
	cfg.BroadcastUnknownActions = false
	env := newDispatchEnv(t, cfg)

	requester := env.open(t, "c1")
	other := env.open(t, "c2")

	env.send(requester, "foo", 7, "")

	require.Len(t, requester.Frames(), 1)
	require.Empty(t, other.Frames())
}

func TestParseFailureDropsMessage(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")

	env.dispatcher.HandleMessage(`{"garbage`, conn)
	env.dispatcher.HandleMessage(`{"request_id":1}`, conn)

	require.Empty(t, conn.Frames())
	require.False(t, conn.Closed(), "parse failures must not close the connection")
	require.Equal(t, int64(2), env.metrics.ParseFailures.Load())
}

func TestMessageFromUnregisteredConnection(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := newFakeConn("ghost") // never passed through HandleOpen

	env.dispatcher.HandleMessage(`{"action":"getUsers","request_id":1}`, conn)

	require.True(t, conn.Closed())
	require.Empty(t, conn.Frames())
}

func TestEvictionSettlesConnectionGauges(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")
	require.Equal(t, int64(1), env.metrics.ActiveConnections.Load())

	// The peer dies; the next response write fails and evicts the session
	conn.failWrites = true
	env.send(conn, "getUsers", 1, "")
	require.Nil(t, env.registry.ByConnID("c1"))
	require.Equal(t, int64(1), env.metrics.Evictions.Load())

	// The transport close path fires afterwards and finds no session
	env.dispatcher.HandleClose(conn)

	require.Equal(t, int64(0), env.metrics.ActiveConnections.Load())
	require.Equal(t, int64(1), env.metrics.TotalDisconnects.Load())
}

func TestHandleCloseRemovesSession(t *testing.T) {
	t.Parallel()

	env := newDispatchEnv(t, server.DefaultConfig())
	conn := env.open(t, "c1")
	require.Equal(t, 1, env.registry.Count())

	env.dispatcher.HandleClose(conn)
	require.Equal(t, 0, env.registry.Count())
	require.Equal(t, int64(1), env.metrics.TotalDisconnects.Load())

	// Closing again is harmless (already evicted case)
	env.dispatcher.HandleClose(conn)
	require.Equal(t, int64(1), env.metrics.TotalDisconnects.Load())
}
