package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mcdev12/lastround/go/internal/auth"
	"github.com/mcdev12/lastround/go/internal/events"
	"github.com/mcdev12/lastround/go/internal/ranked"
	"github.com/mcdev12/lastround/go/internal/room"
)

type fakeMatchmaker struct {
	mu         sync.Mutex
	queued     map[string]bool
	identities map[string]bool
	enqueueErr error
	enqueued   []string
	left       []string
}

func (f *fakeMatchmaker) Enqueue(_ context.Context, peer, identity, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, identity+"/"+name)
	return nil
}

func (f *fakeMatchmaker) Leave(peer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = append(f.left, peer)
}

func (f *fakeMatchmaker) Queued(peer string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queued[peer]
}

func (f *fakeMatchmaker) QueuedIdentity(identity string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.identities[identity]
}

func (f *fakeMatchmaker) leftCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.left)
}

type testServer struct {
	srv   *httptest.Server
	cm    *ConnectionManager
	rooms *room.Manager
	mm    *fakeMatchmaker
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, verifier TokenVerifier) *testServer {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	cm := NewConnectionManager(DefaultConnectionConfig())

	cfg := room.DefaultConfig()
	cfg.ActionRate = rate.Inf
	rooms := room.NewManager(cfg, cm, nil, clock, nil)
	mm := &fakeMatchmaker{queued: map[string]bool{}, identities: map[string]bool{}}
	cm.SetHandler(NewDispatcher(rooms, mm, cm, clock))

	mux := http.NewServeMux()
	NewWebSocketHandler(cm, verifier, rooms.Stats).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cm.Close()
		srv.Close()
		rooms.Close()
	})
	return &testServer{srv: srv, cm: cm, rooms: rooms, mm: mm, clock: clock}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (ts *testServer) dial(t *testing.T, query string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(event string, data any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(outbound{Event: event, Data: data}))
}

func (c *client) sendRaw(raw string) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

// expect reads frames until one named event arrives and decodes it into v.
func (c *client) expect(event string, v any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var env Envelope
		require.NoError(c.t, c.conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event != event {
			continue
		}
		if v != nil {
			require.NoError(c.t, json.Unmarshal(env.Data, v))
		}
		return
	}
}

func TestPingPong(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, "")

	c.send(events.Ping, nil)
	var pong events.PongPayload
	c.expect(events.Pong, &pong)
	assert.Equal(t, ts.clock.Now().UnixMilli(), pong.Time)
}

func TestCreateJoinAndDisconnect(t *testing.T) {
	ts := newTestServer(t, nil)
	alice := ts.dial(t, "")
	bob := ts.dial(t, "")

	alice.send(events.RoomCreate, events.CreateRoomPayload{DisplayName: "Alice", Identity: "u-alice"})
	var created events.RoomJoinedPayload
	alice.expect(events.RoomCreated, &created)
	require.NotEmpty(t, created.Code)
	assert.True(t, created.IsHost)
	require.Len(t, created.Players, 1)
	assert.Equal(t, "u-alice", created.Players[0].Identity)

	bob.send(events.RoomJoin, events.JoinRoomPayload{Code: created.Code, DisplayName: "Bob"})
	var joined events.RoomJoinedPayload
	bob.expect(events.RoomJoined, &joined)
	assert.Equal(t, created.Code, joined.Code)
	assert.False(t, joined.IsHost)

	var arrived events.PlayerJoinedPayload
	alice.expect(events.RoomPlayerJoined, &arrived)
	assert.Equal(t, "Bob", arrived.PlayerName)
	alice.expect(events.RoomReady, nil)

	require.NoError(t, bob.conn.Close())

	var left events.PlayerLeftPayload
	alice.expect(events.RoomPlayerLeft, &left)
	assert.Equal(t, "Bob", left.PlayerName)
	assert.Eventually(t, func() bool { return ts.mm.leftCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, ts.cm.GetConnectionStats()["total_connections"])
}

func TestRejectedRequestsAnswerRoomError(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, "")

	var e events.ErrorPayload
	c.send("room:dance", nil)
	c.expect(events.RoomError, &e)
	assert.Equal(t, reasonUnknownEvent, e.Reason)

	c.sendRaw(`not json`)
	c.expect(events.RoomError, &e)
	assert.Equal(t, reasonBadFrame, e.Reason)

	c.sendRaw(`{"event":"room:join","data":"ABCD"}`)
	c.expect(events.RoomError, &e)
	assert.Equal(t, reasonBadPayload, e.Reason)

	c.send(events.RoomJoin, events.JoinRoomPayload{Code: "ZZZZ", DisplayName: "Carol"})
	c.expect(events.RoomError, &e)
	assert.Equal(t, "room_not_found", e.Reason)
}

func TestRankedQueueBlocksRoomRequests(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, "")

	c.send(events.RankedJoin, events.RankedJoinPayload{DisplayName: "Alice", Identity: "u-alice"})
	require.Eventually(t, func() bool {
		ts.mm.mu.Lock()
		defer ts.mm.mu.Unlock()
		return len(ts.mm.enqueued) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "u-alice/Alice", ts.mm.enqueued[0])

	ts.cm.mu.RLock()
	ts.mm.mu.Lock()
	for peer := range ts.cm.connections {
		ts.mm.queued[peer] = true
	}
	ts.cm.mu.RUnlock()
	ts.mm.enqueueErr = ranked.ErrAlreadyQueued
	ts.mm.mu.Unlock()

	var e events.ErrorPayload
	c.send(events.RoomCreate, events.CreateRoomPayload{DisplayName: "Alice"})
	c.expect(events.RoomError, &e)
	assert.Equal(t, reasonRankedQueued, e.Reason)

	c.send(events.RankedJoin, events.RankedJoinPayload{DisplayName: "Alice", Identity: "u-alice"})
	c.expect(events.RankedError, &e)
	assert.Equal(t, "already_queued", e.Reason)
}

func TestQueuedIdentityBlocksRoomRequestsFromOtherDevices(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.mm.mu.Lock()
	ts.mm.identities["u-alice"] = true
	ts.mm.mu.Unlock()

	phone := ts.dial(t, "")
	var e events.ErrorPayload
	phone.send(events.RoomCreate, events.CreateRoomPayload{DisplayName: "Alice", Identity: "u-alice"})
	phone.expect(events.RoomError, &e)
	assert.Equal(t, reasonRankedQueued, e.Reason)

	phone.send(events.RoomSolo, events.SoloRoomPayload{DisplayName: "Alice", Identity: "u-alice", Level: 1})
	phone.expect(events.RoomError, &e)
	assert.Equal(t, reasonRankedQueued, e.Reason)

	phone.send(events.RoomCreate, events.CreateRoomPayload{DisplayName: "Bob", Identity: "u-bob"})
	phone.expect(events.RoomCreated, nil)
	assert.Equal(t, 1, ts.rooms.Stats()["rooms"])
}

func TestTokenAuthentication(t *testing.T) {
	v, err := auth.NewVerifier(auth.Config{Secret: "s3cret", Issuer: "lastround"})
	require.NoError(t, err)
	ts := newTestServer(t, v)
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := v.Issue("user-7", "Grace", time.Hour)
	require.NoError(t, err)
	c := ts.dial(t, "?token="+token)

	// The claimed identity is replaced by the token subject and the token
	// name fills an empty display name.
	c.send(events.RoomCreate, events.CreateRoomPayload{Identity: "someone-else"})
	var created events.RoomJoinedPayload
	c.expect(events.RoomCreated, &created)
	require.Len(t, created.Players, 1)
	assert.Equal(t, "user-7", created.Players[0].Identity)
	assert.Equal(t, "Grace", created.Players[0].Name)
	assert.Equal(t, 1, ts.cm.GetConnectionStats()["authenticated_connections"])
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.dial(t, "")
	c.send(events.RoomCreate, events.CreateRoomPayload{DisplayName: "Alice"})
	c.expect(events.RoomCreated, nil)

	resp, err := http.Get(ts.srv.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats["total_connections"])
	assert.Equal(t, 1, stats["rooms"])
	assert.Equal(t, 1, stats["peers"])
}
