package room

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/events"
	"github.com/mcdev12/lastround/go/internal/replica"
)

type sentMessage struct {
	peer  string
	event string
	data  any
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []sentMessage
}

func (f *fakeNotifier) SendToPeer(peer, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, sentMessage{peer: peer, event: event, data: data})
}

func (f *fakeNotifier) Broadcast(peers []string, event string, data any) {
	for _, p := range peers {
		f.SendToPeer(p, event, data)
	}
}

func (f *fakeNotifier) count(peer, event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.msgs {
		if m.peer == peer && m.event == event {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) last(peer, event string) (any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.msgs) - 1; i >= 0; i-- {
		if f.msgs[i].peer == peer && f.msgs[i].event == event {
			return f.msgs[i].data, true
		}
	}
	return nil, false
}

func (f *fakeNotifier) lastState(t *testing.T, peer string) replica.Envelope {
	t.Helper()
	data, ok := f.last(peer, events.GameState)
	require.True(t, ok, "no game:state for %s", peer)
	env, ok := data.(replica.Envelope)
	require.True(t, ok)
	return env
}

// seq is the sequence of the last game:state sent to peer, or 0.
func (f *fakeNotifier) seq(peer string) uint64 {
	data, ok := f.last(peer, events.GameState)
	if !ok {
		return 0
	}
	env, _ := data.(replica.Envelope)
	return env.Seq
}

type harness struct {
	m       *Manager
	n       *fakeNotifier
	clock   *clockwork.FakeClock
	cfg     Config
	reports chan ResultReport
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ActionRate = rate.Inf
	h := &harness{
		n:       &fakeNotifier{},
		clock:   clockwork.NewFakeClock(),
		cfg:     cfg,
		reports: make(chan ResultReport, 4),
	}
	sink := ResultSinkFunc(func(_ context.Context, r ResultReport) error {
		h.reports <- r
		return nil
	})
	h.m = NewManager(cfg, h.n, nil, h.clock, sink)
	t.Cleanup(h.m.Close)
	return h
}

func (h *harness) report(t *testing.T) ResultReport {
	t.Helper()
	select {
	case r := <-h.reports:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result reported")
		return ResultReport{}
	}
}

// advance waits for the room clock to be armed and moves past it.
func (h *harness) advance(t *testing.T, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.clock.BlockUntilContext(ctx, 1))
	h.clock.Advance(d)
}

// duel seats alice (host) and bob in a new room.
func (h *harness) duel(t *testing.T, authority string) string {
	t.Helper()
	code, err := h.m.CreateRoom("alice", events.CreateRoomPayload{DisplayName: "Alice", Identity: "u-alice", Authority: authority})
	require.NoError(t, err)
	require.NoError(t, h.m.JoinRoom("bob", events.JoinRoomPayload{Code: code, DisplayName: "Bob", Identity: "u-bob"}))
	return code
}

func hostSnapshot(t *testing.T, current engine.Slot) *engine.Snapshot {
	t.Helper()
	m, err := engine.New(engine.Config{
		Rules: engine.DefaultRules(),
		Seats: []engine.SeatConfig{{Name: "Alice"}, {Name: "Bob"}},
		Rand:  rand.New(rand.NewSource(1)),
	})
	require.NoError(t, err)
	require.NoError(t, m.StartWith(current))
	s := m.Snapshot()
	return &s
}

func slotPtr(s engine.Slot) *engine.Slot { return &s }

func seed(n int64) *int64 { return &n }
