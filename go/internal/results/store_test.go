package results

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/lastround/go/internal/dbconfig"
	"github.com/mcdev12/lastround/go/internal/sqlutil"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, dbconfig.Config{
		Driver:     sqlutil.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "results.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	stmts, err := SchemaStatements(sqlutil.DriverPostgres)
	require.NoError(t, err)
	assert.Len(t, stmts, 6)
}

func TestEnsureRatingCreatesDefault(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetRating(ctx, "alice", "1v1")
	assert.ErrorIs(t, err, ErrNotFound)

	r, err := s.EnsureRating(ctx, "alice", "1v1")
	require.NoError(t, err)
	assert.Equal(t, Rating{UserID: "alice", Mode: "1v1", Elo: DefaultRating}, r)

	again, err := s.EnsureRating(ctx, "alice", "1v1")
	require.NoError(t, err)
	assert.Equal(t, r, again)
}

func TestRankedMatchLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for _, u := range []string{"alice", "bob"} {
		_, err := s.EnsureRating(ctx, u, "1v1")
		require.NoError(t, err)
	}

	id, err := s.CreateRankedMatch(ctx, "1v1", []RankedSeat{{UserID: "alice", EloBefore: 1000}, {UserID: "bob", EloBefore: 1000}})
	require.NoError(t, err)

	pending, err := s.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, VictoryPending, pending.VictoryType)
	assert.True(t, pending.IsRanked)
	require.Len(t, pending.Participants, 2)
	require.NotNil(t, pending.Participants[0].EloBefore)
	assert.Equal(t, 1000, *pending.Participants[0].EloBefore)

	res := RankedResult{
		MatchID:      id,
		Mode:         "1v1",
		WinnerID:     "alice",
		VictoryType:  "elimination",
		RoundsPlayed: 3,
		Participants: []ParticipantResult{
			{UserID: "alice", Rank: 1, FinalHP: 2, ShotsFired: 5, ShotsTaken: 3, ItemsUsed: 2},
			{UserID: "bob", Rank: 2, FinalHP: 0, ShotsFired: 4, ShotsTaken: 5, ItemsUsed: 1},
		},
		Changes: []RatingChange{
			{UserID: "alice", Before: 1000, After: 1016, Delta: 16, Expected: 0.5, K: 32, Won: true},
			{UserID: "bob", Before: 1000, After: 984, Delta: -16, Expected: 0.5, K: 32},
		},
		Summary: json.RawMessage(`{"reloads":3}`),
	}
	require.NoError(t, s.CommitRankedResult(ctx, res))

	alice, err := s.GetRating(ctx, "alice", "1v1")
	require.NoError(t, err)
	assert.Equal(t, Rating{UserID: "alice", Mode: "1v1", Elo: 1016, GamesPlayed: 1, Wins: 1}, alice)
	bob, err := s.GetRating(ctx, "bob", "1v1")
	require.NoError(t, err)
	assert.Equal(t, Rating{UserID: "bob", Mode: "1v1", Elo: 984, GamesPlayed: 1, Losses: 1}, bob)

	done, err := s.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice", done.WinnerID)
	assert.Equal(t, 3, done.RoundsPlayed)
	assert.JSONEq(t, `{"reloads":3}`, string(done.Summary))
	require.Len(t, done.Participants, 2)
	assert.Equal(t, "alice", done.Participants[0].UserID)
	require.NotNil(t, done.Participants[0].EloDelta)
	assert.Equal(t, 16, *done.Participants[0].EloDelta)
	assert.Equal(t, -16, *done.Participants[1].EloDelta)

	err = s.CommitRankedResult(ctx, res)
	assert.ErrorIs(t, err, ErrAlreadyCommitted)
	alice, err = s.GetRating(ctx, "alice", "1v1")
	require.NoError(t, err)
	assert.Equal(t, 1016, alice.Elo, "a second commit must not apply twice")
}

func TestCommitRollsBackOnMissingRating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.EnsureRating(ctx, "alice", "1v1")
	require.NoError(t, err)

	id, err := s.CreateRankedMatch(ctx, "1v1", []RankedSeat{{UserID: "alice", EloBefore: 1000}, {UserID: "ghost", EloBefore: 1000}})
	require.NoError(t, err)

	err = s.CommitRankedResult(ctx, RankedResult{
		MatchID:     id,
		Mode:        "1v1",
		WinnerID:    "alice",
		VictoryType: "elimination",
		Changes: []RatingChange{
			{UserID: "alice", Before: 1000, After: 1016, Delta: 16, Won: true},
			{UserID: "ghost", Before: 1000, After: 984, Delta: -16},
		},
	})
	require.ErrorIs(t, err, ErrNotFound)

	alice, err := s.GetRating(ctx, "alice", "1v1")
	require.NoError(t, err)
	assert.Equal(t, 1000, alice.Elo)
	m, err := s.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, VictoryPending, m.VictoryType)
}

func TestRecordMatchWithBot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	level := 3

	id, err := s.RecordMatch(ctx, MatchRecord{
		Mode:         "solo",
		VictoryType:  "elimination",
		BotLevel:     &level,
		RoundsPlayed: 2,
		WinnerID:     "alice",
		Participants: []ParticipantResult{
			{UserID: "alice", Rank: 1, FinalHP: 3},
			{Rank: 2, IsBot: true},
		},
	})
	require.NoError(t, err)

	m, err := s.GetMatch(ctx, id)
	require.NoError(t, err)
	assert.False(t, m.IsRanked)
	require.NotNil(t, m.BotLevel)
	assert.Equal(t, 3, *m.BotLevel)
	require.Len(t, m.Participants, 2)
	assert.True(t, m.Participants[1].IsBot)
	assert.Empty(t, m.Participants[1].UserID)
	assert.Nil(t, m.Participants[1].EloBefore)

	_, err = s.GetMatch(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRelayPublishesAndMarksSent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.RecordMatch(ctx, MatchRecord{Mode: "1v1", VictoryType: "afk"})
	require.NoError(t, err)
	_, err = s.CreateRankedMatch(ctx, "1v1", []RankedSeat{{UserID: "a"}, {UserID: "b"}})
	require.NoError(t, err)

	pending, err := s.PendingOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	var (
		mu    sync.Mutex
		types []string
		fail  = true
	)
	pub := PublisherFunc(func(_ context.Context, ev OutboxEvent) error {
		mu.Lock()
		defer mu.Unlock()
		if ev.EventType == EventRankedMatchCreated && fail {
			fail = false
			return errors.New("bus down")
		}
		types = append(types, ev.EventType)
		return nil
	})

	cfg := DefaultRelayConfig()
	cfg.MaxRetries = 0
	relay := NewRelay(s, pub, cfg, clockwork.NewFakeClock())

	assert.Equal(t, 1, relay.ProcessOnce(ctx))
	pending, err = s.PendingOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "failed event stays in the outbox")

	assert.Equal(t, 1, relay.ProcessOnce(ctx))
	assert.Equal(t, 0, relay.ProcessOnce(ctx))
	assert.ElementsMatch(t, []string{EventMatchCompleted, EventRankedMatchCreated}, types)
}

func TestRelayStartStop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.RecordMatch(ctx, MatchRecord{Mode: "1v1", VictoryType: "afk"})
	require.NoError(t, err)

	clock := clockwork.NewFakeClock()
	published := make(chan OutboxEvent, 4)
	relay := NewRelay(s, PublisherFunc(func(_ context.Context, ev OutboxEvent) error {
		published <- ev
		return nil
	}), DefaultRelayConfig(), clock)

	require.NoError(t, relay.Start(ctx))
	assert.Error(t, relay.Start(ctx))

	select {
	case ev := <-published:
		assert.Equal(t, EventMatchCompleted, ev.EventType)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not process on start")
	}

	require.NoError(t, relay.Stop())
	assert.Error(t, relay.Stop())
}

func TestPublisherCanWriteWhileRelaying(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.RecordMatch(ctx, MatchRecord{Mode: "1v1", VictoryType: "afk"})
	require.NoError(t, err)

	// The store holds a single connection on SQLite, so this write would block
	// forever if the relay kept its claim transaction open.
	var wrote bool
	pub := PublisherFunc(func(ctx context.Context, ev OutboxEvent) error {
		if ev.EventType != EventMatchCompleted || wrote {
			return nil
		}
		wrote = true
		_, err := s.RecordMatch(ctx, MatchRecord{Mode: "solo", VictoryType: "elimination"})
		return err
	})
	relay := NewRelay(s, pub, DefaultRelayConfig(), clockwork.NewFakeClock())

	done := make(chan int, 1)
	go func() { done <- relay.ProcessOnce(ctx) }()
	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(5 * time.Second):
		t.Fatal("relay blocked the publisher's write")
	}
	assert.True(t, wrote)

	pending, err := s.PendingOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending, "only the match recorded while publishing is left")
}

func TestClaimOutboxLease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.RecordMatch(ctx, MatchRecord{Mode: "1v1", VictoryType: "afk"})
	require.NoError(t, err)

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	lease := time.Minute

	first, err := s.ClaimOutbox(ctx, 10, now, lease)
	require.NoError(t, err)
	require.Len(t, first, 1)

	again, err := s.ClaimOutbox(ctx, 10, now.Add(30*time.Second), lease)
	require.NoError(t, err)
	assert.Empty(t, again, "leased events are not handed out twice")

	expired, err := s.ClaimOutbox(ctx, 10, now.Add(lease), lease)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, first[0].ID, expired[0].ID)

	require.NoError(t, s.ReleaseOutbox(ctx, []uuid.UUID{first[0].ID}))
	released, err := s.ClaimOutbox(ctx, 10, now.Add(lease), lease)
	require.NoError(t, err)
	require.Len(t, released, 1)

	require.NoError(t, s.MarkOutboxSent(ctx, []uuid.UUID{first[0].ID}))
	require.NoError(t, s.ReleaseOutbox(ctx, []uuid.UUID{first[0].ID}))
	later, err := s.ClaimOutbox(ctx, 10, now.Add(time.Hour), lease)
	require.NoError(t, err)
	assert.Empty(t, later, "sent events stay sent")

	pending, err := s.PendingOutbox(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)
}
