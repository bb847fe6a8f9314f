package replica

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/lastround/go/internal/engine"
)

func startedMatch(t *testing.T, seed int64) *engine.Match {
	t.Helper()
	m, err := engine.New(engine.Config{
		ID:    "m-1",
		Rules: engine.DefaultRules(),
		Seats: []engine.SeatConfig{{Kind: engine.KindLocal, Name: "host"}, {Kind: engine.KindRemote, Name: "guest"}},
		Rand:  rand.New(rand.NewSource(seed)),
	})
	require.NoError(t, err)
	require.NoError(t, m.StartWith(engine.Self))
	return m
}

func TestMergeReplacesChamberWhenIdle(t *testing.T) {
	m := startedMatch(t, 1)
	local := m.Snapshot()
	_, err := m.Shoot(engine.Self, engine.Opponent)
	require.NoError(t, err)
	incoming := m.Snapshot()

	merged, outcome := Merge(local, incoming, false)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, incoming, merged)
}

func TestMergeDefersChamberWhileAnimating(t *testing.T) {
	m := startedMatch(t, 1)
	local := m.Snapshot()
	_, err := m.Shoot(engine.Self, engine.Opponent)
	require.NoError(t, err)
	incoming := m.Snapshot()
	require.True(t, local.Chamber.SameContents(incoming.Chamber), "no reload after one shot")

	merged, outcome := Merge(local, incoming, true)
	assert.Equal(t, ChamberDeferred, outcome)
	assert.Equal(t, local.Chamber, merged.Chamber)
	assert.Equal(t, incoming.Current, merged.Current)
	assert.Equal(t, incoming.Combatants, merged.Combatants)
	assert.Equal(t, incoming.LastAction, merged.LastAction)
}

func TestMergeTakesReloadedChamberEvenWhileAnimating(t *testing.T) {
	m := startedMatch(t, 1)
	local := m.Snapshot()
	incoming := local.Clone()
	incoming.Chamber = engine.ChamberState{Chambers: []engine.Outcome{engine.Live, engine.Empty, engine.Empty, engine.Live, engine.Empty, engine.Empty}}
	if incoming.Chamber.SameContents(local.Chamber) {
		incoming.Chamber.Chambers[0] = engine.Empty
	}
	incoming.ReloadCount = local.ReloadCount + 1

	merged, outcome := Merge(local, incoming, true)
	assert.Equal(t, Applied, outcome)
	assert.Equal(t, incoming.Chamber, merged.Chamber)
	assert.Equal(t, incoming.ReloadCount, merged.ReloadCount)
}

func TestMergeReloadCountOnlyMovesForward(t *testing.T) {
	m := startedMatch(t, 1)
	local := m.Snapshot()
	local.ReloadCount = 4
	incoming := local.Clone()
	incoming.ReloadCount = 3
	incoming.LastResult = "late"

	merged, _ := Merge(local, incoming, false)
	assert.Equal(t, 4, merged.ReloadCount)
	assert.Equal(t, "late", merged.LastResult)
}

func TestMergeDoesNotAliasInputs(t *testing.T) {
	m := startedMatch(t, 1)
	local := m.Snapshot()
	incoming := local.Clone()
	incoming.Combatants[0].Health = 2

	merged, _ := Merge(local, incoming, false)
	merged.Combatants[0].Items = append(merged.Combatants[0].Items, engine.ItemScan)
	merged.Combatants[0].Health = 1

	assert.Equal(t, 2, incoming.Combatants[0].Health)
	assert.Equal(t, 5, local.Combatants[0].Health)
}

func TestTrackerDropsStaleEnvelopes(t *testing.T) {
	m := startedMatch(t, 1)
	tr := NewTracker()

	first := m.Snapshot()
	_, ok := tr.Accept(Envelope{Seq: 2, Snapshot: first})
	require.True(t, ok)

	_, ok = tr.Accept(Envelope{Seq: 1, Snapshot: first})
	assert.False(t, ok, "lower seq")
	_, ok = tr.Accept(Envelope{Seq: 2, Snapshot: first})
	assert.False(t, ok, "duplicate seq")

	_, err := m.Shoot(engine.Self, engine.Opponent)
	require.NoError(t, err)
	env, ok := tr.Accept(Envelope{Seq: 3, Snapshot: m.Snapshot()})
	require.True(t, ok)
	assert.Equal(t, uint64(3), env.Seq)
	assert.Equal(t, engine.Opponent, env.Snapshot.Current)

	older := m.Snapshot()
	older.ReloadCount--
	_, ok = tr.Accept(Envelope{Seq: 4, Snapshot: older})
	assert.False(t, ok, "reload count went backwards")

	last, ok := tr.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(3), last.Seq)
}

func TestVersionNewer(t *testing.T) {
	base := Version{ReloadCount: 2, Seq: 5}
	assert.True(t, Version{ReloadCount: 2, Seq: 6}.Newer(base))
	assert.True(t, Version{ReloadCount: 3, Seq: 6}.Newer(base))
	assert.False(t, Version{ReloadCount: 2, Seq: 5}.Newer(base))
	assert.False(t, Version{ReloadCount: 1, Seq: 9}.Newer(base))
}

func TestTrackerStampIsMonotonic(t *testing.T) {
	m := startedMatch(t, 1)
	tr := NewTracker()
	a := tr.Stamp(m.Snapshot())
	b := tr.Stamp(m.Snapshot())
	assert.Less(t, a.Seq, b.Seq)
	assert.Less(t, a.Version().Seq, b.Version().Seq)

	_, ok := tr.Accept(Envelope{Seq: b.Seq, Snapshot: m.Snapshot()})
	assert.False(t, ok)
}
