package main

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/lastround/go/internal/dbconfig"
	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/results"
	"github.com/mcdev12/lastround/go/internal/room"
	"github.com/mcdev12/lastround/go/internal/sqlutil"
)

func botReport() room.ResultReport {
	level := 2
	return room.ResultReport{
		RoomCode:     "QWER",
		Mode:         room.ModeSolo,
		Tier:         engine.TierPrince,
		BotLevel:     &level,
		VictoryType:  "elimination",
		RoundsPlayed: 3,
		Winner:       engine.Opponent,
		Participants: []room.ReportedSeat{
			{PeerID: "p1", Identity: "u-alice", Name: "Alice", Slot: engine.Self, Rank: 2,
				Stats: engine.Stats{ShotsFired: 4, ShotsTaken: 2, ItemsUsed: 1}},
			{Name: "Prince", Slot: engine.Opponent, IsBot: true, Rank: 1, FinalHP: 2, Won: true},
		},
	}
}

func TestMatchRecordFromReport(t *testing.T) {
	rec := matchRecord(botReport())

	assert.Equal(t, room.ModeSolo, rec.Mode)
	require.NotNil(t, rec.BotLevel)
	assert.Equal(t, 2, *rec.BotLevel)
	assert.Empty(t, rec.WinnerID, "a bot winner has no identity")
	require.Len(t, rec.Participants, 2)
	assert.Equal(t, results.ParticipantResult{
		UserID: "u-alice", Rank: 2, ShotsFired: 4, ShotsTaken: 2, ItemsUsed: 1,
	}, rec.Participants[0])
	assert.True(t, rec.Participants[1].IsBot)

	var summary matchSummary
	require.NoError(t, json.Unmarshal(rec.Summary, &summary))
	assert.Equal(t, "QWER", summary.RoomCode)
	assert.Equal(t, engine.TierPrince, summary.Tier)
	assert.Equal(t, engine.Opponent, summary.Winner)
}

func TestResultRouterRecordsUnrankedMatches(t *testing.T) {
	ctx := context.Background()
	store, err := results.Open(ctx, dbconfig.Config{
		Driver:     sqlutil.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "lastround.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))

	router := &resultRouter{store: store}
	require.NoError(t, router.ReportResult(ctx, botReport()))

	pending, err := store.PendingOutbox(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}
