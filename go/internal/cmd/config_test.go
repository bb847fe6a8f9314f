package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/mcdev12/lastround/go/internal/engine"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("TURN_TIMEOUT", "5s")
	t.Setenv("ACTION_RATE", "2.5")
	t.Setenv("RANKED_TICK", "250ms")
	t.Setenv("OUTBOX_CLAIM_LEASE", "45s")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)

	rc := cfg.roomConfig()
	assert.Equal(t, 5*time.Second, rc.TurnTimeout)
	assert.Equal(t, rate.Limit(2.5), rc.ActionRate)
	assert.Equal(t, 250*time.Millisecond, cfg.rankedConfig().TickInterval)
	assert.Equal(t, 45*time.Second, cfg.relayConfig().ClaimLease)
}

func TestLoadConfigRejectsBadDuration(t *testing.T) {
	t.Setenv("TURN_TIMEOUT", "soon")
	_, err := loadConfig()
	assert.Error(t, err)
}

func TestParseRulesOverridesTier(t *testing.T) {
	book, err := parseRules([]byte(`
tiers:
  peasant:
    max_health: 4
    afk_strike_limit: 2
    items_per_reload: 0
    chamber:
      min_length: 4
      max_length: 5
      live_counts:
        4: [1, 2]
        5: [2]
`))
	require.NoError(t, err)

	peasant := book.For(engine.TierPeasant)
	assert.Equal(t, 4, peasant.MaxHealth)
	assert.Equal(t, 0, peasant.ItemsPerReload)
	assert.Equal(t, []int{1, 2}, peasant.Chamber.LiveCounts[4])
	assert.Equal(t, engine.DefaultRules(), book.For(engine.TierPvP))
}

func TestParseRulesRejectsInvalid(t *testing.T) {
	_, err := parseRules([]byte(`
tiers:
  duke:
    max_health: 3
`))
	assert.ErrorIs(t, err, engine.ErrInvalidRules)

	_, err = parseRules([]byte(`
tiers:
  pvp:
    max_health: 3
    afk_strike_limit: 2
    chamber:
      min_length: 4
      max_length: 4
      live_counts:
        4: [4]
`))
	assert.ErrorIs(t, err, engine.ErrInvalidRules)

	_, err = parseRules([]byte("tiers: [oops"))
	assert.Error(t, err)
}

func TestLoadRulesWithoutFile(t *testing.T) {
	book, err := loadRules("")
	require.NoError(t, err)
	assert.Equal(t, engine.RulesForTier(engine.TierTsar), book.For(engine.TierTsar))
}
