package bot

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/lastround/go/internal/engine"
)

func twoSeatView(botItems ...engine.ItemKind) View {
	return View{
		Self: engine.Opponent,
		Combatants: []engine.Combatant{
			{Slot: engine.Self, Health: 5, MaxHealth: 5, Active: true, ScanIndex: -1},
			{Slot: engine.Opponent, Health: 5, MaxHealth: 5, Active: true, ScanIndex: -1, Items: botItems},
		},
	}
}

func mustProfile(t *testing.T, tier engine.Tier) Profile {
	t.Helper()
	p, ok := ProfileFor(tier)
	require.True(t, ok)
	return p
}

func memoryWith(live, empty int) *Memory {
	m := NewMemory(engine.Opponent)
	m.Observe(reloadEvent(live, empty))
	return m
}

func TestProfiles(t *testing.T) {
	for level := 1; level <= 4; level++ {
		p, ok := ProfileForLevel(level)
		require.True(t, ok)
		assert.Equal(t, level, p.Level)
	}
	_, ok := ProfileFor(engine.TierPvP)
	assert.False(t, ok)
	assert.False(t, mustProfile(t, engine.TierPeasant).UsesProbability)
}

func TestShootsSelfWhenBelievedEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	d := Decide(twoSeatView(), memoryWith(1, 5), mustProfile(t, engine.TierTsar), rng)
	assert.Equal(t, Decision{Kind: DecideShoot, Target: engine.Opponent}, d)

	d = Decide(twoSeatView(), memoryWith(5, 1), mustProfile(t, engine.TierTsar), rng)
	assert.Equal(t, Decision{Kind: DecideShoot, Target: engine.Self}, d)
}

func TestTieBrokenRandomly(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	seen := map[engine.Slot]int{}
	for i := 0; i < 200; i++ {
		d := Decide(twoSeatView(), memoryWith(3, 3), mustProfile(t, engine.TierPrince), rng)
		require.Equal(t, DecideShoot, d.Kind)
		seen[d.Target]++
	}
	assert.Greater(t, seen[engine.Self], 0)
	assert.Greater(t, seen[engine.Opponent], 0)
}

func TestHealsBelowThreshold(t *testing.T) {
	v := twoSeatView(engine.ItemHeal)
	v.Combatants[1].Health = 2
	d := Decide(v, memoryWith(3, 3), mustProfile(t, engine.TierPrince), rand.New(rand.NewSource(1)))
	assert.Equal(t, Decision{Kind: DecideItem, Item: engine.ItemHeal, Target: engine.Opponent}, d)

	v.Combatants[1].Health = 5
	d = Decide(v, memoryWith(1, 5), mustProfile(t, engine.TierPrince), rand.New(rand.NewSource(1)))
	assert.Equal(t, DecideShoot, d.Kind, "heal is unusable at full health")
}

func TestImperialInvertsKnownEmpty(t *testing.T) {
	mem := memoryWith(2, 4)
	peek := itemEvent(engine.Opponent, engine.ItemPeek)
	peek.Outcome = engine.Empty
	mem.Observe(peek)

	v := twoSeatView(engine.ItemInvert, engine.ItemDouble)
	p := mustProfile(t, engine.TierEmperor)
	rng := rand.New(rand.NewSource(1))

	d := Decide(v, mem, p, rng)
	assert.Equal(t, engine.ItemInvert, d.Item)

	inv := itemEvent(engine.Opponent, engine.ItemInvert)
	inv.Inversion = &engine.Inversion{From: engine.Empty, To: engine.Live}
	mem.Observe(inv)
	v.Combatants[1].Items = []engine.ItemKind{engine.ItemDouble}

	d = Decide(v, mem, p, rng)
	assert.Equal(t, engine.ItemDouble, d.Item)

	v.Combatants[1].Items = nil
	v.Combatants[1].PendingDoubleDamage = true
	d = Decide(v, mem, p, rng)
	assert.Equal(t, Decision{Kind: DecideShoot, Target: engine.Self}, d)
}

func TestImperialPeeksBeforeShooting(t *testing.T) {
	d := Decide(twoSeatView(engine.ItemPeek), memoryWith(3, 3), mustProfile(t, engine.TierEmperor), rand.New(rand.NewSource(1)))
	assert.Equal(t, Decision{Kind: DecideItem, Item: engine.ItemPeek, Target: engine.Opponent}, d)
}

func TestHandcuffsPickHealthiestEligible(t *testing.T) {
	v := View{
		Self: engine.Opponent,
		Combatants: []engine.Combatant{
			{Slot: engine.Self, Health: 2, MaxHealth: 5, Active: true},
			{Slot: engine.Opponent, Health: 5, MaxHealth: 5, Active: true, Items: []engine.ItemKind{engine.ItemHandcuffs}},
			{Slot: engine.Opponent2, Health: 4, MaxHealth: 5, Active: true},
		},
	}
	d := Decide(v, memoryWith(3, 3), mustProfile(t, engine.TierTsar), rand.New(rand.NewSource(1)))
	assert.Equal(t, Decision{Kind: DecideItem, Item: engine.ItemHandcuffs, Target: engine.Opponent2}, d)

	v.Combatants[2].SkipNextTurn = true
	d = Decide(v, memoryWith(3, 3), mustProfile(t, engine.TierTsar), rand.New(rand.NewSource(1)))
	assert.Equal(t, engine.Self, d.Target)
}

func TestThreeWayShootsWeakestOpponent(t *testing.T) {
	v := View{
		Self: engine.Opponent,
		Combatants: []engine.Combatant{
			{Slot: engine.Self, Health: 4, MaxHealth: 5, Active: true},
			{Slot: engine.Opponent, Health: 5, MaxHealth: 5, Active: true},
			{Slot: engine.Opponent2, Health: 1, MaxHealth: 5, Active: true},
		},
	}
	d := Decide(v, memoryWith(5, 1), mustProfile(t, engine.TierTsar), rand.New(rand.NewSource(1)))
	assert.Equal(t, Decision{Kind: DecideShoot, Target: engine.Opponent2}, d)

	v.Combatants[2].Active = false
	d = Decide(v, memoryWith(5, 1), mustProfile(t, engine.TierTsar), rand.New(rand.NewSource(1)))
	assert.Equal(t, engine.Self, d.Target)
}

func TestPeasantIgnoresProbability(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	seen := map[engine.Slot]int{}
	for i := 0; i < 200; i++ {
		d := Decide(twoSeatView(), memoryWith(0, 6), mustProfile(t, engine.TierPeasant), rng)
		seen[d.Target]++
	}
	assert.Greater(t, seen[engine.Self], 0)
	assert.Greater(t, seen[engine.Opponent], 0, "a probability-aware bot would never shoot the opponent here")
}

func TestDecisionsAreLegalAgainstEngine(t *testing.T) {
	for _, tier := range []engine.Tier{engine.TierPeasant, engine.TierPrince, engine.TierTsar, engine.TierEmperor} {
		p := mustProfile(t, tier)
		rng := rand.New(rand.NewSource(int64(p.Level)))
		m, err := engine.New(engine.Config{
			Tier:  tier,
			Rules: engine.RulesForTier(tier),
			Seats: []engine.SeatConfig{{Kind: engine.KindBot}, {Kind: engine.KindBot}},
			Rand:  rng,
		})
		require.NoError(t, err)
		_, err = m.CoinFlip()
		require.NoError(t, err)

		mems := []*Memory{NewMemory(engine.Self), NewMemory(engine.Opponent)}
		for step := 0; step < 500 && !m.Over(); step++ {
			for _, ev := range m.DrainEvents() {
				for _, mem := range mems {
					mem.Observe(ev.VisibleTo(mem.self))
				}
			}
			actor := m.Current
			d := Decide(ViewOf(m.Snapshot(), actor), mems[actor], p, rng)
			switch d.Kind {
			case DecideShoot:
				_, err = m.Shoot(actor, d.Target)
			case DecideItem:
				var out engine.ItemOutcome
				out, err = m.UseItem(actor, d.Item, d.Target)
				assert.False(t, out.PendingTarget)
			}
			require.NoError(t, err, "tier %s step %d decision %+v", tier, step, d)
		}
		assert.True(t, m.Over(), "tier %s match should finish", tier)
	}
}

func TestShotIgnoresItems(t *testing.T) {
	p := mustProfile(t, engine.TierEmperor)
	view := twoSeatView(engine.ItemPeek, engine.ItemHandcuffs)
	d := Shot(view, memoryWith(3, 0), p, rand.New(rand.NewSource(1)))
	assert.Equal(t, Decision{Kind: DecideShoot, Target: engine.Self}, d)
}
