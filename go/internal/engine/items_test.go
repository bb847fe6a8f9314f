package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryItemKindIsRegistered(t *testing.T) {
	for _, kind := range ItemKinds() {
		e, ok := LookupItem(kind)
		require.True(t, ok, kind)
		assert.Equal(t, kind, e.Kind)
		assert.NotNil(t, e.CanUse)
		assert.NotNil(t, e.Apply)
		assert.Greater(t, e.Weight, 0.0)
	}

	rng := rand.New(rand.NewSource(9))
	seen := map[ItemKind]bool{}
	for i := 0; i < 2000; i++ {
		seen[RollItem(rng)] = true
	}
	assert.Len(t, seen, len(ItemKinds()))
}

func TestHealOnlyBelowMax(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Live, Empty)
	m.Combatant(Self).Items = []ItemKind{ItemHeal}

	_, err := m.UseItem(Self, ItemHeal, NoSlot)
	assert.ErrorIs(t, err, ErrItemUnusable)
	assert.Equal(t, []ItemKind{ItemHeal}, m.Combatant(Self).Items)

	m.Combatant(Self).Health = 3
	out, err := m.UseItem(Self, ItemHeal, NoSlot)
	require.NoError(t, err)
	assert.Equal(t, ItemHeal, out.Item)
	assert.Equal(t, 4, m.Combatant(Self).Health)
	assert.Empty(t, m.Combatant(Self).Items)
	assert.Equal(t, 1, m.Combatant(Self).Stats.ItemsUsed)

	_, err = m.UseItem(Self, ItemHeal, NoSlot)
	assert.ErrorIs(t, err, ErrItemNotHeld)
}

func TestDoubleNotStackable(t *testing.T) {
	m := newTestMatch(t, 2)
	m.Combatant(Self).Items = []ItemKind{ItemDouble, ItemDouble}

	_, err := m.UseItem(Self, ItemDouble, NoSlot)
	require.NoError(t, err)
	_, err = m.UseItem(Self, ItemDouble, NoSlot)
	assert.ErrorIs(t, err, ErrItemUnusable)
	assert.Len(t, m.Combatant(Self).Items, 1)
}

func TestUnknownItem(t *testing.T) {
	m := newTestMatch(t, 2)
	_, err := m.UseItem(Self, "grenade", NoSlot)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestPeekRevealsToActorAndClearsOnAdvance(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Live, Empty, Empty)
	m.Combatant(Self).Items = []ItemKind{ItemPeek}

	out, err := m.UseItem(Self, ItemPeek, NoSlot)
	require.NoError(t, err)
	assert.Equal(t, Live, out.Revealed)
	assert.Equal(t, Live, m.Combatant(Self).KnownNextChamber)
	assert.Empty(t, m.Combatant(Opponent).KnownNextChamber)

	_, err = m.Shoot(Self, Opponent)
	require.NoError(t, err)
	assert.Empty(t, m.Combatant(Self).KnownNextChamber)
}

func TestEjectConsumesWithoutDamage(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Live, Empty, Live)
	m.Combatant(Self).Items = []ItemKind{ItemPeek, ItemEject}

	_, err := m.UseItem(Self, ItemPeek, NoSlot)
	require.NoError(t, err)
	out, err := m.UseItem(Self, ItemEject, NoSlot)
	require.NoError(t, err)

	assert.Equal(t, Live, out.Ejected)
	assert.Equal(t, 1, m.Chamber().Cursor())
	assert.Empty(t, m.Combatant(Self).KnownNextChamber)
	assert.Equal(t, 5, m.Combatant(Self).Health)
	assert.Equal(t, 5, m.Combatant(Opponent).Health)
	assert.Equal(t, Self, m.Current)

	events := m.DrainEvents()
	last := events[len(events)-1]
	assert.Equal(t, EventItemUsed, last.Type)
	assert.Equal(t, Live, last.Outcome)
}

func TestEjectLastChamberReloads(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Live)
	m.Combatant(Self).Items = []ItemKind{ItemEject}
	reloads := m.ReloadCount

	_, err := m.UseItem(Self, ItemEject, NoSlot)
	require.NoError(t, err)
	assert.Equal(t, reloads+1, m.ReloadCount)
	assert.False(t, m.Chamber().IsEmpty())
}

func TestHandcuffsPendingTargetInThreeWay(t *testing.T) {
	m := newTestMatch(t, 3)
	m.Combatant(Self).Items = []ItemKind{ItemHandcuffs}

	out, err := m.UseItem(Self, ItemHandcuffs, NoSlot)
	require.NoError(t, err)
	assert.True(t, out.PendingTarget)
	assert.Equal(t, []Slot{Opponent, Opponent2}, out.Candidates)
	assert.Equal(t, []ItemKind{ItemHandcuffs}, m.Combatant(Self).Items, "pending use must not consume the item")
	assert.Empty(t, m.DrainEvents())

	out, err = m.UseItem(Self, ItemHandcuffs, Opponent2)
	require.NoError(t, err)
	assert.False(t, out.PendingTarget)
	assert.Equal(t, Opponent2, out.Target)
	assert.True(t, m.Combatant(Opponent2).SkipNextTurn)
	assert.Empty(t, m.Combatant(Self).Items)
}

func TestHandcuffsTargetRules(t *testing.T) {
	m := newTestMatch(t, 3)
	m.Combatant(Self).Items = []ItemKind{ItemHandcuffs, ItemHandcuffs, ItemHandcuffs}

	_, err := m.UseItem(Self, ItemHandcuffs, Self)
	assert.ErrorIs(t, err, ErrItemUnusable)

	_, err = m.UseItem(Self, ItemHandcuffs, Opponent)
	require.NoError(t, err)
	_, err = m.UseItem(Self, ItemHandcuffs, Opponent)
	assert.ErrorIs(t, err, ErrItemUnusable, "already skipped")

	out, err := m.UseItem(Self, ItemHandcuffs, NoSlot)
	require.NoError(t, err)
	assert.Equal(t, Opponent2, out.Target, "one eligible opponent left, auto-target")

	_, err = m.UseItem(Self, ItemHandcuffs, NoSlot)
	assert.ErrorIs(t, err, ErrItemUnusable)
}

func TestInvertUpdatesOwnPeekAndClearsOthers(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Live, Empty)
	m.Combatant(Self).Items = []ItemKind{ItemPeek, ItemInvert}
	m.Combatant(Opponent).KnownNextChamber = Live

	_, err := m.UseItem(Self, ItemPeek, NoSlot)
	require.NoError(t, err)
	out, err := m.UseItem(Self, ItemInvert, NoSlot)
	require.NoError(t, err)

	assert.Equal(t, &Inversion{From: Live, To: Empty}, out.Inversion)
	assert.Equal(t, Empty, m.Combatant(Self).KnownNextChamber)
	assert.Empty(t, m.Combatant(Opponent).KnownNextChamber)
	next, _ := m.Chamber().Peek()
	assert.Equal(t, Empty, next)
	assert.Equal(t, Counts{Live: 0, Empty: 2, Total: 2}, m.Chamber().RemainingCounts())
}

func TestInvertClearsScanOfFlippedLive(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Live, Empty)
	m.Combatant(Self).Items = []ItemKind{ItemScan, ItemInvert}

	out, err := m.UseItem(Self, ItemScan, NoSlot)
	require.NoError(t, err)
	assert.Equal(t, 1, out.Position)
	assert.Equal(t, 0, m.Combatant(Self).ScanIndex)

	_, err = m.UseItem(Self, ItemInvert, NoSlot)
	require.NoError(t, err)
	assert.Equal(t, -1, m.Combatant(Self).ScanIndex)
}

func TestScanPointsAtRemainingLive(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Empty, Empty, Live, Empty)
	m.Combatant(Self).Items = []ItemKind{ItemScan}
	_, err := m.Shoot(Self, Self)
	require.NoError(t, err)

	out, err := m.UseItem(Self, ItemScan, NoSlot)
	require.NoError(t, err)
	assert.Equal(t, 2, out.Position)
	assert.Equal(t, 2, m.Combatant(Self).ScannedLivePosition(m.Chamber().Cursor()))

	_, err = m.Shoot(Self, Self)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Combatant(Self).ScannedLivePosition(m.Chamber().Cursor()))

	_, err = m.Shoot(Self, Opponent)
	require.NoError(t, err)
	assert.Equal(t, -1, m.Combatant(Self).ScanIndex)
}

func TestScanNeedsALive(t *testing.T) {
	m := newTestMatch(t, 2)
	loadChamber(m, Empty, Empty)
	m.Combatant(Self).Items = []ItemKind{ItemScan}
	_, err := m.UseItem(Self, ItemScan, NoSlot)
	assert.ErrorIs(t, err, ErrItemUnusable)
}
