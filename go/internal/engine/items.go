package engine

import (
	"fmt"
	"math/rand"
)

// ItemKind identifies a consumable item.
type ItemKind string

const (
	ItemHeal      ItemKind = "heal"
	ItemDouble    ItemKind = "double"
	ItemPeek      ItemKind = "peek"
	ItemEject     ItemKind = "eject"
	ItemHandcuffs ItemKind = "handcuffs"
	ItemInvert    ItemKind = "invert"
	ItemScan      ItemKind = "scan"
)

// ItemOutcome is what an applied item did. When PendingTarget is set nothing
// was applied and the caller must pick one of Candidates.
type ItemOutcome struct {
	Item          ItemKind   `json:"item"`
	Target        Slot       `json:"target"`
	Message       string     `json:"message"`
	PendingTarget bool       `json:"pendingTarget,omitempty"`
	Candidates    []Slot     `json:"candidates,omitempty"`
	Revealed      Outcome    `json:"revealed,omitempty"`
	Ejected       Outcome    `json:"ejected,omitempty"`
	Inversion     *Inversion `json:"inversion,omitempty"`
	Position      int        `json:"position,omitempty"`
}

// ItemEffect pairs an eligibility predicate with the mutation it guards.
// Apply assumes CanUse returned true.
type ItemEffect struct {
	Kind   ItemKind
	Weight float64
	CanUse func(m *Match, actor, target Slot) bool
	Apply  func(m *Match, actor, target Slot) ItemOutcome
}

var itemOrder = []ItemKind{ItemHeal, ItemDouble, ItemPeek, ItemEject, ItemHandcuffs, ItemInvert, ItemScan}

var registry = map[ItemKind]ItemEffect{
	ItemHeal: {
		Kind:   ItemHeal,
		Weight: 1,
		CanUse: func(m *Match, actor, _ Slot) bool {
			c := m.Combatant(actor)
			return c.Health < c.MaxHealth
		},
		Apply: func(m *Match, actor, _ Slot) ItemOutcome {
			c := m.Combatant(actor)
			c.Health++
			return ItemOutcome{
				Target:  actor,
				Message: fmt.Sprintf("%s heals to %d/%d", c.Name, c.Health, c.MaxHealth),
			}
		},
	},
	ItemDouble: {
		Kind:   ItemDouble,
		Weight: 0.55,
		CanUse: func(m *Match, actor, _ Slot) bool {
			return !m.Combatant(actor).PendingDoubleDamage
		},
		Apply: func(m *Match, actor, _ Slot) ItemOutcome {
			c := m.Combatant(actor)
			c.PendingDoubleDamage = true
			return ItemOutcome{Target: actor, Message: fmt.Sprintf("%s arms double damage", c.Name)}
		},
	},
	ItemPeek: {
		Kind:   ItemPeek,
		Weight: 0.8,
		CanUse: func(m *Match, _, _ Slot) bool { return !m.chamber.IsEmpty() },
		Apply: func(m *Match, actor, _ Slot) ItemOutcome {
			c := m.Combatant(actor)
			o, _ := m.chamber.Peek()
			c.KnownNextChamber = o
			return ItemOutcome{Target: actor, Revealed: o, Message: fmt.Sprintf("%s peeks at the next chamber", c.Name)}
		},
	},
	ItemEject: {
		Kind:   ItemEject,
		Weight: 0.75,
		CanUse: func(m *Match, _, _ Slot) bool { return !m.chamber.IsEmpty() },
		Apply: func(m *Match, actor, _ Slot) ItemOutcome {
			o, _ := m.advanceChamber()
			return ItemOutcome{
				Target:  actor,
				Ejected: o,
				Message: fmt.Sprintf("%s ejects a %s round", m.Combatant(actor).Name, o),
			}
		},
	},
	ItemHandcuffs: {
		Kind:   ItemHandcuffs,
		Weight: 0.7,
		CanUse: func(m *Match, actor, target Slot) bool {
			eligible := m.handcuffTargets(actor)
			if target == NoSlot {
				return len(eligible) > 0
			}
			return containsSlot(eligible, target)
		},
		Apply: func(m *Match, actor, target Slot) ItemOutcome {
			if target == NoSlot {
				eligible := m.handcuffTargets(actor)
				if len(eligible) > 1 {
					return ItemOutcome{Target: NoSlot, PendingTarget: true, Candidates: eligible}
				}
				target = eligible[0]
			}
			t := m.Combatant(target)
			t.SkipNextTurn = true
			return ItemOutcome{
				Target:  target,
				Message: fmt.Sprintf("%s handcuffs %s", m.Combatant(actor).Name, t.Name),
			}
		},
	},
	ItemInvert: {
		Kind:   ItemInvert,
		Weight: 0.6,
		CanUse: func(m *Match, _, _ Slot) bool { return !m.chamber.IsEmpty() },
		Apply: func(m *Match, actor, _ Slot) ItemOutcome {
			idx := m.chamber.Cursor()
			from, to, _ := m.chamber.Invert()
			for _, c := range m.Combatants {
				if c.Slot == actor {
					if c.KnownNextChamber != "" {
						c.KnownNextChamber = to
					}
				} else {
					c.KnownNextChamber = ""
				}
				if c.ScanIndex == idx && to == Empty {
					c.ScanIndex = -1
				}
			}
			return ItemOutcome{
				Target:    actor,
				Inversion: &Inversion{From: from, To: to},
				Message:   fmt.Sprintf("%s inverts the next chamber", m.Combatant(actor).Name),
			}
		},
	},
	ItemScan: {
		Kind:   ItemScan,
		Weight: 0.65,
		CanUse: func(m *Match, _, _ Slot) bool { return len(m.chamber.LivePositions()) > 0 },
		Apply: func(m *Match, actor, _ Slot) ItemOutcome {
			positions := m.chamber.LivePositions()
			idx := positions[m.rng.Intn(len(positions))]
			c := m.Combatant(actor)
			c.ScanIndex = idx
			pos := idx - m.chamber.Cursor() + 1
			return ItemOutcome{
				Target:   actor,
				Position: pos,
				Message:  fmt.Sprintf("%s scans the chamber", c.Name),
			}
		},
	},
}

// LookupItem returns the effect registered for kind.
func LookupItem(kind ItemKind) (ItemEffect, bool) {
	e, ok := registry[kind]
	return e, ok
}

// ItemKinds lists every item in drop-table order.
func ItemKinds() []ItemKind {
	return append([]ItemKind(nil), itemOrder...)
}

// RollItem draws an item from the weighted drop table.
func RollItem(rng *rand.Rand) ItemKind {
	var total float64
	for _, k := range itemOrder {
		total += registry[k].Weight
	}
	r := rng.Float64() * total
	for _, k := range itemOrder {
		r -= registry[k].Weight
		if r < 0 {
			return k
		}
	}
	return itemOrder[len(itemOrder)-1]
}

// CanUseItem reports whether actor could use kind on target right now,
// ignoring whether it is held.
func (m *Match) CanUseItem(actor Slot, kind ItemKind, target Slot) bool {
	e, ok := registry[kind]
	if !ok || m.Combatant(actor) == nil {
		return false
	}
	return e.CanUse(m, actor, target)
}

func (m *Match) handcuffTargets(actor Slot) []Slot {
	var out []Slot
	for _, s := range m.Opponents(actor) {
		if !m.Combatant(s).SkipNextTurn {
			out = append(out, s)
		}
	}
	return out
}

func containsSlot(slots []Slot, s Slot) bool {
	for _, x := range slots {
		if x == s {
			return true
		}
	}
	return false
}
