package bot

import (
	"math/rand"

	"github.com/mcdev12/lastround/go/internal/engine"
)

// DecisionKind is either a shot or an item use.
type DecisionKind string

const (
	DecideShoot DecisionKind = "shoot"
	DecideItem  DecisionKind = "item"
)

// Decision is what the bot wants to do on its turn.
type Decision struct {
	Kind   DecisionKind
	Target engine.Slot
	Item   engine.ItemKind
}

// View is the public part of a match a bot may look at: everyone's seats,
// health and items, never the chamber.
type View struct {
	Self       engine.Slot
	Combatants []engine.Combatant
}

// ViewOf builds the bot's view of a snapshot.
func ViewOf(s engine.Snapshot, self engine.Slot) View {
	v := View{Self: self}
	for _, c := range s.Combatants {
		c.Items = append([]engine.ItemKind(nil), c.Items...)
		v.Combatants = append(v.Combatants, c)
	}
	return v
}

func (v View) self() engine.Combatant {
	for _, c := range v.Combatants {
		if c.Slot == v.Self {
			return c
		}
	}
	return engine.Combatant{Slot: v.Self}
}

func (v View) opponents() []engine.Combatant {
	var out []engine.Combatant
	for _, c := range v.Combatants {
		if c.Slot != v.Self && c.Active {
			out = append(out, c)
		}
	}
	return out
}

func (v View) handcuffTargets() []engine.Combatant {
	var out []engine.Combatant
	for _, c := range v.opponents() {
		if !c.SkipNextTurn {
			out = append(out, c)
		}
	}
	return out
}

type turn struct {
	view    View
	me      engine.Combatant
	mem     *Memory
	profile Profile
	rng     *rand.Rand
	pLive   float64
}

// Decide picks the bot's next move: heal when hurt, then tier item
// heuristics, then a shot aimed by believed probability.
func Decide(view View, mem *Memory, p Profile, rng *rand.Rand) Decision {
	if mem.Known() != "" && p.ForgetPeekChance > 0 && rng.Float64() < p.ForgetPeekChance {
		mem.Forget()
	}
	t := newTurn(view, mem, p, rng)

	if t.me.Health <= p.HealThreshold && t.usable(engine.ItemHeal) {
		return item(engine.ItemHeal, view.Self)
	}

	var d Decision
	var ok bool
	switch p.Strategy {
	case StrategyImmediate:
		d, ok = t.immediate()
	case StrategyImperial:
		d, ok = t.imperial()
	default:
		d, ok = t.weighted()
	}
	if ok {
		return d
	}
	return t.shoot()
}

// Shot skips the item heuristics, for when the caller caps item use.
func Shot(view View, mem *Memory, p Profile, rng *rand.Rand) Decision {
	return newTurn(view, mem, p, rng).shoot()
}

func newTurn(view View, mem *Memory, p Profile, rng *rand.Rand) *turn {
	t := &turn{view: view, me: view.self(), mem: mem, profile: p, rng: rng, pLive: 0.5}
	if p.UsesProbability {
		t.pLive = mem.PLive()
	}
	return t
}

// immediate spends a random usable item half of the time.
func (t *turn) immediate() (Decision, bool) {
	var usable []engine.ItemKind
	for _, k := range t.me.Items {
		if t.usable(k) {
			usable = append(usable, k)
		}
	}
	if len(usable) == 0 || t.rng.Intn(2) == 0 {
		return Decision{}, false
	}
	k := usable[t.rng.Intn(len(usable))]
	return item(k, t.itemTarget(k)), true
}

// weighted is the basic/advanced heuristic: each item fires on its own chance
// when the belief state makes it useful.
func (t *turn) weighted() (Decision, bool) {
	p := t.profile
	known := t.mem.Known()

	if t.usable(engine.ItemHandcuffs) && (p.HandcuffPriority || t.roll(p.HandcuffChance)) {
		return item(engine.ItemHandcuffs, t.itemTarget(engine.ItemHandcuffs)), true
	}
	if known == engine.Empty && t.usable(engine.ItemInvert) && t.roll(p.InvertChance) {
		return item(engine.ItemInvert, t.view.Self), true
	}
	if p.DoubleThreshold > 0 && t.pLive >= p.DoubleThreshold && t.usable(engine.ItemDouble) {
		return item(engine.ItemDouble, t.view.Self), true
	}
	if known == "" && t.usable(engine.ItemPeek) && t.roll(p.PeekChance) {
		return item(engine.ItemPeek, t.view.Self), true
	}
	if !t.mem.HasScan() && t.mem.Counts().Live > 0 && t.usable(engine.ItemScan) && t.roll(p.ScanChance) {
		return item(engine.ItemScan, t.view.Self), true
	}
	if known == "" && t.uncertain() && t.usable(engine.ItemEject) && t.roll(p.EjectChance) {
		return item(engine.ItemEject, t.view.Self), true
	}
	return Decision{}, false
}

// imperial is deterministic: gather information first, then turn it into
// damage.
func (t *turn) imperial() (Decision, bool) {
	known := t.mem.Known()
	switch {
	case t.usable(engine.ItemHandcuffs):
		return item(engine.ItemHandcuffs, t.itemTarget(engine.ItemHandcuffs)), true
	case known == "" && t.usable(engine.ItemPeek):
		return item(engine.ItemPeek, t.view.Self), true
	case known == "" && !t.mem.HasScan() && t.mem.Counts().Live > 0 && t.usable(engine.ItemScan):
		return item(engine.ItemScan, t.view.Self), true
	case known == engine.Empty && t.usable(engine.ItemInvert):
		return item(engine.ItemInvert, t.view.Self), true
	case t.pLive >= t.profile.DoubleThreshold && t.usable(engine.ItemDouble):
		return item(engine.ItemDouble, t.view.Self), true
	case known == "" && t.uncertain() && t.usable(engine.ItemEject):
		return item(engine.ItemEject, t.view.Self), true
	}
	return Decision{}, false
}

func (t *turn) shoot() Decision {
	opponents := t.view.opponents()
	if len(opponents) == 0 {
		return Decision{Kind: DecideShoot, Target: t.view.Self}
	}
	if t.profile.RandomTarget {
		if t.rng.Intn(len(opponents)+1) == 0 {
			return Decision{Kind: DecideShoot, Target: t.view.Self}
		}
		return Decision{Kind: DecideShoot, Target: opponents[t.rng.Intn(len(opponents))].Slot}
	}
	switch {
	case t.pLive < 0.5:
		return Decision{Kind: DecideShoot, Target: t.view.Self}
	case t.pLive == 0.5 && t.rng.Intn(2) == 0:
		return Decision{Kind: DecideShoot, Target: t.view.Self}
	}
	return Decision{Kind: DecideShoot, Target: t.weakest(opponents).Slot}
}

// weakest returns the lowest-health opponent, ties broken at random.
func (t *turn) weakest(cs []engine.Combatant) engine.Combatant {
	var best []engine.Combatant
	for _, c := range cs {
		switch {
		case len(best) == 0 || c.Health < best[0].Health:
			best = []engine.Combatant{c}
		case c.Health == best[0].Health:
			best = append(best, c)
		}
	}
	return best[t.rng.Intn(len(best))]
}

func (t *turn) itemTarget(k engine.ItemKind) engine.Slot {
	if k != engine.ItemHandcuffs {
		return t.view.Self
	}
	targets := t.view.handcuffTargets()
	if len(targets) == 0 {
		return engine.NoSlot
	}
	if t.profile.RandomTarget {
		return targets[t.rng.Intn(len(targets))].Slot
	}
	return t.strongest(targets).Slot
}

// strongest picks who to handcuff: the healthiest threat.
func (t *turn) strongest(cs []engine.Combatant) engine.Combatant {
	best := cs[0]
	for _, c := range cs[1:] {
		if c.Health > best.Health {
			best = c
		}
	}
	return best
}

// usable mirrors the engine's eligibility checks using only what the bot
// believes about the chamber.
func (t *turn) usable(k engine.ItemKind) bool {
	if !t.me.HasItem(k) {
		return false
	}
	remaining := t.mem.Counts().Total
	switch k {
	case engine.ItemHeal:
		return t.me.Health < t.me.MaxHealth
	case engine.ItemDouble:
		return !t.me.PendingDoubleDamage
	case engine.ItemPeek, engine.ItemEject, engine.ItemInvert:
		return remaining > 0
	case engine.ItemScan:
		return t.mem.Counts().Live > 0
	case engine.ItemHandcuffs:
		return len(t.view.handcuffTargets()) > 0
	}
	return false
}

func (t *turn) uncertain() bool {
	return t.pLive > 0.35 && t.pLive < 0.65
}

func (t *turn) roll(chance float64) bool {
	return chance > 0 && t.rng.Float64() < chance
}

func item(k engine.ItemKind, target engine.Slot) Decision {
	return Decision{Kind: DecideItem, Item: k, Target: target}
}
