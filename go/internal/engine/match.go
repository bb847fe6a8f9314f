package engine

import (
	"fmt"
	"math/rand"
)

// Slot is a combatant seat in a match.
type Slot int

const (
	NoSlot    Slot = -1
	Self      Slot = 0
	Opponent  Slot = 1
	Opponent2 Slot = 2
)

// MaxSeats is the largest supported match.
const MaxSeats = 3

var slotNames = map[Slot]string{
	NoSlot:    "none",
	Self:      "self",
	Opponent:  "opponent",
	Opponent2: "opponent2",
}

func (s Slot) String() string {
	if name, ok := slotNames[s]; ok {
		return name
	}
	return fmt.Sprintf("slot(%d)", int(s))
}

func (s Slot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Slot) UnmarshalText(b []byte) error {
	for slot, name := range slotNames {
		if name == string(b) {
			*s = slot
			return nil
		}
	}
	return fmt.Errorf("unknown slot %q", string(b))
}

// Phase of a match. Animating and RoundEnd are transient and only observable
// while a shot or reload is resolving.
type Phase string

const (
	PhaseCoinFlip  Phase = "coin_flip"
	PhaseTurn      Phase = "turn"
	PhaseAnimating Phase = "animating"
	PhaseRoundEnd  Phase = "round_end"
	PhaseGameOver  Phase = "game_over"
)

// CombatantKind says who drives a seat.
type CombatantKind string

const (
	KindLocal  CombatantKind = "local"
	KindRemote CombatantKind = "remote"
	KindBot    CombatantKind = "bot"
)

// Stats are per-combatant counters reported with match results.
type Stats struct {
	ShotsFired int `json:"shotsFired"`
	ShotsTaken int `json:"shotsTaken"`
	ItemsUsed  int `json:"itemsUsed"`
}

// Combatant is one seat's state. Active is false once the seat is eliminated
// or has left; the combatant stays in the match for reporting.
type Combatant struct {
	Slot                Slot          `json:"slot"`
	Kind                CombatantKind `json:"kind"`
	Name                string        `json:"name"`
	Identity            string        `json:"identity,omitempty"`
	Health              int           `json:"health"`
	MaxHealth           int           `json:"maxHealth"`
	Items               []ItemKind    `json:"items"`
	PendingDoubleDamage bool          `json:"pendingDoubleDamage"`
	KnownNextChamber    Outcome       `json:"knownNextChamber,omitempty"`
	SkipNextTurn        bool          `json:"skipNextTurn"`
	// ScanIndex is the absolute chamber index revealed by a scan, or -1.
	ScanIndex int   `json:"scanIndex"`
	Active    bool  `json:"active"`
	AFKStreak int   `json:"afkStreak"`
	Stats     Stats `json:"stats"`
}

// HasItem reports whether the combatant holds at least one of kind.
func (c *Combatant) HasItem(kind ItemKind) bool {
	for _, k := range c.Items {
		if k == kind {
			return true
		}
	}
	return false
}

func (c *Combatant) removeItem(kind ItemKind) bool {
	for i, k := range c.Items {
		if k == kind {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return true
		}
	}
	return false
}

func (c Combatant) clone() Combatant {
	c.Items = append([]ItemKind(nil), c.Items...)
	return c
}

// ScannedLivePosition returns the 1-indexed position of the scanned live
// outcome among the remaining chambers, or 0 when no scan hint is held.
func (c *Combatant) ScannedLivePosition(cursor int) int {
	if c.ScanIndex < cursor {
		return 0
	}
	return c.ScanIndex - cursor + 1
}

// SeatConfig describes one combatant at match creation.
type SeatConfig struct {
	Kind     CombatantKind
	Name     string
	Identity string
}

// Config creates a match.
type Config struct {
	ID    string
	Tier  Tier
	Rules Rules
	Seats []SeatConfig
	Rand  *rand.Rand
}

// Match is the turn state machine. It is not safe for concurrent use; the
// owning room serializes access.
type Match struct {
	ID          string
	Tier        Tier
	Rules       Rules
	Phase       Phase
	Current     Slot
	Winner      Slot
	Combatants  []*Combatant
	Rotation    []Slot
	ReloadCount int
	LastAction  *Action
	LastResult  string

	// turnIndex is the position of Current in Rotation. After the current
	// actor is removed it points just before the next candidate.
	turnIndex int
	chamber   *Sequence
	rng       *rand.Rand
	events    []Event
}

// New seats the combatants, deals the first chamber and one item each.
func New(cfg Config) (*Match, error) {
	if len(cfg.Seats) < 2 || len(cfg.Seats) > MaxSeats {
		return nil, ErrInvalidSeatCount
	}
	if err := cfg.Rules.Validate(); err != nil {
		return nil, err
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	tier := cfg.Tier
	if tier == "" {
		tier = TierPvP
	}

	m := &Match{
		ID:        cfg.ID,
		Tier:      tier,
		Rules:     cfg.Rules,
		Phase:     PhaseCoinFlip,
		Current:   NoSlot,
		Winner:    NoSlot,
		turnIndex: -1,
		rng:       rng,
	}
	for i, seat := range cfg.Seats {
		slot := Slot(i)
		name := seat.Name
		if name == "" {
			name = slot.String()
		}
		m.Combatants = append(m.Combatants, &Combatant{
			Slot:      slot,
			Kind:      seat.Kind,
			Name:      name,
			Identity:  seat.Identity,
			Health:    cfg.Rules.MaxHealth,
			MaxHealth: cfg.Rules.MaxHealth,
			Items:     []ItemKind{},
			ScanIndex: -1,
			Active:    true,
		})
		m.Rotation = append(m.Rotation, slot)
	}
	m.reload()
	return m, nil
}

// Combatant returns the combatant in slot, or nil.
func (m *Match) Combatant(s Slot) *Combatant {
	if s < 0 || int(s) >= len(m.Combatants) {
		return nil
	}
	return m.Combatants[s]
}

// Chamber exposes the live sequence for item effects and tests.
func (m *Match) Chamber() *Sequence { return m.chamber }

// Over reports whether the match has ended.
func (m *Match) Over() bool { return m.Phase == PhaseGameOver }

// ActiveCount returns how many combatants are still in the rotation.
func (m *Match) ActiveCount() int { return len(m.Rotation) }

// Opponents returns the active combatants other than actor, in slot order.
func (m *Match) Opponents(actor Slot) []Slot {
	var out []Slot
	for _, c := range m.Combatants {
		if c.Slot != actor && c.Active {
			out = append(out, c.Slot)
		}
	}
	return out
}

// DrainEvents returns the events emitted since the last drain.
func (m *Match) DrainEvents() []Event {
	out := m.events
	m.events = nil
	return out
}

func (m *Match) emit(ev Event) {
	m.events = append(m.events, ev)
}
