package engine

import (
	"fmt"
	"math/rand"
)

// Snapshot is the full replicated state of a match.
type Snapshot struct {
	MatchID     string       `json:"matchId"`
	Tier        Tier         `json:"tier"`
	Rules       Rules        `json:"rules"`
	Phase       Phase        `json:"phase"`
	Current     Slot         `json:"current"`
	Winner      Slot         `json:"winner"`
	Rotation    []Slot       `json:"rotation"`
	Combatants  []Combatant  `json:"combatants"`
	Chamber     ChamberState `json:"chamber"`
	ReloadCount int          `json:"reloadCount"`
	LastAction  *Action      `json:"lastAction,omitempty"`
	LastResult  string       `json:"lastResult,omitempty"`
}

// Snapshot copies the match state.
func (m *Match) Snapshot() Snapshot {
	s := Snapshot{
		MatchID:     m.ID,
		Tier:        m.Tier,
		Rules:       m.Rules,
		Phase:       m.Phase,
		Current:     m.Current,
		Winner:      m.Winner,
		Rotation:    append([]Slot(nil), m.Rotation...),
		Chamber:     m.chamber.State(),
		ReloadCount: m.ReloadCount,
		LastResult:  m.LastResult,
	}
	for _, c := range m.Combatants {
		s.Combatants = append(s.Combatants, c.clone())
	}
	if m.LastAction != nil {
		a := *m.LastAction
		s.LastAction = &a
	}
	return s
}

// Combatant returns a pointer into the snapshot's combatant list, or nil.
func (s *Snapshot) Combatant(slot Slot) *Combatant {
	for i := range s.Combatants {
		if s.Combatants[i].Slot == slot {
			return &s.Combatants[i]
		}
	}
	return nil
}

// Clone deep-copies the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Rotation = append([]Slot(nil), s.Rotation...)
	out.Chamber = ChamberState{Chambers: append([]Outcome(nil), s.Chamber.Chambers...), Cursor: s.Chamber.Cursor}
	out.Combatants = make([]Combatant, len(s.Combatants))
	for i, c := range s.Combatants {
		out.Combatants[i] = c.clone()
	}
	if s.LastAction != nil {
		a := *s.LastAction
		out.LastAction = &a
	}
	return out
}

// Validate checks the structural invariants a peer-supplied snapshot must hold.
func (s Snapshot) Validate() error {
	if len(s.Combatants) < 2 || len(s.Combatants) > MaxSeats {
		return fmt.Errorf("%w: %d combatants", ErrBadSnapshot, len(s.Combatants))
	}
	if s.Chamber.Cursor < 0 || s.Chamber.Cursor > len(s.Chamber.Chambers) {
		return fmt.Errorf("%w: cursor %d of %d", ErrBadSnapshot, s.Chamber.Cursor, len(s.Chamber.Chambers))
	}
	for i, c := range s.Combatants {
		if c.Slot != Slot(i) {
			return fmt.Errorf("%w: combatant %d has slot %s", ErrBadSnapshot, i, c.Slot)
		}
		if c.Health < 0 || c.Health > c.MaxHealth {
			return fmt.Errorf("%w: %s health %d/%d", ErrBadSnapshot, c.Slot, c.Health, c.MaxHealth)
		}
	}
	for _, r := range s.Rotation {
		if int(r) < 0 || int(r) >= len(s.Combatants) || !s.Combatants[r].Active {
			return fmt.Errorf("%w: rotation member %s", ErrBadSnapshot, r)
		}
	}
	switch s.Phase {
	case PhaseCoinFlip, PhaseGameOver:
	case PhaseTurn, PhaseAnimating, PhaseRoundEnd:
		if !containsSlot(s.Rotation, s.Current) {
			return fmt.Errorf("%w: current %s not in rotation", ErrBadSnapshot, s.Current)
		}
	default:
		return fmt.Errorf("%w: phase %q", ErrBadSnapshot, s.Phase)
	}
	return nil
}

// VisibleTo hides what other combatants privately learned from peeks and
// scans. The chamber itself is left in place.
func (s Snapshot) VisibleTo(viewer Slot) Snapshot {
	out := s.Clone()
	for i := range out.Combatants {
		if out.Combatants[i].Slot == viewer {
			continue
		}
		out.Combatants[i].KnownNextChamber = ""
		out.Combatants[i].ScanIndex = -1
	}
	return out
}

// Restore rebuilds a match from a snapshot computed elsewhere, so moves can
// be checked against it with the engine's own rules.
func Restore(s Snapshot, rng *rand.Rand) (*Match, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	seq, err := SequenceFromState(s.Chamber)
	if err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	s = s.Clone()
	m := &Match{
		ID:          s.MatchID,
		Tier:        s.Tier,
		Rules:       s.Rules,
		Phase:       s.Phase,
		Current:     s.Current,
		Winner:      s.Winner,
		Rotation:    s.Rotation,
		ReloadCount: s.ReloadCount,
		LastAction:  s.LastAction,
		LastResult:  s.LastResult,
		turnIndex:   -1,
		chamber:     seq,
		rng:         rng,
	}
	if m.Phase == PhaseAnimating || m.Phase == PhaseRoundEnd {
		m.Phase = PhaseTurn
	}
	for i := range s.Combatants {
		c := s.Combatants[i]
		m.Combatants = append(m.Combatants, &c)
	}
	m.turnIndex = m.rotationIndex(m.Current)
	return m, nil
}
