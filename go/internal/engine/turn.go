package engine

import "fmt"

// CoinFlip picks the starting combatant uniformly among the rotation.
func (m *Match) CoinFlip() (Slot, error) {
	if m.Phase != PhaseCoinFlip {
		return NoSlot, ErrAlreadyStarted
	}
	s := m.Rotation[m.rng.Intn(len(m.Rotation))]
	return s, m.StartWith(s)
}

// StartWith starts the turn loop with a given combatant, for hosts that
// supply their own coin flip.
func (m *Match) StartWith(s Slot) error {
	if m.Phase != PhaseCoinFlip {
		return ErrAlreadyStarted
	}
	idx := m.rotationIndex(s)
	if idx < 0 {
		return ErrInvalidTarget
	}
	m.Phase = PhaseTurn
	m.Current = s
	m.turnIndex = idx
	m.LastResult = fmt.Sprintf("%s goes first", m.Combatant(s).Name)
	ev := newEvent(EventTurn, s)
	ev.Message = m.LastResult
	m.emit(ev)
	return nil
}

func (m *Match) checkTurn(actor Slot) error {
	switch m.Phase {
	case PhaseCoinFlip:
		return ErrNotStarted
	case PhaseGameOver:
		return ErrGameOver
	}
	if actor != m.Current {
		return ErrNotYourTurn
	}
	return nil
}

// Shoot fires the next chamber at target. A self-targeted empty shot keeps
// the turn; everything else passes it.
func (m *Match) Shoot(actor, target Slot) (*Action, error) {
	if err := m.checkTurn(actor); err != nil {
		return nil, err
	}
	t := m.Combatant(target)
	if t == nil || !t.Active {
		return nil, ErrInvalidTarget
	}
	if m.chamber.IsEmpty() {
		m.reload()
	}

	m.Phase = PhaseAnimating
	shooter := m.Combatant(actor)
	outcome, _ := m.advanceChamber()

	doubled := shooter.PendingDoubleDamage
	shooter.PendingDoubleDamage = false
	damage := 0
	if outcome == Live {
		damage = 1
		if doubled {
			damage = 2
		}
	}
	shooter.Stats.ShotsFired++
	shooter.AFKStreak = 0
	t.Stats.ShotsTaken++
	t.Health -= damage
	if t.Health < 0 {
		t.Health = 0
	}

	action := &Action{Type: ActionShot, Actor: actor, Target: target, Outcome: outcome, Damage: damage}
	m.LastAction = action
	m.LastResult = shotNarration(shooter, t, outcome, damage)
	ev := newEvent(EventShot, actor)
	ev.Target = target
	ev.Outcome = outcome
	ev.Damage = damage
	ev.Message = m.LastResult
	m.emit(ev)
	m.Phase = PhaseTurn

	if t.Health == 0 && m.eliminate(target, "health") {
		return action, nil
	}
	if m.chamber.IsEmpty() {
		m.reload()
	}
	if outcome == Empty && target == actor {
		m.announceTurn(nil)
		return action, nil
	}
	m.advanceTurn()
	return action, nil
}

func shotNarration(shooter, target *Combatant, outcome Outcome, damage int) string {
	if shooter.Slot == target.Slot {
		if outcome == Empty {
			return fmt.Sprintf("%s shoots themself: empty, keeps the turn", shooter.Name)
		}
		return fmt.Sprintf("%s shoots themself: live, -%d", shooter.Name, damage)
	}
	if outcome == Empty {
		return fmt.Sprintf("%s shoots %s: empty", shooter.Name, target.Name)
	}
	return fmt.Sprintf("%s shoots %s: live, -%d", shooter.Name, target.Name, damage)
}

// UseItem consumes one held item and applies it. The turn stays with the
// actor. A handcuffs use with an ambiguous target returns a pending outcome
// and leaves the inventory untouched.
func (m *Match) UseItem(actor Slot, kind ItemKind, target Slot) (ItemOutcome, error) {
	if err := m.checkTurn(actor); err != nil {
		return ItemOutcome{}, err
	}
	effect, ok := registry[kind]
	if !ok {
		return ItemOutcome{}, ErrUnknownItem
	}
	c := m.Combatant(actor)
	if !c.HasItem(kind) {
		return ItemOutcome{}, ErrItemNotHeld
	}
	if !effect.CanUse(m, actor, target) {
		return ItemOutcome{}, ErrItemUnusable
	}

	out := effect.Apply(m, actor, target)
	out.Item = kind
	if out.PendingTarget {
		return out, nil
	}
	c.removeItem(kind)
	c.Stats.ItemsUsed++
	c.AFKStreak = 0

	m.LastAction = &Action{Type: ActionItem, Actor: actor, Target: out.Target, Item: kind, Outcome: out.Ejected}
	m.LastResult = out.Message
	ev := newEvent(EventItemUsed, actor)
	ev.Target = out.Target
	ev.Item = kind
	ev.Message = out.Message
	ev.Inversion = out.Inversion
	ev.Position = out.Position
	switch {
	case out.Revealed != "":
		ev.Outcome = out.Revealed
	case out.Ejected != "":
		ev.Outcome = out.Ejected
	}
	m.emit(ev)

	if m.chamber.IsEmpty() {
		m.reload()
	}
	return out, nil
}

// Timeout records an AFK strike for the current actor. Reaching the strike
// limit eliminates them; otherwise the turn passes.
func (m *Match) Timeout(actor Slot) error {
	if err := m.checkTurn(actor); err != nil {
		return err
	}
	c := m.Combatant(actor)
	c.AFKStreak++
	m.LastAction = &Action{Type: ActionTimeout, Actor: actor, Target: NoSlot}
	m.LastResult = fmt.Sprintf("%s ran out of time (%d/%d)", c.Name, c.AFKStreak, m.Rules.AFKStrikeLimit)
	ev := newEvent(EventTimeout, actor)
	ev.Strikes = c.AFKStreak
	ev.Message = m.LastResult
	m.emit(ev)

	if c.AFKStreak >= m.Rules.AFKStrikeLimit && m.eliminate(actor, "afk") {
		return nil
	}
	m.advanceTurn()
	return nil
}

// Eliminate removes a combatant from the rotation, for disconnects and
// forfeits. Eliminating an inactive combatant is a no-op.
func (m *Match) Eliminate(s Slot, reason string) {
	if m.Over() {
		return
	}
	c := m.Combatant(s)
	if c == nil || !c.Active {
		return
	}
	wasCurrent := s == m.Current && m.Phase == PhaseTurn
	if !m.eliminate(s, reason) && wasCurrent {
		m.advanceTurn()
	}
}

// Abandon ends the match with no winner, for rooms whose host walked away
// mid-match.
func (m *Match) Abandon(reason string) {
	if m.Over() {
		return
	}
	m.finish(NoSlot, reason)
}

// eliminate takes s out of the rotation and reports whether that ended the
// match. Passing the turn is left to the caller.
func (m *Match) eliminate(s Slot, reason string) bool {
	c := m.Combatant(s)
	c.Active = false
	c.SkipNextTurn = false
	c.KnownNextChamber = ""
	c.ScanIndex = -1

	idx := m.rotationIndex(s)
	if idx >= 0 {
		m.Rotation = append(m.Rotation[:idx], m.Rotation[idx+1:]...)
		if idx <= m.turnIndex {
			m.turnIndex--
		}
	}
	ev := newEvent(EventEliminated, s)
	ev.Reason = reason
	ev.Message = fmt.Sprintf("%s is out (%s)", c.Name, reason)
	m.emit(ev)

	if len(m.Rotation) <= 1 {
		winner := NoSlot
		if len(m.Rotation) == 1 {
			winner = m.Rotation[0]
		}
		m.finish(winner, reason)
		return true
	}
	return false
}

func (m *Match) finish(winner Slot, reason string) {
	m.Phase = PhaseGameOver
	m.Winner = winner
	ev := newEvent(EventGameOver, NoSlot)
	ev.Winner = winner
	ev.Reason = reason
	if w := m.Combatant(winner); w != nil {
		m.LastResult = fmt.Sprintf("%s wins", w.Name)
	} else {
		m.LastResult = "no winner"
	}
	ev.Message = m.LastResult
	m.emit(ev)
}

// advanceTurn moves to the next rotation member, skipping handcuffed
// combatants. The loop is bounded by the rotation length; if every candidate
// is skipped the first one plays anyway.
func (m *Match) advanceTurn() {
	n := len(m.Rotation)
	if n == 0 {
		m.finish(NoSlot, "no eligible combatant")
		return
	}
	var skipped []Slot
	next := -1
	for i := 1; i <= n; i++ {
		idx := ((m.turnIndex+i)%n + n) % n
		c := m.Combatant(m.Rotation[idx])
		if c.SkipNextTurn {
			c.SkipNextTurn = false
			skipped = append(skipped, c.Slot)
			continue
		}
		next = idx
		break
	}
	if next < 0 {
		next = ((m.turnIndex+1)%n + n) % n
	}
	m.turnIndex = next
	m.Current = m.Rotation[next]
	m.Phase = PhaseTurn
	m.announceTurn(skipped)
}

func (m *Match) announceTurn(skipped []Slot) {
	for _, s := range skipped {
		ev := newEvent(EventSkip, s)
		ev.Message = fmt.Sprintf("%s is handcuffed and skips a turn", m.Combatant(s).Name)
		m.emit(ev)
	}
	m.emit(newEvent(EventTurn, m.Current))
}

// advanceChamber consumes the next outcome and drops hints it invalidated.
func (m *Match) advanceChamber() (Outcome, bool) {
	o, ok := m.chamber.Consume()
	if !ok {
		return "", false
	}
	cursor := m.chamber.Cursor()
	for _, c := range m.Combatants {
		c.KnownNextChamber = ""
		if c.ScanIndex >= 0 && c.ScanIndex < cursor {
			c.ScanIndex = -1
		}
	}
	return o, true
}

// reload draws a new chamber, clears hints and deals items to every active
// combatant.
func (m *Match) reload() {
	prev := m.Phase
	m.Phase = PhaseRoundEnd
	m.chamber = NewSequence(m.Rules.Chamber, m.rng)
	for _, c := range m.Combatants {
		c.KnownNextChamber = ""
		c.ScanIndex = -1
		if !c.Active {
			continue
		}
		for i := 0; i < m.Rules.ItemsPerReload; i++ {
			c.Items = append(c.Items, RollItem(m.rng))
		}
	}
	m.ReloadCount++
	counts := m.chamber.RemainingCounts()
	ev := newEvent(EventReload, NoSlot)
	ev.Counts = &counts
	ev.ReloadCount = m.ReloadCount
	ev.Message = fmt.Sprintf("reload: %d live, %d empty", counts.Live, counts.Empty)
	m.emit(ev)
	m.Phase = prev
}

func (m *Match) rotationIndex(s Slot) int {
	for i, r := range m.Rotation {
		if r == s {
			return i
		}
	}
	return -1
}
