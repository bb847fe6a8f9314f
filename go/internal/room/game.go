package room

import (
	"context"
	"errors"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lastround/go/internal/bot"
	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/events"
	"github.com/mcdev12/lastround/go/internal/replica"
)

// StartGame starts the match of the host's room.
func (m *Manager) StartGame(peer string, req events.StartPayload) error {
	r, err := m.lockRoomOf(peer)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.host != peer {
		return ErrNotHost
	}
	return m.startLocked(r, req)
}

func (m *Manager) startLocked(r *Room, req events.StartPayload) error {
	switch {
	case r.ended:
		return ErrGameEnded
	case r.started:
		return ErrGameStarted
	case len(r.seats) < 2:
		return ErrNotEnoughPlayers
	}

	seed := m.seed()
	if req.Seed != nil {
		seed = *req.Seed
	}
	rng := rand.New(rand.NewSource(seed))
	seats := make([]engine.SeatConfig, len(r.seats))
	for i, s := range r.seats {
		kind := engine.KindRemote
		if s.IsBot {
			kind = engine.KindBot
		}
		seats[i] = engine.SeatConfig{Kind: kind, Name: s.Name, Identity: s.Identity}
	}
	matchID := r.matchID
	if matchID == "" {
		matchID = r.Code
	}

	res, err := r.authority.Start(StartInput{
		MatchID:  matchID,
		Tier:     r.tier,
		Rules:    m.rules.For(r.tier),
		Seats:    seats,
		Rand:     rng,
		Snapshot: req.State,
	})
	if err != nil {
		return err
	}
	r.started = true
	if r.mode == "" {
		r.mode = ModeDuel
		if len(r.seats) > 2 {
			r.mode = ModeFFA
		}
	}
	if r.bot != nil {
		r.botRand = rand.New(rand.NewSource(rng.Int63()))
		for _, s := range r.seats {
			if s.IsBot {
				r.memories[s.Slot] = bot.NewMemory(s.Slot)
			}
		}
	}

	log.Info().
		Str("room_code", r.Code).
		Str("match_id", matchID).
		Str("authority", r.authority.Kind()).
		Int("seats", len(r.seats)).
		Msg("game started")
	m.resolveLocked(r, engine.NoSlot, "", res)
	return nil
}

// SubmitAction applies a gameplay intent from peer. In host-authority rooms a
// guest's intent is checked for turn ownership and forwarded to the host.
func (m *Manager) SubmitAction(peer string, action events.ActionPayload) error {
	if !m.allow(peer) {
		return ErrRateLimited
	}
	intent := Intent{Item: action.ItemID, Target: engine.NoSlot, Events: action.Events, Relayed: true}
	if action.Target != nil {
		intent.Target = *action.Target
	}
	switch t := IntentType(action.Intent); t {
	case IntentShoot, IntentUseItem, IntentTimeout:
		intent.Type = t
	default:
		return ErrInvalidIntent
	}

	r, err := m.lockRoomOf(peer)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	switch {
	case !r.started:
		return engine.ErrNotStarted
	case r.ended:
		return ErrGameEnded
	}
	seat := r.seatOf(peer)
	actor, actorPeer := seat.Slot, peer
	if intent.Type == IntentTimeout {
		// The host reports the expiry of whoever holds the turn.
		actor = r.authority.CurrentActor()
		actorPeer = ""
		if s := r.seatAt(actor); s != nil {
			actorPeer = s.PeerID
		}
	}
	res, err := r.authority.ApplyIntent(seat.Slot, intent)
	if err != nil {
		return err
	}
	if res.Forward {
		m.notifier.SendToPeer(r.host, events.GameIntent, events.IntentPayload{
			PlayerID: peer,
			Seat:     seat.Slot,
			Action:   action,
		})
	}
	m.resolveLocked(r, actor, actorPeer, res)
	return nil
}

// PublishState relays a host snapshot. Stale envelopes are dropped without
// an error reaching the host.
func (m *Manager) PublishState(peer string, env replica.Envelope) error {
	r, err := m.lockRoomOf(peer)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.host != peer {
		return ErrNotAuthority
	}
	if !r.started || r.ended {
		return nil
	}
	res, err := r.authority.Publish(env)
	switch {
	case errors.Is(err, ErrStaleState):
		log.Debug().Str("room_code", r.Code).Uint64("seq", env.Seq).Msg("dropped stale snapshot")
		return nil
	case err != nil:
		return err
	}
	if res.State != nil {
		m.sendStateLocked(r, *res.State, peer)
	}
	if r.authority.Done() {
		m.endLocked(r)
	}
	return nil
}

// sendStateLocked sends env to every connected peer but skip, each copy
// hiding what the other combatants privately learned.
func (m *Manager) sendStateLocked(r *Room, env replica.Envelope, skip string) {
	for _, s := range r.seats {
		if !s.connected() || s.PeerID == skip {
			continue
		}
		m.notifier.SendToPeer(s.PeerID, events.GameState, replica.Envelope{
			Seq:      env.Seq,
			Snapshot: env.Snapshot.VisibleTo(s.Slot),
		})
	}
}

// resolveLocked fans a resolution out to peers, feeds bot memories, ends the
// match when it is over and otherwise arms the next turn clock.
func (m *Manager) resolveLocked(r *Room, actor engine.Slot, actorPeer string, res Resolution) {
	if res.Pending != nil {
		m.notifier.SendToPeer(actorPeer, events.GameChooseTarget, events.ChooseTargetPayload{
			Item:       res.Pending.Item,
			Candidates: res.Pending.Candidates,
		})
		return
	}

	for _, ev := range res.Events {
		switch ev.Type {
		case engine.EventEliminated:
			r.eliminated = append(r.eliminated, ev.Actor)
		case engine.EventGameOver:
			r.endReason = ev.Reason
		case engine.EventTurn:
			r.botItems = 0
		}
		for slot, mem := range r.memories {
			mem.Observe(ev.VisibleTo(slot))
		}
	}

	if len(res.Events) > 0 {
		for _, s := range r.seats {
			if !s.connected() {
				continue
			}
			if r.authority.Kind() == AuthorityHost && s.PeerID == r.host {
				continue
			}
			m.notifier.SendToPeer(s.PeerID, events.GameAction, events.ActionRelayPayload{
				PlayerID: actorPeer,
				Seat:     actor,
				Events:   visibleTo(res.Events, s.Slot),
			})
		}
	}
	if res.State != nil {
		m.sendStateLocked(r, *res.State, "")
	}

	if r.authority.Done() {
		m.endLocked(r)
		return
	}
	if r.authority.Kind() == AuthorityServer && len(res.Events) > 0 {
		m.scheduleLocked(r)
	}
}

func visibleTo(evs []engine.Event, viewer engine.Slot) []engine.Event {
	out := make([]engine.Event, len(evs))
	for i, ev := range evs {
		out[i] = ev.VisibleTo(viewer)
	}
	return out
}

// scheduleLocked arms the clock for whoever acts next: the think delay of a
// bot seat or the turn timeout of a human one.
func (m *Manager) scheduleLocked(r *Room) {
	cur := r.authority.CurrentActor()
	seat := r.seatAt(cur)
	if seat == nil {
		r.clock.Cancel()
		return
	}
	d := m.cfg.TurnTimeout
	if seat.IsBot {
		d = m.cfg.BotThinkTime
	}
	r.clock.Schedule(d, func(gen uint64) { m.onClock(r, gen) })
}

func (m *Manager) onClock(r *Room, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ended || !r.clock.Current(gen) {
		return
	}
	cur := r.authority.CurrentActor()
	seat := r.seatAt(cur)
	if seat == nil {
		return
	}
	if seat.IsBot {
		m.botMoveLocked(r, seat)
		return
	}

	res, err := r.authority.ApplyIntent(cur, Intent{Type: IntentTimeout})
	if err != nil {
		log.Error().Err(err).Str("room_code", r.Code).Msg("failed to apply turn timeout")
		return
	}
	log.Info().
		Str("room_code", r.Code).
		Str("peer_id", seat.PeerID).
		Msg("turn timed out")
	m.resolveLocked(r, cur, seat.PeerID, res)
}

// botMoveLocked plays one decision for a bot seat. Item use per turn is
// capped so a bot holding many items still shoots eventually.
func (m *Manager) botMoveLocked(r *Room, seat *Seat) {
	env, ok := r.authority.Snapshot()
	mem := r.memories[seat.Slot]
	if !ok || mem == nil || r.bot == nil {
		return
	}
	view := bot.ViewOf(env.Snapshot, seat.Slot)
	d := bot.Decide(view, mem, *r.bot, r.botRand)
	if d.Kind == bot.DecideItem && r.botItems >= m.cfg.BotItemsPerTurn {
		d = bot.Shot(view, mem, *r.bot, r.botRand)
	}

	intent := Intent{Type: IntentShoot, Target: d.Target}
	if d.Kind == bot.DecideItem {
		intent = Intent{Type: IntentUseItem, Item: d.Item, Target: d.Target}
	}
	res, err := r.authority.ApplyIntent(seat.Slot, intent)
	if intent.Type == IntentUseItem && (err != nil || res.Pending != nil) {
		log.Warn().Err(err).
			Str("room_code", r.Code).
			Str("item", string(intent.Item)).
			Msg("bot item rejected, shooting instead")
		d = bot.Shot(view, mem, *r.bot, r.botRand)
		intent = Intent{Type: IntentShoot, Target: d.Target}
		res, err = r.authority.ApplyIntent(seat.Slot, intent)
	}
	if err != nil {
		log.Error().Err(err).Str("room_code", r.Code).Msg("bot move rejected, timing out")
		if res, err = r.authority.ApplyIntent(seat.Slot, Intent{Type: IntentTimeout}); err != nil {
			return
		}
	}
	if intent.Type == IntentUseItem {
		r.botItems++
	}
	m.resolveLocked(r, seat.Slot, "", res)
}

// endLocked marks the match over, tells every peer and hands the result to
// the sink.
func (m *Manager) endLocked(r *Room) {
	if r.ended {
		return
	}
	r.ended = true
	r.clock.Cancel()

	env, ok := r.authority.Snapshot()
	winner := engine.NoSlot
	if ok && env.Snapshot.Phase == engine.PhaseGameOver {
		winner = env.Snapshot.Winner
	}
	victory := victoryType(r.endReason)
	payload := events.GameEndedPayload{Code: r.Code, Winner: winner, Reason: victory}
	if s := r.seatAt(winner); s != nil {
		payload.WinnerName = s.Name
	}
	m.notifier.Broadcast(r.peerIDs(""), events.RoomGameEnded, payload)

	log.Info().
		Str("room_code", r.Code).
		Str("winner", winner.String()).
		Str("victory_type", victory).
		Msg("game ended")

	if ok {
		m.dispatch(r.report(env.Snapshot, winner, victory))
	}
}

func victoryType(reason string) string {
	switch reason {
	case "afk":
		return "afk"
	case "left":
		return "forfeit"
	case "abandoned":
		return "abandoned"
	case "no eligible combatant":
		return "draw"
	}
	return "elimination"
}

func (m *Manager) dispatch(report ResultReport) {
	if m.sink == nil {
		return
	}
	m.reports.Add(1)
	go func() {
		defer m.reports.Done()
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ResultTimeout)
		defer cancel()
		if err := m.sink.ReportResult(ctx, report); err != nil {
			log.Error().Err(err).
				Str("room_code", report.RoomCode).
				Str("match_id", report.MatchID).
				Msg("failed to report match result")
		}
	}()
}

// report ranks the participants: the winner first, then by how late they
// were eliminated, then by remaining health.
func (r *Room) report(final engine.Snapshot, winner engine.Slot, victory string) ResultReport {
	out := ResultReport{
		RoomCode:     r.Code,
		MatchID:      r.matchID,
		Ranked:       r.ranked,
		Mode:         r.mode,
		Tier:         r.tier,
		BotLevel:     r.botLevel,
		VictoryType:  victory,
		RoundsPlayed: final.ReloadCount,
		Winner:       winner,
		Final:        final,
	}
	order := make(map[engine.Slot]int, len(r.eliminated))
	for i, s := range r.eliminated {
		order[s] = i
	}
	for _, s := range r.seats {
		p := ReportedSeat{
			PeerID:   s.PeerID,
			Identity: s.Identity,
			Name:     s.Name,
			Slot:     s.Slot,
			IsBot:    s.IsBot,
			Won:      s.Slot == winner,
		}
		if c := final.Combatant(s.Slot); c != nil {
			p.FinalHP = c.Health
			p.Stats = c.Stats
		}
		out.Participants = append(out.Participants, p)
	}
	outlasted := func(s engine.Slot) int {
		if i, ok := order[s]; ok {
			return i
		}
		return len(order)
	}
	sort.SliceStable(out.Participants, func(i, j int) bool {
		a, b := out.Participants[i], out.Participants[j]
		if a.Won != b.Won {
			return a.Won
		}
		if oa, ob := outlasted(a.Slot), outlasted(b.Slot); oa != ob {
			return oa > ob
		}
		if a.FinalHP != b.FinalHP {
			return a.FinalHP > b.FinalHP
		}
		return a.Slot < b.Slot
	})
	for i := range out.Participants {
		out.Participants[i].Rank = i + 1
	}
	return out
}
