// Package room runs lobbies and matches: seats, host handover, the authority
// that computes each match, turn clocks and bot seats.
package room

import (
	"math/rand"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mcdev12/lastround/go/internal/bot"
	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/events"
)

const (
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	maxChatLength = 240
)

// Manager owns every room plus the peer and identity indexes. Lock order is a
// room's mu before Manager.mu; nothing takes a room lock while holding mu.
type Manager struct {
	cfg      Config
	notifier Notifier
	rules    *engine.RuleBook
	clock    clockwork.Clock
	sink     ResultSink

	mu    sync.Mutex
	rooms map[string]*Room
	peers map[string]string
	// identities counts the indexed seats of each stable identity.
	identities   map[string]int
	peerIdentity map[string]string
	rng          *rand.Rand

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	reports sync.WaitGroup
}

func NewManager(cfg Config, notifier Notifier, rules *engine.RuleBook, clock clockwork.Clock, sink ResultSink) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if rules == nil {
		rules, _ = engine.NewRuleBook(nil)
	}
	return &Manager{
		cfg:      cfg,
		notifier: notifier,
		rules:    rules,
		clock:    clock,
		sink:     sink,
		rooms:        make(map[string]*Room),
		peers:        make(map[string]string),
		identities:   make(map[string]int),
		peerIdentity: make(map[string]string),
		rng:          rand.New(rand.NewSource(clock.Now().UnixNano())),
		limiters:     make(map[string]*rate.Limiter),
	}
}

// CreateRoom opens a lobby hosted by peer and answers room:created.
func (m *Manager) CreateRoom(peer string, req events.CreateRoomPayload) (string, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return "", ErrNameRequired
	}
	tier := req.Tier
	if tier == "" {
		tier = engine.TierPvP
	}
	if !tier.Valid() {
		return "", ErrInvalidTier
	}
	kind := req.Authority
	if kind == "" {
		kind = AuthorityHost
	}
	if kind != AuthorityHost && kind != AuthorityServer {
		return "", ErrInvalidAuthority
	}

	r := m.newRoom(tier, kind, engine.MaxSeats)
	r.host = peer
	r.seats = []*Seat{{PeerID: peer, Name: name, Identity: strings.TrimSpace(req.Identity), Slot: engine.Self}}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := m.register(r, peer); err != nil {
		return "", err
	}

	log.Info().
		Str("room_code", r.Code).
		Str("peer_id", peer).
		Str("authority", kind).
		Str("tier", string(tier)).
		Msg("room created")
	m.notifier.SendToPeer(peer, events.RoomCreated, r.joinedPayload(peer))
	return r.Code, nil
}

// JoinRoom seats peer in the room with the given code.
func (m *Manager) JoinRoom(peer string, req events.JoinRoomPayload) error {
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if len(code) < m.cfg.CodeLength {
		return ErrInvalidCode
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return ErrNameRequired
	}
	identity := strings.TrimSpace(req.Identity)

	m.mu.Lock()
	if _, ok := m.peers[peer]; ok {
		m.mu.Unlock()
		return ErrAlreadyInRoom
	}
	r, ok := m.rooms[code]
	m.mu.Unlock()
	if !ok {
		return ErrRoomNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.closed:
		return ErrRoomNotFound
	case r.ended:
		return ErrGameEnded
	case r.started:
		return ErrGameStarted
	case len(r.seats) >= r.capacity:
		return ErrRoomFull
	}
	if identity != "" {
		for _, s := range r.seats {
			if s.Identity == identity {
				return ErrDuplicateIdentity
			}
		}
	}

	m.mu.Lock()
	if _, ok := m.peers[peer]; ok {
		m.mu.Unlock()
		return ErrAlreadyInRoom
	}
	m.indexLocked(peer, identity, r.Code)
	m.mu.Unlock()

	seat := &Seat{PeerID: peer, Name: name, Identity: identity, Slot: engine.Slot(len(r.seats))}
	r.seats = append(r.seats, seat)

	log.Info().
		Str("room_code", r.Code).
		Str("peer_id", peer).
		Int("seats", len(r.seats)).
		Msg("peer joined room")

	m.notifier.SendToPeer(peer, events.RoomJoined, r.joinedPayload(peer))
	m.notifier.Broadcast(r.peerIDs(peer), events.RoomPlayerJoined, events.PlayerJoinedPayload{
		RoomInfo:   r.info(),
		PlayerID:   peer,
		PlayerName: name,
	})
	if len(r.seats) >= 2 {
		m.notifier.Broadcast(r.peerIDs(""), events.RoomReady, r.info())
	}
	return nil
}

// LeaveRoom removes peer from its room. Unknown peers are ignored.
func (m *Manager) LeaveRoom(peer string) {
	r, err := m.lockRoomOf(peer)
	if err != nil {
		return
	}
	defer r.mu.Unlock()
	m.removeSeatLocked(r, peer)
}

// Disconnect is LeaveRoom plus dropping per-peer state. Safe to call twice.
func (m *Manager) Disconnect(peer string) {
	m.LeaveRoom(peer)
	m.limMu.Lock()
	delete(m.limiters, peer)
	m.limMu.Unlock()
}

// Kick removes target from the host's room.
func (m *Manager) Kick(host, target string) error {
	r, err := m.lockRoomOf(host)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	if r.host != host {
		return ErrNotHost
	}
	seat := r.seatOf(target)
	if target == host || seat == nil || seat.Left {
		return ErrNotSeated
	}
	log.Info().Str("room_code", r.Code).Str("peer_id", target).Msg("peer kicked")
	m.notifier.SendToPeer(target, events.RoomKicked, events.NoticePayload{
		Code:    r.Code,
		Message: "You were removed by the host.",
	})
	m.removeSeatLocked(r, target)
	return nil
}

// Chat relays a lobby message. Chat closes once the match starts.
func (m *Manager) Chat(peer, text string) error {
	if !m.allow(peer) {
		return ErrRateLimited
	}
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > maxChatLength {
		return ErrInvalidChat
	}
	r, err := m.lockRoomOf(peer)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.started || r.ended {
		return ErrChatClosed
	}
	seat := r.seatOf(peer)
	m.notifier.Broadcast(r.peerIDs(""), events.RoomChat, events.ChatMessagePayload{
		PlayerID:   peer,
		PlayerName: seat.Name,
		Identity:   seat.Identity,
		Message:    text,
		Timestamp:  m.clock.Now().UnixMilli(),
	})
	return nil
}

// InRoom reports whether peer is seated anywhere.
func (m *Manager) InRoom(peer string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.peers[peer]
	return ok
}

// InRoomIdentity reports whether any seat held by identity is indexed, on
// any device.
func (m *Manager) InRoomIdentity(identity string) bool {
	if identity == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identities[identity] > 0
}

// RoomInfo returns the public description of a room.
func (m *Manager) RoomInfo(code string) (events.RoomInfo, bool) {
	m.mu.Lock()
	r, ok := m.rooms[strings.ToUpper(code)]
	m.mu.Unlock()
	if !ok {
		return events.RoomInfo{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.info(), !r.closed
}

// Stats counts rooms and seated peers.
func (m *Manager) Stats() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"rooms": len(m.rooms),
		"peers": len(m.peers),
	}
}

// Close cancels every room clock and waits for pending result reports.
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.Unlock()
	for _, r := range rooms {
		r.clock.Cancel()
	}
	m.reports.Wait()
}

// CreateRankedRoom seats two matched queue entries in a server-authority
// room. The caller starts it with StartGame once both peers were told.
func (m *Manager) CreateRankedRoom(matchID, mode string, seats []RankedSeat) (string, error) {
	if len(seats) != 2 {
		return "", ErrNotEnoughPlayers
	}
	r := m.newRoom(engine.TierPvP, AuthorityServer, len(seats))
	r.ranked = true
	r.matchID = matchID
	r.mode = mode
	r.host = seats[0].PeerID
	peers := make([]string, 0, len(seats))
	for i, s := range seats {
		r.seats = append(r.seats, &Seat{PeerID: s.PeerID, Name: s.Name, Identity: s.Identity, Slot: engine.Slot(i)})
		peers = append(peers, s.PeerID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := m.register(r, peers...); err != nil {
		return "", err
	}
	log.Info().
		Str("room_code", r.Code).
		Str("match_id", matchID).
		Msg("ranked room created")
	for _, s := range r.seats {
		m.notifier.SendToPeer(s.PeerID, events.RoomJoined, r.joinedPayload(s.PeerID))
	}
	return r.Code, nil
}

// CreateBotRoom starts a solo match against a bot of the requested level.
func (m *Manager) CreateBotRoom(peer string, req events.SoloRoomPayload) (string, error) {
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return "", ErrNameRequired
	}
	profile, ok := bot.ProfileForLevel(req.Level)
	if !ok {
		return "", ErrInvalidBotLevel
	}

	r := m.newRoom(profile.Tier, AuthorityServer, 2)
	r.mode = ModeSolo
	level := profile.Level
	r.botLevel = &level
	r.bot = &profile
	r.host = peer
	r.seats = []*Seat{
		{PeerID: peer, Name: name, Identity: strings.TrimSpace(req.Identity), Slot: engine.Self},
		{Name: profile.Label, IsBot: true, Slot: engine.Opponent},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := m.register(r, peer); err != nil {
		return "", err
	}
	log.Info().
		Str("room_code", r.Code).
		Str("peer_id", peer).
		Int("bot_level", level).
		Msg("bot room created")
	m.notifier.SendToPeer(peer, events.RoomCreated, r.joinedPayload(peer))
	if err := m.startLocked(r, events.StartPayload{}); err != nil {
		m.closeLocked(r)
		return "", err
	}
	return r.Code, nil
}

func (m *Manager) newRoom(tier engine.Tier, authority string, capacity int) *Room {
	r := &Room{
		CreatedAt: m.clock.Now(),
		tier:      tier,
		capacity:  capacity,
		clock:     newTurnClock(m.clock),
		memories:  make(map[engine.Slot]*bot.Memory),
	}
	if authority == AuthorityServer {
		r.authority = NewEngineAuthority()
	} else {
		r.authority = NewHostAuthority(engine.Self)
	}
	return r
}

// register assigns a fresh code and indexes the room's peers.
func (m *Manager) register(r *Room, peers ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range peers {
		if _, ok := m.peers[p]; ok {
			return ErrAlreadyInRoom
		}
	}
	code := m.newCodeLocked()
	for {
		if _, taken := m.rooms[code]; !taken {
			break
		}
		code = m.newCodeLocked()
	}
	r.Code = code
	m.rooms[code] = r
	for _, p := range peers {
		identity := ""
		if s := r.seatOf(p); s != nil {
			identity = s.Identity
		}
		m.indexLocked(p, identity, code)
	}
	return nil
}

func (m *Manager) indexLocked(peer, identity, code string) {
	m.peers[peer] = code
	if identity != "" {
		m.peerIdentity[peer] = identity
		m.identities[identity]++
	}
}

func (m *Manager) unindexLocked(peer string) {
	if _, ok := m.peers[peer]; !ok {
		return
	}
	delete(m.peers, peer)
	if identity, ok := m.peerIdentity[peer]; ok {
		delete(m.peerIdentity, peer)
		if m.identities[identity]--; m.identities[identity] <= 0 {
			delete(m.identities, identity)
		}
	}
}

func (m *Manager) newCodeLocked() string {
	n := m.cfg.CodeLength
	if n <= 0 {
		n = 4
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = codeAlphabet[m.rng.Intn(len(codeAlphabet))]
	}
	return string(b)
}

func (m *Manager) seed() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Int63()
}

// lockRoomOf returns peer's room locked, or ErrNotInRoom.
func (m *Manager) lockRoomOf(peer string) (*Room, error) {
	m.mu.Lock()
	code, ok := m.peers[peer]
	r := m.rooms[code]
	m.mu.Unlock()
	if !ok || r == nil {
		return nil, ErrNotInRoom
	}
	r.mu.Lock()
	if s := r.seatOf(peer); r.closed || s == nil || s.Left {
		r.mu.Unlock()
		return nil, ErrNotInRoom
	}
	return r, nil
}

func (m *Manager) unindex(peer string) {
	m.mu.Lock()
	m.unindexLocked(peer)
	m.mu.Unlock()
}

func (m *Manager) allow(peer string) bool {
	m.limMu.Lock()
	l, ok := m.limiters[peer]
	if !ok {
		l = rate.NewLimiter(m.cfg.ActionRate, m.cfg.ActionBurst)
		m.limiters[peer] = l
	}
	m.limMu.Unlock()
	return l.AllowN(m.clock.Now(), 1)
}

// removeSeatLocked takes peer out of r and applies the host/guest departure
// rules.
func (m *Manager) removeSeatLocked(r *Room, peer string) {
	seat := r.seatOf(peer)
	wasHost := r.host == peer
	inProgress := r.started && !r.ended
	m.unindex(peer)

	if r.started {
		seat.Left = true
	} else {
		r.removeSeat(peer)
	}
	log.Info().
		Str("room_code", r.Code).
		Str("peer_id", peer).
		Bool("was_host", wasHost).
		Bool("in_progress", inProgress).
		Msg("peer left room")

	if r.connectedCount() == 0 {
		if inProgress {
			r.endReason = "abandoned"
			m.resolveLocked(r, engine.NoSlot, "", r.authority.Abandon("abandoned"))
		}
		m.closeLocked(r)
		return
	}
	if wasHost {
		r.host = r.firstConnected().PeerID
	}

	m.notifier.Broadcast(r.peerIDs(""), events.RoomPlayerLeft, events.PlayerLeftPayload{
		RoomInfo:   r.info(),
		PlayerID:   peer,
		PlayerName: seat.Name,
		WasHost:    wasHost,
	})

	switch {
	case !inProgress:
		if wasHost {
			m.notifier.SendToPeer(r.host, events.RoomPromotedHost, events.PromotedHostPayload{RoomInfo: r.info()})
		}
	case r.authority.Kind() == AuthorityHost && wasHost:
		// Nobody else holds the match state.
		m.notifier.Broadcast(r.peerIDs(""), events.RoomHostLeft, events.NoticePayload{
			Code:    r.Code,
			Message: "The host left the match.",
		})
		r.endReason = "abandoned"
		m.resolveLocked(r, engine.NoSlot, "", r.authority.Abandon("abandoned"))
	default:
		if wasHost {
			m.notifier.SendToPeer(r.host, events.RoomPromotedHost, events.PromotedHostPayload{RoomInfo: r.info()})
		} else {
			m.notifier.SendToPeer(r.host, events.RoomGuestLeft, events.NoticePayload{
				Code:    r.Code,
				Message: seat.Name + " left the match.",
			})
		}
		res, err := r.authority.ApplyIntent(seat.Slot, Intent{Type: IntentForfeit})
		if err != nil {
			log.Error().Err(err).Str("room_code", r.Code).Msg("failed to forfeit departed seat")
			return
		}
		m.resolveLocked(r, seat.Slot, peer, res)
	}
}

func (m *Manager) closeLocked(r *Room) {
	if r.closed {
		return
	}
	r.closed = true
	r.clock.Cancel()
	m.mu.Lock()
	delete(m.rooms, r.Code)
	for _, s := range r.seats {
		if s.PeerID != "" && m.peers[s.PeerID] == r.Code {
			m.unindexLocked(s.PeerID)
		}
	}
	m.mu.Unlock()
	log.Info().Str("room_code", r.Code).Msg("room closed")
}

func (r *Room) seatOf(peer string) *Seat {
	if peer == "" {
		return nil
	}
	for _, s := range r.seats {
		if s.PeerID == peer {
			return s
		}
	}
	return nil
}

func (r *Room) seatAt(slot engine.Slot) *Seat {
	for _, s := range r.seats {
		if s.Slot == slot {
			return s
		}
	}
	return nil
}

// removeSeat drops a seat before the match starts and renumbers the rest in
// join order.
func (r *Room) removeSeat(peer string) {
	kept := r.seats[:0]
	for _, s := range r.seats {
		if s.PeerID != peer {
			kept = append(kept, s)
		}
	}
	r.seats = kept
	for i, s := range r.seats {
		s.Slot = engine.Slot(i)
	}
}

func (r *Room) connectedCount() int {
	n := 0
	for _, s := range r.seats {
		if s.connected() {
			n++
		}
	}
	return n
}

func (r *Room) firstConnected() *Seat {
	for _, s := range r.seats {
		if s.connected() {
			return s
		}
	}
	return nil
}

// peerIDs lists connected peers, minus except.
func (r *Room) peerIDs(except string) []string {
	out := make([]string, 0, len(r.seats))
	for _, s := range r.seats {
		if s.connected() && s.PeerID != except {
			out = append(out, s.PeerID)
		}
	}
	return out
}

func (r *Room) info() events.RoomInfo {
	info := events.RoomInfo{
		Code:        r.Code,
		HostID:      r.host,
		Authority:   r.authority.Kind(),
		Tier:        r.tier,
		Ranked:      r.ranked,
		MatchID:     r.matchID,
		GameStarted: r.started,
		GameEnded:   r.ended,
		Players:     make([]events.PlayerInfo, 0, len(r.seats)),
	}
	for _, s := range r.seats {
		if s.Left {
			continue
		}
		if s.PeerID == r.host {
			info.HostName = s.Name
		}
		info.Players = append(info.Players, events.PlayerInfo{
			ID:       s.PeerID,
			Name:     s.Name,
			Identity: s.Identity,
			IsHost:   s.PeerID == r.host,
			IsBot:    s.IsBot,
			Seat:     s.Slot,
		})
	}
	return info
}

func (r *Room) joinedPayload(peer string) events.RoomJoinedPayload {
	p := events.RoomJoinedPayload{RoomInfo: r.info(), IsHost: r.host == peer, Seat: engine.NoSlot}
	if s := r.seatOf(peer); s != nil {
		p.Seat = s.Slot
	}
	return p
}
