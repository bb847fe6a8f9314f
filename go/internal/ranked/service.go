// Package ranked runs the ranked queue: widening rating windows, a periodic
// pairing tick, match creation and rating commits.
package ranked

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/events"
	"github.com/mcdev12/lastround/go/internal/results"
	"github.com/mcdev12/lastround/go/internal/room"
)

var (
	ErrNameRequired     = errors.New("display name required")
	ErrIdentityRequired = errors.New("sign in to play ranked")
	ErrInRoom           = errors.New("already in a match")
	ErrAlreadyQueued    = errors.New("ranked search already active")
	ErrQueuedElsewhere  = errors.New("ranked search already active on another device")
	ErrMatchCreation    = errors.New("failed to create ranked match")
	ErrUnknownMatch     = errors.New("unknown ranked match")
	ErrResultFailed     = errors.New("failed to record ranked result")
)

// Reason maps an error to the stable reason string sent in ranked:error.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNameRequired):
		return "name_required"
	case errors.Is(err, ErrIdentityRequired):
		return "identity_required"
	case errors.Is(err, ErrInRoom):
		return "in_room"
	case errors.Is(err, ErrAlreadyQueued):
		return "already_queued"
	case errors.Is(err, ErrQueuedElsewhere):
		return "queued_elsewhere"
	case errors.Is(err, ErrMatchCreation):
		return "match_creation_failed"
	case errors.Is(err, ErrResultFailed):
		return "result_failed"
	}
	return "internal"
}

// Store is the persistence the queue needs.
type Store interface {
	EnsureRating(ctx context.Context, userID, mode string) (results.Rating, error)
	GetRating(ctx context.Context, userID, mode string) (results.Rating, error)
	CreateRankedMatch(ctx context.Context, mode string, seats []results.RankedSeat) (uuid.UUID, error)
	CommitRankedResult(ctx context.Context, res results.RankedResult) error
}

// Rooms seats matched pairs.
type Rooms interface {
	InRoom(peer string) bool
	InRoomIdentity(identity string) bool
	CreateRankedRoom(matchID, mode string, seats []room.RankedSeat) (string, error)
	StartGame(peer string, req events.StartPayload) error
}

// Notifier delivers named events to one peer.
type Notifier interface {
	SendToPeer(peerID, event string, data any)
}

type Config struct {
	Mode         string
	TickInterval time.Duration
	StoreTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:         room.ModeDuel,
		TickInterval: time.Second,
		StoreTimeout: 5 * time.Second,
	}
}

type entry struct {
	PeerID     string
	Identity   string
	Name       string
	Elo        int
	EnqueuedAt time.Time
}

// QueueEntry is the public view of one waiting entry.
type QueueEntry struct {
	Position    int `json:"position"`
	WaitSeconds int `json:"waitSeconds"`
	Range       int `json:"range"`
	Elo         int `json:"elo"`
}

// pendingMatch is a created ranked match waiting for its result.
type pendingMatch struct {
	id    uuid.UUID
	mode  string
	seats []entry
}

type Service struct {
	store    Store
	rooms    Rooms
	notifier Notifier
	clock    clockwork.Clock
	cfg      Config

	mu       sync.Mutex
	queue    []*entry
	inflight map[string]*entry
	matches  map[string]*pendingMatch

	tickMu sync.Mutex

	runMu    sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewService(store Store, rooms Rooms, notifier Notifier, cfg Config, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Mode == "" {
		cfg.Mode = room.ModeDuel
	}
	return &Service{
		store:    store,
		rooms:    rooms,
		notifier: notifier,
		clock:    clock,
		cfg:      cfg,
		inflight: make(map[string]*entry),
		matches:  make(map[string]*pendingMatch),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return fmt.Errorf("ranked matchmaking already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.runMu.Unlock()

	s.wg.Add(1)
	go s.run(ctx)

	log.Info().Dur("tick_interval", s.cfg.TickInterval).Msg("ranked matchmaking started")
	return nil
}

func (s *Service) Stop() error {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return fmt.Errorf("ranked matchmaking not running")
	}
	s.running = false
	close(s.stopChan)
	s.runMu.Unlock()

	s.wg.Wait()
	log.Info().Msg("ranked matchmaking stopped")
	return nil
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := s.clock.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

// Enqueue puts peer in the ranked queue and runs a pairing pass.
func (s *Service) Enqueue(ctx context.Context, peer, identity, name string) error {
	name = strings.TrimSpace(name)
	identity = strings.TrimSpace(identity)
	switch {
	case name == "":
		return ErrNameRequired
	case identity == "":
		return ErrIdentityRequired
	case s.rooms.InRoom(peer), s.rooms.InRoomIdentity(identity):
		return ErrInRoom
	}
	if err := s.checkQueued(peer, identity); err != nil {
		return err
	}

	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	rating, err := s.store.EnsureRating(sctx, identity, s.cfg.Mode)
	cancel()
	if err != nil {
		return fmt.Errorf("ensure rating: %w", err)
	}

	s.mu.Lock()
	if err := s.checkQueuedLocked(peer, identity); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.rooms.InRoomIdentity(identity) {
		s.mu.Unlock()
		return ErrInRoom
	}
	e := &entry{PeerID: peer, Identity: identity, Name: name, Elo: rating.Elo, EnqueuedAt: s.clock.Now()}
	s.queue = append(s.queue, e)
	size := len(s.queue)
	s.emitStatusLocked(e, s.clock.Now())
	s.mu.Unlock()

	log.Info().
		Str("peer_id", peer).
		Str("user_id", identity).
		Int("elo", rating.Elo).
		Int("queue_size", size).
		Msg("ranked enqueue")

	s.Tick(ctx)
	return nil
}

func (s *Service) checkQueued(peer, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkQueuedLocked(peer, identity)
}

func (s *Service) checkQueuedLocked(peer, identity string) error {
	if _, ok := s.inflight[peer]; ok {
		return ErrAlreadyQueued
	}
	for _, e := range s.queue {
		if e.PeerID == peer {
			return ErrAlreadyQueued
		}
	}
	for _, e := range s.queue {
		if e.Identity == identity {
			return ErrQueuedElsewhere
		}
	}
	for _, e := range s.inflight {
		if e.Identity == identity {
			return ErrQueuedElsewhere
		}
	}
	return nil
}

// Leave drops peer from the queue and answers ranked:cancelled. A peer whose
// pair is being created is not requeued if creation fails.
func (s *Service) Leave(peer string) {
	s.mu.Lock()
	found := false
	for i, e := range s.queue {
		if e.PeerID == peer {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			found = true
			break
		}
	}
	if _, ok := s.inflight[peer]; ok {
		delete(s.inflight, peer)
		found = true
	}
	size := len(s.queue)
	s.mu.Unlock()
	if !found {
		return
	}

	log.Info().Str("peer_id", peer).Int("queue_size", size).Msg("ranked leave")
	s.notifier.SendToPeer(peer, events.RankedCancelled, struct{}{})
}

// Queued reports whether peer is waiting or being paired.
func (s *Service) Queued(peer string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[peer]; ok {
		return true
	}
	for _, e := range s.queue {
		if e.PeerID == peer {
			return true
		}
	}
	return false
}

// QueuedIdentity reports whether identity is waiting or being paired on any
// device.
func (s *Service) QueuedIdentity(identity string) bool {
	if identity == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.inflight {
		if e.Identity == identity {
			return true
		}
	}
	for _, e := range s.queue {
		if e.Identity == identity {
			return true
		}
	}
	return false
}

// Snapshot lists the queue in enqueue order.
func (s *Service) Snapshot() []QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	out := make([]QueueEntry, len(s.queue))
	for i, e := range s.queue {
		wait := now.Sub(e.EnqueuedAt)
		out[i] = QueueEntry{Position: i + 1, WaitSeconds: int(wait / time.Second), Range: Window(wait), Elo: e.Elo}
	}
	return out
}

// Tick emits queue status to everyone waiting and creates matches for every
// acceptable pair, best pair first. Overlapping ticks are skipped, and a
// pair whose creation failed waits for the next tick.
func (s *Service) Tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		return
	}
	defer s.tickMu.Unlock()

	s.mu.Lock()
	now := s.clock.Now()
	for _, e := range s.queue {
		s.emitStatusLocked(e, now)
	}
	s.mu.Unlock()

	for {
		a, b, ok := s.takePair()
		if !ok {
			return
		}
		if !s.createMatch(ctx, a, b) {
			return
		}
	}
}

// takePair removes the pair with the smallest rating gap that both windows
// accept and marks it in flight.
func (s *Service) takePair() (entry, entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) < 2 {
		return entry{}, entry{}, false
	}
	now := s.clock.Now()
	bi, bj, best := -1, -1, -1
	for i := 0; i < len(s.queue); i++ {
		wi := Window(now.Sub(s.queue[i].EnqueuedAt))
		for j := i + 1; j < len(s.queue); j++ {
			wj := Window(now.Sub(s.queue[j].EnqueuedAt))
			diff := abs(s.queue[i].Elo - s.queue[j].Elo)
			if diff > wi || diff > wj {
				continue
			}
			if best < 0 || diff < best {
				bi, bj, best = i, j, diff
			}
		}
	}
	if bi < 0 {
		return entry{}, entry{}, false
	}
	a, b := s.queue[bi], s.queue[bj]
	s.queue = append(s.queue[:bj], s.queue[bj+1:]...)
	s.queue = append(s.queue[:bi], s.queue[bi+1:]...)
	s.inflight[a.PeerID] = a
	s.inflight[b.PeerID] = b

	log.Info().
		Str("first", a.Identity).
		Int("first_elo", a.Elo).
		Str("second", b.Identity).
		Int("second_elo", b.Elo).
		Int("diff", best).
		Msg("ranked pair found")
	return *a, *b, true
}

// createMatch reports whether the pair was seated.
func (s *Service) createMatch(ctx context.Context, a, b entry) bool {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	id, err := s.store.CreateRankedMatch(sctx, s.cfg.Mode, []results.RankedSeat{
		{UserID: a.Identity, EloBefore: a.Elo},
		{UserID: b.Identity, EloBefore: b.Elo},
	})
	cancel()
	if err != nil {
		log.Error().Err(err).
			Str("first", a.Identity).
			Str("second", b.Identity).
			Msg("failed to create ranked match")
		s.fail(a, b)
		return false
	}

	matchID := id.String()
	s.mu.Lock()
	_, aOK := s.inflight[a.PeerID]
	_, bOK := s.inflight[b.PeerID]
	s.mu.Unlock()
	if !aOK || !bOK {
		log.Warn().Str("match_id", matchID).Msg("ranked peer left before seating")
		s.abandonMatch(ctx, id)
		s.fail(a, b)
		return false
	}

	code, err := s.rooms.CreateRankedRoom(matchID, s.cfg.Mode, []room.RankedSeat{
		{PeerID: a.PeerID, Name: a.Name, Identity: a.Identity},
		{PeerID: b.PeerID, Name: b.Name, Identity: b.Identity},
	})
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to seat ranked match")
		s.abandonMatch(ctx, id)
		s.fail(a, b)
		return false
	}

	s.mu.Lock()
	delete(s.inflight, a.PeerID)
	delete(s.inflight, b.PeerID)
	s.matches[matchID] = &pendingMatch{id: id, mode: s.cfg.Mode, seats: []entry{a, b}}
	s.mu.Unlock()

	s.notifier.SendToPeer(a.PeerID, events.RankedMatchFound, matchFound(matchID, code, a, b))
	s.notifier.SendToPeer(b.PeerID, events.RankedMatchFound, matchFound(matchID, code, b, a))
	if err := s.rooms.StartGame(a.PeerID, events.StartPayload{}); err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to start ranked match")
		return true
	}
	log.Info().
		Str("match_id", matchID).
		Str("room_code", code).
		Msg("ranked match created")
	return true
}

// abandonMatch closes a created match that never got a room so no pending
// row is left behind.
func (s *Service) abandonMatch(ctx context.Context, id uuid.UUID) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	err := s.store.CommitRankedResult(sctx, results.RankedResult{
		MatchID:     id,
		Mode:        s.cfg.Mode,
		VictoryType: results.VictoryAbandoned,
	})
	if err != nil {
		log.Error().Err(err).Str("match_id", id.String()).Msg("failed to abandon unseated ranked match")
	}
}

// fail tells both peers and puts back whoever is still waiting, keeping
// their original enqueue time.
func (s *Service) fail(a, b entry) {
	s.mu.Lock()
	var notify []string
	for _, e := range []entry{a, b} {
		if _, ok := s.inflight[e.PeerID]; !ok {
			continue
		}
		delete(s.inflight, e.PeerID)
		notify = append(notify, e.PeerID)
		cp := e
		s.queue = append(s.queue, &cp)
	}
	sort.SliceStable(s.queue, func(i, j int) bool {
		return s.queue[i].EnqueuedAt.Before(s.queue[j].EnqueuedAt)
	})
	s.mu.Unlock()

	for _, p := range notify {
		s.notifier.SendToPeer(p, events.RankedError, events.ErrorPayload{
			Reason:  Reason(ErrMatchCreation),
			Message: ErrMatchCreation.Error(),
		})
	}
}

func matchFound(matchID, code string, self, opp entry) events.MatchFoundPayload {
	return events.MatchFoundPayload{
		MatchID:  matchID,
		RoomCode: code,
		Self:     events.RankedPlayer{ID: self.Identity, Username: self.Name, Elo: self.Elo},
		Opponent: events.RankedPlayer{ID: opp.Identity, Username: opp.Name, Elo: opp.Elo},
	}
}

func (s *Service) emitStatusLocked(e *entry, now time.Time) {
	pos := 0
	for i, q := range s.queue {
		if q == e {
			pos = i + 1
			break
		}
	}
	wait := now.Sub(e.EnqueuedAt)
	s.notifier.SendToPeer(e.PeerID, events.RankedQueueStatus, events.QueueStatusPayload{
		Position:    pos,
		WaitSeconds: int(wait / time.Second),
		Range:       Window(wait),
	})
}

type matchSummary struct {
	Winner     engine.Slot        `json:"winner"`
	Reason     string             `json:"reason"`
	Combatants []engine.Combatant `json:"combatants"`
}

// ReportResult commits a finished ranked match. It implements room.ResultSink
// for ranked rooms; abandoned matches are recorded without rating changes.
func (s *Service) ReportResult(ctx context.Context, report room.ResultReport) error {
	s.mu.Lock()
	pm, ok := s.matches[report.MatchID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, report.MatchID)
	}

	res := results.RankedResult{
		MatchID:      pm.id,
		Mode:         pm.mode,
		VictoryType:  report.VictoryType,
		RoundsPlayed: report.RoundsPlayed,
	}
	for _, p := range report.Participants {
		res.Participants = append(res.Participants, results.ParticipantResult{
			UserID:     p.Identity,
			Rank:       p.Rank,
			FinalHP:    p.FinalHP,
			ShotsFired: p.Stats.ShotsFired,
			ShotsTaken: p.Stats.ShotsTaken,
			ItemsUsed:  p.Stats.ItemsUsed,
		})
	}
	if summary, err := json.Marshal(matchSummary{
		Winner:     report.Winner,
		Reason:     report.VictoryType,
		Combatants: report.Final.Combatants,
	}); err == nil {
		res.Summary = summary
	}

	if w, ok := report.WinnerSeat(); ok && report.VictoryType != results.VictoryAbandoned {
		res.WinnerID = w.Identity
		res.Changes = rate(pm.seats, w.Identity)
	}

	if err := s.store.CommitRankedResult(ctx, res); err != nil {
		log.Error().Err(err).Str("match_id", report.MatchID).Msg("failed to commit ranked result")
		for _, e := range pm.seats {
			s.notifier.SendToPeer(e.PeerID, events.RankedError, events.ErrorPayload{
				Reason:  Reason(ErrResultFailed),
				Message: ErrResultFailed.Error(),
			})
		}
		return fmt.Errorf("%w: %w", ErrResultFailed, err)
	}

	s.mu.Lock()
	delete(s.matches, report.MatchID)
	s.mu.Unlock()

	changes := make(map[string]results.RatingChange, len(res.Changes))
	for _, c := range res.Changes {
		changes[c.UserID] = c
	}
	for _, e := range pm.seats {
		c, ok := changes[e.Identity]
		if !ok {
			c = results.RatingChange{Before: e.Elo, After: e.Elo}
		}
		s.notifier.SendToPeer(e.PeerID, events.RankedResult, events.RankedResultPayload{
			MatchID: report.MatchID,
			Won:     c.Won,
			Before:  c.Before,
			After:   c.After,
			Delta:   c.Delta,
		})
	}
	return nil
}

// rate computes the changes of a two-seat match from pre-match ratings.
func rate(seats []entry, winner string) []results.RatingChange {
	if len(seats) != 2 {
		return nil
	}
	a, b := seats[0], seats[1]
	return []results.RatingChange{
		Rate(a.Identity, a.Elo, b.Elo, a.Identity == winner),
		Rate(b.Identity, b.Elo, a.Elo, b.Identity == winner),
	}
}

// Rating returns an identity's stored rating in the service's mode.
func (s *Service) Rating(ctx context.Context, identity string) (results.Rating, error) {
	return s.store.GetRating(ctx, identity, s.cfg.Mode)
}
