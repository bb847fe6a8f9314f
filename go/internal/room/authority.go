package room

import (
	"fmt"
	"math/rand"

	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/replica"
)

// Authority kinds.
const (
	AuthorityHost   = "host"
	AuthorityServer = "server"
)

// IntentType is what a seat asks the authority to do.
type IntentType string

const (
	IntentShoot   IntentType = "shoot"
	IntentUseItem IntentType = "useItem"
	IntentTimeout IntentType = "timeout"
	IntentForfeit IntentType = "forfeit"
)

// Intent is a gameplay request from one seat. Events is only set by the host
// of a host-authority room announcing an action it already resolved. Relayed
// marks intents that arrived from a peer rather than from the room itself.
type Intent struct {
	Type    IntentType
	Target  engine.Slot
	Item    engine.ItemKind
	Events  []engine.Event
	Relayed bool
}

// Resolution is what applying an intent produced.
type Resolution struct {
	// Events are relayed to peers as game:action.
	Events []engine.Event
	// Forward asks the room to relay the intent to the host peer.
	Forward bool
	// Pending is set when an item needs an explicit target first.
	Pending *engine.ItemOutcome
	// State is broadcast as game:state when set.
	State *replica.Envelope
}

// StartInput carries what a match needs to begin.
type StartInput struct {
	MatchID string
	Tier    engine.Tier
	Rules   engine.Rules
	Seats   []engine.SeatConfig
	Rand    *rand.Rand
	// Snapshot is the host's initial state in host-authority rooms.
	Snapshot *engine.Snapshot
}

// Authority computes the truth of a room. The room relays whatever it
// returns without looking at game semantics.
type Authority interface {
	Kind() string
	Start(in StartInput) (Resolution, error)
	ApplyIntent(seat engine.Slot, in Intent) (Resolution, error)
	// Publish accepts a snapshot computed elsewhere.
	Publish(env replica.Envelope) (Resolution, error)
	Abandon(reason string) Resolution
	Snapshot() (replica.Envelope, bool)
	CurrentActor() engine.Slot
	Done() bool
}

// EngineAuthority runs the turn state machine on the server.
type EngineAuthority struct {
	match   *engine.Match
	tracker *replica.Tracker
}

func NewEngineAuthority() *EngineAuthority {
	return &EngineAuthority{tracker: replica.NewTracker()}
}

func (a *EngineAuthority) Kind() string { return AuthorityServer }

func (a *EngineAuthority) Start(in StartInput) (Resolution, error) {
	if a.match != nil {
		return Resolution{}, engine.ErrAlreadyStarted
	}
	m, err := engine.New(engine.Config{
		ID:    in.MatchID,
		Tier:  in.Tier,
		Rules: in.Rules,
		Seats: in.Seats,
		Rand:  in.Rand,
	})
	if err != nil {
		return Resolution{}, fmt.Errorf("new match: %w", err)
	}
	if _, err := m.CoinFlip(); err != nil {
		return Resolution{}, fmt.Errorf("coin flip: %w", err)
	}
	a.match = m
	return a.resolved(), nil
}

func (a *EngineAuthority) ApplyIntent(seat engine.Slot, in Intent) (Resolution, error) {
	if a.match == nil {
		return Resolution{}, engine.ErrNotStarted
	}
	switch in.Type {
	case IntentShoot:
		if _, err := a.match.Shoot(seat, in.Target); err != nil {
			return Resolution{}, err
		}
	case IntentUseItem:
		out, err := a.match.UseItem(seat, in.Item, in.Target)
		if err != nil {
			return Resolution{}, err
		}
		if out.PendingTarget {
			return Resolution{Pending: &out}, nil
		}
	case IntentTimeout:
		if in.Relayed {
			return Resolution{}, ErrInvalidIntent
		}
		if err := a.match.Timeout(seat); err != nil {
			return Resolution{}, err
		}
	case IntentForfeit:
		a.match.Eliminate(seat, "left")
	default:
		return Resolution{}, ErrInvalidIntent
	}
	return a.resolved(), nil
}

func (a *EngineAuthority) Publish(replica.Envelope) (Resolution, error) {
	return Resolution{}, ErrNotAuthority
}

func (a *EngineAuthority) Abandon(reason string) Resolution {
	if a.match == nil {
		return Resolution{}
	}
	a.match.Abandon(reason)
	return a.resolved()
}

func (a *EngineAuthority) resolved() Resolution {
	env := a.tracker.Stamp(a.match.Snapshot())
	return Resolution{Events: a.match.DrainEvents(), State: &env}
}

func (a *EngineAuthority) Snapshot() (replica.Envelope, bool) {
	return a.tracker.Last()
}

func (a *EngineAuthority) CurrentActor() engine.Slot {
	if a.match == nil || a.match.Over() {
		return engine.NoSlot
	}
	return a.match.Current
}

func (a *EngineAuthority) Done() bool {
	return a.match != nil && a.match.Over()
}

// HostAuthority treats the host peer as the authority: the server checks
// turn ownership against the last accepted host snapshot, forwards guest
// intents to the host and relays host snapshots.
type HostAuthority struct {
	host      engine.Slot
	tracker   *replica.Tracker
	abandoned bool
}

func NewHostAuthority(host engine.Slot) *HostAuthority {
	return &HostAuthority{host: host, tracker: replica.NewTracker()}
}

func (a *HostAuthority) Kind() string { return AuthorityHost }

func (a *HostAuthority) Start(in StartInput) (Resolution, error) {
	if _, ok := a.tracker.Last(); ok {
		return Resolution{}, engine.ErrAlreadyStarted
	}
	if in.Snapshot == nil {
		return Resolution{}, ErrMissingState
	}
	if err := in.Snapshot.Validate(); err != nil {
		return Resolution{}, err
	}
	if len(in.Snapshot.Combatants) != len(in.Seats) {
		return Resolution{}, fmt.Errorf("%w: %d combatants for %d seats",
			engine.ErrBadSnapshot, len(in.Snapshot.Combatants), len(in.Seats))
	}
	env, _ := a.tracker.Accept(replica.Envelope{Snapshot: *in.Snapshot})
	return Resolution{State: &env}, nil
}

func (a *HostAuthority) ApplyIntent(seat engine.Slot, in Intent) (Resolution, error) {
	last, ok := a.tracker.Last()
	if !ok {
		return Resolution{}, engine.ErrNotStarted
	}
	if a.Done() {
		return Resolution{}, engine.ErrGameOver
	}
	if in.Type == IntentForfeit {
		return Resolution{}, nil
	}
	if seat == a.host {
		// The host already resolved the action locally.
		if in.Type == IntentTimeout {
			if err := checkTimeout(last.Snapshot, in.Events); err != nil {
				return Resolution{}, err
			}
		}
		return Resolution{Events: in.Events}, nil
	}
	switch in.Type {
	case IntentShoot, IntentUseItem:
	default:
		return Resolution{}, ErrInvalidIntent
	}
	if last.Snapshot.Phase != engine.PhaseTurn || last.Snapshot.Current != seat {
		return Resolution{}, engine.ErrNotYourTurn
	}
	if in.Type == IntentUseItem {
		if err := checkItem(last.Snapshot, seat, in); err != nil {
			return Resolution{}, err
		}
	}
	return Resolution{Forward: true}, nil
}

// checkTimeout accepts a host timeout only for the seat whose turn the last
// snapshot shows.
func checkTimeout(s engine.Snapshot, evs []engine.Event) error {
	if s.Phase != engine.PhaseTurn {
		return fmt.Errorf("%w: no turn in progress", ErrInvalidIntent)
	}
	found := false
	for _, ev := range evs {
		if ev.Type != engine.EventTimeout {
			continue
		}
		if ev.Actor != s.Current {
			return fmt.Errorf("%w: timeout for %s during the turn of %s", ErrInvalidIntent, ev.Actor, s.Current)
		}
		found = true
	}
	if !found {
		return fmt.Errorf("%w: missing timeout event", ErrInvalidIntent)
	}
	return nil
}

// checkItem rejects guest item uses the host would refuse anyway.
func checkItem(s engine.Snapshot, seat engine.Slot, in Intent) error {
	if _, ok := engine.LookupItem(in.Item); !ok {
		return engine.ErrUnknownItem
	}
	m, err := engine.Restore(s, nil)
	if err != nil {
		return err
	}
	if !m.Combatant(seat).HasItem(in.Item) {
		return engine.ErrItemNotHeld
	}
	if !m.CanUseItem(seat, in.Item, in.Target) {
		return engine.ErrItemUnusable
	}
	return nil
}

func (a *HostAuthority) Publish(env replica.Envelope) (Resolution, error) {
	if _, ok := a.tracker.Last(); !ok {
		return Resolution{}, engine.ErrNotStarted
	}
	if err := env.Snapshot.Validate(); err != nil {
		return Resolution{}, err
	}
	merged, ok := a.tracker.Accept(env)
	if !ok {
		return Resolution{}, ErrStaleState
	}
	return Resolution{State: &merged}, nil
}

func (a *HostAuthority) Abandon(string) Resolution {
	a.abandoned = true
	return Resolution{}
}

func (a *HostAuthority) Snapshot() (replica.Envelope, bool) {
	return a.tracker.Last()
}

func (a *HostAuthority) CurrentActor() engine.Slot {
	last, ok := a.tracker.Last()
	if !ok || a.Done() {
		return engine.NoSlot
	}
	return last.Snapshot.Current
}

func (a *HostAuthority) Done() bool {
	if a.abandoned {
		return true
	}
	last, ok := a.tracker.Last()
	return ok && last.Snapshot.Phase == engine.PhaseGameOver
}
