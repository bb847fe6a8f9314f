// Package replica implements snapshot replication between the authoritative
// peer of a room and everyone else.
package replica

import (
	"sync"

	"github.com/mcdev12/lastround/go/internal/engine"
)

// Envelope is a versioned snapshot as it travels between peers.
type Envelope struct {
	Seq      uint64          `json:"seq"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

// Version orders snapshots.
type Version struct {
	ReloadCount int    `json:"reloadCount"`
	Seq         uint64 `json:"seq"`
}

func (e Envelope) Version() Version {
	return Version{ReloadCount: e.Snapshot.ReloadCount, Seq: e.Seq}
}

// Newer reports whether v supersedes o: a later sequence that does not move
// the reload counter backwards.
func (v Version) Newer(o Version) bool {
	return v.Seq > o.Seq && v.ReloadCount >= o.ReloadCount
}

// Outcome says what a merge did with the chamber.
type Outcome int

const (
	// Applied means the incoming state was taken, chamber included.
	Applied Outcome = iota
	// ChamberDeferred means bookkeeping was merged but the local chamber was
	// kept because an animation is in flight.
	ChamberDeferred
)

// Merge folds an incoming snapshot into local. The chamber is replaced when
// its contents changed (a reload happened) or when nothing is animating;
// combatants are overwritten per slot; the reload counter only moves forward.
func Merge(local, incoming engine.Snapshot, animating bool) (engine.Snapshot, Outcome) {
	merged := local.Clone()
	in := incoming.Clone()

	outcome := Applied
	if !animating || !local.Chamber.SameContents(in.Chamber) {
		merged.Chamber = in.Chamber
	} else {
		outcome = ChamberDeferred
	}

	for _, c := range in.Combatants {
		if dst := merged.Combatant(c.Slot); dst != nil {
			*dst = c
		} else {
			merged.Combatants = append(merged.Combatants, c)
		}
	}
	if in.ReloadCount > merged.ReloadCount {
		merged.ReloadCount = in.ReloadCount
	}

	merged.MatchID = in.MatchID
	merged.Tier = in.Tier
	merged.Rules = in.Rules
	merged.Phase = in.Phase
	merged.Current = in.Current
	merged.Winner = in.Winner
	merged.Rotation = in.Rotation
	merged.LastAction = in.LastAction
	merged.LastResult = in.LastResult
	return merged, outcome
}

// Tracker holds the last accepted snapshot of one room and drops envelopes
// that arrive out of order.
type Tracker struct {
	mu   sync.Mutex
	last *Envelope
	next uint64
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Accept merges env into the tracked state. It returns false when the
// envelope is stale, in which case it must be dropped silently.
func (t *Tracker) Accept(env Envelope) (Envelope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.last == nil {
		cp := Envelope{Seq: env.Seq, Snapshot: env.Snapshot.Clone()}
		t.last = &cp
		t.bump(env.Seq)
		return cp, true
	}
	if !env.Version().Newer(t.last.Version()) {
		return Envelope{}, false
	}
	merged, _ := Merge(t.last.Snapshot, env.Snapshot, false)
	t.last = &Envelope{Seq: env.Seq, Snapshot: merged}
	t.bump(env.Seq)
	return Envelope{Seq: env.Seq, Snapshot: merged.Clone()}, true
}

// Stamp wraps a locally computed snapshot with the next sequence number.
func (t *Tracker) Stamp(s engine.Snapshot) Envelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	env := Envelope{Seq: t.next, Snapshot: s.Clone()}
	t.last = &Envelope{Seq: env.Seq, Snapshot: s.Clone()}
	return env
}

// Last returns the most recently accepted envelope.
func (t *Tracker) Last() (Envelope, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return Envelope{}, false
	}
	return Envelope{Seq: t.last.Seq, Snapshot: t.last.Snapshot.Clone()}, true
}

func (t *Tracker) bump(seq uint64) {
	if seq > t.next {
		t.next = seq
	}
}
