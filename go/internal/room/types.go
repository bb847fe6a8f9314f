package room

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcdev12/lastround/go/internal/bot"
	"github.com/mcdev12/lastround/go/internal/engine"
)

// Notifier delivers named events to connected peers.
type Notifier interface {
	SendToPeer(peerID, event string, data any)
	Broadcast(peerIDs []string, event string, data any)
}

// ResultSink receives finished matches. It is called on its own goroutine,
// never under a room lock.
type ResultSink interface {
	ReportResult(ctx context.Context, report ResultReport) error
}

// ResultSinkFunc adapts a function to ResultSink.
type ResultSinkFunc func(ctx context.Context, report ResultReport) error

func (f ResultSinkFunc) ReportResult(ctx context.Context, report ResultReport) error {
	return f(ctx, report)
}

// Match modes recorded with results.
const (
	ModeDuel = "1v1"
	ModeFFA  = "ffa"
	ModeSolo = "solo"
)

// ReportedSeat is one participant of a finished match.
type ReportedSeat struct {
	PeerID   string
	Identity string
	Name     string
	Slot     engine.Slot
	IsBot    bool
	Rank     int
	FinalHP  int
	Stats    engine.Stats
	Won      bool
}

// ResultReport describes a finished match.
type ResultReport struct {
	RoomCode     string
	MatchID      string
	Ranked       bool
	Mode         string
	Tier         engine.Tier
	BotLevel     *int
	VictoryType  string
	RoundsPlayed int
	Winner       engine.Slot
	Participants []ReportedSeat
	Final        engine.Snapshot
}

// WinnerSeat returns the winning participant, if there is one.
func (r ResultReport) WinnerSeat() (ReportedSeat, bool) {
	for _, p := range r.Participants {
		if p.Won {
			return p, true
		}
	}
	return ReportedSeat{}, false
}

// Config tunes room behavior.
type Config struct {
	TurnTimeout     time.Duration
	BotThinkTime    time.Duration
	BotItemsPerTurn int
	ActionRate      rate.Limit
	ActionBurst     int
	CodeLength      int
	ResultTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		TurnTimeout:     30 * time.Second,
		BotThinkTime:    900 * time.Millisecond,
		BotItemsPerTurn: 3,
		ActionRate:      rate.Limit(8),
		ActionBurst:     16,
		CodeLength:      4,
		ResultTimeout:   10 * time.Second,
	}
}

// Seat is one member of a room. Seats of a started room are never removed,
// only marked as left, so slots stay stable.
type Seat struct {
	PeerID   string
	Name     string
	Identity string
	IsBot    bool
	Left     bool
	Slot     engine.Slot
}

func (s *Seat) connected() bool {
	return !s.IsBot && !s.Left
}

// RankedSeat seats one matched queue entry in a ranked room.
type RankedSeat struct {
	PeerID   string
	Name     string
	Identity string
}

// Room is one lobby and its match. All fields are guarded by mu.
type Room struct {
	Code      string
	CreatedAt time.Time

	mu        sync.Mutex
	host      string
	seats     []*Seat
	capacity  int
	tier      engine.Tier
	mode      string
	ranked    bool
	matchID   string
	botLevel  *int
	authority Authority
	started   bool
	ended     bool
	closed    bool
	clock     *turnClock

	bot        *bot.Profile
	botRand    *rand.Rand
	memories   map[engine.Slot]*bot.Memory
	botItems   int
	eliminated []engine.Slot
	endReason  string
}
