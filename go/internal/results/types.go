package results

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyCommitted  = errors.New("match result already committed")
	ErrInvalidMatchSetup = errors.New("invalid match setup")
)

// Outbox event types.
const (
	EventRankedMatchCreated = "ranked.match_created"
	EventMatchCompleted     = "match.completed"
)

// Victory types with special handling. VictoryPending marks a ranked match
// whose result has not been committed; VictoryAbandoned completes a match
// without rating changes.
const (
	VictoryPending   = "pending"
	VictoryAbandoned = "abandoned"
)

// DefaultRating is the rating of an identity's first ranked match.
const DefaultRating = 1000

// Rating is one identity's persisted rating in one mode.
type Rating struct {
	UserID      string `json:"userId"`
	Mode        string `json:"mode"`
	Elo         int    `json:"elo"`
	GamesPlayed int    `json:"gamesPlayed"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
}

// RankedSeat is a participant's pre-match rating.
type RankedSeat struct {
	UserID    string `json:"userId"`
	EloBefore int    `json:"eloBefore"`
}

// ParticipantResult is one combatant's line in a match record.
type ParticipantResult struct {
	UserID     string `json:"userId,omitempty"`
	Rank       int    `json:"rank"`
	FinalHP    int    `json:"finalHp"`
	ShotsFired int    `json:"shotsFired"`
	ShotsTaken int    `json:"shotsTaken"`
	ItemsUsed  int    `json:"itemsUsed"`
	IsBot      bool   `json:"isBot"`
}

// RatingChange is the outcome of the rating math for one participant.
type RatingChange struct {
	UserID   string  `json:"userId"`
	Before   int     `json:"before"`
	After    int     `json:"after"`
	Delta    int     `json:"delta"`
	Expected float64 `json:"expected"`
	K        int     `json:"k"`
	Won      bool    `json:"won"`
}

// RankedResult completes a match created by CreateRankedMatch.
type RankedResult struct {
	MatchID      uuid.UUID
	Mode         string
	WinnerID     string
	VictoryType  string
	RoundsPlayed int
	Participants []ParticipantResult
	Changes      []RatingChange
	Summary      json.RawMessage
}

// MatchRecord is an unranked result (casual rooms, bot rooms).
type MatchRecord struct {
	Mode         string
	VictoryType  string
	BotLevel     *int
	RoundsPlayed int
	WinnerID     string
	Participants []ParticipantResult
	Summary      json.RawMessage
}

// ParticipantDetails is a stored participant row.
type ParticipantDetails struct {
	ParticipantResult
	EloBefore *int `json:"eloBefore,omitempty"`
	EloAfter  *int `json:"eloAfter,omitempty"`
	EloDelta  *int `json:"eloDelta,omitempty"`
}

// MatchDetails is a stored match with its participants.
type MatchDetails struct {
	ID           uuid.UUID            `json:"id"`
	Mode         string               `json:"mode"`
	VictoryType  string               `json:"victoryType"`
	BotLevel     *int                 `json:"botLevel,omitempty"`
	RoundsPlayed int                  `json:"roundsPlayed"`
	WinnerID     string               `json:"winnerId,omitempty"`
	IsRanked     bool                 `json:"isRanked"`
	Summary      json.RawMessage      `json:"summary,omitempty"`
	Participants []ParticipantDetails `json:"participants"`
}

// OutboxEvent is a row waiting to be relayed to the event bus.
type OutboxEvent struct {
	ID          uuid.UUID
	AggregateID string
	EventType   string
	Payload     []byte
}

// EventPublisher delivers outbox events to the bus.
type EventPublisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
