package events

import (
	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/replica"
)

// Requests

// CreateRoomPayload is the payload of room:create. Authority is "host"
// (default) or "server"; Tier defaults to pvp.
type CreateRoomPayload struct {
	DisplayName string      `json:"displayName"`
	Identity    string      `json:"identity,omitempty"`
	Authority   string      `json:"authority,omitempty"`
	Tier        engine.Tier `json:"tier,omitempty"`
}

// JoinRoomPayload is the payload of room:join.
type JoinRoomPayload struct {
	Code        string `json:"code"`
	DisplayName string `json:"displayName"`
	Identity    string `json:"identity,omitempty"`
}

// SoloRoomPayload starts a match against a bot of the given 1-4 level.
type SoloRoomPayload struct {
	DisplayName string `json:"displayName"`
	Identity    string `json:"identity,omitempty"`
	Level       int    `json:"level"`
}

type KickPayload struct {
	TargetID string `json:"targetId"`
}

type ChatPayload struct {
	Text string `json:"text"`
}

// StartPayload is the payload of game:start. Host-authority rooms send the
// initial snapshot; server-authority rooms may pin the seed.
type StartPayload struct {
	Seed  *int64           `json:"seed,omitempty"`
	State *engine.Snapshot `json:"initialState,omitempty"`
}

// ActionPayload is the payload of game:action. From a guest it is an intent;
// from the host of a host-authority room it also carries the resolved events.
type ActionPayload struct {
	Intent string          `json:"intent"`
	Target *engine.Slot    `json:"target,omitempty"`
	ItemID engine.ItemKind `json:"itemId,omitempty"`
	Events []engine.Event  `json:"events,omitempty"`
}

// StatePayload is the payload of game:state in both directions.
type StatePayload = replica.Envelope

type RankedJoinPayload struct {
	DisplayName string `json:"displayName"`
	Identity    string `json:"identity,omitempty"`
}

// Responses

// PlayerInfo describes one seat of a room.
type PlayerInfo struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Identity string      `json:"identity,omitempty"`
	IsHost   bool        `json:"isHost"`
	IsBot    bool        `json:"isBot,omitempty"`
	Seat     engine.Slot `json:"seat"`
}

// RoomInfo is attached to most room:* events.
type RoomInfo struct {
	Code        string       `json:"code"`
	HostID      string       `json:"hostId"`
	HostName    string       `json:"hostName"`
	Authority   string       `json:"authority"`
	Tier        engine.Tier  `json:"tier"`
	Ranked      bool         `json:"ranked,omitempty"`
	MatchID     string       `json:"matchId,omitempty"`
	Players     []PlayerInfo `json:"players"`
	GameStarted bool         `json:"gameStarted"`
	GameEnded   bool         `json:"gameEnded"`
}

// RoomJoinedPayload answers room:create and room:join.
type RoomJoinedPayload struct {
	RoomInfo
	IsHost bool        `json:"isHost"`
	Seat   engine.Slot `json:"seat"`
}

type PlayerJoinedPayload struct {
	RoomInfo
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type PlayerLeftPayload struct {
	RoomInfo
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	WasHost    bool   `json:"wasHost"`
}

type PromotedHostPayload struct {
	RoomInfo
}

// NoticePayload carries a human readable message (host-left, guest-left,
// kicked).
type NoticePayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type ChatMessagePayload struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Identity   string `json:"identity,omitempty"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// ErrorPayload carries a stable reason and a display message.
type ErrorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

// ActionRelayPayload is game:action as sent to peers: the events of one
// resolved action, redacted for the receiver.
type ActionRelayPayload struct {
	PlayerID string         `json:"playerId"`
	Seat     engine.Slot    `json:"seat"`
	Events   []engine.Event `json:"events"`
}

// IntentPayload forwards a guest's intent to the host of a host-authority
// room.
type IntentPayload struct {
	PlayerID string        `json:"playerId"`
	Seat     engine.Slot   `json:"seat"`
	Action   ActionPayload `json:"action"`
}

// ChooseTargetPayload asks the actor to pick a target for an item.
type ChooseTargetPayload struct {
	Item       engine.ItemKind `json:"item"`
	Candidates []engine.Slot   `json:"candidates"`
}

type GameEndedPayload struct {
	Code       string      `json:"code"`
	Winner     engine.Slot `json:"winner"`
	WinnerName string      `json:"winnerName,omitempty"`
	Reason     string      `json:"reason"`
}

type QueueStatusPayload struct {
	Position    int `json:"position"`
	WaitSeconds int `json:"waitSeconds"`
	Range       int `json:"range"`
}

type RankedPlayer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Elo      int    `json:"elo"`
}

type MatchFoundPayload struct {
	MatchID  string       `json:"matchId"`
	RoomCode string       `json:"roomCode"`
	Self     RankedPlayer `json:"self"`
	Opponent RankedPlayer `json:"opponent"`
}

// RankedResultPayload reports a committed rating change to one participant.
type RankedResultPayload struct {
	MatchID string `json:"matchId"`
	Won     bool   `json:"won"`
	Before  int    `json:"before"`
	After   int    `json:"after"`
	Delta   int    `json:"delta"`
}

type PongPayload struct {
	Time int64 `json:"time"`
}
