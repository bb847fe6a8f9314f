package room

import (
	"errors"

	"github.com/mcdev12/lastround/go/internal/engine"
)

var (
	ErrNameRequired      = errors.New("display name required")
	ErrInvalidCode       = errors.New("invalid room code")
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrGameStarted       = errors.New("game already started")
	ErrGameEnded         = errors.New("game already ended")
	ErrDuplicateIdentity = errors.New("identity already seated in this room")
	ErrAlreadyInRoom     = errors.New("already in a room")
	ErrNotInRoom         = errors.New("not in a room")
	ErrNotHost           = errors.New("only the host can do that")
	ErrNotSeated         = errors.New("target is not seated in this room")
	ErrNotEnoughPlayers  = errors.New("not enough players")
	ErrInvalidChat       = errors.New("chat message must be 1-240 characters")
	ErrChatClosed        = errors.New("chat is closed once the game starts")
	ErrRateLimited       = errors.New("too many actions")
	ErrInvalidIntent     = errors.New("invalid intent")
	ErrNotAuthority      = errors.New("only the authoritative peer can publish state")
	ErrStaleState        = errors.New("stale state")
	ErrInvalidTier       = errors.New("invalid tier")
	ErrInvalidAuthority  = errors.New("invalid authority")
	ErrInvalidBotLevel   = errors.New("invalid bot level")
	ErrMissingState      = errors.New("initial state required")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrNameRequired, "name_required"},
	{ErrInvalidCode, "invalid_code"},
	{ErrRoomNotFound, "room_not_found"},
	{ErrRoomFull, "room_full"},
	{ErrGameStarted, "game_started"},
	{ErrGameEnded, "game_ended"},
	{ErrDuplicateIdentity, "duplicate_identity"},
	{ErrAlreadyInRoom, "already_in_room"},
	{ErrNotInRoom, "not_in_room"},
	{ErrNotHost, "not_host"},
	{ErrNotSeated, "not_seated"},
	{ErrNotEnoughPlayers, "not_enough_players"},
	{ErrInvalidChat, "invalid_chat"},
	{ErrChatClosed, "chat_closed"},
	{ErrRateLimited, "rate_limited"},
	{ErrInvalidIntent, "invalid_intent"},
	{ErrNotAuthority, "not_authority"},
	{ErrStaleState, "stale_state"},
	{ErrInvalidTier, "invalid_tier"},
	{ErrInvalidAuthority, "invalid_authority"},
	{ErrInvalidBotLevel, "invalid_bot_level"},
	{ErrMissingState, "missing_state"},
	{engine.ErrNotYourTurn, "not_your_turn"},
	{engine.ErrNotStarted, "not_started"},
	{engine.ErrGameOver, "game_over"},
	{engine.ErrInvalidTarget, "invalid_target"},
	{engine.ErrUnknownItem, "unknown_item"},
	{engine.ErrItemNotHeld, "item_not_held"},
	{engine.ErrItemUnusable, "item_unusable"},
	{engine.ErrBadSnapshot, "bad_snapshot"},
	{engine.ErrInvalidSeatCount, "invalid_seat_count"},
}

// Reason maps an error to the stable reason string sent in room:error.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
