package engine

import "errors"

var (
	ErrInvalidRules     = errors.New("invalid rules")
	ErrInvalidSeatCount = errors.New("a match needs 2 or 3 combatants")
	ErrNotStarted       = errors.New("match has not started")
	ErrAlreadyStarted   = errors.New("match already started")
	ErrGameOver         = errors.New("match is over")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrInvalidTarget    = errors.New("invalid target")
	ErrUnknownItem      = errors.New("unknown item")
	ErrItemNotHeld      = errors.New("item not held")
	ErrItemUnusable     = errors.New("item cannot be used now")
	ErrBadSnapshot      = errors.New("invalid snapshot")
)
