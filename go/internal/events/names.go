// Package events holds the named-event surface shared by the gateway, the
// room manager and the matchmaking service.
package events

// Client to server.
const (
	RoomCreate  = "room:create"
	RoomJoin    = "room:join"
	RoomLeave   = "room:leave"
	RoomKick    = "room:kick"
	RoomChat    = "room:chat"
	RoomSolo    = "room:solo"
	GameStart   = "game:start"
	GameAction  = "game:action"
	GameState   = "game:state"
	RankedJoin  = "ranked:join"
	RankedLeave = "ranked:leave"
	Ping        = "ping"
)

// Server to client. game:state and game:action are also relayed outward.
const (
	RoomCreated      = "room:created"
	RoomJoined       = "room:joined"
	RoomPlayerJoined = "room:player-joined"
	RoomReady        = "room:ready"
	RoomPlayerLeft   = "room:player-left"
	RoomPromotedHost = "room:promoted-host"
	RoomHostLeft     = "room:host-left"
	RoomGuestLeft    = "room:guest-left"
	RoomKicked       = "room:kicked"
	RoomGameEnded    = "room:game-ended"
	RoomError        = "room:error"
	GameIntent       = "game:intent"
	GameChooseTarget = "game:choose-target"

	RankedQueueStatus = "ranked:queueStatus"
	RankedMatchFound  = "ranked:matchFound"
	RankedCancelled   = "ranked:cancelled"
	RankedResult      = "ranked:result"
	RankedError       = "ranked:error"

	Pong = "pong"
)
