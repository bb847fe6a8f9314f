package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lastround/go/internal/events"
	"github.com/mcdev12/lastround/go/internal/ranked"
	"github.com/mcdev12/lastround/go/internal/replica"
	"github.com/mcdev12/lastround/go/internal/room"
)

const (
	reasonBadFrame     = "bad_frame"
	reasonBadPayload   = "bad_payload"
	reasonUnknownEvent = "unknown_event"
	reasonRankedQueued = "ranked_queued"
)

var errRankedQueued = errors.New("leave the ranked queue first")

// Rooms is the part of the room manager the gateway drives.
type Rooms interface {
	CreateRoom(peer string, req events.CreateRoomPayload) (string, error)
	JoinRoom(peer string, req events.JoinRoomPayload) error
	CreateBotRoom(peer string, req events.SoloRoomPayload) (string, error)
	LeaveRoom(peer string)
	Disconnect(peer string)
	Kick(host, target string) error
	Chat(peer, text string) error
	StartGame(peer string, req events.StartPayload) error
	SubmitAction(peer string, action events.ActionPayload) error
	PublishState(peer string, env replica.Envelope) error
}

// Matchmaker is the part of the ranked service the gateway drives.
type Matchmaker interface {
	Enqueue(ctx context.Context, peer, identity, name string) error
	Leave(peer string)
	Queued(peer string) bool
	QueuedIdentity(identity string) bool
}

type Notifier interface {
	SendToPeer(peerID, event string, data any)
}

// Dispatcher routes inbound frames to the room manager and the matchmaker.
type Dispatcher struct {
	rooms    Rooms
	ranked   Matchmaker
	notifier Notifier
	clock    clockwork.Clock
}

func NewDispatcher(rooms Rooms, ranked Matchmaker, notifier Notifier, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{rooms: rooms, ranked: ranked, notifier: notifier, clock: clock}
}

func (d *Dispatcher) HandleMessage(ctx context.Context, peer Peer, env Envelope) {
	switch env.Event {
	case events.Ping:
		d.notifier.SendToPeer(peer.ID, events.Pong, events.PongPayload{Time: d.clock.Now().UnixMilli()})

	case events.RoomCreate:
		var req events.CreateRoomPayload
		if d.bind(peer, env, &req) {
			req.Identity = identityFor(peer, req.Identity)
			req.DisplayName = nameFor(peer, req.DisplayName)
			d.roomResult(peer, d.guardQueued(peer, req.Identity, func() error {
				_, err := d.rooms.CreateRoom(peer.ID, req)
				return err
			}))
		}

	case events.RoomJoin:
		var req events.JoinRoomPayload
		if d.bind(peer, env, &req) {
			req.Identity = identityFor(peer, req.Identity)
			req.DisplayName = nameFor(peer, req.DisplayName)
			d.roomResult(peer, d.guardQueued(peer, req.Identity, func() error {
				return d.rooms.JoinRoom(peer.ID, req)
			}))
		}

	case events.RoomSolo:
		var req events.SoloRoomPayload
		if d.bind(peer, env, &req) {
			req.Identity = identityFor(peer, req.Identity)
			req.DisplayName = nameFor(peer, req.DisplayName)
			d.roomResult(peer, d.guardQueued(peer, req.Identity, func() error {
				_, err := d.rooms.CreateBotRoom(peer.ID, req)
				return err
			}))
		}

	case events.RoomLeave:
		d.rooms.LeaveRoom(peer.ID)

	case events.RoomKick:
		var req events.KickPayload
		if d.bind(peer, env, &req) {
			d.roomResult(peer, d.rooms.Kick(peer.ID, req.TargetID))
		}

	case events.RoomChat:
		var req events.ChatPayload
		if d.bind(peer, env, &req) {
			d.roomResult(peer, d.rooms.Chat(peer.ID, req.Text))
		}

	case events.GameStart:
		var req events.StartPayload
		if d.bind(peer, env, &req) {
			d.roomResult(peer, d.rooms.StartGame(peer.ID, req))
		}

	case events.GameAction:
		var req events.ActionPayload
		if d.bind(peer, env, &req) {
			d.roomResult(peer, d.rooms.SubmitAction(peer.ID, req))
		}

	case events.GameState:
		var req events.StatePayload
		if d.bind(peer, env, &req) {
			d.roomResult(peer, d.rooms.PublishState(peer.ID, req))
		}

	case events.RankedJoin:
		var req events.RankedJoinPayload
		if !d.bind(peer, env, &req) {
			return
		}
		err := d.ranked.Enqueue(ctx, peer.ID, identityFor(peer, req.Identity), nameFor(peer, req.DisplayName))
		if err != nil {
			d.notifier.SendToPeer(peer.ID, events.RankedError, errorPayload(ranked.Reason(err), err))
		}

	case events.RankedLeave:
		d.ranked.Leave(peer.ID)

	default:
		log.Debug().Str("peer_id", peer.ID).Str("event", env.Event).Msg("Unknown event")
		d.notifier.SendToPeer(peer.ID, events.RoomError, events.ErrorPayload{
			Reason:  reasonUnknownEvent,
			Message: "unknown event " + env.Event,
		})
	}
}

// Disconnect releases everything the peer held.
func (d *Dispatcher) Disconnect(peerID string) {
	d.ranked.Leave(peerID)
	d.rooms.Disconnect(peerID)
}

// bind decodes the payload into v, answering room:error when it is malformed.
func (d *Dispatcher) bind(peer Peer, env Envelope, v any) bool {
	if len(env.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		d.notifier.SendToPeer(peer.ID, events.RoomError, errorPayload(reasonBadPayload, err))
		return false
	}
	return true
}

// guardQueued refuses room requests from a peer, or an identity on any
// device, that is in the ranked queue.
func (d *Dispatcher) guardQueued(peer Peer, identity string, fn func() error) error {
	if d.ranked.Queued(peer.ID) || d.ranked.QueuedIdentity(identity) {
		return errRankedQueued
	}
	return fn()
}

func (d *Dispatcher) roomResult(peer Peer, err error) {
	if err == nil {
		return
	}
	reason := room.Reason(err)
	if errors.Is(err, errRankedQueued) {
		reason = reasonRankedQueued
	}
	log.Debug().Err(err).Str("peer_id", peer.ID).Str("reason", reason).Msg("Room request rejected")
	d.notifier.SendToPeer(peer.ID, events.RoomError, errorPayload(reason, err))
}

// identityFor prefers the verified token subject over a claimed identity.
func identityFor(peer Peer, claimed string) string {
	if peer.UserID != "" {
		return peer.UserID
	}
	return strings.TrimSpace(claimed)
}

func nameFor(peer Peer, requested string) string {
	if strings.TrimSpace(requested) == "" {
		return peer.Name
	}
	return requested
}

func errorPayload(reason string, err error) events.ErrorPayload {
	return events.ErrorPayload{Reason: reason, Message: err.Error()}
}
