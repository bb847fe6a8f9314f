package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/lastround/go/internal/auth"
	"github.com/mcdev12/lastround/go/internal/engine"
	"github.com/mcdev12/lastround/go/internal/gateway"
	"github.com/mcdev12/lastround/go/internal/ranked"
	"github.com/mcdev12/lastround/go/internal/results"
	"github.com/mcdev12/lastround/go/internal/room"
)

type Services struct {
	Store       *results.Store
	Rooms       *room.Manager
	Ranked      *ranked.Service
	RankedAPI   *ranked.API
	Connections *gateway.ConnectionManager
	WebSocket   *gateway.WebSocketHandler
	Relay       *results.Relay

	closePublisher func() error
}

func setupServices(ctx context.Context, cfg Config, store *results.Store, rules *engine.RuleBook) (*Services, error) {
	// Wire up dependency injection chain
	// Store → result sink → room manager → matchmaker → gateway
	clock := clockwork.NewRealClock()

	var verifier gateway.TokenVerifier
	if cfg.AuthSecret != "" {
		v, err := auth.NewVerifier(auth.Config{Secret: cfg.AuthSecret, Issuer: cfg.AuthIssuer})
		if err != nil {
			return nil, fmt.Errorf("setup token verifier: %w", err)
		}
		verifier = v
	} else {
		log.Warn().Msg("AUTH_JWT_SECRET not set, accepting anonymous connections")
	}

	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	sink := &resultRouter{store: store}
	rooms := room.NewManager(cfg.roomConfig(), connections, rules, clock, sink)
	rankedSvc := ranked.NewService(store, rooms, connections, cfg.rankedConfig(), clock)
	sink.ranked = rankedSvc

	connections.SetHandler(gateway.NewDispatcher(rooms, rankedSvc, connections, clock))
	ws := gateway.NewWebSocketHandler(connections, verifier, rooms.Stats)

	publisher, closePublisher, err := setupPublisher(ctx, cfg)
	if err != nil {
		return nil, err
	}
	relay := results.NewRelay(store, publisher, cfg.relayConfig(), clock)

	return &Services{
		Store:          store,
		Rooms:          rooms,
		Ranked:         rankedSvc,
		RankedAPI:      ranked.NewAPI(rankedSvc),
		Connections:    connections,
		WebSocket:      ws,
		Relay:          relay,
		closePublisher: closePublisher,
	}, nil
}

func setupPublisher(ctx context.Context, cfg Config) (results.EventPublisher, func() error, error) {
	if cfg.NATSURL == "" {
		log.Warn().Msg("NATS_URL not set, outbox events are logged only")
		return results.LogPublisher, func() error { return nil }, nil
	}
	jsCfg := results.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	pub, err := results.NewJetStreamPublisher(ctx, jsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("setup JetStream publisher: %w", err)
	}
	log.Info().Str("nats_url", cfg.NATSURL).Str("stream", jsCfg.StreamName).Msg("publishing outbox to JetStream")
	return pub, pub.Close, nil
}

// Start launches the background workers.
func (s *Services) Start(ctx context.Context) error {
	if err := s.Relay.Start(ctx); err != nil {
		return fmt.Errorf("start outbox relay: %w", err)
	}
	if err := s.Ranked.Start(ctx); err != nil {
		return fmt.Errorf("start matchmaking: %w", err)
	}
	return nil
}

// Stop drains in the reverse order of Start. Rooms are closed before the
// relay so pending results still reach the outbox.
func (s *Services) Stop() error {
	var errs []error
	if err := s.Ranked.Stop(); err != nil {
		errs = append(errs, err)
	}
	s.Connections.Close()
	s.Rooms.Close()
	if err := s.Relay.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.closePublisher(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// resultRouter sends ranked reports to the matchmaker, which owns rating
// math, and stores everything else directly.
type resultRouter struct {
	store  *results.Store
	ranked *ranked.Service
}

func (r *resultRouter) ReportResult(ctx context.Context, report room.ResultReport) error {
	if report.Ranked {
		return r.ranked.ReportResult(ctx, report)
	}
	id, err := r.store.RecordMatch(ctx, matchRecord(report))
	if err != nil {
		return fmt.Errorf("record match %s: %w", report.RoomCode, err)
	}
	log.Info().
		Str("room_code", report.RoomCode).
		Str("match_id", id.String()).
		Str("victory_type", report.VictoryType).
		Msg("match recorded")
	return nil
}

type matchSummary struct {
	RoomCode   string             `json:"roomCode"`
	Tier       engine.Tier        `json:"tier"`
	Winner     engine.Slot        `json:"winner"`
	Reason     string             `json:"reason"`
	Combatants []engine.Combatant `json:"combatants"`
}

func matchRecord(report room.ResultReport) results.MatchRecord {
	rec := results.MatchRecord{
		Mode:         report.Mode,
		VictoryType:  report.VictoryType,
		BotLevel:     report.BotLevel,
		RoundsPlayed: report.RoundsPlayed,
	}
	if w, ok := report.WinnerSeat(); ok && !w.IsBot {
		rec.WinnerID = w.Identity
	}
	for _, p := range report.Participants {
		rec.Participants = append(rec.Participants, results.ParticipantResult{
			UserID:     p.Identity,
			Rank:       p.Rank,
			FinalHP:    p.FinalHP,
			ShotsFired: p.Stats.ShotsFired,
			ShotsTaken: p.Stats.ShotsTaken,
			ItemsUsed:  p.Stats.ItemsUsed,
			IsBot:      p.IsBot,
		})
	}
	summary, err := json.Marshal(matchSummary{
		RoomCode:   report.RoomCode,
		Tier:       report.Tier,
		Winner:     report.Winner,
		Reason:     report.VictoryType,
		Combatants: report.Final.Combatants,
	})
	if err == nil {
		rec.Summary = summary
	}
	return rec
}
