// Package results persists ratings and match results and relays their
// events through a transactional outbox.
package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
	_ "modernc.org/sqlite"

	"github.com/mcdev12/lastround/go/internal/dbconfig"
	"github.com/mcdev12/lastround/go/internal/sqlutil"
)

// Store is the relational collaborator for ratings and match history.
type Store struct {
	db     *sql.DB
	driver string
}

// New wraps an open database. driver selects placeholder style and schema.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Open connects using cfg and verifies the connection.
func Open(ctx context.Context, cfg dbconfig.Config) (*Store, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", cfg.Driver, err)
	}
	if cfg.Driver == sqlutil.DriverSQLite {
		// SQLite allows one writer; serialize through a single connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", cfg.Driver, err)
	}
	return New(db, cfg.Driver), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) txQueries(tx *sql.Tx) *Queries {
	return newQueries(tx, s.driver)
}

// EnsureRating reads the rating row for userID, creating it at the default
// rating on first use.
func (s *Store) EnsureRating(ctx context.Context, userID, mode string) (Rating, error) {
	var r Rating
	err := sqlutil.Run(ctx, s.db, s.txQueries, func(q *Queries) error {
		if err := q.EnsureRating(ctx, userID, mode); err != nil {
			return fmt.Errorf("ensure rating: %w", err)
		}
		var err error
		r, err = q.GetRating(ctx, userID, mode)
		if err != nil {
			return fmt.Errorf("get rating: %w", err)
		}
		return nil
	})
	return r, err
}

// GetRating returns the rating row or ErrNotFound.
func (s *Store) GetRating(ctx context.Context, userID, mode string) (Rating, error) {
	r, err := newQueries(s.db, s.driver).GetRating(ctx, userID, mode)
	if errors.Is(err, sql.ErrNoRows) {
		return Rating{}, ErrNotFound
	}
	if err != nil {
		return Rating{}, fmt.Errorf("get rating: %w", err)
	}
	return r, nil
}

type matchCreatedPayload struct {
	MatchID string       `json:"matchId"`
	Mode    string       `json:"mode"`
	Seats   []RankedSeat `json:"seats"`
}

// CreateRankedMatch records a pending ranked match and each participant's
// pre-match rating in one transaction.
func (s *Store) CreateRankedMatch(ctx context.Context, mode string, seats []RankedSeat) (uuid.UUID, error) {
	if len(seats) < 2 {
		return uuid.Nil, ErrInvalidMatchSetup
	}
	id := uuid.New()
	payload, err := json.Marshal(matchCreatedPayload{MatchID: id.String(), Mode: mode, Seats: seats})
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	err = sqlutil.Run(ctx, s.db, s.txQueries, func(q *Queries) error {
		if err := q.InsertMatch(ctx, insertMatchParams{
			ID:          id,
			Mode:        mode,
			VictoryType: VictoryPending,
			IsRanked:    true,
		}); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		for _, seat := range seats {
			before := seat.EloBefore
			if err := q.InsertParticipant(ctx, insertParticipantParams{
				ID:        uuid.New(),
				MatchID:   id,
				UserID:    sqlutil.ToSqlString(seat.UserID),
				EloBefore: sqlutil.ToSqlInt32(&before),
			}); err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}
		if err := q.InsertOutbox(ctx, id.String(), EventRankedMatchCreated, payload); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	log.Info().
		Str("match_id", id.String()).
		Str("mode", mode).
		Int("seats", len(seats)).
		Msg("created ranked match")
	return id, nil
}

type matchCompletedPayload struct {
	MatchID     string         `json:"matchId"`
	Mode        string         `json:"mode"`
	Ranked      bool           `json:"ranked"`
	WinnerID    string         `json:"winnerId,omitempty"`
	VictoryType string         `json:"victoryType"`
	Rounds      int            `json:"rounds"`
	Changes     []RatingChange `json:"changes,omitempty"`
}

// CommitRankedResult writes the result, participant lines and rating updates
// of a pending ranked match atomically.
func (s *Store) CommitRankedResult(ctx context.Context, res RankedResult) error {
	changes := make(map[string]RatingChange, len(res.Changes))
	for _, c := range res.Changes {
		changes[c.UserID] = c
	}
	payload, err := json.Marshal(matchCompletedPayload{
		MatchID:     res.MatchID.String(),
		Mode:        res.Mode,
		Ranked:      true,
		WinnerID:    res.WinnerID,
		VictoryType: res.VictoryType,
		Rounds:      res.RoundsPlayed,
		Changes:     res.Changes,
	})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	err = sqlutil.Run(ctx, s.db, s.txQueries, func(q *Queries) error {
		n, err := q.CompleteMatch(ctx, res.MatchID, res.VictoryType, res.RoundsPlayed,
			sqlutil.ToSqlString(res.WinnerID), rawSummary(res.Summary))
		if err != nil {
			return fmt.Errorf("complete match: %w", err)
		}
		if n == 0 {
			return ErrAlreadyCommitted
		}
		for _, p := range res.Participants {
			c := changes[p.UserID]
			if _, err := q.UpdateParticipantResult(ctx, participantResultParams{
				MatchID:    res.MatchID,
				UserID:     p.UserID,
				Rank:       p.Rank,
				FinalHP:    p.FinalHP,
				ShotsFired: p.ShotsFired,
				ShotsTaken: p.ShotsTaken,
				ItemsUsed:  p.ItemsUsed,
				EloAfter:   c.After,
				EloDelta:   c.Delta,
				Expected:   c.Expected,
				K:          c.K,
			}); err != nil {
				return fmt.Errorf("update participant %s: %w", p.UserID, err)
			}
		}
		for _, c := range res.Changes {
			n, err := q.ApplyRating(ctx, c.UserID, res.Mode, c.After, c.Won)
			if err != nil {
				return fmt.Errorf("apply rating %s: %w", c.UserID, err)
			}
			if n == 0 {
				return fmt.Errorf("apply rating %s: %w", c.UserID, ErrNotFound)
			}
		}
		if err := q.InsertOutbox(ctx, res.MatchID.String(), EventMatchCompleted, payload); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("match_id", res.MatchID.String()).
		Str("winner_id", res.WinnerID).
		Str("victory_type", res.VictoryType).
		Msg("committed ranked result")
	return nil
}

// RecordMatch stores an unranked match result.
func (s *Store) RecordMatch(ctx context.Context, rec MatchRecord) (uuid.UUID, error) {
	id := uuid.New()
	payload, err := json.Marshal(matchCompletedPayload{
		MatchID:     id.String(),
		Mode:        rec.Mode,
		WinnerID:    rec.WinnerID,
		VictoryType: rec.VictoryType,
		Rounds:      rec.RoundsPlayed,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	err = sqlutil.Run(ctx, s.db, s.txQueries, func(q *Queries) error {
		if err := q.InsertMatch(ctx, insertMatchParams{
			ID:           id,
			Mode:         rec.Mode,
			VictoryType:  rec.VictoryType,
			BotLevel:     sqlutil.ToSqlInt32(rec.BotLevel),
			RoundsPlayed: rec.RoundsPlayed,
			WinnerID:     sqlutil.ToSqlString(rec.WinnerID),
			Summary:      rawSummary(rec.Summary),
		}); err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		for _, p := range rec.Participants {
			rank, hp := p.Rank, p.FinalHP
			if err := q.InsertParticipant(ctx, insertParticipantParams{
				ID:         uuid.New(),
				MatchID:    id,
				UserID:     sqlutil.ToSqlString(p.UserID),
				Rank:       sqlutil.ToSqlInt32(&rank),
				FinalHP:    sqlutil.ToSqlInt32(&hp),
				ShotsFired: p.ShotsFired,
				ShotsTaken: p.ShotsTaken,
				ItemsUsed:  p.ItemsUsed,
				IsBot:      p.IsBot,
			}); err != nil {
				return fmt.Errorf("insert participant: %w", err)
			}
		}
		if err := q.InsertOutbox(ctx, id.String(), EventMatchCompleted, payload); err != nil {
			return fmt.Errorf("insert outbox: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// GetMatch loads a match and its participants.
func (s *Store) GetMatch(ctx context.Context, id uuid.UUID) (MatchDetails, error) {
	q := newQueries(s.db, s.driver)
	d, err := q.GetMatch(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return MatchDetails{}, ErrNotFound
	}
	if err != nil {
		return MatchDetails{}, fmt.Errorf("get match: %w", err)
	}
	if d.Participants, err = q.ListParticipants(ctx, id); err != nil {
		return MatchDetails{}, fmt.Errorf("list participants: %w", err)
	}
	return d, nil
}

// ClaimOutbox leases up to limit unsent events until now plus lease and
// commits right away, so publishing runs outside any transaction. Events whose
// lease ran out can be claimed again.
func (s *Store) ClaimOutbox(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]OutboxEvent, error) {
	var claimed []OutboxEvent
	err := sqlutil.Run(ctx, s.db, s.txQueries, func(q *Queries) error {
		events, err := q.FetchClaimableOutbox(ctx, now.UnixMilli(), limit)
		if err != nil {
			return fmt.Errorf("fetch claimable outbox: %w", err)
		}
		until := now.Add(lease).UnixMilli()
		for _, ev := range events {
			if err := q.ClaimOutbox(ctx, ev.ID, until); err != nil {
				return fmt.Errorf("claim outbox %s: %w", ev.ID, err)
			}
		}
		claimed = events
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkOutboxSent records published events.
func (s *Store) MarkOutboxSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return sqlutil.Run(ctx, s.db, s.txQueries, func(q *Queries) error {
		for _, id := range ids {
			if err := q.MarkOutboxSent(ctx, id); err != nil {
				return fmt.Errorf("mark outbox sent %s: %w", id, err)
			}
		}
		return nil
	})
}

// ReleaseOutbox drops the lease of events that failed to publish so the next
// pass retries them.
func (s *Store) ReleaseOutbox(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return sqlutil.Run(ctx, s.db, s.txQueries, func(q *Queries) error {
		for _, id := range ids {
			if err := q.ReleaseOutbox(ctx, id); err != nil {
				return fmt.Errorf("release outbox %s: %w", id, err)
			}
		}
		return nil
	})
}

// PendingOutbox counts events not yet relayed.
func (s *Store) PendingOutbox(ctx context.Context) (int, error) {
	return newQueries(s.db, s.driver).CountUnsentOutbox(ctx)
}

func rawSummary(raw json.RawMessage) pqtype.NullRawMessage {
	if len(raw) == 0 {
		return pqtype.NullRawMessage{}
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}
}
