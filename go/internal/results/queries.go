package results

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/lastround/go/internal/sqlutil"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the store's SQL, written with Postgres placeholders and
// rebound for the active driver.
type Queries struct {
	db     DBTX
	driver string
}

func newQueries(db DBTX, driver string) *Queries {
	return &Queries{db: db, driver: driver}
}

func (q *Queries) sql(query string) string {
	return sqlutil.Rebind(q.driver, query)
}

const ensureRating = `INSERT INTO user_elo (user_id, mode, elo) VALUES ($1, $2, $3)
ON CONFLICT (user_id, mode) DO NOTHING`

func (q *Queries) EnsureRating(ctx context.Context, userID, mode string) error {
	_, err := q.db.ExecContext(ctx, q.sql(ensureRating), userID, mode, DefaultRating)
	return err
}

const getRating = `SELECT user_id, mode, elo, games_played, wins, losses
FROM user_elo WHERE user_id = $1 AND mode = $2`

func (q *Queries) GetRating(ctx context.Context, userID, mode string) (Rating, error) {
	var r Rating
	err := q.db.QueryRowContext(ctx, q.sql(getRating), userID, mode).
		Scan(&r.UserID, &r.Mode, &r.Elo, &r.GamesPlayed, &r.Wins, &r.Losses)
	return r, err
}

const applyRating = `UPDATE user_elo
SET elo = $3, games_played = games_played + 1, wins = wins + $4, losses = losses + $5, updated_at = CURRENT_TIMESTAMP
WHERE user_id = $1 AND mode = $2`

func (q *Queries) ApplyRating(ctx context.Context, userID, mode string, elo int, won bool) (int64, error) {
	wins, losses := 0, 1
	if won {
		wins, losses = 1, 0
	}
	res, err := q.db.ExecContext(ctx, q.sql(applyRating), userID, mode, elo, wins, losses)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type insertMatchParams struct {
	ID           uuid.UUID
	Mode         string
	VictoryType  string
	BotLevel     sql.NullInt32
	RoundsPlayed int
	WinnerID     sql.NullString
	IsRanked     bool
	Summary      pqtype.NullRawMessage
}

const insertMatch = `INSERT INTO match_history
(id, mode, victory_type, bot_level, rounds_played, winner_id, is_ranked, summary)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

func (q *Queries) InsertMatch(ctx context.Context, arg insertMatchParams) error {
	_, err := q.db.ExecContext(ctx, q.sql(insertMatch),
		arg.ID.String(), arg.Mode, arg.VictoryType, arg.BotLevel, arg.RoundsPlayed,
		arg.WinnerID, arg.IsRanked, arg.Summary)
	return err
}

const completeMatch = `UPDATE match_history
SET victory_type = $2, rounds_played = $3, winner_id = $4, summary = $5
WHERE id = $1 AND victory_type = 'pending'`

func (q *Queries) CompleteMatch(ctx context.Context, id uuid.UUID, victoryType string, rounds int, winner sql.NullString, summary pqtype.NullRawMessage) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.sql(completeMatch), id.String(), victoryType, rounds, winner, summary)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type insertParticipantParams struct {
	ID         uuid.UUID
	MatchID    uuid.UUID
	UserID     sql.NullString
	Rank       sql.NullInt32
	FinalHP    sql.NullInt32
	ShotsFired int
	ShotsTaken int
	ItemsUsed  int
	IsBot      bool
	EloBefore  sql.NullInt32
}

const insertParticipant = `INSERT INTO match_participants
(id, match_id, user_id, rank, final_hp, shots_fired, shots_taken, items_used, is_bot, elo_before)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

func (q *Queries) InsertParticipant(ctx context.Context, arg insertParticipantParams) error {
	_, err := q.db.ExecContext(ctx, q.sql(insertParticipant),
		arg.ID.String(), arg.MatchID.String(), arg.UserID, arg.Rank, arg.FinalHP,
		arg.ShotsFired, arg.ShotsTaken, arg.ItemsUsed, arg.IsBot, arg.EloBefore)
	return err
}

type participantResultParams struct {
	MatchID    uuid.UUID
	UserID     string
	Rank       int
	FinalHP    int
	ShotsFired int
	ShotsTaken int
	ItemsUsed  int
	EloAfter   int
	EloDelta   int
	Expected   float64
	K          int
}

const updateParticipantResult = `UPDATE match_participants
SET rank = $3, final_hp = $4, shots_fired = $5, shots_taken = $6, items_used = $7,
    elo_after = $8, elo_delta = $9, expected_score = $10, k_factor = $11
WHERE match_id = $1 AND user_id = $2`

func (q *Queries) UpdateParticipantResult(ctx context.Context, arg participantResultParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.sql(updateParticipantResult),
		arg.MatchID.String(), arg.UserID, arg.Rank, arg.FinalHP, arg.ShotsFired, arg.ShotsTaken,
		arg.ItemsUsed, arg.EloAfter, arg.EloDelta, arg.Expected, arg.K)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getMatch = `SELECT id, mode, victory_type, bot_level, rounds_played, winner_id, is_ranked, summary
FROM match_history WHERE id = $1`

func (q *Queries) GetMatch(ctx context.Context, id uuid.UUID) (MatchDetails, error) {
	var (
		d        MatchDetails
		rawID    string
		botLevel sql.NullInt32
		winner   sql.NullString
		summary  pqtype.NullRawMessage
	)
	err := q.db.QueryRowContext(ctx, q.sql(getMatch), id.String()).
		Scan(&rawID, &d.Mode, &d.VictoryType, &botLevel, &d.RoundsPlayed, &winner, &d.IsRanked, &summary)
	if err != nil {
		return d, err
	}
	if d.ID, err = uuid.Parse(rawID); err != nil {
		return d, err
	}
	d.BotLevel = sqlutil.FromSqlInt32(botLevel)
	d.WinnerID = sqlutil.FromSqlString(winner, "")
	if summary.Valid {
		d.Summary = summary.RawMessage
	}
	return d, nil
}

const listParticipants = `SELECT user_id, rank, final_hp, shots_fired, shots_taken, items_used, is_bot,
       elo_before, elo_after, elo_delta
FROM match_participants WHERE match_id = $1 ORDER BY rank, id`

func (q *Queries) ListParticipants(ctx context.Context, matchID uuid.UUID) ([]ParticipantDetails, error) {
	rows, err := q.db.QueryContext(ctx, q.sql(listParticipants), matchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ParticipantDetails
	for rows.Next() {
		var (
			p                             ParticipantDetails
			userID                        sql.NullString
			rank, finalHP                 sql.NullInt32
			eloBefore, eloAfter, eloDelta sql.NullInt32
		)
		if err := rows.Scan(&userID, &rank, &finalHP, &p.ShotsFired, &p.ShotsTaken, &p.ItemsUsed,
			&p.IsBot, &eloBefore, &eloAfter, &eloDelta); err != nil {
			return nil, err
		}
		p.UserID = sqlutil.FromSqlString(userID, "")
		if r := sqlutil.FromSqlInt32(rank); r != nil {
			p.Rank = *r
		}
		if hp := sqlutil.FromSqlInt32(finalHP); hp != nil {
			p.FinalHP = *hp
		}
		p.EloBefore = sqlutil.FromSqlInt32(eloBefore)
		p.EloAfter = sqlutil.FromSqlInt32(eloAfter)
		p.EloDelta = sqlutil.FromSqlInt32(eloDelta)
		out = append(out, p)
	}
	return out, rows.Err()
}

const insertOutbox = `INSERT INTO outbox (id, aggregate_id, event_type, payload) VALUES ($1, $2, $3, $4)`

func (q *Queries) InsertOutbox(ctx context.Context, aggregateID, eventType string, payload []byte) error {
	_, err := q.db.ExecContext(ctx, q.sql(insertOutbox), uuid.New().String(), aggregateID, eventType, payload)
	return err
}

const fetchClaimableOutbox = `SELECT id, aggregate_id, event_type, payload
FROM outbox
WHERE sent_at IS NULL AND (claimed_until IS NULL OR claimed_until <= $1)
ORDER BY created_at, id LIMIT $2`

func (q *Queries) FetchClaimableOutbox(ctx context.Context, nowMillis int64, limit int) ([]OutboxEvent, error) {
	query := fetchClaimableOutbox
	if q.driver != sqlutil.DriverSQLite {
		query += " FOR UPDATE SKIP LOCKED"
	}
	rows, err := q.db.QueryContext(ctx, q.sql(query), nowMillis, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OutboxEvent
	for rows.Next() {
		var (
			ev    OutboxEvent
			rawID string
		)
		if err := rows.Scan(&rawID, &ev.AggregateID, &ev.EventType, &ev.Payload); err != nil {
			return nil, err
		}
		if ev.ID, err = uuid.Parse(rawID); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

const claimOutbox = `UPDATE outbox SET claimed_until = $1 WHERE id = $2`

func (q *Queries) ClaimOutbox(ctx context.Context, id uuid.UUID, untilMillis int64) error {
	_, err := q.db.ExecContext(ctx, q.sql(claimOutbox), untilMillis, id.String())
	return err
}

const releaseOutbox = `UPDATE outbox SET claimed_until = NULL WHERE id = $1 AND sent_at IS NULL`

func (q *Queries) ReleaseOutbox(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, q.sql(releaseOutbox), id.String())
	return err
}

const markOutboxSent = `UPDATE outbox SET sent_at = CURRENT_TIMESTAMP WHERE id = $1`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, q.sql(markOutboxSent), id.String())
	return err
}

const countUnsentOutbox = `SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`

func (q *Queries) CountUnsentOutbox(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, countUnsentOutbox).Scan(&n)
	return n, err
}
