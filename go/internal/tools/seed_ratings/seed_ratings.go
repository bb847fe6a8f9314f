package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/lastround/go/internal/dbconfig"
	"github.com/mcdev12/lastround/go/internal/results"
	"github.com/mcdev12/lastround/go/internal/room"
)

// Rating mirrors one entry of the ratings JSON snapshot.
type Rating struct {
	UserID string `json:"user_id"`
	Mode   string `json:"mode"`
	Elo    int    `json:"elo"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
}

func main() {
	path := "go/internal/assets/ratings.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var ratings []Rating
	if err := json.Unmarshal(data, &ratings); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count
	var (
		total    = len(ratings)
		inserted int
		skipped  int
		errs     int
	)

	for _, r := range ratings {
		if r.Mode == "" {
			r.Mode = room.ModeDuel
		}
		if r.Elo == 0 {
			r.Elo = results.DefaultRating
		}
		cmdTag, err := pool.Exec(context.Background(), `
            INSERT INTO user_elo (user_id, mode, elo, games_played, wins, losses)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (user_id, mode) DO NOTHING
        `,
			r.UserID, r.Mode, r.Elo, r.Wins+r.Losses, r.Wins, r.Losses,
		)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting rating %s/%s: %v\n", r.UserID, r.Mode, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	fmt.Printf("Total: %d, inserted: %d, skipped: %d, errors: %d\n", total, inserted, skipped, errs)
	if errs > 0 {
		os.Exit(1)
	}
}
