package ranked

import (
	"math"
	"time"

	"github.com/mcdev12/lastround/go/internal/results"
)

const (
	// KFactor scales every rating change.
	KFactor = 32
	// DampeningGap is the pre-match gap above which changes are clamped.
	DampeningGap = 400
	// MaxWindow is the widest rating window a waiting entry reaches.
	MaxWindow = 400
)

var windowSteps = []struct {
	wait   time.Duration
	window int
}{
	{10 * time.Second, 100},
	{20 * time.Second, 200},
	{30 * time.Second, 300},
}

// Window is the rating difference an entry accepts after waiting wait.
func Window(wait time.Duration) int {
	for _, s := range windowSteps {
		if wait <= s.wait {
			return s.window
		}
	}
	return MaxWindow
}

// Expected is the probability that a player rated ra beats one rated rb.
func Expected(ra, rb int) float64 {
	return 1 / (1 + math.Pow(10, float64(rb-ra)/400))
}

// Delta is the rating change of a player rated rating after a match against
// opponent. Between players more than DampeningGap apart the change is capped
// at half the K factor and a win always earns at least one point.
func Delta(rating, opponent int, won bool) int {
	actual := 0.0
	if won {
		actual = 1
	}
	d := int(math.Round(KFactor * (actual - Expected(rating, opponent))))
	if abs(rating-opponent) <= DampeningGap {
		return d
	}
	const limit = KFactor / 2
	switch {
	case d > limit:
		d = limit
	case d < -limit:
		d = -limit
	}
	if won && d < 1 {
		d = 1
	}
	return d
}

// Rate computes one participant's rating change.
func Rate(userID string, rating, opponent int, won bool) results.RatingChange {
	d := Delta(rating, opponent, won)
	return results.RatingChange{
		UserID:   userID,
		Before:   rating,
		After:    rating + d,
		Delta:    d,
		Expected: Expected(rating, opponent),
		K:        KFactor,
		Won:      won,
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
