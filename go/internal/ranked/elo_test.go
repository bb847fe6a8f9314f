package ranked

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowSteps(t *testing.T) {
	cases := []struct {
		wait time.Duration
		want int
	}{
		{0, 100},
		{10 * time.Second, 100},
		{10*time.Second + time.Millisecond, 200},
		{20 * time.Second, 200},
		{25 * time.Second, 300},
		{30 * time.Second, 300},
		{31 * time.Second, 400},
		{time.Hour, 400},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Window(tc.wait), "wait %s", tc.wait)
	}
}

func TestEqualRatingsMoveSixteen(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1000, 1000), 1e-9)
	assert.Equal(t, 16, Delta(1000, 1000, true))
	assert.Equal(t, -16, Delta(1000, 1000, false))

	c := Rate("u-1", 1000, 1000, true)
	assert.Equal(t, 1016, c.After)
	assert.Equal(t, KFactor, c.K)
	assert.True(t, c.Won)
}

func TestExpectedIsSymmetric(t *testing.T) {
	assert.InDelta(t, 1, Expected(1200, 1000)+Expected(1000, 1200), 1e-9)
	assert.Greater(t, Expected(1200, 1000), 0.5)
}

func TestUnclampedWithinGap(t *testing.T) {
	// 400 apart is not yet dampened: the underdog takes the full upset bonus.
	assert.Equal(t, 29, Delta(1000, 1400, true))
	assert.Equal(t, -29, Delta(1400, 1000, false))
}

func TestWideGapIsClamped(t *testing.T) {
	assert.Equal(t, KFactor/2, Delta(1000, 1500, true))
	assert.Equal(t, -KFactor/2, Delta(1500, 1000, false))

	// The favorite still gains something.
	assert.Equal(t, 1, Delta(2400, 1000, true))
	assert.Equal(t, 0, Delta(1000, 2400, false))
}
