package room

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTimers(t *testing.T, c *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.BlockUntilContext(ctx, n))
}

func TestTurnClockFires(t *testing.T) {
	fake := clockwork.NewFakeClock()
	tc := newTurnClock(fake)
	fired := make(chan uint64, 1)

	gen := tc.Schedule(time.Second, func(g uint64) { fired <- g })
	waitTimers(t, fake, 1)
	fake.Advance(time.Second)

	select {
	case g := <-fired:
		assert.Equal(t, gen, g)
		assert.True(t, tc.Current(g))
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestTurnClockReplaceDropsOldCallback(t *testing.T) {
	fake := clockwork.NewFakeClock()
	tc := newTurnClock(fake)
	fired := make(chan string, 2)

	first := tc.Schedule(time.Second, func(uint64) { fired <- "first" })
	second := tc.Schedule(2*time.Second, func(uint64) { fired <- "second" })
	assert.NotEqual(t, first, second)
	assert.False(t, tc.Current(first))

	waitTimers(t, fake, 1)
	fake.Advance(2 * time.Second)

	select {
	case name := <-fired:
		assert.Equal(t, "second", name)
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	select {
	case name := <-fired:
		t.Fatalf("unexpected callback %s", name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTurnClockCancel(t *testing.T) {
	fake := clockwork.NewFakeClock()
	tc := newTurnClock(fake)
	fired := make(chan struct{}, 1)

	gen := tc.Schedule(time.Second, func(uint64) { fired <- struct{}{} })
	tc.Cancel()
	assert.False(t, tc.Current(gen))

	fake.Advance(time.Minute)
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(50 * time.Millisecond):
	}

	tc.Cancel()
}
