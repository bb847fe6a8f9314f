package results

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// RelayConfig tunes the outbox relay. ClaimLease must outlast a batch's
// publish retries, or another relay may publish the same events again.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	RetryDelay   time.Duration
	ClaimLease   time.Duration
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		PollInterval: 5 * time.Second,
		BatchSize:    100,
		MaxRetries:   3,
		RetryDelay:   time.Second,
		ClaimLease:   2 * time.Minute,
	}
}

// Relay polls the outbox and publishes unsent events.
type Relay struct {
	store     *Store
	publisher EventPublisher
	config    RelayConfig
	clock     clockwork.Clock

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewRelay(store *Store, publisher EventPublisher, cfg RelayConfig, clock clockwork.Clock) *Relay {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		config:    cfg,
		clock:     clock,
	}
}

func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay already running")
	}
	r.running = true
	r.stopChan = make(chan struct{})
	r.mu.Unlock()

	r.wg.Add(1)
	go r.run(ctx)

	log.Info().
		Dur("poll_interval", r.config.PollInterval).
		Int("batch_size", r.config.BatchSize).
		Msg("outbox relay started")
	return nil
}

func (r *Relay) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("outbox relay not running")
	}
	r.running = false
	close(r.stopChan)
	r.mu.Unlock()

	r.wg.Wait()
	log.Info().Msg("outbox relay stopped")
	return nil
}

func (r *Relay) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := r.clock.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on start
	r.ProcessOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.Chan():
			r.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce relays one batch and returns how many events were sent. Rows
// are claimed in one transaction and marked sent in another; no transaction
// is open while publishing.
func (r *Relay) ProcessOnce(ctx context.Context) int {
	batch, err := r.store.ClaimOutbox(ctx, r.config.BatchSize, r.clock.Now(), r.config.ClaimLease)
	if err != nil {
		log.Error().Err(err).Msg("failed to claim outbox events")
		return 0
	}

	var sent, failed []uuid.UUID
	for _, ev := range batch {
		if err := r.publishWithRetry(ctx, ev); err != nil {
			log.Error().Err(err).
				Str("event_id", ev.ID.String()).
				Str("event_type", ev.EventType).
				Msg("failed to publish outbox event")
			failed = append(failed, ev.ID)
			continue
		}
		sent = append(sent, ev.ID)
	}

	if err := r.store.MarkOutboxSent(ctx, sent); err != nil {
		// The lease expires and the events go out again; the bus drops
		// duplicates by event id.
		log.Error().Err(err).Int("events", len(sent)).Msg("failed to mark outbox events sent")
		return 0
	}
	if err := r.store.ReleaseOutbox(ctx, failed); err != nil {
		log.Error().Err(err).Int("events", len(failed)).Msg("failed to release outbox events")
	}
	if len(sent) > 0 {
		log.Info().Int("sent", len(sent)).Int("failed", len(failed)).Msg("relayed outbox events")
	}
	return len(sent)
}

func (r *Relay) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.config.RetryDelay * time.Duration(attempt)):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Warn().Err(err).
				Str("event_id", event.ID.String()).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}
		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", r.config.MaxRetries+1, lastErr)
}

// PublisherFunc adapts a function to EventPublisher.
type PublisherFunc func(ctx context.Context, event OutboxEvent) error

func (f PublisherFunc) Publish(ctx context.Context, event OutboxEvent) error {
	return f(ctx, event)
}

// LogPublisher is used when no event bus is configured.
var LogPublisher = PublisherFunc(func(_ context.Context, event OutboxEvent) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("event_type", event.EventType).
		Str("aggregate_id", event.AggregateID).
		Msg("outbox event (no bus configured)")
	return nil
})
