package eventbus

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"storekit-keyplane/pkg/db/option"
	"storekit-keyplane/pkg/db/pagination"
	"storekit-keyplane/pkg/featureflags"
	"storekit-keyplane/pkg/repository"
	"storekit-keyplane/pkg/task"
)

const (
	maxBackoff          = 5 * time.Minute
	dispatchConcurrency = 4
)

type RelayConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

func (c RelayConfig) withDefaults() RelayConfig {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Relay drains the outbox: due pending events are published to the bus and
// fanned out to webhook deliveries, then marked dispatched. Failures are
// retried with quadratic backoff until MaxAttempts, then dead-lettered.
// Delivery is at least once.
type Relay struct {
	events    repository.Repository[Event]
	publisher Publisher
	enqueuer  task.Enqueuer
	flags     featureflags.FeatureFlag
	cfg       RelayConfig

	cancel context.CancelFunc
	done   chan struct{}
}

func NewRelay(db *gorm.DB, publisher Publisher, enqueuer task.Enqueuer, flags featureflags.FeatureFlag, cfg RelayConfig) *Relay {
	return &Relay{
		events:    repository.ProvideStore[Event](db),
		publisher: publisher,
		enqueuer:  enqueuer,
		flags:     flags,
		cfg:       cfg.withDefaults(),
	}
}

func (r *Relay) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx)
}

func (r *Relay) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}

func (r *Relay) run(ctx context.Context) {
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	zap.L().Info("outbox relay started",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch_size", r.cfg.BatchSize),
		zap.Int("max_attempts", r.cfg.MaxAttempts),
	)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("outbox relay stopped")
			return
		case <-ticker.C:
			if err := r.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
				zap.L().Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// DispatchBatch publishes due pending events oldest first. Exported so
// tests and drains can run the loop body synchronously.
func (r *Relay) DispatchBatch(ctx context.Context) error {
	pending, err := r.events.Find(ctx, &Event{Status: EventStatusPending},
		option.ApplyOperator(option.Condition{Field: "next_attempt_at", Operator: option.LTE, Value: time.Now()}),
		option.WithSortBy(option.QuerySortBy{SortBy: "id", OrderBy: "ASC", Allow: map[string]bool{"id": true}}),
		option.ApplyPagination(pagination.Pagination{Limit: r.cfg.BatchSize}),
	)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(dispatchConcurrency)
	for _, event := range pending {
		g.Go(func() error {
			r.dispatch(ctx, event)
			return nil
		})
	}
	return g.Wait()
}

func (r *Relay) dispatch(ctx context.Context, event *Event) {
	envelope := event.Envelope()

	if err := r.publisher.Publish(ctx, envelope); err != nil {
		r.markFailed(ctx, event, err)
		return
	}

	if r.flags.IsEnabled(ctx, FlagWebhookFanout) {
		fanout, err := NewFanoutTask(envelope)
		if err == nil {
			_, err = r.enqueuer.Enqueue(ctx, fanout)
		}
		if err != nil {
			r.markFailed(ctx, event, err)
			return
		}
	}

	updates := map[string]any{
		"status":        EventStatusDispatched,
		"attempts":      event.Attempts + 1,
		"dispatched_at": time.Now(),
		"last_error":    "",
	}
	if err := r.events.Update(ctx, event.ID, updates); err != nil {
		zap.L().Error("mark dispatched failed", zap.String("event_id", event.ID), zap.Error(err))
		return
	}

	zap.L().Debug("event dispatched", zap.String("event_id", event.ID), zap.String("name", event.Name))
}

func (r *Relay) markFailed(ctx context.Context, event *Event, cause error) {
	attempts := event.Attempts + 1
	updates := map[string]any{
		"attempts":   attempts,
		"last_error": cause.Error(),
	}

	if attempts >= r.cfg.MaxAttempts {
		updates["status"] = EventStatusDead
		zap.L().Error("event dead-lettered",
			zap.String("event_id", event.ID),
			zap.String("name", event.Name),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
	} else {
		updates["next_attempt_at"] = time.Now().Add(backoff(attempts))
		zap.L().Warn("event dispatch failed, will retry",
			zap.String("event_id", event.ID),
			zap.Int("attempts", attempts),
			zap.Error(cause),
		)
	}

	if err := r.events.Update(ctx, event.ID, updates); err != nil {
		zap.L().Error("mark failed errored", zap.String("event_id", event.ID), zap.Error(err))
	}
}

func backoff(attempts int) time.Duration {
	d := time.Duration(attempts*attempts) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}
