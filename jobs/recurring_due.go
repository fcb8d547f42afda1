package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gavelworks/gavelworks/internal/jobs"
	"github.com/gavelworks/gavelworks/internal/shared"
)

// DueProcessor generates every recurring occurrence due at the given time.
type DueProcessor interface {
	ProcessDue(ctx context.Context, now time.Time) (int, error)
}

// NewRecurringHandler builds the handler for the scheduler tick. The lock
// keeps overlapping ticks from walking the same due set; a skipped tick is
// fine because the next one picks the rows up.
func NewRecurringHandler(logger *slog.Logger, processor DueProcessor, lock *shared.TickLock, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload TickPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		ok, err := lock.Acquire(ctx)
		if err != nil {
			return err
		}
		if !ok {
			logger.Info("recurring tick already running, skipping")
			return nil
		}
		defer func() { _ = lock.Release(ctx) }()

		tracker := metrics.Track("recurring_process_due")
		now := payload.ScheduledFor
		if now.IsZero() {
			now = time.Now().UTC()
		}
		generated, err := processor.ProcessDue(ctx, now)
		if err != nil {
			logger.Error("recurring tick failed", slog.Any("error", err))
			return tracker.End(err)
		}
		if generated > 0 {
			logger.Info("recurring tick complete", slog.Int("generated", generated))
		}
		return tracker.End(nil)
	}
}
