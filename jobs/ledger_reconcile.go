package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/gavelworks/gavelworks/internal/jobs"
	"github.com/gavelworks/gavelworks/internal/shared"
)

// Reconciler sweeps cached account balances against their journal lines and
// returns how many it repaired.
type Reconciler interface {
	Run(ctx context.Context) (int, error)
}

// NewReconcileHandler builds the handler for the reconciliation sweep.
func NewReconcileHandler(logger *slog.Logger, reconciler Reconciler, lock *shared.TickLock, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
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
			logger.Info("reconcile sweep already running, skipping")
			return nil
		}
		defer func() { _ = lock.Release(ctx) }()

		tracker := metrics.Track("ledger_reconcile")
		repaired, err := reconciler.Run(ctx)
		if err != nil {
			logger.Error("reconcile sweep failed", slog.Any("error", err))
			return tracker.End(err)
		}
		if repaired > 0 {
			logger.Warn("reconcile sweep repaired drifted balances", slog.Int("repaired", repaired))
		}
		return tracker.End(nil)
	}
}
