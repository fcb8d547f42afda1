package accounts

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DriftRecorder counts repaired balance drift for alerting.
type DriftRecorder interface {
	RecordReconcileDrift(count int)
}

// Reconciler recomputes cached balances from the journal and repairs drift.
// The journal is authoritative; the cache is only a projection, so repair
// needs no coordination with concurrent postings.
type Reconciler struct {
	repo    Repository
	logger  *slog.Logger
	metrics DriftRecorder
	workers int
}

// NewReconciler constructs a Reconciler.
func NewReconciler(repo Repository, logger *slog.Logger, metrics DriftRecorder) *Reconciler {
	return &Reconciler{repo: repo, logger: logger, metrics: metrics, workers: 8}
}

// Run replays every account and rewrites the cache where it disagrees with
// the journal. Returns the number of accounts repaired.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	all, err := r.repo.ListAll(ctx)
	if err != nil {
		return 0, err
	}

	repaired := make(chan int64, len(all))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, account := range all {
		g.Go(func() error {
			replayed, err := r.repo.RecomputeBalance(ctx, account.ID)
			if err != nil {
				return err
			}
			if replayed == account.CurrentBalance {
				return nil
			}
			if r.logger != nil {
				r.logger.Warn("balance drift repaired",
					slog.Int64("account_id", account.ID),
					slog.Int64("cached", account.CurrentBalance),
					slog.Int64("replayed", replayed))
			}
			if err := r.repo.SetBalance(ctx, account.ID, replayed); err != nil {
				return err
			}
			repaired <- account.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	close(repaired)
	count := len(repaired)
	if r.metrics != nil && count > 0 {
		r.metrics.RecordReconcileDrift(count)
	}
	return count, nil
}
