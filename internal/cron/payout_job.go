package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/SebastianDabkowski/mercato-settlement/internal/payout"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
)

// Stale cutoff for payouts stuck in processing after a transfer attempt ended
// without a definite outcome.
const reconcileStaleAfter = 15 * time.Minute

// PayoutJobParams configure the payout cycle job.
type PayoutJobParams struct {
	Logger  *logger.Logger
	Payouts payout.Service
}

// NewPayoutJob builds the job that drives the payout lifecycle: batch new
// payable escrow into payouts, attempt the due transfers, and reconcile
// attempts whose outcome is still unknown.
func NewPayoutJob(params PayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payouts == nil {
		return nil, fmt.Errorf("payout service required")
	}
	return &payoutJob{
		logg:    params.Logger,
		payouts: params.Payouts,
		now:     time.Now,
	}, nil
}

type payoutJob struct {
	logg    *logger.Logger
	payouts payout.Service
	now     func() time.Time
}

func (j *payoutJob) Name() string { return "payout-cycle" }

func (j *payoutJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error

	batch, err := j.payouts.RunBatch(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("batching payouts: %w", err))
	} else if batch.PayoutsCreated > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"batchId": batch.BatchID,
			"payouts": batch.PayoutsCreated,
			"entries": batch.EntriesClaimed,
		}), "payout batch created")
	}

	processed, err := j.payouts.ProcessScheduled(ctx, now)
	if err != nil {
		errs = append(errs, fmt.Errorf("processing payouts: %w", err))
	} else if processed.Attempted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"attempted": processed.Attempted,
			"paid":      processed.Paid,
			"failed":    processed.Failed,
			"pending":   processed.Pending,
		}), "payout processing pass complete")
	}

	reconciled, err := j.payouts.ReconcileProcessing(ctx, now, reconcileStaleAfter)
	if err != nil {
		errs = append(errs, fmt.Errorf("reconciling payouts: %w", err))
	} else if reconciled.Checked > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"checked": reconciled.Checked,
			"paid":    reconciled.Paid,
			"failed":  reconciled.Failed,
			"pending": reconciled.StillPending,
		}), "payout reconciliation pass complete")
	}

	return multierr.Combine(errs...)
}
