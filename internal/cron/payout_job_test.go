package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SebastianDabkowski/mercato-settlement/internal/payout"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
)

type fakePayouts struct {
	batchFn     func(ctx context.Context, asOf time.Time) (*payout.BatchResult, error)
	processFn   func(ctx context.Context, now time.Time) (*payout.ProcessResult, error)
	reconcileFn func(ctx context.Context, now time.Time, staleAfter time.Duration) (*payout.ReconcileResult, error)

	batchCalls     int
	processCalls   int
	reconcileCalls int
}

func (f *fakePayouts) RunBatch(ctx context.Context, asOf time.Time) (*payout.BatchResult, error) {
	f.batchCalls++
	if f.batchFn != nil {
		return f.batchFn(ctx, asOf)
	}
	return &payout.BatchResult{}, nil
}

func (f *fakePayouts) ProcessScheduled(ctx context.Context, now time.Time) (*payout.ProcessResult, error) {
	f.processCalls++
	if f.processFn != nil {
		return f.processFn(ctx, now)
	}
	return &payout.ProcessResult{}, nil
}

func (f *fakePayouts) ReconcileProcessing(ctx context.Context, now time.Time, staleAfter time.Duration) (*payout.ReconcileResult, error) {
	f.reconcileCalls++
	if f.reconcileFn != nil {
		return f.reconcileFn(ctx, now, staleAfter)
	}
	return &payout.ReconcileResult{}, nil
}

func (f *fakePayouts) GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	return nil, nil
}

func (f *fakePayouts) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Payout, error) {
	return nil, nil
}

func TestPayoutJobRunsAllPasses(t *testing.T) {
	payouts := &fakePayouts{}
	job, err := NewPayoutJob(PayoutJobParams{Logger: testLogger(), Payouts: payouts})
	if err != nil {
		t.Fatalf("unexpected job error: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if payouts.batchCalls != 1 || payouts.processCalls != 1 || payouts.reconcileCalls != 1 {
		t.Fatalf("expected one call per pass, got batch=%d process=%d reconcile=%d",
			payouts.batchCalls, payouts.processCalls, payouts.reconcileCalls)
	}
}

func TestPayoutJobContinuesPastBatchFailure(t *testing.T) {
	payouts := &fakePayouts{
		batchFn: func(ctx context.Context, asOf time.Time) (*payout.BatchResult, error) {
			return nil, errors.New("db unavailable")
		},
	}
	job, err := NewPayoutJob(PayoutJobParams{Logger: testLogger(), Payouts: payouts})
	if err != nil {
		t.Fatalf("unexpected job error: %v", err)
	}

	runErr := job.Run(context.Background())
	if runErr == nil || !strings.Contains(runErr.Error(), "batching payouts") {
		t.Fatalf("expected batching error, got %v", runErr)
	}
	// A failed batch pass must not stop due transfers from being attempted.
	if payouts.processCalls != 1 || payouts.reconcileCalls != 1 {
		t.Fatalf("later passes skipped: process=%d reconcile=%d", payouts.processCalls, payouts.reconcileCalls)
	}
}
