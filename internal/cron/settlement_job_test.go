package cron

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SebastianDabkowski/mercato-settlement/internal/settlement"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/config"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
)

type fakeSettlements struct {
	generateFn func(ctx context.Context, year, month int) (*settlement.GenerationSummary, error)
	calls      []struct{ year, month int }
}

func (f *fakeSettlements) Generate(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, nil
}

func (f *fakeSettlements) GenerateForPeriod(ctx context.Context, year, month int) (*settlement.GenerationSummary, error) {
	f.calls = append(f.calls, struct{ year, month int }{year, month})
	if f.generateFn != nil {
		return f.generateFn(ctx, year, month)
	}
	return &settlement.GenerationSummary{Year: year, Month: month}, nil
}

func (f *fakeSettlements) Finalize(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, nil
}

func (f *fakeSettlements) Export(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, nil
}

func (f *fakeSettlements) Get(ctx context.Context, sellerID uuid.UUID, year, month int) (*models.Settlement, error) {
	return nil, nil
}

func newSettlementJobAt(t *testing.T, settlements *fakeSettlements, now time.Time) *settlementJob {
	t.Helper()
	job, err := NewSettlementJob(SettlementJobParams{
		Logger:      testLogger(),
		Settlements: settlements,
		Config:      config.SettlementConfig{GenerationDayOfMonth: 1},
	})
	if err != nil {
		t.Fatalf("unexpected job error: %v", err)
	}
	sj := job.(*settlementJob)
	sj.now = func() time.Time { return now }
	return sj
}

func TestSettlementJobGeneratesPreviousMonth(t *testing.T) {
	settlements := &fakeSettlements{}
	job := newSettlementJobAt(t, settlements, time.Date(2026, 4, 1, 3, 0, 0, 0, time.UTC))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(settlements.calls) != 1 || settlements.calls[0].year != 2026 || settlements.calls[0].month != 3 {
		t.Fatalf("expected generation for 2026-03, got %+v", settlements.calls)
	}
}

func TestSettlementJobWrapsYearBoundary(t *testing.T) {
	settlements := &fakeSettlements{}
	job := newSettlementJobAt(t, settlements, time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC))

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(settlements.calls) != 1 || settlements.calls[0].year != 2025 || settlements.calls[0].month != 12 {
		t.Fatalf("expected generation for 2025-12, got %+v", settlements.calls)
	}
}

func TestSettlementJobWaitsForGenerationDay(t *testing.T) {
	settlements := &fakeSettlements{}
	job, err := NewSettlementJob(SettlementJobParams{
		Logger:      testLogger(),
		Settlements: settlements,
		Config:      config.SettlementConfig{GenerationDayOfMonth: 5},
	})
	if err != nil {
		t.Fatalf("unexpected job error: %v", err)
	}
	sj := job.(*settlementJob)
	sj.now = func() time.Time { return time.Date(2026, 4, 3, 0, 0, 0, 0, time.UTC) }

	if err := sj.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(settlements.calls) != 0 {
		t.Fatalf("generation must wait for day 5, got %+v", settlements.calls)
	}
}
