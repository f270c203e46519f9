package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/SebastianDabkowski/mercato-settlement/internal/settlement"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/config"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
)

// SettlementJobParams configure the monthly settlement generation job.
type SettlementJobParams struct {
	Logger      *logger.Logger
	Settlements settlement.Service
	Config      config.SettlementConfig
}

// NewSettlementJob builds the job that generates draft settlements for the
// previous month once the configured day of month is reached. Generation is
// idempotent, so rerunning later in the month only refreshes drafts that are
// still open.
func NewSettlementJob(params SettlementJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Settlements == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	return &settlementJob{
		logg:        params.Logger,
		settlements: params.Settlements,
		cfg:         params.Config,
		now:         time.Now,
	}, nil
}

type settlementJob struct {
	logg        *logger.Logger
	settlements settlement.Service
	cfg         config.SettlementConfig
	now         func() time.Time
}

func (j *settlementJob) Name() string { return "settlement-generation" }

func (j *settlementJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	if now.Day() < j.cfg.GenerationDayOfMonth {
		return nil
	}

	year, month := previousPeriod(now)
	summary, err := j.settlements.GenerateForPeriod(ctx, year, month)
	if err != nil {
		return fmt.Errorf("generating settlements for %04d-%02d: %w", year, month, err)
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"year":      year,
		"month":     month,
		"generated": summary.Generated,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
	}), "settlement generation pass complete")

	if summary.Failed > 0 {
		return fmt.Errorf("settlement generation had %d failures for %04d-%02d", summary.Failed, year, month)
	}
	return nil
}

func previousPeriod(now time.Time) (int, int) {
	year, month := now.Year(), int(now.Month())
	month--
	if month == 0 {
		month = 12
		year--
	}
	return year, month
}
