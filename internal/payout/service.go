package payout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/internal/escrow"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/config"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	dbtypes "github.com/SebastianDabkowski/mercato-settlement/pkg/db/types"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
	apperrors "github.com/SebastianDabkowski/mercato-settlement/pkg/errors"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/metrics"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/outbox/payloads"
)

// Service schedules payout batches, drives transfer attempts through the
// retry state machine, and reconciles attempts that ended without an answer.
type Service interface {
	RunBatch(ctx context.Context, asOf time.Time) (*BatchResult, error)
	ProcessScheduled(ctx context.Context, now time.Time) (*ProcessResult, error)
	ReconcileProcessing(ctx context.Context, now time.Time, staleAfter time.Duration) (*ReconcileResult, error)
	GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Payout, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams carries the dependencies for NewService.
type ServiceParams struct {
	Repo       Repository
	Escrow     escrow.Service
	Transferor Transferor
	Outbox     eventEmitter
	Tx         txRunner
	Logger     *logger.Logger
	Metrics    *metrics.PayoutMetrics
	Config     config.PayoutConfig
}

type service struct {
	repo       Repository
	escrow     escrow.Service
	transferor Transferor
	outbox     eventEmitter
	tx         txRunner
	logg       *logger.Logger
	metrics    *metrics.PayoutMetrics
	cfg        config.PayoutConfig
}

// NewService builds the payout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repo is required")
	}
	if params.Escrow == nil {
		return nil, fmt.Errorf("escrow service is required")
	}
	if params.Transferor == nil {
		return nil, fmt.Errorf("transferor is required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox is required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{
		repo:       params.Repo,
		escrow:     params.Escrow,
		transferor: params.Transferor,
		outbox:     params.Outbox,
		tx:         params.Tx,
		logg:       params.Logger,
		metrics:    params.Metrics,
		cfg:        params.Config,
	}, nil
}

// BatchResult summarizes one batch run.
type BatchResult struct {
	BatchID        uuid.UUID
	PayoutsCreated int
	EntriesClaimed int
}

// ProcessResult summarizes one processing pass.
type ProcessResult struct {
	Attempted int
	Paid      int
	Failed    int
	Pending   int
}

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Checked      int
	Paid         int
	Failed       int
	StillPending int
}

type batchKey struct {
	sellerID uuid.UUID
	currency string
}

// RunBatch groups every unclaimed payable escrow entry into one payout per
// seller and currency, dated for the next cadence day. Entry references are
// written in the same transaction that reads eligibility, so two overlapping
// runs cannot claim the same entry.
func (s *service) RunBatch(ctx context.Context, asOf time.Time) (*BatchResult, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	batchID := uuid.New()
	result := &BatchResult{BatchID: batchID}
	scheduledAt := NextCadence(asOf, s.cfg.Weekday())

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		entries, err := s.escrow.WithTx(tx).ListPayable(ctx)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		claimedIDs, err := repo.ListClaimedEscrowEntryIDs(ctx)
		if err != nil {
			return fmt.Errorf("listing claimed entries: %w", err)
		}
		claimed := make(map[uuid.UUID]struct{}, len(claimedIDs))
		for _, id := range claimedIDs {
			claimed[id] = struct{}{}
		}

		groups := make(map[batchKey][]models.EscrowEntry)
		order := make([]batchKey, 0)
		for _, entry := range entries {
			if _, taken := claimed[entry.ID]; taken {
				continue
			}
			key := batchKey{sellerID: entry.SellerID, currency: entry.Currency}
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], entry)
		}

		for _, key := range order {
			group := groups[key]
			total := decimal.Zero
			entryIDs := make(dbtypes.UUIDArray, 0, len(group))
			for _, entry := range group {
				total = total.Add(entry.RemainingAmount())
				entryIDs = append(entryIDs, entry.ID)
			}

			payout := &models.Payout{
				ID:             uuid.New(),
				SellerID:       key.sellerID,
				BatchID:        batchID,
				EscrowEntryIDs: entryIDs,
				Amount:         total,
				Currency:       key.currency,
				Status:         enums.PayoutStatusScheduled,
				ScheduledAt:    scheduledAt,
				Version:        1,
			}
			if err := repo.Create(ctx, payout); err != nil {
				return fmt.Errorf("creating payout: %w", err)
			}
			s.metrics.IncScheduled()
			result.PayoutsCreated++
			result.EntriesClaimed += len(group)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batchId":     batchID,
		"payouts":     result.PayoutsCreated,
		"entries":     result.EntriesClaimed,
		"scheduledAt": scheduledAt,
	}), "payout batch created")

	return result, nil
}

// ProcessScheduled claims every due payout, moves it to Processing, and runs
// the transfer attempts on a bounded worker pool. An attempt that times out
// leaves the payout in Processing for reconciliation; money may have moved.
func (s *service) ProcessScheduled(ctx context.Context, now time.Time) (*ProcessResult, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var due []models.Payout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payouts, err := repo.ListDueForProcessing(ctx, now, s.cfg.MaxRetries)
		if err != nil {
			return err
		}
		for i := range payouts {
			startedAt := now
			payouts[i].Status = enums.PayoutStatusProcessing
			payouts[i].ProcessingStartedAt = &startedAt
			payouts[i].Version++
			if err := repo.Save(ctx, &payouts[i]); err != nil {
				return fmt.Errorf("claiming payout %s: %w", payouts[i].ID, err)
			}
		}
		due = payouts
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{Attempted: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	workers := s.cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}
	group.SetLimit(workers)

	for i := range due {
		payout := due[i]
		group.Go(func() error {
			outcome := s.attemptTransfer(groupCtx, &payout)
			mu.Lock()
			switch outcome {
			case enums.PayoutStatusPaid:
				result.Paid++
			case enums.PayoutStatusFailed:
				result.Failed++
			default:
				result.Pending++
			}
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// attemptTransfer runs one transfer attempt and settles the payout row.
// Returns the status the payout ended up in.
func (s *service) attemptTransfer(ctx context.Context, payout *models.Payout) enums.PayoutStatus {
	transferCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.TransferTimeout > 0 {
		transferCtx, cancel = context.WithTimeout(ctx, s.cfg.TransferTimeout)
		defer cancel()
	}

	result, err := s.transferor.Transfer(transferCtx, TransferRequest{
		PayoutID: payout.ID,
		SellerID: payout.SellerID,
		Amount:   payout.Amount,
		Currency: payout.Currency,
	})

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		// Outcome unknown; the reconciler will ask the provider later.
		s.metrics.IncProcessed("pending")
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"payoutId": payout.ID}),
			"transfer attempt timed out, leaving payout in processing")
		return enums.PayoutStatusProcessing

	case err != nil:
		if markErr := s.markFailed(ctx, payout.ID, "", err.Error()); markErr != nil {
			s.logg.Error(ctx, "marking payout failed", markErr)
		}
		s.metrics.IncProcessed("failed")
		return enums.PayoutStatusFailed

	case result.State == TransferStateSucceeded:
		if markErr := s.markPaid(ctx, payout.ID, result.Reference); markErr != nil {
			s.logg.Error(ctx, "marking payout paid", markErr)
			return enums.PayoutStatusProcessing
		}
		s.metrics.IncProcessed("paid")
		return enums.PayoutStatusPaid

	case result.State == TransferStateFailed:
		if markErr := s.markFailed(ctx, payout.ID, result.ErrorReference, result.ErrorMessage); markErr != nil {
			s.logg.Error(ctx, "marking payout failed", markErr)
		}
		s.metrics.IncProcessed("failed")
		return enums.PayoutStatusFailed

	default:
		s.metrics.IncProcessed("pending")
		return enums.PayoutStatusProcessing
	}
}

// markPaid releases the claimed escrow entries and completes the payout in one
// transaction, emitting the completion event through the outbox.
func (s *service) markPaid(ctx context.Context, payoutID uuid.UUID, transferRef string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return fmt.Errorf("loading payout: %w", err)
		}
		if payout.Status == enums.PayoutStatusPaid {
			return nil
		}
		if !payout.Status.CanTransitionTo(enums.PayoutStatusPaid) {
			return apperrors.New(apperrors.CodeStateConflict, "payout cannot transition to paid").
				WithDetails(map[string]any{"payoutId": payout.ID, "status": payout.Status})
		}

		completedAt := time.Now().UTC()
		if err := s.escrow.WithTx(tx).Release(ctx, []uuid.UUID(payout.EscrowEntryIDs), completedAt); err != nil {
			return fmt.Errorf("releasing escrow: %w", err)
		}

		payout.Status = enums.PayoutStatusPaid
		payout.CompletedAt = &completedAt
		if transferRef != "" {
			payout.TransferReference = &transferRef
		}
		payout.ErrorReference = nil
		payout.ErrorMessage = nil
		payout.Version++
		if err := repo.Save(ctx, payout); err != nil {
			return fmt.Errorf("saving payout: %w", err)
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			OccurredAt:    completedAt,
			Data: payloads.PayoutCompletedEvent{
				PayoutID:    payout.ID,
				SellerID:    payout.SellerID,
				BatchID:     payout.BatchID,
				Amount:      payout.Amount,
				Currency:    payout.Currency,
				EntryCount:  len(payout.EscrowEntryIDs),
				CompletedAt: completedAt,
				TransferRef: transferRef,
			},
		})
	})
}

// markFailed advances the retry state machine: the payout moves to Failed with
// an incremented retry count, and the outbox carries either a retryable
// failure event or an exhaustion event needing manual handling.
func (s *service) markFailed(ctx context.Context, payoutID uuid.UUID, errorRef, errorMsg string) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := repo.FindByIDForUpdate(ctx, payoutID)
		if err != nil {
			return fmt.Errorf("loading payout: %w", err)
		}
		if payout.Status != enums.PayoutStatusProcessing {
			return nil
		}

		failedAt := time.Now().UTC()
		payout.Status = enums.PayoutStatusFailed
		payout.RetryCount++
		if errorRef != "" {
			payout.ErrorReference = &errorRef
		}
		if errorMsg != "" {
			payout.ErrorMessage = &errorMsg
		}
		payout.Version++
		if err := repo.Save(ctx, payout); err != nil {
			return fmt.Errorf("saving payout: %w", err)
		}

		exhausted := payout.RetryCount >= s.cfg.MaxRetries
		eventType := enums.EventPayoutFailed
		if exhausted {
			eventType = enums.EventPayoutExhausted
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregatePayout,
			AggregateID:   payout.ID,
			Version:       1,
			OccurredAt:    failedAt,
			Data: payloads.PayoutFailedEvent{
				PayoutID:       payout.ID,
				SellerID:       payout.SellerID,
				BatchID:        payout.BatchID,
				Amount:         payout.Amount,
				Currency:       payout.Currency,
				RetryCount:     payout.RetryCount,
				Exhausted:      exhausted,
				ErrorReference: errorRef,
				ErrorMessage:   errorMsg,
				FailedAt:       failedAt,
			},
		})
	})
}

// ReconcileProcessing resolves payouts stuck in Processing by asking the
// provider for the transfer's real state, polling with exponential backoff.
// A transfer the provider still reports pending stays in Processing.
func (s *service) ReconcileProcessing(ctx context.Context, now time.Time, staleAfter time.Duration) (*ReconcileResult, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	stale, err := s.repo.ListStaleProcessing(ctx, now.Add(-staleAfter))
	if err != nil {
		return nil, fmt.Errorf("listing stale payouts: %w", err)
	}

	result := &ReconcileResult{Checked: len(stale)}
	for i := range stale {
		payout := stale[i]
		state, err := s.lookupFinalState(ctx, payout.ID)
		if err != nil {
			result.StillPending++
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"payoutId": payout.ID}),
				"transfer state still unresolved")
			continue
		}

		switch state.State {
		case TransferStateSucceeded:
			if err := s.markPaid(ctx, payout.ID, state.Reference); err != nil {
				return nil, err
			}
			result.Paid++
		case TransferStateFailed:
			if err := s.markFailed(ctx, payout.ID, state.ErrorReference, state.ErrorMessage); err != nil {
				return nil, err
			}
			result.Failed++
		default:
			result.StillPending++
		}
	}
	return result, nil
}

func (s *service) lookupFinalState(ctx context.Context, payoutID uuid.UUID) (*TransferResult, error) {
	backoff := s.cfg.ReconcileBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	var final *TransferResult
	err := retry.Do(ctx, retry.WithMaxRetries(4, retry.NewExponential(backoff)), func(ctx context.Context) error {
		state, err := s.transferor.Lookup(ctx, payoutID)
		if err != nil {
			return retry.RetryableError(err)
		}
		if state.State == TransferStatePending {
			return retry.RetryableError(errors.New("transfer still pending"))
		}
		final = state
		return nil
	})
	if err != nil {
		return nil, err
	}
	return final, nil
}

// GetPayout fetches one payout by ID.
func (s *service) GetPayout(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("id is required")
	}
	payout, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "payout not found")
		}
		return nil, fmt.Errorf("loading payout: %w", err)
	}
	return payout, nil
}

// ListBySeller lists a seller's payouts, newest first.
func (s *service) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Payout, error) {
	if sellerID == uuid.Nil {
		return nil, fmt.Errorf("sellerID is required")
	}
	return s.repo.ListBySeller(ctx, sellerID)
}
