package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/SebastianDabkowski/mercato-settlement/pkg/config"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/db/models"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/enums"
	"github.com/SebastianDabkowski/mercato-settlement/pkg/logger"
)

type fakeDB struct{}

func (f *fakeDB) Ping(ctx context.Context) error { return nil }

func (f *fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	for _, event := range f.events {
		if event.PublishedAt == nil && event.AttemptCount < maxAttempts {
			out = append(out, event)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeResult struct {
	err error
}

func (f *fakeResult) Get(ctx context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

type fakePublisher struct {
	err      error
	messages []*gcppubsub.Message
}

func (f *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	f.messages = append(f.messages, msg)
	return &fakeResult{err: f.err}
}

func testEvent(attempts int, payload []byte) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutCompleted,
		AggregateType: enums.AggregatePayout,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func validPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"version":    1,
		"eventId":    uuid.NewString(),
		"occurredAt": time.Now().UTC(),
		"data":       map[string]any{"payoutId": uuid.NewString()},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return payload
}

func newTestService(t *testing.T, repo *fakeRepo, dlq *fakeDLQ, pub *fakePublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config: &config.Config{
			Outbox: config.OutboxConfig{BatchSize: 10, MaxAttempts: 3, PollInterval: time.Millisecond},
		},
		Logger:        logger.New(logger.Options{ServiceName: "publisher-test", Output: io.Discard}),
		DB:            &fakeDB{},
		Repository:    repo,
		DLQRepository: dlq,
		Publisher:     pub,
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func TestProcessBatchPublishes(t *testing.T) {
	event := testEvent(0, validPayload(t))
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, dlq, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch error: %v", err)
	}
	if !processed {
		t.Fatal("expected batch to be processed")
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %+v", repo.published)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.messages))
	}
	attrs := pub.messages[0].Attributes
	if attrs["aggregate_id"] != event.AggregateID.String() || attrs["event_type"] != string(event.EventType) {
		t.Fatalf("attribute mismatch: %+v", attrs)
	}
}

func TestProcessBatchMarksFailureForRetry(t *testing.T) {
	event := testEvent(0, validPayload(t))
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch error: %v", err)
	}
	if len(repo.failed) != 1 || len(repo.terminal) != 0 {
		t.Fatalf("expected a retryable failure, got failed=%d terminal=%d", len(repo.failed), len(repo.terminal))
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("no DLQ entry expected, got %d", len(dlq.entries))
	}
}

func TestProcessBatchDeadLettersAfterMaxAttempts(t *testing.T) {
	event := testEvent(2, validPayload(t))
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{err: errors.New("topic gone")}
	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch error: %v", err)
	}
	if len(repo.terminal) != 1 {
		t.Fatalf("expected terminal mark, got %d", len(repo.terminal))
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.DLQReasonMaxAttempts {
		t.Fatalf("expected max-attempts DLQ entry, got %+v", dlq.entries)
	}
}

func TestProcessBatchDeadLettersUndecodablePayloads(t *testing.T) {
	event := testEvent(0, []byte("{not json"))
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, dlq, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch error: %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatal("undecodable payload must not be published")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.DLQReasonDecodeFailed {
		t.Fatalf("expected decode-failed DLQ entry, got %+v", dlq.entries)
	}
}
