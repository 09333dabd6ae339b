package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"

	"github.com/giftmarket/giftmarket-backend/pkg/db/models"
	"github.com/giftmarket/giftmarket-backend/pkg/enums"
	"github.com/giftmarket/giftmarket-backend/pkg/logger"
)

type fakePublisherRepo struct {
	rows      []models.OutboxEvent
	published map[uuid.UUID]bool
	failed    map[uuid.UUID]string
}

func newFakePublisherRepo(rows ...models.OutboxEvent) *fakePublisherRepo {
	return &fakePublisherRepo{
		rows:      rows,
		published: map[uuid.UUID]bool{},
		failed:    map[uuid.UUID]string{},
	}
}

func (f *fakePublisherRepo) FetchUnpublished(limit int) ([]models.OutboxEvent, error) {
	var out []models.OutboxEvent
	for _, row := range f.rows {
		if f.published[row.ID] {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakePublisherRepo) MarkPublished(id uuid.UUID) error {
	f.published[id] = true
	return nil
}

func (f *fakePublisherRepo) MarkFailed(id uuid.UUID, err error) error {
	f.failed[id] = err.Error()
	for i := range f.rows {
		if f.rows[i].ID == id {
			f.rows[i].AttemptCount++
		}
	}
	return nil
}

type fakeSink struct {
	delivered []map[string]string
	failFor   map[uuid.UUID]bool
}

func (f *fakeSink) Publish(_ context.Context, _ []byte, attrs map[string]string) (string, error) {
	id, _ := uuid.Parse(attrs["aggregate_id"])
	if f.failFor[id] {
		return "", fmt.Errorf("broker unavailable")
	}
	f.delivered = append(f.delivered, attrs)
	return uuid.NewString(), nil
}

func outboxRow(t *testing.T, eventType enums.OutboxEventType, attempts int) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"hello": "world"})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

func newTestPublisher(t *testing.T, repo publisherRepo, sink eventSink) *Publisher {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	pub, err := NewPublisher(repo, sink, PublisherOptions{BatchSize: 10, MaxAttempts: 3}, logg)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	return pub
}

func TestDrainOnce_PublishesAndMarksRows(t *testing.T) {
	first := outboxRow(t, enums.EventOrderCreated, 0)
	second := outboxRow(t, enums.EventOrderStatusChanged, 0)
	repo := newFakePublisherRepo(first, second)
	sink := &fakeSink{}
	pub := newTestPublisher(t, repo, sink)

	published, err := pub.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if published != 2 {
		t.Fatalf("expected 2 published, got %d", published)
	}
	if !repo.published[first.ID] || !repo.published[second.ID] {
		t.Fatal("rows not marked published")
	}
	if got := sink.delivered[0]["event_type"]; got != string(enums.EventOrderCreated) {
		t.Fatalf("wrong event_type attribute %q", got)
	}
	if got := sink.delivered[0]["aggregate_id"]; got != first.AggregateID.String() {
		t.Fatalf("wrong aggregate_id attribute %q", got)
	}
}

func TestDrainOnce_FailedRowRetriedNextPass(t *testing.T) {
	row := outboxRow(t, enums.EventOrderCreated, 0)
	repo := newFakePublisherRepo(row)
	sink := &fakeSink{failFor: map[uuid.UUID]bool{row.AggregateID: true}}
	pub := newTestPublisher(t, repo, sink)

	published, err := pub.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected 0 published, got %d", published)
	}
	if repo.failed[row.ID] == "" {
		t.Fatal("row should carry the publish error")
	}

	sink.failFor = nil
	published, err = pub.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("second DrainOnce: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected retry to publish, got %d", published)
	}
}

func TestDrainOnce_ExhaustedRowLeftAlone(t *testing.T) {
	row := outboxRow(t, enums.EventOrderCreated, 3)
	repo := newFakePublisherRepo(row)
	sink := &fakeSink{}
	pub := newTestPublisher(t, repo, sink)

	published, err := pub.DrainOnce(context.Background())
	if err != nil {
		t.Fatalf("DrainOnce: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected 0 published, got %d", published)
	}
	if len(sink.delivered) != 0 {
		t.Fatal("exhausted row must not reach the broker")
	}
}
