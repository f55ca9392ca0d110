package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/medicamp/camp-portal/internal/store"
)

type outboxStoreStub struct {
	messages  []store.OutboxMessage
	claimErr  error
	published []int64
	failed    map[int64]int
}

func (s *outboxStoreStub) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	claimed := s.messages
	s.messages = nil
	return claimed, nil
}

func (s *outboxStoreStub) MarkOutboxPublished(ctx context.Context, id int64) error {
	s.published = append(s.published, id)
	return nil
}

func (s *outboxStoreStub) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if s.failed == nil {
		s.failed = make(map[int64]int)
	}
	s.failed[id] = retryAfterSeconds
	return nil
}

func TestOutboxDispatcherPublishesClaimedMessages(t *testing.T) {
	repo := &outboxStoreStub{messages: []store.OutboxMessage{
		{ID: 1, Exchange: CampEventsExchange, RoutingKey: ParticipantCountRoutingKey, Payload: []byte(`{"camp_id":"c1"}`)},
		{ID: 2, Exchange: CampEventsExchange, RoutingKey: ParticipantCountRoutingKey, Payload: []byte(`{"camp_id":"c2"}`)},
	}}
	publisher := &publisherStub{}
	opened := 0
	dispatcher := NewOutboxDispatcher(repo, func() (ClosablePublisher, error) {
		opened++
		return publisher, nil
	})

	if err := dispatcher.FlushOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opened != 1 {
		t.Fatalf("expected the producer to be opened once, got %d", opened)
	}
	if len(repo.published) != 2 {
		t.Fatalf("expected two rows marked published, got %v", repo.published)
	}
	raw, ok := publisher.published[0].(json.RawMessage)
	if !ok || string(raw) != `{"camp_id":"c1"}` {
		t.Fatalf("expected the stored payload to be published verbatim, got %#v", publisher.published[0])
	}

	dispatcher.Close()
	if publisher.closed != 1 {
		t.Fatalf("expected producer closed, got %d", publisher.closed)
	}
}

func TestOutboxDispatcherReschedulesFailures(t *testing.T) {
	repo := &outboxStoreStub{messages: []store.OutboxMessage{
		{ID: 7, Exchange: CampEventsExchange, RoutingKey: ParticipantCountRoutingKey, Payload: []byte(`{}`), Attempts: 3},
	}}
	publisher := &publisherStub{err: errors.New("connection reset")}
	dispatcher := NewOutboxDispatcher(repo, func() (ClosablePublisher, error) { return publisher, nil })

	if err := dispatcher.FlushOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retry, ok := repo.failed[7]; !ok || retry != 8 {
		t.Fatalf("expected retry after 8s, got %v", repo.failed)
	}
	if publisher.closed != 1 {
		t.Fatal("expected the broken producer to be dropped")
	}
	if len(repo.published) != 0 {
		t.Fatal("expected nothing marked published")
	}
}

func TestOutboxDispatcherProducerUnavailable(t *testing.T) {
	repo := &outboxStoreStub{messages: []store.OutboxMessage{{ID: 1, Payload: []byte(`{}`)}}}
	dispatcher := NewOutboxDispatcher(repo, func() (ClosablePublisher, error) { return nil, errors.New("dial failed") })

	if err := dispatcher.FlushOnce(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.failed[1]; !ok {
		t.Fatal("expected the row to be rescheduled")
	}
}

func TestOutboxDispatcherClaimError(t *testing.T) {
	repo := &outboxStoreStub{claimErr: errors.New("db down")}
	dispatcher := NewOutboxDispatcher(repo, func() (ClosablePublisher, error) { return &publisherStub{}, nil })

	if err := dispatcher.FlushOnce(context.Background()); err == nil {
		t.Fatal("expected the claim error")
	}
}

func TestRetryDelaySeconds(t *testing.T) {
	tests := []struct {
		attempt int
		want    int
	}{
		{attempt: 0, want: 1},
		{attempt: 1, want: 2},
		{attempt: 4, want: 16},
		{attempt: 8, want: 256},
		{attempt: 9, want: 300},
		{attempt: 40, want: 300},
	}
	for _, tt := range tests {
		if got := retryDelaySeconds(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %d, got %d", tt.attempt, tt.want, got)
		}
	}
}

func TestSchedulerRejectsInvalidSchedule(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := NewOutboxDispatcher(&outboxStoreStub{}, func() (ClosablePublisher, error) { return &publisherStub{}, nil })

	if err := NewScheduler(dispatcher, "not a schedule", logger).Start(); err == nil {
		t.Fatal("expected an invalid schedule to fail")
	}

	scheduler := NewScheduler(dispatcher, "@every 1h", logger)
	if err := scheduler.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-scheduler.Stop().Done()
}
