package app

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/medicamp/camp-portal/internal/metrics"
	"github.com/medicamp/camp-portal/internal/store"
)

const (
	defaultOutboxBatchSize       = 50
	defaultOutboxStaleProcessing = 2 * time.Minute
	maxOutboxRetryDelaySeconds   = 300
)

// OutboxStore is what the dispatcher needs from the outbox repository.
type OutboxStore interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// ClosablePublisher is a broker connection the dispatcher may drop and reopen.
type ClosablePublisher interface {
	EventPublisher
	Close()
}

// OutboxDispatcher moves outbox rows to the broker.
type OutboxDispatcher struct {
	repo                OutboxStore
	newProducer         func() (ClosablePublisher, error)
	batchSize           int
	staleProcessingTime time.Duration

	mu       sync.Mutex
	producer ClosablePublisher
}

func NewOutboxDispatcher(repo OutboxStore, newProducer func() (ClosablePublisher, error)) *OutboxDispatcher {
	return &OutboxDispatcher{
		repo:                repo,
		newProducer:         newProducer,
		batchSize:           defaultOutboxBatchSize,
		staleProcessingTime: defaultOutboxStaleProcessing,
	}
}

// Flush publishes one batch. It is safe to call from a scheduler; overlapping runs serialise.
func (d *OutboxDispatcher) Flush() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := d.FlushOnce(ctx); err != nil {
		log.Printf("level=warn component=outbox_dispatcher msg=\"flush failed\" err=%v", err)
	}
}

// FlushOnce claims due rows and publishes them, rescheduling failures with backoff.
func (d *OutboxDispatcher) FlushOnce(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	staleAfterSeconds := int(d.staleProcessingTime.Seconds())
	messages, err := d.repo.ClaimOutboxMessages(ctx, d.batchSize, staleAfterSeconds)
	if err != nil {
		return err
	}

	for _, message := range messages {
		if err := d.publishMessage(ctx, message); err != nil {
			retryAfter := retryDelaySeconds(message.Attempts)
			metrics.ObserveParticipantTask("dispatch", "retry")
			log.Printf("level=warn component=outbox_dispatcher msg=\"publish failed\" outbox_id=%d attempts=%d retry_after_seconds=%d err=%v", message.ID, message.Attempts, retryAfter, err)
			_ = d.repo.MarkOutboxFailed(ctx, message.ID, retryAfter, err.Error())
			continue
		}
		metrics.ObserveParticipantTask("dispatch", "ok")
		if err := d.repo.MarkOutboxPublished(ctx, message.ID); err != nil {
			log.Printf("level=warn component=outbox_dispatcher msg=\"mark published failed\" outbox_id=%d err=%v", message.ID, err)
		}
	}
	return nil
}

// Close releases the broker connection.
func (d *OutboxDispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeProducer()
}

func (d *OutboxDispatcher) publishMessage(ctx context.Context, message store.OutboxMessage) error {
	if d.producer == nil {
		producer, err := d.newProducer()
		if err != nil {
			return err
		}
		d.producer = producer
	}

	var payload json.RawMessage = message.Payload
	if err := d.producer.Publish(ctx, message.Exchange, message.RoutingKey, payload); err != nil {
		d.closeProducer()
		return err
	}
	return nil
}

func (d *OutboxDispatcher) closeProducer() {
	if d.producer != nil {
		d.producer.Close()
		d.producer = nil
	}
}

func retryDelaySeconds(attempt int) int {
	if attempt < 1 {
		return 1
	}
	delay := 1 << min(attempt, 9)
	if delay > maxOutboxRetryDelaySeconds {
		return maxOutboxRetryDelaySeconds
	}
	return delay
}
