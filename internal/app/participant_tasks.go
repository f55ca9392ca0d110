/**
 * @description
 * Participant-count increments are queued tasks with at-least-once delivery. A registration
 * enqueues a task; a consumer applies it against the camp backend and asks for redelivery
 * on failure. Which queue is used depends on what infrastructure is configured.
 */
package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/medicamp/camp-portal/internal/domain"
	"github.com/medicamp/camp-portal/internal/metrics"
	"github.com/medicamp/camp-portal/internal/session"
	"github.com/medicamp/camp-portal/pkg/campclient"
	"github.com/medicamp/camp-portal/pkg/rabbitmq"
)

const (
	CampEventsExchange           = "camp_portal.events"
	ParticipantCountRoutingKey   = "camp.participants.increment"
	participantTaskApplyTimeout  = 30 * time.Second
	directParticipantTaskTimeout = 10 * time.Second
	maxParticipantTaskAttempts   = 10
)

// ParticipantTaskQueue accepts participant-count tasks.
type ParticipantTaskQueue interface {
	Enqueue(ctx context.Context, task domain.ParticipantCountTask) error
}

// OutboxWriter persists an event for later publication.
type OutboxWriter interface {
	EnqueueOutbox(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

// EventPublisher publishes an event to the broker.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// OutboxTaskQueue stores tasks in the database outbox; the dispatcher publishes them.
type OutboxTaskQueue struct {
	outbox OutboxWriter
}

func NewOutboxTaskQueue(outbox OutboxWriter) *OutboxTaskQueue {
	return &OutboxTaskQueue{outbox: outbox}
}

func (q *OutboxTaskQueue) Enqueue(ctx context.Context, task domain.ParticipantCountTask) error {
	return q.outbox.EnqueueOutbox(ctx, CampEventsExchange, ParticipantCountRoutingKey, task)
}

// PublisherTaskQueue publishes tasks straight to the broker.
type PublisherTaskQueue struct {
	publisher EventPublisher
}

func NewPublisherTaskQueue(publisher EventPublisher) *PublisherTaskQueue {
	return &PublisherTaskQueue{publisher: publisher}
}

func (q *PublisherTaskQueue) Enqueue(ctx context.Context, task domain.ParticipantCountTask) error {
	return q.publisher.Publish(ctx, CampEventsExchange, ParticipantCountRoutingKey, task)
}

// DirectTaskQueue applies the increment synchronously. It is the fallback when neither a
// database nor a broker is configured; a failed call is returned, never retried.
type DirectTaskQueue struct {
	backend CampBackend
	sess    *session.Session
}

func NewDirectTaskQueue(backend CampBackend, sess *session.Session) *DirectTaskQueue {
	return &DirectTaskQueue{backend: backend, sess: sess}
}

func (q *DirectTaskQueue) Enqueue(ctx context.Context, task domain.ParticipantCountTask) error {
	callCtx, cancel := context.WithTimeout(ctx, directParticipantTaskTimeout)
	defer cancel()
	return q.backend.IncrementParticipants(callCtx, q.sess, task.CampID, task.TaskID.String())
}

// ParticipantCountConsumer applies queued tasks using the service session.
type ParticipantCountConsumer struct {
	backend CampBackend
	sess    *session.Session
}

func NewParticipantCountConsumer(backend CampBackend, sess *session.Session) *ParticipantCountConsumer {
	return &ParticipantCountConsumer{backend: backend, sess: sess}
}

// HandleDelivery applies one queued task. Undecodable tasks and increments the backend
// refuses outright are discarded; other failures are requeued until the attempt budget runs out.
func (c *ParticipantCountConsumer) HandleDelivery(d rabbitmq.Delivery) rabbitmq.Outcome {
	task, err := decodeParticipantTask(d.Body)
	if err != nil {
		log.Printf("level=error component=participant_consumer msg=\"dropping undecodable task\" message_id=%s err=%v", d.MessageID, err)
		metrics.ObserveParticipantTask("apply", "dropped")
		return rabbitmq.Discard
	}

	ctx, cancel := context.WithTimeout(context.Background(), participantTaskApplyTimeout)
	defer cancel()

	err = c.backend.IncrementParticipants(ctx, c.sess, task.CampID, task.TaskID.String())
	switch {
	case err == nil:
		log.Printf("level=info component=participant_consumer msg=\"participant count incremented\" camp_id=%s task_id=%s attempt=%d", task.CampID, task.TaskID, d.Attempt)
		metrics.ObserveParticipantTask("apply", "ok")
		return rabbitmq.Ack
	case permanentIncrementFailure(err):
		log.Printf("level=error component=participant_consumer msg=\"increment rejected; dropping task\" camp_id=%s task_id=%s err=%v", task.CampID, task.TaskID, err)
		metrics.ObserveParticipantTask("apply", "dropped")
		return rabbitmq.Discard
	case d.Attempt >= maxParticipantTaskAttempts:
		log.Printf("level=error component=participant_consumer msg=\"increment attempts exhausted; dropping task\" camp_id=%s task_id=%s attempt=%d err=%v", task.CampID, task.TaskID, d.Attempt, err)
		metrics.ObserveParticipantTask("apply", "exhausted")
		return rabbitmq.Discard
	default:
		log.Printf("level=warn component=participant_consumer msg=\"increment failed; requeueing\" camp_id=%s task_id=%s attempt=%d err=%v", task.CampID, task.TaskID, d.Attempt, err)
		metrics.ObserveParticipantTask("apply", "retry")
		return rabbitmq.Requeue
	}
}

// permanentIncrementFailure reports client errors a retry cannot fix. Timeouts and rate
// limits stay retryable.
func permanentIncrementFailure(err error) bool {
	if errors.Is(err, campclient.ErrCampNotFound) {
		return true
	}
	var statusErr *campclient.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500
}

func decodeParticipantTask(body []byte) (domain.ParticipantCountTask, error) {
	var task domain.ParticipantCountTask
	if err := json.Unmarshal(body, &task); err != nil {
		return task, errors.Join(ErrInvalidParticipantTask, err)
	}
	task.CampID = strings.TrimSpace(task.CampID)
	if task.CampID == "" {
		return task, ErrInvalidParticipantTask
	}
	return task, nil
}
