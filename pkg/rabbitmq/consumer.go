package rabbitmq

import (
	"fmt"
	"log"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Outcome tells the consumer how to settle a delivery.
type Outcome int

const (
	// Ack removes the delivery from the queue.
	Ack Outcome = iota
	// Requeue returns the delivery to the queue for another attempt.
	Requeue
	// Discard drops the delivery, or dead-letters it when the queue has a dead-letter exchange.
	Discard
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Discard:
		return "discard"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Delivery is the part of an AMQP delivery a handler needs.
type Delivery struct {
	RoutingKey string
	MessageID  string
	Body       []byte
	// Attempt starts at 1. Quorum queues report the exact count through x-delivery-count;
	// otherwise a redelivered message is reported as attempt 2.
	Attempt int
}

// Handler processes one delivery and decides how it is settled.
type Handler func(Delivery) Outcome

const (
	defaultPrefetch = 10
	// deliveryLimit is the broker-side cap on redeliveries of one message.
	deliveryLimit = 25
)

type Consumer struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

func NewConsumer(amqpURL string) (*Consumer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if err := ch.Qos(defaultPrefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &Consumer{conn: conn, ch: ch}, nil
}

// queueArgs declares a quorum queue so the broker counts deliveries and stops redelivering
// a message after deliveryLimit attempts.
func queueArgs() amqp.Table {
	return amqp.Table{
		"x-queue-type":     "quorum",
		"x-delivery-limit": int32(deliveryLimit),
	}
}

// ConsumeWithBindings binds queueName to exchange for every routing key and settles each
// delivery with the Outcome its handler returns.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]Handler) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := c.ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, queueArgs())
	if err != nil {
		return err
	}

	handlers := make(map[string]Handler)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			dispatch(d, handlers)
		}
	}()

	return nil
}

func dispatch(d amqp.Delivery, handlers map[string]Handler) Outcome {
	outcome := Discard
	if handler, ok := handlers[d.RoutingKey]; ok {
		outcome = handler(Delivery{
			RoutingKey: d.RoutingKey,
			MessageID:  d.MessageId,
			Body:       d.Body,
			Attempt:    deliveryAttempt(d),
		})
	} else {
		log.Printf("level=warn component=rabbitmq_consumer msg=\"no handler\" routing_key=%s message_id=%s", d.RoutingKey, d.MessageId)
	}

	var err error
	switch outcome {
	case Ack:
		err = d.Ack(false)
	case Requeue:
		err = d.Nack(false, true)
	default:
		outcome = Discard
		err = d.Nack(false, false)
	}
	if err != nil {
		log.Printf("level=error component=rabbitmq_consumer msg=\"settle failed\" outcome=%s routing_key=%s message_id=%s err=%v", outcome, d.RoutingKey, d.MessageId, err)
	}
	return outcome
}

func deliveryAttempt(d amqp.Delivery) int {
	switch count := d.Headers["x-delivery-count"].(type) {
	case int64:
		return int(count) + 1
	case int32:
		return int(count) + 1
	case int:
		return count + 1
	}
	if d.Redelivered {
		return 2
	}
	return 1
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
