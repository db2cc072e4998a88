package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/Guyuepp/go-feed-engine/domain"
)

const (
	supportedVersion = 1
	bindingKey       = "interaction.*"
	routingPrefix    = "interaction."
	prefetch         = 50
)

var errQueueFull = errors.New("interaction queue full")

// envelope is the message format published by the other services
type envelope struct {
	Version   int             `json:"version"`
	MessageID string          `json:"message_id"`
	Payload   json.RawMessage `json:"payload"`
}

type interactionPayload struct {
	UserID    int64  `json:"user_id"`
	PostID    int64  `json:"post_id"`
	CreatorID int64  `json:"creator_id"`
	Type      string `json:"type"`
}

type Consumer struct {
	url      string
	exchange string
	queue    string
	sink     domain.InteractionSink
}

func NewConsumer(url, exchange, queue string, sink domain.InteractionSink) *Consumer {
	return &Consumer{
		url:      strings.TrimSpace(url),
		exchange: strings.TrimSpace(exchange),
		queue:    strings.TrimSpace(queue),
		sink:     sink,
	}
}

// Start declares the topology and consumes until ctx is done. Setup errors are returned.
func (c *Consumer) Start(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return err
	}
	closeAll := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	if err := ch.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		closeAll()
		return err
	}
	q, err := ch.QueueDeclare(c.queue, true, false, false, false, nil)
	if err != nil {
		closeAll()
		return err
	}
	if err := ch.QueueBind(q.Name, bindingKey, c.exchange, false, nil); err != nil {
		closeAll()
		return err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		closeAll()
		return err
	}

	deliveries, err := ch.Consume(q.Name, "feed-engine", false, false, false, false, nil)
	if err != nil {
		closeAll()
		return err
	}

	logrus.Infof("interaction consumer started, queue: %s", q.Name)
	go func() {
		defer closeAll()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					logrus.Warn("interaction consumer channel closed")
					return
				}
				if err := c.handle(d.RoutingKey, d.Body); err != nil {
					_ = d.Nack(false, true)
					continue
				}
				_ = d.Ack(false)
			}
		}
	}()
	return nil
}

// handle queues one interaction event. Malformed messages are dropped; a full queue asks for redelivery.
func (c *Consumer) handle(routingKey string, body []byte) error {
	log := logrus.WithField("routing_key", routingKey)

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Warnf("invalid envelope json, dropping: %v", err)
		return nil
	}
	if env.Version != supportedVersion {
		log.Warnf("unsupported envelope version %d, dropping", env.Version)
		return nil
	}

	var p interactionPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		log.Warnf("invalid interaction payload, dropping: %v", err)
		return nil
	}
	typ := domain.InteractionType(p.Type)
	if typ == "" {
		typ = domain.InteractionType(strings.TrimPrefix(routingKey, routingPrefix))
	}
	if !typ.Valid() || p.UserID <= 0 || p.PostID <= 0 {
		log.WithField("message_id", env.MessageID).Warn("invalid interaction, dropping")
		return nil
	}

	ok := c.sink.Send(domain.InteractionTask{
		UserID:    p.UserID,
		PostID:    p.PostID,
		CreatorID: p.CreatorID,
		Type:      typ,
	})
	if !ok {
		return errQueueFull
	}
	return nil
}
