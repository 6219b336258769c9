package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 5 * time.Second

// amqpPublisher is the part of *amqp.Channel the bridge uses.
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPBridge forwards every hub event to a RabbitMQ topic exchange so push,
// SMS and chat transports can consume them. A failed publish is logged and
// forgotten; booking state is never affected.
type AMQPBridge struct {
	hub      *Hub
	ch       amqpPublisher
	exchange string
	log      *logrus.Entry
}

// DialAMQP connects and declares the durable topic exchange.
func DialAMQP(url, exchange string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return conn, ch, nil
}

func NewAMQPBridge(hub *Hub, ch amqpPublisher, exchange string, log *logrus.Logger) *AMQPBridge {
	return &AMQPBridge{
		hub:      hub,
		ch:       ch,
		exchange: exchange,
		log:      log.WithField("component", "amqp_bridge"),
	}
}

// Run consumes the firehose until ctx is done or the hub shuts down.
func (b *AMQPBridge) Run(ctx context.Context) error {
	sub := b.hub.Subscribe(Firehose)
	defer b.hub.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			b.forward(ctx, evt)
		}
	}
}

func (b *AMQPBridge) forward(ctx context.Context, evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		b.log.WithError(err).WithField("type", evt.Type).Error("failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = b.ch.PublishWithContext(ctx, b.exchange, RoutingKey(evt.Channel), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		MessageId:    fmt.Sprintf("%s#%d", evt.Channel, evt.Seq),
		Timestamp:    evt.At,
		Type:         string(evt.Type),
		Body:         body,
	})
	if err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"channel": evt.Channel,
			"type":    evt.Type,
		}).Warn("failed to publish event to rabbitmq")
	}
}

// RoutingKey maps "ride:<id>" to "ride.<id>" so consumers can bind with
// topic patterns such as "user.*".
func RoutingKey(channel string) string {
	return strings.ReplaceAll(channel, ":", ".")
}
