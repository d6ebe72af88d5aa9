package broker

import (
	"context"
	"time"

	"github.com/streadway/amqp"
)

const (
	exchangeName      = "coin_object"
	routingKeyNew     = "coin_object.new"
	retryExchangeName = "coin_object.retry"
	retryQueueName    = "coin_object.wait"
)

// AMQPBroker implements Broker over github.com/streadway/amqp with the
// dead-letter-exchange-plus-TTL topology spec.md §4.A and §6 describe:
// a primary topic exchange/queue bound at "coin_object.new", and a retry
// exchange whose wait queue holds nack'd messages for retryTTL before
// dead-lettering them back to the primary queue — this is grounded on
// original_source/src/gas_pool/coin_object_producer.rs's exchange/routing
// key naming and common/src/gas_pool/mod.rs's pending-delivery ack/nack use.
type AMQPBroker struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryMS int
}

// Dial connects to uri and declares the full exchange/queue/DLX topology.
// retryTTL is the cool-down a nack'd coin spends in the wait queue before
// redelivery.
func Dial(uri string, retryTTL time.Duration) (*AMQPBroker, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	b := &AMQPBroker{conn: conn, ch: ch, retryMS: int(retryTTL / time.Millisecond)}
	if err := b.declareTopology(); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *AMQPBroker) declareTopology() error {
	if err := b.ch.ExchangeDeclare(exchangeName, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	if err := b.ch.ExchangeDeclare(retryExchangeName, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	mainQ, err := b.ch.QueueDeclare(exchangeName, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": retryExchangeName,
	})
	if err != nil {
		return err
	}
	if err := b.ch.QueueBind(mainQ.Name, routingKeyNew, exchangeName, false, nil); err != nil {
		return err
	}

	waitQ, err := b.ch.QueueDeclare(retryQueueName, true, false, false, false, amqp.Table{
		"x-message-ttl":             int32(b.retryMS),
		"x-dead-letter-exchange":    exchangeName,
		"x-dead-letter-routing-key": routingKeyNew,
	})
	if err != nil {
		return err
	}
	return b.ch.QueueBind(waitQ.Name, routingKeyNew, retryExchangeName, false, nil)
}

// Publish hands the message to the channel as a persistent, mandatory
// publish and returns the channel's error. The channel is not put in
// confirm mode, so Publish does not wait for a broker ack, and an
// unroutable message returned by the broker is not reported here.
func (b *AMQPBroker) Publish(ctx context.Context, routingKey string, body []byte) error {
	return b.ch.Publish(exchangeName, routingKey, true, false, amqp.Publishing{
		ContentType:  "application/octet-stream",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	})
}

// Consume pulls a single message off the main queue without establishing a
// push-consumer goroutine, matching the source's pull_consumer idiom.
func (b *AMQPBroker) Consume(ctx context.Context) (Delivery, error) {
	msg, ok, err := b.ch.Get(exchangeName, false)
	if err != nil {
		return Delivery{}, err
	}
	if !ok {
		return Delivery{}, ErrEmpty
	}
	return NewDelivery(msg.Body,
		func(context.Context) error { return msg.Ack(false) },
		func(context.Context) error { return msg.Nack(false, false) },
	), nil
}

func (b *AMQPBroker) Close() error {
	if err := b.ch.Close(); err != nil {
		return err
	}
	return b.conn.Close()
}
