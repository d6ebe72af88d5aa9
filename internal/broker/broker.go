// Package broker abstracts the durable queue the coin object producer
// publishes to and the gas pool consumes from (spec §4.A). The DLX-plus-TTL
// topology is what lets "nack" double as "put this coin back after a
// cool-down" without the core tracking timers itself (spec §4.A, §9).
package broker

import "context"

// Delivery is one dequeued message with its terminal operations. Exactly one
// of Ack/Nack must be called per Delivery (spec CoinHandle, §3); both are
// idempotent in effect at the broker layer but callers should only invoke
// one.
type Delivery struct {
	Body []byte
	ack  func(context.Context) error
	nack func(context.Context) error
}

// Ack permanently removes the message from the queue.
func (d Delivery) Ack(ctx context.Context) error { return d.ack(ctx) }

// Nack requeues the message; with a DLX+TTL topology this reinstates the
// message after the configured retry cool-down.
func (d Delivery) Nack(ctx context.Context) error { return d.nack(ctx) }

// NewDelivery lets implementations construct a Delivery from their own
// ack/nack closures.
func NewDelivery(body []byte, ack, nack func(context.Context) error) Delivery {
	return Delivery{Body: body, ack: ack, nack: nack}
}

// Broker is the minimal durable-queue surface the core needs: publish,
// consume-one, ack, nack. Implementations provide their own topology setup
// (exchanges, DLX, per-message TTL) at construction time.
type Broker interface {
	// Publish sends body to the named queue/routing key and returns any
	// error the implementation reports. Whether it waits for a broker ack
	// is up to the implementation; AMQPBroker does not.
	Publish(ctx context.Context, routingKey string, body []byte) error
	// Consume dequeues at most one message. ErrEmpty is returned, not a
	// generic error, when there is nothing to dequeue (spec PoolEmpty).
	Consume(ctx context.Context) (Delivery, error)
	// Close releases the underlying connection.
	Close() error
}

// ErrEmpty signals the queue had no message ready to dequeue.
var ErrEmpty = emptyErr{}

type emptyErr struct{}

func (emptyErr) Error() string { return "broker: no messages available" }
