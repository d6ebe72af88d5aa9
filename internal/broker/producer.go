package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Apocentre/sui-sponsor/internal/coinid"
)

// NewCoinObject is the wire record published whenever a freshly split coin
// should be added to the gas pool's durable queue (spec §3, §4.A). The
// source serialized this with borsh; BCS/borsh both reduce to an identical
// "pointed at one hex string" payload here and JSON is the idiomatic choice
// a Go service reaches for when the only requirement is a stable, easily
// logged on-the-wire record.
type NewCoinObject struct {
	ID string `json:"id"`
}

// CoinObjectProducer durably enqueues NewCoinObject records (Component A).
type CoinObjectProducer struct {
	broker Broker
}

// NewCoinObjectProducer wraps a Broker already configured with the
// coin_object topology.
func NewCoinObjectProducer(b Broker) *CoinObjectProducer {
	return &CoinObjectProducer{broker: b}
}

// Publish enqueues id as a NewCoinObject record and returns the broker's
// publish error rather than swallowing it. It waits for a broker ack only
// if the underlying Broker does.
func (p *CoinObjectProducer) Publish(ctx context.Context, id coinid.ID) error {
	body, err := json.Marshal(NewCoinObject{ID: id.Hex()})
	if err != nil {
		return fmt.Errorf("broker: encode NewCoinObject: %w", err)
	}
	return p.broker.Publish(ctx, routingKeyNew, body)
}

// Decode parses a NewCoinObject record off the wire.
func Decode(body []byte) (coinid.ID, error) {
	var rec NewCoinObject
	if err := json.Unmarshal(body, &rec); err != nil {
		return "", fmt.Errorf("broker: decode NewCoinObject: %w", err)
	}
	return coinid.ParseID(rec.ID)
}
