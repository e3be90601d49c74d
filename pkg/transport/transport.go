// Package transport defines the optional Kafka-style transport contract
// the bus prefers over its in-process queue when one is attached, per
// spec.md §6. Concrete Kafka adapters are explicitly out of scope (spec.md
// §1): only the interface and a no-op default live here.
package transport

import (
	"context"

	"github.com/acgs2/agentbus/internal/models"
)

// Callback receives messages delivered by a subscribed Adapter.
type Callback func(ctx context.Context, msg *models.AgentMessage)

// Adapter is the transport contract: Start/Stop lifecycle, SendMessage,
// and Subscribe, mirroring spec.md §6's Kafka-style adapter.
type Adapter interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	SendMessage(ctx context.Context, msg *models.AgentMessage) (bool, error)
	Subscribe(cb Callback)
}

// NopTransport satisfies Adapter without any real transport. The bus does
// not fall back to it: with no transport attached, the bus delivers through
// its in-process queue, and an attached NopTransport reports every
// SendMessage as not delivered (false). Subscribed callbacks are retained
// but never invoked.
type NopTransport struct {
	callbacks []Callback
}

func NewNopTransport() *NopTransport { return &NopTransport{} }

func (n *NopTransport) Start(ctx context.Context) error { return nil }
func (n *NopTransport) Stop(ctx context.Context) error   { return nil }

func (n *NopTransport) SendMessage(ctx context.Context, msg *models.AgentMessage) (bool, error) {
	return false, nil
}

func (n *NopTransport) Subscribe(cb Callback) {
	n.callbacks = append(n.callbacks, cb)
}
