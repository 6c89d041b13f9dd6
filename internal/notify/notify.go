// Package notify turns committed order and wallet outcomes into user-facing
// notifications. Delivery is best-effort: nothing here may fail a transition.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
)

var ErrDeliveryFailed = errors.New("notification delivery failed")

// Notification is the payload consumed by the push dispatcher.
type Notification struct {
	AccountID string `json:"account_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	LinkHint  string `json:"link_hint,omitempty"`
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	TryPublish(key, value []byte, headers ...kafka.Header) bool
}

// Dispatcher publishes notifications to the notification topic.
type Dispatcher struct {
	Producer Publisher
	Service  string
	Logger   *zap.Logger
	Clock    func() time.Time
}

func (d *Dispatcher) Notify(ctx context.Context, eventType string, n Notification) error {
	if d == nil || d.Producer == nil {
		return fmt.Errorf("%w: no producer configured", ErrDeliveryFailed)
	}
	if n.AccountID == "" {
		return fmt.Errorf("%w: missing account id", ErrDeliveryFailed)
	}
	now := time.Now
	if d.Clock != nil {
		now = d.Clock
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    now().UTC(),
		Producer:      d.Service,
		TraceID:       traceID(ctx),
		CorrelationID: n.AccountID,
		Payload:       kafkax.MustMarshal(n),
	}
	if !d.Producer.TryPublish(orders.PartitionKey(n.AccountID), kafkax.MustMarshal(ev), kafkax.EventHeaders(eventType, 1)...) {
		return fmt.Errorf("%w: producer buffer full or closed", ErrDeliveryFailed)
	}
	return nil
}

type traceKey struct{}

// WithTraceID carries the inbound request id into published envelopes.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
