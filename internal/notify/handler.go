package notify

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/ariefcatur/go-order-ledger/internal/kafka"
	"github.com/ariefcatur/go-order-ledger/internal/orders"
	"github.com/ariefcatur/go-order-ledger/internal/redisx"
)

// Sender hands a notification to the push transport.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// LogSender only logs. It stands in for the push transport, which lives
// outside this service.
type LogSender struct{ Logger *zap.Logger }

func (s LogSender) Send(_ context.Context, n Notification) error {
	if s.Logger == nil {
		return nil
	}
	s.Logger.Info("notification",
		zap.String("account_id", n.AccountID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.String("link_hint", n.LinkHint),
	)
	return nil
}

// Handler consumes notification envelopes, dropping duplicates by event id.
type Handler struct {
	Redis       *redis.Client
	Sender      Sender
	Logger      *zap.Logger
	ServiceName string
}

func (h *Handler) log() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Handle dipasang sebagai handler consumer.
func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		// poison message: log and commit so the partition keeps moving
		h.log().Warn("drop undecodable notification", zap.Error(err))
		return nil
	}
	n, err := kafkax.UnwrapPayload[Notification](env.Payload)
	if err != nil {
		h.log().Warn("drop notification with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}

	var dkey string
	if h.Redis != nil && env.EventID != "" {
		dkey = fmt.Sprintf(redisx.KeyDedup, h.ServiceName, env.EventID)
		fresh, err := redisx.Claim(ctx, h.Redis, dkey, redisx.TTLDedup)
		if err != nil {
			h.log().Warn("dedup unavailable, delivering anyway", zap.Error(err))
			dkey = ""
		} else if !fresh {
			return nil
		}
	}

	if err := h.Sender.Send(ctx, n); err != nil {
		if dkey != "" {
			_ = h.Redis.Del(ctx, dkey).Err()
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	h.log().Debug("notification delivered",
		zap.String("event_id", env.EventID),
		zap.String("event_type", env.EventType),
		zap.String("account_id", n.AccountID),
	)
	return nil
}
