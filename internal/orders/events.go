package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderPlaced        = "OrderPlaced"
	EventOrderStatusChanged = "OrderStatusChanged"
	EventCouponMinted       = "CouponMinted"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "order-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id or account_id
	Payload       json.RawMessage `json:"payload"`
}

// StatusChange describes a committed transition. Replays carry Changed=false.
type StatusChange struct {
	OrderID       string `json:"order_id"`
	AccountID     string `json:"account_id"`
	From          Status `json:"from"`
	To            Status `json:"to"`
	Changed       bool   `json:"changed"`
	CoinsAwarded  int64  `json:"coins_awarded,omitempty"`
	CoinsRefunded int64  `json:"coins_refunded,omitempty"`
}
