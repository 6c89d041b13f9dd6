package redisx

import "time"

const (
	// Replay of a wallet redemption: idem:redeem:{account_id}:{idempotency_key} -> response JSON
	KeyIdemRedeem = "idem:redeem:%s:%s"

	// Replay of a checkout: idem:checkout:{account_id}:{idempotency_key} -> order_id
	KeyIdemCheckout = "idem:checkout:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)

// pendingMarker holds an idempotency key while the first request is in flight.
const pendingMarker = "__pending__"
