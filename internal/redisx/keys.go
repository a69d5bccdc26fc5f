package redisx

import "time"

const (
	// Checkout idempotency: idem:order:create:{idempotency_key} -> order_id
	KeyIdemOrderCreate = "idem:order:create:%s"

	// Status cache: order_status:{order_id} -> {"status": "...", "updated_at": "..."}
	KeyOrderStatus = "order_status:%s"

	// Delivery dedup: dedup:{service}:{id}
	KeyDedup = "dedup:%s:%s"

	// Alert ledger per device: sorted set of order ids scored by insertion seq.
	KeyAlertLedger    = "alert:ledger:%s"
	KeyAlertLedgerSeq = "alert:ledger:%s:seq"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
