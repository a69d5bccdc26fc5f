package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Ledger is the alert ledger for admin devices that share a Redis host.
// Only the most recent Cap ids are retained.
type Ledger struct {
	rdb    redis.Cmdable
	key    string
	seqKey string
	cap    int64
}

func NewLedger(rdb redis.Cmdable, deviceID string, cap int) *Ledger {
	if cap <= 0 {
		cap = 5000
	}
	return &Ledger{
		rdb:    rdb,
		key:    fmt.Sprintf(KeyAlertLedger, deviceID),
		seqKey: fmt.Sprintf(KeyAlertLedgerSeq, deviceID),
		cap:    int64(cap),
	}
}

func (l *Ledger) HasAlerted(ctx context.Context, orderID string) (bool, error) {
	_, err := l.rdb.ZScore(ctx, l.key, orderID).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return true, nil
}

func (l *Ledger) MarkAlerted(ctx context.Context, orderID string) error {
	seq, err := l.rdb.Incr(ctx, l.seqKey).Result()
	if err != nil {
		return fmt.Errorf("ledger seq: %w", err)
	}
	_, err = l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddNX(ctx, l.key, redis.Z{Score: float64(seq), Member: orderID})
		p.ZRemRangeByRank(ctx, l.key, 0, -l.cap-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger mark: %w", err)
	}
	return nil
}

func (l *Ledger) Len(ctx context.Context) (int, error) {
	n, err := l.rdb.ZCard(ctx, l.key).Result()
	return int(n), err
}
