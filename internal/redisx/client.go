package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// Claim sets key only if absent. It reports true for the first caller.
func Claim(ctx context.Context, rdb redis.Cmdable, key string, ttl time.Duration) (bool, error) {
	return rdb.SetNX(ctx, key, "1", ttl).Result()
}

// Idempotency maps a checkout Idempotency-Key to the order it created.
type Idempotency struct {
	RDB redis.Cmdable
}

// Lookup returns the order id stored for key, or "" when none.
func (i *Idempotency) Lookup(ctx context.Context, key string) (string, error) {
	id, err := i.RDB.Get(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}

// Remember stores orderID for key unless another request got there first;
// the winning order id is returned either way.
func (i *Idempotency) Remember(ctx context.Context, key, orderID string) (string, error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	ok, err := i.RDB.SetNX(ctx, k, orderID, TTLIdempotency).Result()
	if err != nil || ok {
		return orderID, err
	}
	return i.RDB.Get(ctx, k).Result()
}

// CachedStatus is the body kept under KeyOrderStatus.
type CachedStatus struct {
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

type StatusCache struct {
	RDB redis.Cmdable
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	s, err := c.RDB.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if errors.Is(err, redis.Nil) {
		return CachedStatus{}, false, nil
	}
	if err != nil {
		return CachedStatus{}, false, err
	}
	var cs CachedStatus
	if err := json.Unmarshal([]byte(s), &cs); err != nil {
		return CachedStatus{}, false, fmt.Errorf("decode cached status: %w", err)
	}
	return cs, true, nil
}

func (c *StatusCache) Put(ctx context.Context, orderID string, cs CachedStatus) error {
	b, err := json.Marshal(cs)
	if err != nil {
		return err
	}
	return c.RDB.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// Dedup claims ids for one consuming service under KeyDedup.
type Dedup struct {
	RDB     redis.Cmdable
	Service string
}

func (d *Dedup) Claim(ctx context.Context, id string) (bool, error) {
	return Claim(ctx, d.RDB, fmt.Sprintf(KeyDedup, d.Service, id), TTLDedup)
}
