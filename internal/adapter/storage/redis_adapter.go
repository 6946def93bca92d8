package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/port"
)

const (
	cartKeyPrefix     = "cart:"
	idempotencyKeyTTL = 24 * time.Hour

	fieldEntries = "entries"
	fieldVendor  = "vendor_id"
	fieldVersion = "version"
)

// saveCartScript writes the cart iff the stored version equals ARGV[1].
var saveCartScript = redis.NewScript(`
local key = KEYS[1]
local expected = tonumber(ARGV[1])

local current = tonumber(redis.call('HGET', key, 'version') or '0')
if current ~= expected then
	return 0
end

redis.call('HSET', key, 'entries', ARGV[2], 'vendor_id', ARGV[3], 'version', current + 1)
return 1
`)

var clearCartScript = redis.NewScript(`
local key = KEYS[1]
local current = tonumber(redis.call('HGET', key, 'version') or '0')
redis.call('HSET', key, 'entries', '[]', 'vendor_id', '', 'version', current + 1)
return 1
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart := domain.Cart{UserID: userID}

	fields, err := r.client.HGetAll(ctx, cartKeyPrefix+userID).Result()
	if err != nil {
		return cart, fmt.Errorf("read cart: %w", err)
	}
	if len(fields) == 0 {
		return cart, nil
	}

	if v := fields[fieldVersion]; v != "" {
		cart.Version, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cart, fmt.Errorf("parse cart version %q: %w", v, err)
		}
	}
	if raw := fields[fieldEntries]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &cart.Entries); err != nil {
			return cart, fmt.Errorf("decode cart entries: %w", err)
		}
	}
	cart.VendorID = fields[fieldVendor]
	if cart.IsEmpty() {
		cart.Entries = nil
		cart.VendorID = ""
	}
	return cart, nil
}

func (r *RedisAdapter) SaveCart(ctx context.Context, cart domain.Cart) error {
	entries := cart.Entries
	if entries == nil {
		entries = []domain.CartEntry{}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode cart entries: %w", err)
	}

	ok, err := saveCartScript.Run(ctx, r.client, []string{cartKeyPrefix + cart.UserID},
		cart.Version, raw, cart.VendorID).Int()
	if err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if ok == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

func (r *RedisAdapter) ClearCart(ctx context.Context, userID string) error {
	if err := clearCartScript.Run(ctx, r.client, []string{cartKeyPrefix + userID}).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
