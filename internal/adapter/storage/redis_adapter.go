package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/timeless/internal/core/domain"
)

const (
	productKeyPrefix      = "product:"
	checkoutLockKeyPrefix = "checkout:lock:"
)

// releaseLockScript deletes the lock only while it still holds the caller's token.
var releaseLockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func productKey(productID int64) string {
	return fmt.Sprintf("%s%d", productKeyPrefix, productID)
}

func checkoutLockKey(cartID int64) string {
	return fmt.Sprintf("%s%d", checkoutLockKeyPrefix, cartID)
}

func (r *RedisAdapter) GetProduct(ctx context.Context, productID int64) (domain.Product, bool, error) {
	raw, err := r.client.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Product{}, false, nil
	}
	if err != nil {
		return domain.Product{}, false, err
	}

	var p domain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Product{}, false, fmt.Errorf("decode cached product %d: %w", productID, err)
	}
	return p, true, nil
}

func (r *RedisAdapter) SetProduct(ctx context.Context, product domain.Product, ttl time.Duration) error {
	raw, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("encode product %d: %w", product.ID, err)
	}
	return r.client.Set(ctx, productKey(product.ID), raw, ttl).Err()
}

func (r *RedisAdapter) AcquireCheckoutLock(ctx context.Context, cartID int64, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, checkoutLockKey(cartID), token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisAdapter) ReleaseCheckoutLock(ctx context.Context, cartID int64, token string) error {
	return releaseLockScript.Run(ctx, r.client, []string{checkoutLockKey(cartID)}, token).Err()
}
