package repository

import (
	"context"
	"time"
)

// KeyValueStore is the cache used for tokens and envelope mappings.
// A missing key is reported as an error from Get.
type KeyValueStore interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}
