// Package ttlcache defines the expiring key/value store shared by the
// AWS IP-range cache and the SNS signing-certificate cache. Handlers
// receive the interface so tests can pre-seed fixtures without any
// network access.
package ttlcache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("ttlcache: miss")

// Cache is an expiring string key/value store. Concurrent repopulation
// of an expired entry is acceptable; last write wins.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
