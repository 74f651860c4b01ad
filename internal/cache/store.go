package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/52poke/doubanx/internal/title"
)

var ErrNotFound = errors.New("cache entry not found")

// KV is the persistent string map records are stored in. Values are
// overwritten on Put and never expire.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, value string) error
}

const (
	KindRate   = "rate"
	KindReview = "review"
)

// Key builds the store key for an item name, e.g. "Inception_rate".
func Key(name, kind string) string {
	return fmt.Sprintf("%s_%s", title.Normalize(name), kind)
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + key
}
