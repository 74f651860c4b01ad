package retrieve

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/52poke/doubanx/internal/lookup"
)

// Source tells where a delivered record came from. A stale cache hit is
// delivered twice: SourceCache first, SourceRefresh once the forced refetch
// completes.
type Source int

const (
	SourceCache Source = iota
	SourceNetwork
	SourceRefresh
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceNetwork:
		return "network"
	case SourceRefresh:
		return "refresh"
	default:
		return "unknown"
	}
}

func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

type Delivery[T any] struct {
	Value  T
	Source Source
}

type Descriptor struct {
	Name         string
	Kind         lookup.Kind
	ForceRefresh bool
}

type Options struct {
	// Expire is how long a cached record stays fresh. Zero disables the
	// cache: nothing is read from or written to the store.
	Expire time.Duration
	// Locker, when set, guards background refreshes across processes.
	Locker Locker
	Now    func() time.Time
	Logger zerolog.Logger
}
