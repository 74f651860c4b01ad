package retrieve

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/52poke/doubanx/internal/cache"
)

type Locker interface {
	TryLock(ctx context.Context, key string) (release func(), ok bool, err error)
}

// engine holds the freshness policy shared by the rating and review
// retrievers.
type engine struct {
	expire time.Duration
	locker Locker
	now    func() time.Time
	log    zerolog.Logger
	sf     singleflight.Group
}

func newEngine(opts Options, component string) *engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &engine{
		expire: opts.Expire,
		locker: opts.Locker,
		now:    now,
		log:    opts.Logger.With().Str("component", component).Logger(),
	}
}

// plan describes one record for the engine: where it lives and how it is
// fetched.
type plan[T any] struct {
	key          string
	fetchKey     string
	read         func(ctx context.Context) (T, bool)
	write        func(ctx context.Context, rec T) error
	fetch        func(ctx context.Context, force bool) (T, error)
	fetchedAt    func(rec T) time.Time
	force        bool
	refreshForce bool
}

func (e *engine) caching() bool { return e.expire > 0 }

// run serves a cache hit synchronously, fetches on a miss, and refetches in
// the background when the cached copy is stale.
func run[T any](e *engine, f *Flight, p plan[T], deliver func(Delivery[T])) {
	log := e.log.With().Str("key", p.key).Logger()

	if !e.caching() {
		f.Go(func(ctx context.Context) error {
			return fetchAndDeliver(e, ctx, p, p.force, SourceNetwork, deliver)
		})
		return
	}

	rec, hit := p.read(f.ctx)
	if !hit {
		log.Debug().Msg("cache miss")
		f.Go(func(ctx context.Context) error {
			return fetchAndDeliver(e, ctx, p, p.force, SourceNetwork, deliver)
		})
		return
	}

	log.Debug().Msg("cache hit")
	deliver(Delivery[T]{Value: rec, Source: SourceCache})

	if !cache.IsStale(p.fetchedAt(rec), e.now(), e.expire) {
		return
	}
	log.Debug().Time("fetched_at", p.fetchedAt(rec)).Msg("stale, refreshing")
	f.Go(func(ctx context.Context) error {
		return refresh(e, ctx, p, deliver)
	})
}

func refresh[T any](e *engine, ctx context.Context, p plan[T], deliver func(Delivery[T])) error {
	if e.locker != nil {
		release, ok, err := e.locker.TryLock(ctx, p.key)
		if err != nil {
			e.log.Warn().Err(err).Str("key", p.key).Msg("refresh lock failed")
			return fmt.Errorf("refresh lock %s: %w", p.key, err)
		}
		if !ok {
			e.log.Debug().Str("key", p.key).Msg("refresh already running elsewhere")
			return nil
		}
		defer release()
	}
	return fetchAndDeliver(e, ctx, p, p.refreshForce, SourceRefresh, deliver)
}

func fetchAndDeliver[T any](e *engine, ctx context.Context, p plan[T], force bool, src Source, deliver func(Delivery[T])) error {
	v, err, _ := e.sf.Do(fmt.Sprintf("%s|%t", p.fetchKey, force), func() (any, error) {
		return p.fetch(ctx, force)
	})
	if err != nil {
		e.log.Warn().Err(err).Str("key", p.key).Stringer("source", src).Msg("fetch failed")
		return err
	}
	rec := v.(T)
	deliver(Delivery[T]{Value: rec, Source: src})

	if !e.caching() {
		return nil
	}
	if err := p.write(ctx, rec); err != nil {
		e.log.Error().Err(err).Str("key", p.key).Msg("cache write failed")
		return fmt.Errorf("store %s: %w", p.key, err)
	}
	return nil
}
