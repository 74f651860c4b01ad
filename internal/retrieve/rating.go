package retrieve

import (
	"context"
	"time"

	"github.com/52poke/doubanx/internal/cache"
	"github.com/52poke/doubanx/internal/lookup"
	"github.com/52poke/doubanx/internal/title"
)

type RatingStore interface {
	ReadRating(ctx context.Context, name string) (lookup.Rating, bool)
	WriteRating(ctx context.Context, name string, rec lookup.Rating) error
}

type RatingFetcher interface {
	FetchRating(ctx context.Context, name string, kind lookup.Kind, force bool) (lookup.Rating, error)
}

type RatingRetriever struct {
	store   RatingStore
	fetcher RatingFetcher
	engine  *engine
}

func NewRatingRetriever(store RatingStore, fetcher RatingFetcher, opts Options) *RatingRetriever {
	return &RatingRetriever{
		store:   store,
		fetcher: fetcher,
		engine:  newEngine(opts, "rating"),
	}
}

// Retrieve delivers the rating for d zero, one or two times. A cache hit is
// delivered before Retrieve returns; everything else arrives from the
// flight's goroutines.
func (r *RatingRetriever) Retrieve(ctx context.Context, d Descriptor, onRating func(Delivery[lookup.Rating])) *Flight {
	f := NewFlight(ctx)
	r.Join(f, d, onRating)
	return f
}

// Join runs the retrieval as part of an existing flight.
func (r *RatingRetriever) Join(f *Flight, d Descriptor, onRating func(Delivery[lookup.Rating])) {
	run(r.engine, f, r.plan(d), onRating)
}

// Refresh skips the cache and refetches with force set, storing the result.
func (r *RatingRetriever) Refresh(f *Flight, d Descriptor, onRating func(Delivery[lookup.Rating])) {
	p := r.plan(d)
	f.Go(func(ctx context.Context) error {
		return refresh(r.engine, ctx, p, onRating)
	})
}

func (r *RatingRetriever) plan(d Descriptor) plan[lookup.Rating] {
	return plan[lookup.Rating]{
		key:      cache.Key(d.Name, cache.KindRate),
		fetchKey: string(d.Kind) + "|" + title.Normalize(d.Name),
		read: func(ctx context.Context) (lookup.Rating, bool) {
			return r.store.ReadRating(ctx, d.Name)
		},
		write: func(ctx context.Context, rec lookup.Rating) error {
			return r.store.WriteRating(ctx, d.Name, rec)
		},
		fetch: func(ctx context.Context, force bool) (lookup.Rating, error) {
			return r.fetcher.FetchRating(ctx, d.Name, d.Kind, force)
		},
		fetchedAt:    func(rec lookup.Rating) time.Time { return rec.FetchedAt },
		force:        d.ForceRefresh,
		refreshForce: true,
	}
}
