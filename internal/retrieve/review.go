package retrieve

import (
	"context"
	"time"

	"github.com/52poke/doubanx/internal/cache"
	"github.com/52poke/doubanx/internal/lookup"
)

type ReviewStore interface {
	ReadReview(ctx context.Context, name string) (lookup.Review, bool)
	WriteReview(ctx context.Context, name string, rec lookup.Review) error
}

type ReviewFetcher interface {
	FetchReview(ctx context.Context, id string) (lookup.Review, error)
}

// ReviewRetriever follows the same cache-then-revalidate rules as
// RatingRetriever. Records are stored under the item name but fetched by
// the id of the rating they belong to.
type ReviewRetriever struct {
	store   ReviewStore
	fetcher ReviewFetcher
	engine  *engine
}

func NewReviewRetriever(store ReviewStore, fetcher ReviewFetcher, opts Options) *ReviewRetriever {
	return &ReviewRetriever{
		store:   store,
		fetcher: fetcher,
		engine:  newEngine(opts, "review"),
	}
}

func (r *ReviewRetriever) Retrieve(ctx context.Context, name string, rating lookup.Rating, onReview func(Delivery[lookup.Review])) *Flight {
	f := NewFlight(ctx)
	r.Join(f, name, rating, onReview)
	return f
}

func (r *ReviewRetriever) Join(f *Flight, name string, rating lookup.Rating, onReview func(Delivery[lookup.Review])) {
	run(r.engine, f, r.plan(name, rating), onReview)
}

func (r *ReviewRetriever) Refresh(f *Flight, name string, rating lookup.Rating, onReview func(Delivery[lookup.Review])) {
	p := r.plan(name, rating)
	f.Go(func(ctx context.Context) error {
		return refresh(r.engine, ctx, p, onReview)
	})
}

func (r *ReviewRetriever) plan(name string, rating lookup.Rating) plan[lookup.Review] {
	return plan[lookup.Review]{
		key:      cache.Key(name, cache.KindReview),
		fetchKey: "review|" + rating.ID,
		read: func(ctx context.Context) (lookup.Review, bool) {
			return r.store.ReadReview(ctx, name)
		},
		write: func(ctx context.Context, rec lookup.Review) error {
			return r.store.WriteReview(ctx, name, rec)
		},
		fetch: func(ctx context.Context, _ bool) (lookup.Review, error) {
			return r.fetcher.FetchReview(ctx, rating.ID)
		},
		fetchedAt: func(rec lookup.Review) time.Time { return rec.FetchedAt },
	}
}
