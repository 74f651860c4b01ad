package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/52poke/doubanx/internal/cache"
	"github.com/52poke/doubanx/internal/lookup"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeFetcher struct {
	mu sync.Mutex

	rating    lookup.Rating
	ratingErr error
	review    lookup.Review
	reviewErr error

	ratingForces []bool
	reviewIDs    []string
}

func (f *fakeFetcher) FetchRating(ctx context.Context, name string, kind lookup.Kind, force bool) (lookup.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ratingForces = append(f.ratingForces, force)
	return f.rating, f.ratingErr
}

func (f *fakeFetcher) FetchReview(ctx context.Context, id string) (lookup.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviewIDs = append(f.reviewIDs, id)
	return f.review, f.reviewErr
}

func (f *fakeFetcher) forces() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.ratingForces...)
}

type recorder[T any] struct {
	mu  sync.Mutex
	got []Delivery[T]
}

func (r *recorder[T]) add(d Delivery[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, d)
}

func (r *recorder[T]) all() []Delivery[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery[T](nil), r.got...)
}

func newRecords() (*cache.Records, *cache.MemoryKV) {
	kv := cache.NewMemoryKV()
	return cache.NewRecords(kv, zerolog.Nop()), kv
}

func opts(expire time.Duration) Options {
	return Options{Expire: expire, Now: func() time.Time { return now }, Logger: zerolog.Nop()}
}

func rating(id string, fetchedAt time.Time) lookup.Rating {
	return lookup.Rating{ID: id, Name: "Inception", Rate: json.RawMessage(`{"average":"9.4"}`), FetchedAt: fetchedAt}
}

var inception = Descriptor{Name: "Inception", Kind: lookup.KindMovie}

func TestRating_FreshHitServesCacheOnly(t *testing.T) {
	recs, _ := newRecords()
	require.NoError(t, recs.WriteRating(context.Background(), "Inception", rating("cached", now)))
	fetcher := &fakeFetcher{rating: rating("net", now)}

	var rec recorder[lookup.Rating]
	f := NewRatingRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), inception, rec.add)

	require.Len(t, rec.all(), 1, "cache hit is delivered before Retrieve returns")
	require.NoError(t, f.Wait())

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, SourceCache, got[0].Source)
	assert.Equal(t, "cached", got[0].Value.ID)
	assert.JSONEq(t, `{"average":"9.4"}`, string(got[0].Value.Rate))
	assert.Empty(t, fetcher.forces(), "no network fetch on a fresh hit")
}

func TestRating_MissFetchesOnceAndPersists(t *testing.T) {
	recs, kv := newRecords()
	fetcher := &fakeFetcher{rating: rating("net", now)}

	var rec recorder[lookup.Rating]
	f := NewRatingRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), inception, rec.add)
	require.NoError(t, f.Wait())

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, SourceNetwork, got[0].Source)
	assert.Equal(t, "net", got[0].Value.ID)
	assert.Equal(t, []bool{false}, fetcher.forces())

	_, err := kv.Get(context.Background(), "Inception_rate")
	require.NoError(t, err)
	stored, ok := recs.ReadRating(context.Background(), "Inception")
	require.True(t, ok)
	assert.Equal(t, "net", stored.ID)
}

func TestRating_ForceRefreshIsSentOnMiss(t *testing.T) {
	recs, _ := newRecords()
	fetcher := &fakeFetcher{rating: rating("net", now)}

	d := inception
	d.ForceRefresh = true
	f := NewRatingRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), d, func(Delivery[lookup.Rating]) {})
	require.NoError(t, f.Wait())
	assert.Equal(t, []bool{true}, fetcher.forces())
}

func TestRating_StaleHitDeliversTwice(t *testing.T) {
	recs, _ := newRecords()
	require.NoError(t, recs.WriteRating(context.Background(), "Inception", rating("old", now.Add(-6*24*time.Hour))))
	fetcher := &fakeFetcher{rating: rating("new", now)}

	var rec recorder[lookup.Rating]
	f := NewRatingRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), inception, rec.add)
	require.NoError(t, f.Wait())

	got := rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, SourceCache, got[0].Source)
	assert.Equal(t, "old", got[0].Value.ID)
	assert.Equal(t, SourceRefresh, got[1].Source)
	assert.Equal(t, "new", got[1].Value.ID)
	assert.Equal(t, []bool{true}, fetcher.forces(), "refresh is forced")

	stored, ok := recs.ReadRating(context.Background(), "Inception")
	require.True(t, ok)
	assert.Equal(t, "new", stored.ID)
}

func TestRating_ZeroExpiryAlwaysFetches(t *testing.T) {
	recs, _ := newRecords()
	require.NoError(t, recs.WriteRating(context.Background(), "Inception", rating("cached", now)))
	fetcher := &fakeFetcher{rating: rating("net", now)}
	r := NewRatingRetriever(recs, fetcher, opts(0))

	for i := 0; i < 2; i++ {
		var rec recorder[lookup.Rating]
		require.NoError(t, r.Retrieve(context.Background(), inception, rec.add).Wait())
		got := rec.all()
		require.Len(t, got, 1)
		assert.Equal(t, SourceNetwork, got[0].Source)
		assert.Equal(t, "net", got[0].Value.ID)
	}
	assert.Len(t, fetcher.forces(), 2)

	stored, ok := recs.ReadRating(context.Background(), "Inception")
	require.True(t, ok)
	assert.Equal(t, "cached", stored.ID, "disabled cache is not written")
}

func TestRating_FailureIsSilentButReported(t *testing.T) {
	recs, kv := newRecords()
	fetcher := &fakeFetcher{ratingErr: &lookup.ApplicationError{Op: "get_rate", Ret: 1}}

	var rec recorder[lookup.Rating]
	err := NewRatingRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), inception, rec.add).Wait()

	assert.Empty(t, rec.all())
	assert.Equal(t, 0, kv.Len())
	var appErr *lookup.ApplicationError
	assert.True(t, errors.As(err, &appErr), "err=%v", err)
}

func TestRating_FailedRefreshKeepsCachedDelivery(t *testing.T) {
	recs, _ := newRecords()
	require.NoError(t, recs.WriteRating(context.Background(), "Inception", rating("old", now.Add(-10*24*time.Hour))))
	fetcher := &fakeFetcher{ratingErr: &lookup.NetworkError{Op: "get_rate", StatusCode: 502}}

	var rec recorder[lookup.Rating]
	err := NewRatingRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), inception, rec.add).Wait()
	assert.Error(t, err)

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, SourceCache, got[0].Source)
	stored, _ := recs.ReadRating(context.Background(), "Inception")
	assert.Equal(t, "old", stored.ID)
}

type fakeLocker struct {
	ok       bool
	err      error
	released int
	keys     []string
}

func (l *fakeLocker) TryLock(ctx context.Context, key string) (func(), bool, error) {
	l.keys = append(l.keys, key)
	if l.err != nil || !l.ok {
		return nil, false, l.err
	}
	return func() { l.released++ }, true, nil
}

func TestRating_RefreshSkippedWhenLockHeld(t *testing.T) {
	recs, _ := newRecords()
	require.NoError(t, recs.WriteRating(context.Background(), "Inception", rating("old", now.Add(-6*24*time.Hour))))
	fetcher := &fakeFetcher{rating: rating("new", now)}
	locker := &fakeLocker{ok: false}

	o := opts(cache.Days(5))
	o.Locker = locker
	var rec recorder[lookup.Rating]
	require.NoError(t, NewRatingRetriever(recs, fetcher, o).Retrieve(context.Background(), inception, rec.add).Wait())

	assert.Len(t, rec.all(), 1)
	assert.Empty(t, fetcher.forces())
	assert.Equal(t, []string{"Inception_rate"}, locker.keys)
}

func TestRating_RefreshHoldsLock(t *testing.T) {
	recs, _ := newRecords()
	require.NoError(t, recs.WriteRating(context.Background(), "Inception", rating("old", now.Add(-6*24*time.Hour))))
	fetcher := &fakeFetcher{rating: rating("new", now)}
	locker := &fakeLocker{ok: true}

	o := opts(cache.Days(5))
	o.Locker = locker
	var rec recorder[lookup.Rating]
	require.NoError(t, NewRatingRetriever(recs, fetcher, o).Retrieve(context.Background(), inception, rec.add).Wait())

	assert.Len(t, rec.all(), 2)
	assert.Equal(t, 1, locker.released)
}

func TestRating_CanceledCallerDoesNotAbortFetch(t *testing.T) {
	recs, _ := newRecords()
	fetcher := &fakeFetcher{rating: rating("net", now)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var rec recorder[lookup.Rating]
	require.NoError(t, NewRatingRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(ctx, inception, rec.add).Wait())
	assert.Len(t, rec.all(), 1)
}

func TestReview_KeyedByNameFetchedByID(t *testing.T) {
	recs, kv := newRecords()
	fetcher := &fakeFetcher{review: lookup.Review{Data: json.RawMessage(`[{"title":"t"}]`), FetchedAt: now}}

	var rec recorder[lookup.Review]
	f := NewReviewRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), "Inception", rating("3541415", now), rec.add)
	require.NoError(t, f.Wait())

	got := rec.all()
	require.Len(t, got, 1)
	assert.Equal(t, SourceNetwork, got[0].Source)
	assert.Equal(t, []string{"3541415"}, fetcher.reviewIDs)
	_, err := kv.Get(context.Background(), "Inception_review")
	assert.NoError(t, err)
}

func TestReview_StaleHitDeliversTwice(t *testing.T) {
	recs, _ := newRecords()
	require.NoError(t, recs.WriteReview(context.Background(), "Inception", lookup.Review{Data: json.RawMessage(`"old"`), FetchedAt: now.Add(-5 * 24 * time.Hour)}))
	fetcher := &fakeFetcher{review: lookup.Review{Data: json.RawMessage(`"new"`), FetchedAt: now}}

	var rec recorder[lookup.Review]
	f := NewReviewRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), "Inception", rating("1", now), rec.add)
	require.NoError(t, f.Wait())

	got := rec.all()
	require.Len(t, got, 2)
	assert.Equal(t, SourceCache, got[0].Source)
	assert.JSONEq(t, `"old"`, string(got[0].Value.Data))
	assert.Equal(t, SourceRefresh, got[1].Source)
	assert.JSONEq(t, `"new"`, string(got[1].Value.Data))
}

func TestReview_FailureDeliversNothing(t *testing.T) {
	recs, kv := newRecords()
	fetcher := &fakeFetcher{reviewErr: &lookup.ApplicationError{Op: "get_review", Ret: 2}}

	var rec recorder[lookup.Review]
	err := NewReviewRetriever(recs, fetcher, opts(cache.Days(5))).Retrieve(context.Background(), "Inception", rating("1", now), rec.add).Wait()
	assert.Error(t, err)
	assert.Empty(t, rec.all())
	assert.Equal(t, 0, kv.Len())
}

type fakeSink struct {
	mu      sync.Mutex
	rates   []Delivery[lookup.Rating]
	reviews []Panel
}

func (s *fakeSink) ShowRate(d Delivery[lookup.Rating]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates = append(s.rates, d)
}

func (s *fakeSink) ShowReview(p Panel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reviews = append(s.reviews, p)
}

func newService(recs *cache.Records, fetcher *fakeFetcher, expire time.Duration) *Service {
	return NewService(
		NewRatingRetriever(recs, fetcher, opts(expire)),
		NewReviewRetriever(recs, fetcher, opts(expire)),
	)
}

func TestService_MissShowsRateThenReview(t *testing.T) {
	recs, _ := newRecords()
	fetcher := &fakeFetcher{
		rating: rating("3541415", now),
		review: lookup.Review{Data: json.RawMessage(`[]`), FetchedAt: now},
	}
	sink := &fakeSink{}

	require.NoError(t, newService(recs, fetcher, cache.Days(5)).Show(context.Background(), inception, sink).Wait())

	require.Len(t, sink.rates, 1)
	require.Len(t, sink.reviews, 1)
	assert.Equal(t, "3541415", sink.reviews[0].Rate.ID)
	assert.Equal(t, []string{"3541415"}, fetcher.reviewIDs)
}

func TestService_StaleRatingRunsReviewPerDelivery(t *testing.T) {
	recs, _ := newRecords()
	ctx := context.Background()
	require.NoError(t, recs.WriteRating(ctx, "Inception", rating("1", now.Add(-6*24*time.Hour))))
	require.NoError(t, recs.WriteReview(ctx, "Inception", lookup.Review{Data: json.RawMessage(`[]`), FetchedAt: now}))
	fetcher := &fakeFetcher{rating: rating("1", now)}
	sink := &fakeSink{}

	require.NoError(t, newService(recs, fetcher, cache.Days(5)).Show(ctx, inception, sink).Wait())

	assert.Len(t, sink.rates, 2)
	assert.Len(t, sink.reviews, 2)
	assert.Empty(t, fetcher.reviewIDs, "fresh reviews come from the cache")
}

func TestService_RatingFailureSkipsReview(t *testing.T) {
	recs, _ := newRecords()
	fetcher := &fakeFetcher{ratingErr: &lookup.ApplicationError{Op: "get_rate", Ret: 1}}
	sink := &fakeSink{}

	assert.Error(t, newService(recs, fetcher, cache.Days(5)).Show(context.Background(), inception, sink).Wait())
	assert.Empty(t, sink.rates)
	assert.Empty(t, sink.reviews)
	assert.Empty(t, fetcher.reviewIDs)
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "cache", SourceCache.String())
	assert.Equal(t, "network", SourceNetwork.String())
	assert.Equal(t, "refresh", SourceRefresh.String())
}

func TestService_RefreshBypassesFreshCache(t *testing.T) {
	recs, _ := newRecords()
	ctx := context.Background()
	require.NoError(t, recs.WriteRating(ctx, "Inception", rating("old", now)))
	require.NoError(t, recs.WriteReview(ctx, "Inception", lookup.Review{Data: json.RawMessage(`"old"`), FetchedAt: now}))
	fetcher := &fakeFetcher{
		rating: rating("new", now),
		review: lookup.Review{Data: json.RawMessage(`"new"`), FetchedAt: now},
	}
	sink := &fakeSink{}

	require.NoError(t, newService(recs, fetcher, cache.Days(5)).Refresh(ctx, inception, sink).Wait())

	require.Len(t, sink.rates, 1)
	assert.Equal(t, SourceRefresh, sink.rates[0].Source)
	require.Len(t, sink.reviews, 1)
	assert.Equal(t, []bool{true}, fetcher.forces())
	assert.Equal(t, []string{"new"}, fetcher.reviewIDs)

	stored, _ := recs.ReadReview(ctx, "Inception")
	assert.JSONEq(t, `"new"`, string(stored.Data))
}
