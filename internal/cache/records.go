package cache

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"

	"github.com/52poke/doubanx/internal/lookup"
)

// Records reads and writes rating/review records as JSON in a KV.
// Unreadable entries are reported as misses.
type Records struct {
	kv  KV
	log zerolog.Logger
}

func NewRecords(kv KV, log zerolog.Logger) *Records {
	return &Records{kv: kv, log: log.With().Str("component", "cache").Logger()}
}

func (r *Records) ReadRating(ctx context.Context, name string) (lookup.Rating, bool) {
	var rec lookup.Rating
	ok := r.read(ctx, Key(name, KindRate), &rec)
	return rec, ok
}

func (r *Records) WriteRating(ctx context.Context, name string, rec lookup.Rating) error {
	return r.write(ctx, Key(name, KindRate), rec)
}

func (r *Records) ReadReview(ctx context.Context, name string) (lookup.Review, bool) {
	var rec lookup.Review
	ok := r.read(ctx, Key(name, KindReview), &rec)
	return rec, ok
}

func (r *Records) WriteReview(ctx context.Context, name string, rec lookup.Review) error {
	return r.write(ctx, Key(name, KindReview), rec)
}

func (r *Records) read(ctx context.Context, key string, dst any) bool {
	raw, err := r.kv.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("corrupt cache entry ignored")
		return false
	}
	return true
}

func (r *Records) write(ctx context.Context, key string, rec any) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.kv.Put(ctx, key, string(b))
}
