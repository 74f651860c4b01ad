package retrieve

import (
	"context"

	"github.com/52poke/doubanx/internal/lookup"
)

// Panel is one rating together with its reviews.
type Panel struct {
	Rate   lookup.Rating
	Review lookup.Review
	Source Source
}

// Sink receives every delivery of a Service retrieval. Calls may come from
// several goroutines.
type Sink interface {
	ShowRate(d Delivery[lookup.Rating])
	ShowReview(p Panel)
}

// Service chains the two retrievers: every rating delivery is shown and then
// drives a review retrieval for that rating.
type Service struct {
	Ratings *RatingRetriever
	Reviews *ReviewRetriever
}

func NewService(ratings *RatingRetriever, reviews *ReviewRetriever) *Service {
	return &Service{Ratings: ratings, Reviews: reviews}
}

func (s *Service) Show(ctx context.Context, d Descriptor, sink Sink) *Flight {
	f := NewFlight(ctx)
	s.Ratings.Join(f, d, func(rd Delivery[lookup.Rating]) {
		sink.ShowRate(rd)
		s.Reviews.Join(f, d.Name, rd.Value, func(vd Delivery[lookup.Review]) {
			sink.ShowReview(Panel{Rate: rd.Value, Review: vd.Value, Source: vd.Source})
		})
	})
	return f
}

// Refresh refetches the rating and then the reviews of d, bypassing the
// cache for both.
func (s *Service) Refresh(ctx context.Context, d Descriptor, sink Sink) *Flight {
	f := NewFlight(ctx)
	s.Ratings.Refresh(f, d, func(rd Delivery[lookup.Rating]) {
		sink.ShowRate(rd)
		s.Reviews.Refresh(f, d.Name, rd.Value, func(vd Delivery[lookup.Review]) {
			sink.ShowReview(Panel{Rate: rd.Value, Review: vd.Value, Source: vd.Source})
		})
	})
	return f
}
