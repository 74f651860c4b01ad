package purge

import (
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	httpx "github.com/52poke/doubanx/internal/http"
	"github.com/52poke/doubanx/internal/lookup"
	"github.com/52poke/doubanx/internal/retrieve"
)

const refreshedHeader = "X-Doubanx-Refreshed"

// Handler answers PURGE requests by refetching an item with force set and
// overwriting its cached rating and reviews.
type Handler struct {
	Service *retrieve.Service
	Log     zerolog.Logger
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	info := httpx.ClassifyRequest(r)
	if !info.Valid {
		http.Error(w, info.Reason, http.StatusBadRequest)
		return
	}
	d := info.Descriptor
	d.ForceRefresh = true

	var sink refreshSink
	if err := h.Service.Refresh(r.Context(), d, &sink).Wait(); err != nil {
		h.Log.Warn().Err(err).Str("name", d.Name).Msg("purge refresh failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if sink.rates.Load() == 0 {
		// Another process holds the refresh lock.
		w.WriteHeader(http.StatusAccepted)
		return
	}
	w.Header().Set(refreshedHeader, "1")
	w.WriteHeader(http.StatusNoContent)
}

type refreshSink struct {
	rates atomic.Int64
}

func (s *refreshSink) ShowRate(retrieve.Delivery[lookup.Rating]) { s.rates.Add(1) }
func (s *refreshSink) ShowReview(retrieve.Panel)                 {}
