package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/52poke/doubanx/internal/lookup"
	"github.com/52poke/doubanx/internal/overlay"
	"github.com/52poke/doubanx/internal/retrieve"
)

const (
	deliveriesHeader = "X-Doubanx-Deliveries"
	maxPageBytes     = 4 << 20
)

type Handler struct {
	Service *retrieve.Service
	Log     zerolog.Logger
}

func NewHandler(svc *retrieve.Service, log zerolog.Logger) *Handler {
	return &Handler{
		Service: svc,
		Log:     log.With().Str("component", "http").Logger(),
	}
}

// ServeHTTP streams every delivery of a retrieval as one NDJSON line.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info := ClassifyRequest(r)
	if !info.Valid {
		http.Error(w, info.Reason, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	sink := newStreamSink(w)
	if err := h.Service.Show(r.Context(), info.Descriptor, sink).Wait(); err != nil {
		h.Log.Warn().Err(err).Str("name", info.Descriptor.Name).Msg("lookup finished with errors")
	}
}

// Overlay renders the retrieved data into the HTML page posted as the body.
func (h *Handler) Overlay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info := ClassifyRequest(r)
	if !info.Valid {
		http.Error(w, info.Reason, http.StatusBadRequest)
		return
	}

	page, err := overlay.Parse(http.MaxBytesReader(w, r.Body, maxPageBytes), info.Descriptor.Kind,
		h.Log.With().Str("component", "overlay").Logger())
	if err != nil {
		http.Error(w, "unreadable page", http.StatusBadRequest)
		return
	}

	sink := &countingSink{next: page}
	if err := h.Service.Show(r.Context(), info.Descriptor, sink).Wait(); err != nil {
		h.Log.Warn().Err(err).Str("name", info.Descriptor.Name).Msg("overlay rendered with errors")
	}

	html, err := page.HTML()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set(deliveriesHeader, strconv.FormatInt(sink.n.Load(), 10))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, html)
}

type event struct {
	Event  string          `json:"event"`
	Source retrieve.Source `json:"source"`
	Data   any             `json:"data"`
}

type streamSink struct {
	mu  sync.Mutex
	enc *json.Encoder
	w   http.ResponseWriter
}

func newStreamSink(w http.ResponseWriter) *streamSink {
	return &streamSink{enc: json.NewEncoder(w), w: w}
}

func (s *streamSink) ShowRate(d retrieve.Delivery[lookup.Rating]) {
	s.emit(event{Event: "rate", Source: d.Source, Data: d.Value})
}

func (s *streamSink) ShowReview(p retrieve.Panel) {
	s.emit(event{Event: "review", Source: p.Source, Data: map[string]any{"rate": p.Rate, "review": p.Review}})
}

func (s *streamSink) emit(e event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(e); err != nil {
		return
	}
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
}

type countingSink struct {
	next retrieve.Sink
	n    atomic.Int64
}

func (c *countingSink) ShowRate(d retrieve.Delivery[lookup.Rating]) {
	c.n.Add(1)
	c.next.ShowRate(d)
}

func (c *countingSink) ShowReview(p retrieve.Panel) {
	c.n.Add(1)
	c.next.ShowReview(p)
}
