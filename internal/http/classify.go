package httpx

import (
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/52poke/doubanx/internal/lookup"
	"github.com/52poke/doubanx/internal/retrieve"
	"github.com/52poke/doubanx/internal/title"
)

type RequestInfo struct {
	Valid      bool
	Descriptor retrieve.Descriptor
	Reason     string
}

const maxFormBytes = 64 << 10

// ClassifyRequest reads the item descriptor from the query string or a
// url-encoded form body: name, type (movie|book) and an optional force flag.
// Query values win over form values.
func ClassifyRequest(r *http.Request) RequestInfo {
	q := requestValues(r)

	name := strings.TrimSpace(q.Get("name"))
	if name == "" {
		return RequestInfo{Reason: "missing-name"}
	}
	if title.Normalize(name) == "" {
		return RequestInfo{Reason: "empty-name"}
	}

	kind, err := lookup.ParseKind(q.Get("type"))
	if err != nil {
		return RequestInfo{Reason: "bad-type"}
	}

	force, ok := parseForce(q.Get("force"))
	if !ok {
		return RequestInfo{Reason: "bad-force"}
	}

	return RequestInfo{
		Valid: true,
		Descriptor: retrieve.Descriptor{
			Name:         name,
			Kind:         kind,
			ForceRefresh: force,
		},
	}
}

func parseForce(v string) (bool, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// requestValues merges the query with a url-encoded body. Only form bodies
// are consumed, so an HTML page posted to the overlay endpoint stays unread.
func requestValues(r *http.Request) url.Values {
	q := r.URL.Query()
	if r.Body == nil || r.Body == http.NoBody {
		return q
	}
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || ct != "application/x-www-form-urlencoded" {
		return q
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxFormBytes))
	if err != nil {
		return q
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return q
	}
	for k, v := range form {
		if _, ok := q[k]; !ok {
			q[k] = v
		}
	}
	return q
}
