package lookup

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

type envelope struct {
	Ret  *int            `json:"ret"`
	Data json.RawMessage `json:"data"`
	Time json.RawMessage `json:"time"`
}

type ratingPayload struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
	Rate json.RawMessage `json:"rate"`
	Time json.RawMessage `json:"time"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func decodeRating(env envelope, now time.Time) (Rating, error) {
	var p ratingPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return Rating{}, err
	}
	id := scalarString(p.ID)
	if id == "" {
		return Rating{}, errors.New("rating without id")
	}
	fetched, ok := parseTime(p.Time)
	if !ok {
		fetched, ok = parseTime(env.Time)
	}
	if !ok {
		fetched = now
	}
	return Rating{
		ID:        id,
		Name:      p.Name,
		Rate:      unwrapRate(p.Rate),
		FetchedAt: fetched,
	}, nil
}

func decodeReview(env envelope, now time.Time) Review {
	fetched, ok := parseTime(env.Time)
	if !ok {
		fetched = now
	}
	data := env.Data
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("null")
	}
	return Review{Data: data, FetchedAt: fetched}
}

// unwrapRate accepts rate either as an object or as a string holding JSON.
func unwrapRate(raw json.RawMessage) json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	if raw[0] != '"' {
		return raw
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return raw
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	return raw
}

func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// parseTime reads a timestamp string in one of timeLayouts, or a number of
// unix milliseconds.
func parseTime(raw json.RawMessage) (time.Time, bool) {
	s := scalarString(raw)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
