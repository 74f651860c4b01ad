package lookup

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Kind string

const (
	KindMovie Kind = "movie"
	KindBook  Kind = "book"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindMovie, KindBook:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// Rating is the rating record for one item. Rate holds the service's rating
// object as-is.
type Rating struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Rate      json.RawMessage `json:"rate"`
	FetchedAt time.Time       `json:"time"`
}

type Review struct {
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"time"`
}
