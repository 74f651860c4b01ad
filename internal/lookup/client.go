package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/52poke/doubanx/internal/title"
)

const (
	DefaultBaseURL = "https://doubanx.wange.im"
	DefaultTimeout = 10 * time.Second

	opRating = "get_rate"
	opReview = "get_review"
)

var errMissingRet = errors.New("envelope without ret")

type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
		now: time.Now,
	}
}

// FetchRating looks an item up by name. The name is normalized before it is
// sent; force asks the service to bypass its own cache.
func (c *Client) FetchRating(ctx context.Context, name string, kind Kind, force bool) (Rating, error) {
	form := url.Values{}
	form.Set("name", title.Normalize(name))
	form.Set("type", string(kind))
	form.Set("force", forceFlag(force))

	env, err := c.post(ctx, opRating, form)
	if err != nil {
		return Rating{}, err
	}
	rec, err := decodeRating(env, c.now())
	if err != nil {
		return Rating{}, &NetworkError{Op: opRating, URL: c.endpoint(opRating), StatusCode: http.StatusOK, Err: err}
	}
	return rec, nil
}

// FetchReview loads the reviews of the item a rating was fetched for.
func (c *Client) FetchReview(ctx context.Context, id string) (Review, error) {
	form := url.Values{}
	form.Set("id", id)

	env, err := c.post(ctx, opReview, form)
	if err != nil {
		return Review{}, err
	}
	return decodeReview(env, c.now()), nil
}

func (c *Client) post(ctx context.Context, op string, form url.Values) (envelope, error) {
	endpoint := c.endpoint(op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return envelope{}, &NetworkError{Op: op, URL: endpoint, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, &NetworkError{Op: op, URL: endpoint, Err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return envelope{}, &NetworkError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return envelope{}, &NetworkError{Op: op, URL: endpoint, StatusCode: resp.StatusCode}
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return envelope{}, &NetworkError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	if env.Ret == nil {
		return envelope{}, &NetworkError{Op: op, URL: endpoint, StatusCode: resp.StatusCode, Err: errMissingRet}
	}
	if *env.Ret != 0 {
		return envelope{}, &ApplicationError{Op: op, Ret: *env.Ret}
	}
	return env, nil
}

func (c *Client) endpoint(op string) string {
	return c.baseURL + "/" + op
}

func forceFlag(force bool) string {
	if force {
		return "1"
	}
	return "0"
}
