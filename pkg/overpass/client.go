// Package overpass queries an OpenStreetMap Overpass API interpreter.
package overpass

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	gooverpass "github.com/serjvanilla/go-overpass"
	"golang.org/x/time/rate"

	"github.com/sells-group/catchment/internal/resilience"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "https://overpass-api.de/api/interpreter"

// maxErrorBody bounds how much of an error response is kept in the error.
const maxErrorBody = 512

// Client runs Overpass QL queries.
type Client interface {
	// Query runs an Overpass QL query that requests JSON output.
	Query(ctx context.Context, ql string) (*Result, error)
}

// Option configures the client.
type Option func(*client)

// WithEndpoint sets the interpreter URL.
func WithEndpoint(endpoint string) Option {
	return func(c *client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit. The public instance
// allows a couple of concurrent slots per client. Non-positive values keep
// the default of one request per second.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client) {
		c.userAgent = ua
	}
}

type client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewClient creates an Overpass Client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 180 * time.Second},
		limiter:    rate.NewLimiter(1, 1),
		userAgent:  "catchment/1.0",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Query posts ql to the interpreter and decodes the reply with go-overpass.
// Rate limiting, timeouts and server overload (408, 429, 5xx, or a runtime
// remark in a 200 response) are returned as resilience.TransientError.
func (c *client) Query(ctx context.Context, ql string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "overpass: rate limit")
	}

	t := &transport{ctx: ctx, client: c}
	api := gooverpass.NewWithSettings(c.endpoint, 1, t)
	res, err := api.Query(ql)
	if t.err != nil {
		return nil, t.err
	}
	if err != nil {
		return nil, eris.Wrap(err, "overpass: parse response")
	}
	return &res, nil
}

// transport carries one query's context and headers into go-overpass and
// classifies failures before the decoder sees the body.
type transport struct {
	ctx    context.Context
	client *client
	err    error
}

// PostForm implements the go-overpass HTTP client.
func (t *transport) PostForm(endpoint string, data url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(t.ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		t.err = eris.Wrap(err, "overpass: build request")
		return nil, t.err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.Do(req)
}

// Do implements the go-overpass HTTP client.
func (t *transport) Do(req *http.Request) (*http.Response, error) {
	req = req.WithContext(t.ctx)
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.client.userAgent)

	resp, err := t.client.httpClient.Do(req)
	if err != nil {
		t.err = eris.Wrap(err, "overpass: request")
		return nil, t.err
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		err := eris.Errorf("overpass: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			err = resilience.NewTransientError(err, resp.StatusCode)
		}
		t.err = err
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.err = eris.Wrap(err, "overpass: read response")
		return nil, t.err
	}
	var head struct {
		Remark string `json:"remark"`
	}
	if json.Unmarshal(body, &head) == nil && isRuntimeRemark(head.Remark) {
		t.err = resilience.NewTransientError(eris.Errorf("overpass: %s", head.Remark), resp.StatusCode)
		return nil, t.err
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// isRuntimeRemark reports whether a remark signals a truncated result,
// e.g. "runtime error: Query timed out in \"query\" at line 1".
func isRuntimeRemark(remark string) bool {
	r := strings.ToLower(remark)
	return strings.Contains(r, "runtime error") || strings.Contains(r, "timed out") || strings.Contains(r, "out of memory")
}
