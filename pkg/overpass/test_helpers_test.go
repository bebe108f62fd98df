package overpass

import (
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

// newTestClient returns a client whose requests to DefaultEndpoint are
// redirected to the test server.
func newTestClient(serverURL string) *client {
	c := NewClient(WithHTTPClient(&http.Client{
		Transport: &rewriteTransport{
			base:         http.DefaultTransport,
			testServer:   serverURL,
			targetPrefix: DefaultEndpoint,
		},
	})).(*client)
	c.limiter = newTestLimiter()
	return c
}

type rewriteTransport struct {
	base         http.RoundTripper
	testServer   string
	targetPrefix string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	origURL := req.URL.String()
	if !strings.HasPrefix(origURL, t.targetPrefix) {
		return t.base.RoundTrip(req)
	}
	parsed, err := req.URL.Parse(t.testServer + origURL[len(t.targetPrefix):])
	if err != nil {
		return nil, err
	}
	newReq := req.Clone(req.Context())
	newReq.URL = parsed
	newReq.Host = parsed.Host
	return t.base.RoundTrip(newReq)
}
