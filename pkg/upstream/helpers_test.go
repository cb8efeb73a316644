package upstream

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func newTestHTTPClient(handler http.Handler, opts Opts) *HTTPClient {
	opts.HTTPClient = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			resp := rec.Result()
			if resp.Body == nil {
				resp.Body = http.NoBody
			}
			return resp, nil
		}),
		Timeout: 5 * time.Second,
	}
	if opts.RPS == 0 {
		opts.RPS = 1000
		opts.Burst = 1000
	}
	return NewHTTPWithOpts(opts)
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	return NewClient(newTestHTTPClient(handler, Opts{}), Config{
		APIHost:     "http://indexer.mock",
		ORDFSHost:   "http://ordfs.mock",
		ChainTipURL: "http://chain.mock/v1/block_header/tip",
		RateURL:     "http://rate.mock/v1/bsv/main/exchangerate",
	}, zaptest.NewLogger(t))
}
