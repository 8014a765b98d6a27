package netutil

import (
	"net"
	"net/http"
	"time"
)

// ClientOptions tunes BuildHTTPClient. Zero values select defaults.
type ClientOptions struct {
	Timeout        time.Duration
	ResponseHeader time.Duration
	MaxRetries     int
	Backoff        time.Duration
	// RetryAll retries every request on transient errors. Otherwise only
	// requests whose context was marked with Retryable are resent.
	RetryAll bool
}

// BuildHTTPClient returns a client with bounded dial/TLS/header timeouts and
// a retrying transport.
func BuildHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ResponseHeader <= 0 {
		opts.ResponseHeader = 5 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.ResponseHeader,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &retryTransport{
			base:       transport,
			maxRetries: opts.MaxRetries,
			backoff:    opts.Backoff,
			retryAll:   opts.RetryAll,
		},
	}
}

type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	retryAll   bool
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := 1
	if t.retryAll || IsRetryable(req.Context()) {
		attempts += t.maxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		curr := req
		if attempt > 1 {
			curr = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				curr.Body = body
			} else if req.Body != nil {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(curr)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !ShouldRetry(err) || attempt == attempts {
			break
		}

		timer := time.NewTimer(t.backoff * time.Duration(attempt))
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
