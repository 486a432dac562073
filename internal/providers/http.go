package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"flightsync/internal/models"
	"flightsync/internal/retry"
)

const maxBodyBytes = 8 << 20

// NewHTTPClient creates a client tuned for polling external sources
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        10,
		MaxConnsPerHost:     5,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// ClassifyStatus maps a non-200 HTTP status to the retry taxonomy
func ClassifyStatus(resp *http.Response, body []byte) error {
	base := fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &retry.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Err: base}
	case resp.StatusCode == http.StatusUnauthorized:
		return &retry.QuotaExceededError{Reason: "unauthorized", Err: base}
	case resp.StatusCode == http.StatusForbidden:
		return &retry.QuotaExceededError{Reason: "forbidden", Err: base}
	default:
		return retry.Transient(base)
	}
}

// Get performs a GET and returns the body of a 200 response. Everything
// else comes back classified for the retry controller.
func Get(ctx context.Context, client *http.Client, endpoint string, query url.Values, headers map[string]string) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, retry.Transient(fmt.Errorf("executing request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("reading body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, ClassifyStatus(resp, body)
	}
	return body, nil
}

// Query converts params to url.Values, skipping empty values
func Query(params models.Params) url.Values {
	q := url.Values{}
	for k := range params {
		if v := params.String(k); v != "" {
			q.Set(k, v)
		}
	}
	return q
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
