// Package upstream implements the bounded-time clients for the two external
// data providers: the fast-changing position feed and the slow-changing
// flight-info feed. Both return classified failures so the retry policy and
// the streaming coordinator can branch on an explicit kind.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/Manu-world/flight-tracking-service/errors"
)

const defaultTimeout = 30 * time.Second

// httpDoer is the subset of http.Client the clients need; swapped for fakes
// in tests.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// client is the shared HTTP plumbing for both feeds: one bounded-time call,
// outbound rate limiting, and status-code classification.
type client struct {
	name    string
	http    httpDoer
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newClient(name string, doer httpDoer, limiter *rate.Limiter, logger *slog.Logger) client {
	if doer == nil {
		doer = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return client{name: name, http: doer, limiter: limiter, logger: logger}
}

// get performs one GET and returns the decoded-ready body. Failures are
// classified: 429 is rate-limited (honoring Retry-After), 401/403 is an
// invalid credential, 404 is a missing target, other non-2xx and transport
// errors are transient.
func (c client) get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.WrapTransient(err, c.name, "get", "rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.WrapFatal(err, c.name, "get", "build request")
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.WrapTransient(err, c.name, "get", "execute request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, errors.WrapTransient(err, c.name, "get", "read response body")
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, errors.WrapRateLimited(
			fmt.Errorf("status %d", resp.StatusCode),
			parseRetryAfter(resp.Header.Get("Retry-After")),
			c.name, "get", "upstream rate limit")
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, errors.WrapAuthInvalid(
			fmt.Errorf("status %d", resp.StatusCode), c.name, "get", "upstream credential rejected")
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.WrapNotFound(errors.ErrTargetNotFound, c.name, "get", "upstream lookup")
	default:
		return nil, errors.WrapTransient(
			fmt.Errorf("status %d", resp.StatusCode), c.name, "get", "unexpected upstream status")
	}
}

// parseRetryAfter handles the delta-seconds form of the header. The HTTP-date
// form is rare on these feeds and falls back to zero (computed backoff).
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// dataEnvelope is the common `{"data": [...]}` response wrapper both feeds
// use.
type dataEnvelope struct {
	Data []json.RawMessage `json:"data"`
}

func decodeEnvelope(name string, body []byte) ([]json.RawMessage, error) {
	var env dataEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		// Some error responses arrive as a bare JSON array.
		var list []json.RawMessage
		if listErr := json.Unmarshal(body, &list); listErr == nil {
			return list, nil
		}
		return nil, errors.WrapMalformed(err, name, "decode", "parse response envelope")
	}
	return env.Data, nil
}

func buildURL(base string, path string, query url.Values) string {
	u := base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}
