package llm

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"syscall"
	"time"
)

// RetryPolicy bounds transport-level retries.
type RetryPolicy struct {
	MaxRetries        int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryableStatuses []int
}

// DefaultRetryPolicy returns two retries with 500ms..8s backoff on 429 and
// gateway errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         500 * time.Millisecond,
		MaxDelay:          8 * time.Second,
		RetryableStatuses: []int{http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
	}
}

// RetryTransport is an http.RoundTripper that replays a request when the
// server answers with a retryable status or the connection fails
// transiently. Only the response headers are inspected, so once a 2xx
// response is returned its body belongs to the caller untouched.
type RetryTransport struct {
	base   http.RoundTripper
	policy RetryPolicy

	// jitter returns a value in [0, 1). Replaced in tests.
	jitter func() float64
}

// NewRetryTransport wraps base with policy.
func NewRetryTransport(base http.RoundTripper, policy RetryPolicy) *RetryTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RetryTransport{base: base, policy: policy, jitter: rand.Float64}
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	for attempt := 0; ; attempt++ {
		try := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			try = req.Clone(ctx)
			try.Body = body
		}

		resp, err := t.base.RoundTrip(try)
		if err != nil {
			if attempt >= t.policy.MaxRetries || !isTransient(ctx, err) || !replayable(req) {
				return nil, err
			}
			delay := t.backoff(attempt)
			log.Debug("retrying %s after transport error (%v), attempt %d, delay %v", req.URL.Path, err, attempt+1, delay)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		if !slices.Contains(t.policy.RetryableStatuses, resp.StatusCode) || attempt >= t.policy.MaxRetries || !replayable(req) {
			return resp, nil
		}

		// Drain the body so the connection can be reused and so the
		// "try again in" hint can be read.
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()

		delay, ok := retryAfter(resp.Header.Get("Retry-After"), time.Now())
		if !ok {
			delay, ok = tryAgainIn(data)
		}
		if !ok {
			delay = t.backoff(attempt)
		}
		if t.policy.MaxDelay > 0 && delay > t.policy.MaxDelay {
			delay = t.policy.MaxDelay
		}

		log.Debug("retrying %s after status %d, attempt %d, delay %v", req.URL.Path, resp.StatusCode, attempt+1, delay)
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func replayable(req *http.Request) bool {
	return req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
}

// backoff returns a jittered exponential delay for attempt (0-based),
// between half and all of BaseDelay*2^attempt, capped at MaxDelay.
func (t *RetryTransport) backoff(attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30
	}
	d := t.policy.BaseDelay << uint(attempt)
	if t.policy.MaxDelay > 0 && (d > t.policy.MaxDelay || d <= 0) {
		d = t.policy.MaxDelay
	}
	half := d / 2
	return half + time.Duration(t.jitter()*float64(d-half))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryAfter parses a Retry-After header as seconds or an HTTP date.
func retryAfter(header string, now time.Time) (time.Duration, bool) {
	if header == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second, true
	}
	if t, err := http.ParseTime(header); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

var tryAgainPattern = regexp.MustCompile(`(?i)try again in\s+(\d+(?:\.\d+)?)\s*s`)

// tryAgainIn extracts a "try again in 12.5s" hint from a response body.
func tryAgainIn(body []byte) (time.Duration, bool) {
	m := tryAgainPattern.FindSubmatch(body)
	if m == nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

