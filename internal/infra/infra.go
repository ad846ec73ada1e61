// Package infra provides shared infrastructure components used across
// the application: retrying, debouncing, rate limiting, scoped tickers and
// a cached reachability probe.
package infra

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// --- Retry ---

// WithRetry runs op until it succeeds or maxAttempts attempts have failed.
// Attempts are numbered from 1 and separated by a fixed delay. The error of
// the final attempt is returned unchanged. A maxAttempts below 1 is treated
// as a single attempt.
//
// The delay honours ctx: if ctx ends while waiting, the last attempt's error
// is returned without further attempts.
func WithRetry[T any](ctx context.Context, op func(ctx context.Context) (T, error), maxAttempts int, delay time.Duration) (T, error) {
	return WithRetryNotify(ctx, op, maxAttempts, delay, nil)
}

// WithRetryNotify is WithRetry with a callback invoked after each failed
// attempt that will be retried.
func WithRetryNotify[T any](ctx context.Context, op func(ctx context.Context) (T, error), maxAttempts int, delay time.Duration, onRetry func(attempt int, err error)) (T, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var (
		result T
		err    error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if attempt == maxAttempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, err
		case <-timer.C:
		}
	}
	return result, err
}

// --- Debounce ---

// Debouncer coalesces bursts of calls into one: the function passed to the
// most recent Trigger runs once the quiet window has elapsed without
// another Trigger.
type Debouncer struct {
	mu    sync.Mutex
	wait  time.Duration
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait}
}

// Trigger (re)starts the quiet window and schedules fn at its end.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, fn)
}

// Stop cancels a pending call, if any.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// --- Rate limiter ---

// NewRateLimiter builds a limiter allowing rps requests per second with the
// given burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// --- Scoped ticker ---

// Every calls fn immediately and then once per interval until ctx is done.
// It blocks; run it in its own goroutine. The ticker is always released on
// return.
func Every(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	fn(time.Now())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}

// --- Reachability ---

// Reachability answers "is the network up" by dialing a TCP address. The
// verdict is cached for ttl so a burst of calls costs one dial.
type Reachability struct {
	addr    string
	timeout time.Duration
	ttl     time.Duration
	dial    func(ctx context.Context, network, addr string) (net.Conn, error)
	now     func() time.Time

	mu        sync.Mutex
	checkedAt time.Time
	online    bool
}

// NewReachability probes addr (host:port) with the given dial timeout.
func NewReachability(addr string, timeout, ttl time.Duration) *Reachability {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	d := &net.Dialer{Timeout: timeout}
	return &Reachability{
		addr:    addr,
		timeout: timeout,
		ttl:     ttl,
		dial:    d.DialContext,
		now:     time.Now,
	}
}

// ProbeAddr derives the host:port to probe from a service base URL. The
// port defaults from the scheme.
func ProbeAddr(baseURL string) (string, bool) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		case "http":
			port = "80"
		default:
			return "", false
		}
	}
	return net.JoinHostPort(u.Hostname(), port), true
}

// Online reports whether the last probe, at most ttl old, succeeded.
// Concurrent callers share one dial.
func (r *Reachability) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if !r.checkedAt.IsZero() && now.Sub(r.checkedAt) < r.ttl {
		return r.online
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	conn, err := r.dial(ctx, "tcp", r.addr)
	r.online = err == nil
	if conn != nil {
		conn.Close()
	}
	r.checkedAt = now
	return r.online
}
