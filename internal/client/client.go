// Package client wraps outbound calls to the calendar service: timeouts,
// header injection, rate limiting and classification of every failure into
// a Kind with its own user-facing message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/seenimoa/macrocal/internal/notify"
)

// DefaultTimeout applies to calls that do not override it.
const DefaultTimeout = 15 * time.Second

// DefaultUserAgent identifies the client to the service.
const DefaultUserAgent = "macrocal/1.0"

// DefaultLoadingText is shown while a call with loading enabled is running.
const DefaultLoadingText = "加载中..."

const maxBodyBytes = 8 << 20

// Options configures a Client.
type Options struct {
	BaseURL    string            // e.g. http://127.0.0.1:5000/api
	Timeout    time.Duration     // default per-call timeout
	Headers    map[string]string // static headers added to every call
	UserAgent  string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Notifier   notify.Notifier
	Logger     logrus.FieldLogger

	// Online, when set, is consulted before every call; false fails the
	// call immediately as a network failure.
	Online func() bool
}

// Client performs single calls against the service.
type Client struct {
	baseURL   string
	timeout   time.Duration
	headers   map[string]string
	userAgent string
	http      *http.Client
	limiter   *rate.Limiter
	notifier  notify.Notifier
	log       logrus.FieldLogger
	online    func() bool
}

// New creates a Client. Zero-valued options get defaults.
func New(opts Options) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		timeout:   opts.Timeout,
		headers:   opts.Headers,
		userAgent: opts.UserAgent,
		http:      opts.HTTPClient,
		limiter:   opts.Limiter,
		notifier:  opts.Notifier,
		log:       opts.Logger,
		online:    opts.Online,
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.notifier == nil {
		c.notifier = notify.Discard{}
	}
	if c.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		c.log = l
	}
	return c
}

// BaseURL returns the configured service root.
func (c *Client) BaseURL() string { return c.baseURL }

// CallOptions are per-call overrides.
type CallOptions struct {
	Timeout     time.Duration
	Headers     map[string]string
	ShowLoading bool
	LoadingText string
}

// CallOption mutates CallOptions.
type CallOption func(*CallOptions)

// WithTimeout overrides the default timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) { o.Timeout = d }
}

// WithHeader adds a header to one call; it wins over static headers.
func WithHeader(key, value string) CallOption {
	return func(o *CallOptions) {
		if o.Headers == nil {
			o.Headers = make(map[string]string)
		}
		o.Headers[key] = value
	}
}

// WithLoading shows a loading indicator for the duration of the call.
// An empty text uses DefaultLoadingText.
func WithLoading(text string) CallOption {
	return func(o *CallOptions) {
		o.ShowLoading = true
		o.LoadingText = text
	}
}

// Call sends one request to path (relative to the base URL) and returns the
// response body verbatim when the status is 2xx. A non-nil body is sent as
// JSON. Every failure is returned as a *Error and also raised as a toast.
func (c *Client) Call(ctx context.Context, path, method string, body any, opts ...CallOption) (json.RawMessage, error) {
	var co CallOptions
	for _, o := range opts {
		o(&co)
	}
	timeout := c.timeout
	if co.Timeout > 0 {
		timeout = co.Timeout
	}
	if method == "" {
		method = http.MethodGet
	}

	reqID := uuid.NewString()
	log := c.log.WithFields(logrus.Fields{
		"component":  "client",
		"method":     method,
		"path":       path,
		"request_id": reqID,
	})

	if c.online != nil && !c.online() {
		return nil, c.fail(log, &Error{
			Kind:    KindNetworkFailure,
			Method:  method,
			Path:    path,
			Message: MsgOffline,
			Err:     errors.New("network disconnected"),
		})
	}

	if co.ShowLoading {
		text := co.LoadingText
		if text == "" {
			text = DefaultLoadingText
		}
		c.notifier.ShowLoading(text)
		defer c.notifier.HideLoading()
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.fail(log, transportError(method, path, err))
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", reqID)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range co.Headers {
		req.Header.Set(k, v)
	}

	log.Debug("api request")
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.fail(log, transportError(method, path, err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.fail(log, transportError(method, path, err))
	}

	log = log.WithFields(logrus.Fields{"status": resp.StatusCode, "elapsed": time.Since(start).String()})

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		kind, msg := statusError(resp.StatusCode)
		snippet := data
		if len(snippet) > 1024 {
			snippet = snippet[:1024]
		}
		return nil, c.fail(log, &Error{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Message:    msg,
			Body:       string(snippet),
		})
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("null")
	}
	if !json.Valid(data) {
		perr := NewParseError(path, errors.New("response is not valid JSON"))
		perr.Method = method
		return nil, c.fail(log, perr)
	}

	log.Debug("api response")
	return json.RawMessage(data), nil
}

// fail logs the error and raises its toast.
func (c *Client) fail(log logrus.FieldLogger, e *Error) error {
	log.WithField("kind", e.Kind.String()).WithError(e).Warn("api call failed")
	c.notifier.Toast(e.Message)
	return e
}

// transportError classifies a failure that produced no HTTP response.
func transportError(method, path string, err error) *Error {
	e := &Error{Method: method, Path: path, Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		e.Kind = KindTimeout
		e.Message = MsgTimeout
	default:
		e.Kind = KindNetworkFailure
		e.Message = MsgNetworkFailure
	}
	return e
}
