// Package calendar exposes the calendar service's named operations over the
// HTTP client. It decodes responses and nothing more.
package calendar

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/seenimoa/macrocal/internal/client"
)

// Service paths, relative to the /api base.
const (
	PathEvents  = "/events/today"
	PathSummary = "/summary/today"
	PathStatus  = "/status"
	PathRefresh = "/refresh"
)

// Caller is the transport the facade runs on.
type Caller interface {
	Call(ctx context.Context, path, method string, body any, opts ...client.CallOption) (json.RawMessage, error)
}

var _ Caller = (*client.Client)(nil)

// API is the calendar service facade.
type API struct {
	c Caller
}

// New creates a facade over c.
func New(c Caller) *API {
	return &API{c: c}
}

// TodayEvents fetches today's events.
func (a *API) TodayEvents(ctx context.Context, opts ...client.CallOption) (*EventsResponse, error) {
	raw, err := a.c.Call(ctx, PathEvents, http.MethodGet, nil, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := decodeEvents(raw)
	if err != nil {
		return nil, parseError(PathEvents, http.MethodGet, err)
	}
	return resp, nil
}

// TodaySummary fetches today's market summary.
func (a *API) TodaySummary(ctx context.Context, opts ...client.CallOption) (*SummaryResponse, error) {
	raw, err := a.c.Call(ctx, PathSummary, http.MethodGet, nil, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := decodeSummary(raw)
	if err != nil {
		return nil, parseError(PathSummary, http.MethodGet, err)
	}
	return resp, nil
}

// Status fetches the service status.
func (a *API) Status(ctx context.Context, opts ...client.CallOption) (*StatusResponse, error) {
	raw, err := a.c.Call(ctx, PathStatus, http.MethodGet, nil, opts...)
	if err != nil {
		return nil, err
	}
	resp, err := decodeStatus(raw)
	if err != nil {
		return nil, parseError(PathStatus, http.MethodGet, err)
	}
	return resp, nil
}

// Refresh asks the service to regenerate today's data. No body is sent.
func (a *API) Refresh(ctx context.Context, opts ...client.CallOption) (*RefreshAck, error) {
	raw, err := a.c.Call(ctx, PathRefresh, http.MethodPost, nil, opts...)
	if err != nil {
		return nil, err
	}
	return decodeAck(raw), nil
}

func parseError(path, method string, err error) error {
	e := client.NewParseError(path, err)
	e.Method = method
	return e
}
