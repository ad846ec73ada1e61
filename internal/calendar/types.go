package calendar

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/seenimoa/macrocal/pkg/models"
)

// StatusSuccess is the envelope status of a successful service response.
const StatusSuccess = "success"

// StatusHealthy is the status reported by a healthy service.
const StatusHealthy = "healthy"

// EventsResponse is the envelope of GET /events/today.
type EventsResponse struct {
	Status      string            `json:"status"`
	Data        []models.RawEvent `json:"data"`
	Mode        string            `json:"mode,omitempty"`
	GeneratedAt string            `json:"generated_at,omitempty"`
	Count       int               `json:"count,omitempty"`
	Source      string            `json:"source,omitempty"`
	Message     string            `json:"message,omitempty"`
}

// OK reports whether the envelope carries usable data.
func (r *EventsResponse) OK() bool { return r.Status == StatusSuccess }

// SummaryResponse is the unified shape of the daily summary. The service has
// shipped three variants: a top-level "summary" string, a "data" string (or
// object holding "summary"), and the "analysis" field of /analysis/daily.
type SummaryResponse struct {
	Status      string `json:"status"`
	Summary     string `json:"summary"`
	GeneratedAt string `json:"generated_at,omitempty"`
	Mode        string `json:"mode,omitempty"`
}

// OK reports whether a summary text was found. A missing status counts as
// success since the bare-summary variant omits it.
func (r *SummaryResponse) OK() bool {
	return (r.Status == "" || r.Status == StatusSuccess) && r.Summary != ""
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status    string `json:"status"`
	AIEnabled bool   `json:"ai_enabled"`
	Mode      string `json:"mode,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// Healthy reports whether the service considers itself healthy.
func (r *StatusResponse) Healthy() bool { return r.Status == StatusHealthy }

// RefreshAck is the acknowledgement of POST /refresh.
type RefreshAck struct {
	Status    string `json:"status,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

var errNotObject = errors.New("response is not a JSON object")

func decodeEvents(raw json.RawMessage) (*EventsResponse, error) {
	if !isObject(raw) {
		return nil, errNotObject
	}
	var resp EventsResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func decodeSummary(raw json.RawMessage) (*SummaryResponse, error) {
	if !isObject(raw) {
		return nil, errNotObject
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}

	resp := &SummaryResponse{
		Status:      stringField(fields["status"]),
		GeneratedAt: stringField(fields["generated_at"]),
		Mode:        stringField(fields["mode"]),
	}
	switch {
	case stringField(fields["summary"]) != "":
		resp.Summary = stringField(fields["summary"])
	case stringField(fields["data"]) != "":
		resp.Summary = stringField(fields["data"])
	case isObject(fields["data"]):
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(fields["data"], &nested); err == nil {
			resp.Summary = stringField(nested["summary"])
			if resp.GeneratedAt == "" {
				resp.GeneratedAt = stringField(nested["generated_at"])
			}
		}
	}
	if resp.Summary == "" {
		resp.Summary = stringField(fields["analysis"])
	}
	if resp.GeneratedAt == "" {
		resp.GeneratedAt = stringField(fields["timestamp"])
	}
	return resp, nil
}

func decodeStatus(raw json.RawMessage) (*StatusResponse, error) {
	if !isObject(raw) {
		return nil, errNotObject
	}
	var resp StatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// decodeAck never fails: the ack format is not fixed, so anything that is
// not an object yields an empty ack.
func decodeAck(raw json.RawMessage) *RefreshAck {
	var ack RefreshAck
	if isObject(raw) {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil {
			ack.Status = stringField(fields["status"])
			ack.Message = stringField(fields["message"])
			ack.Timestamp = stringField(fields["timestamp"])
		}
	}
	return &ack
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

func stringField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
