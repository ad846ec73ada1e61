package controller

import (
	"context"
	"testing"
	"time"

	"github.com/seenimoa/macrocal/internal/calendar"
	"github.com/seenimoa/macrocal/internal/notify"
)

func TestSessionStale(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	s := NewSession()
	s.now = func() time.Time { return now }

	if s.Stale(time.Minute) {
		t.Error("never-loaded session reported stale")
	}
	s.MarkUpdated()
	if !s.LastUpdate().Equal(now) {
		t.Errorf("last update = %v", s.LastUpdate())
	}
	now = now.Add(time.Minute)
	if s.Stale(time.Minute) {
		t.Error("stale at exactly the window")
	}
	now = now.Add(time.Second)
	if !s.Stale(time.Minute) {
		t.Error("not stale past the window")
	}
}

func TestCheckServer(t *testing.T) {
	tests := []struct {
		name       string
		api        *fakeCalendar
		wantErr    bool
		wantHealth bool
		wantNotice string
	}{
		{
			name:       "healthy",
			api:        healthyCalendar(),
			wantHealth: true,
		},
		{
			name: "unhealthy",
			api: &fakeCalendar{status: &calendar.StatusResponse{
				Status: "degraded",
				Mode:   "mock",
			}},
			wantNotice: MsgServiceUnhealthy,
		},
		{
			name:       "unreachable",
			api:        &fakeCalendar{statusErr: errDown},
			wantErr:    true,
			wantNotice: MsgConnectFailed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := NewSession()
			buf := notify.NewBuffer(5)
			info, err := CheckServer(context.Background(), tt.api, sess, buf, time.Second)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if info.Healthy != tt.wantHealth {
				t.Errorf("healthy = %v", info.Healthy)
			}
			if sess.Server().CheckedAt.IsZero() {
				t.Error("check not recorded in session")
			}
			msgs := buf.Messages()
			if tt.wantNotice == "" && len(msgs) != 0 {
				t.Errorf("unexpected notices %v", msgs)
			}
			if tt.wantNotice != "" && !contains(msgs, tt.wantNotice) {
				t.Errorf("notices = %v, want %q", msgs, tt.wantNotice)
			}
		})
	}
}

func TestDefaultFilterOptions(t *testing.T) {
	opts := DefaultFilterOptions()
	if len(opts.Importance) != 4 || opts.Importance[0].Value != "all" {
		t.Errorf("importance options = %+v", opts.Importance)
	}
	if len(opts.Currency) != 6 || opts.Currency[1].Value != "USD" {
		t.Errorf("currency options = %+v", opts.Currency)
	}
}
