package controller

import (
	"context"
	"sync"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/seenimoa/macrocal/internal/cache"
	"github.com/seenimoa/macrocal/internal/calendar"
	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/notify"
	"github.com/seenimoa/macrocal/internal/storage"
	"github.com/seenimoa/macrocal/pkg/models"
)

var errDown = &client.Error{Kind: client.KindNetworkFailure, Message: client.MsgNetworkFailure}

// fakeCalendar is a scripted Calendar.
type fakeCalendar struct {
	mu sync.Mutex

	events     *calendar.EventsResponse
	eventsErr  error
	summary    *calendar.SummaryResponse
	summaryErr error
	status     *calendar.StatusResponse
	statusErr  error

	refreshErrs  []error       // returned in order, nil once exhausted
	refreshGate  chan struct{} // when set, Refresh blocks until it is closed
	refreshCalls int
	refreshOpts  client.CallOptions // options of the last Refresh call
	eventsCalls  int
}

func (f *fakeCalendar) TodayEvents(ctx context.Context, _ ...client.CallOption) (*calendar.EventsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.eventsCalls++
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	return f.events, nil
}

func (f *fakeCalendar) TodaySummary(ctx context.Context, _ ...client.CallOption) (*calendar.SummaryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.summaryErr != nil {
		return nil, f.summaryErr
	}
	return f.summary, nil
}

func (f *fakeCalendar) Status(ctx context.Context, _ ...client.CallOption) (*calendar.StatusResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return nil, f.statusErr
	}
	return f.status, nil
}

func (f *fakeCalendar) Refresh(ctx context.Context, opts ...client.CallOption) (*calendar.RefreshAck, error) {
	f.mu.Lock()
	gate := f.refreshGate
	f.refreshCalls++
	f.refreshOpts = client.CallOptions{}
	for _, o := range opts {
		o(&f.refreshOpts)
	}
	var err error
	if len(f.refreshErrs) > 0 {
		err = f.refreshErrs[0]
		f.refreshErrs = f.refreshErrs[1:]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &calendar.RefreshAck{Status: "success"}, nil
}

func (f *fakeCalendar) set(fn func(f *fakeCalendar)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeCalendar) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func healthyCalendar(raw ...models.RawEvent) *fakeCalendar {
	return &fakeCalendar{
		events: &calendar.EventsResponse{
			Status:      calendar.StatusSuccess,
			Data:        raw,
			Mode:        "mock",
			GeneratedAt: "2024-05-01T08:00:00",
		},
		summary: &calendar.SummaryResponse{Status: calendar.StatusSuccess, Summary: "市场主线\n美元走强"},
		status:  &calendar.StatusResponse{Status: calendar.StatusHealthy, AIEnabled: true, Mode: "ai"},
	}
}

func rawEvent(tm, country, name string, importance int) models.RawEvent {
	return models.RawEvent{
		Time:       models.StringPtr(tm),
		Country:    models.StringPtr(country),
		Name:       models.StringPtr(name),
		Importance: &importance,
	}
}

type fixture struct {
	api     *fakeCalendar
	store   *storage.Memory
	cache   *cache.Manager
	notices *notify.Buffer
	session *Session
	deps    Deps
}

func newFixture(api *fakeCalendar) *fixture {
	logger, _ := logtest.NewNullLogger()
	store := storage.NewMemory()
	f := &fixture{
		api:     api,
		store:   store,
		cache:   cache.New(store, logger),
		notices: notify.NewBuffer(20),
		session: NewSession(),
	}
	f.deps = Deps{
		API:      api,
		Cache:    f.cache,
		Store:    store,
		Session:  f.session,
		Notifier: f.notices,
		Logger:   logger,
		Options: Options{
			RetryAttempts: 3,
			RetryDelay:    time.Millisecond,
			Debounce:      20 * time.Millisecond,
			StaleAfter:    5 * time.Minute,
			ClockInterval: 5 * time.Millisecond,
			StatusTimeout: time.Second,
		},
	}
	return f
}

func contains(msgs []string, want string) bool {
	for _, m := range msgs {
		if m == want {
			return true
		}
	}
	return false
}
