// Package controller orchestrates the pipeline for the two pages of the
// client: the event list and the daily summary. Controllers own the
// session-scoped UI state (filters, sort order, expanded rows, sections)
// and decide when to fall back to the cached snapshot.
package controller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seenimoa/macrocal/internal/cache"
	"github.com/seenimoa/macrocal/internal/calendar"
	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/config"
	"github.com/seenimoa/macrocal/internal/infra"
	"github.com/seenimoa/macrocal/internal/notify"
	"github.com/seenimoa/macrocal/internal/storage"
)

// User-facing notices raised by the controllers.
const (
	MsgLoadFailed           = "数据加载失败，请稍后重试"
	MsgRefreshOK            = "刷新成功"
	MsgRefreshFailed        = "刷新失败，请重试"
	MsgFiltersReset         = "筛选条件已重置"
	MsgSummaryFailed        = "加载总结失败"
	MsgSummaryRefreshed     = "总结已刷新"
	MsgSummaryRefreshFailed = "刷新失败"
	MsgServiceUnhealthy     = "服务异常：无法连接到后端服务，请确保服务已启动"
	MsgConnectFailed        = "连接失败：请检查后端服务是否运行"
	LoadingRefresh          = "刷新中..."
)

// KeyFilters is the storage key of the persisted filter selection.
const KeyFilters = "event_filters"

// ErrRefreshInProgress is returned when a refresh is requested while one is
// already running. The later request is dropped, not queued.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// Calendar is the subset of the service facade the controllers use.
type Calendar interface {
	TodayEvents(ctx context.Context, opts ...client.CallOption) (*calendar.EventsResponse, error)
	TodaySummary(ctx context.Context, opts ...client.CallOption) (*calendar.SummaryResponse, error)
	Status(ctx context.Context, opts ...client.CallOption) (*calendar.StatusResponse, error)
	Refresh(ctx context.Context, opts ...client.CallOption) (*calendar.RefreshAck, error)
}

var _ Calendar = (*calendar.API)(nil)

// Options are the timing knobs of the controllers.
type Options struct {
	RetryAttempts int
	RetryDelay    time.Duration
	Debounce      time.Duration
	StaleAfter    time.Duration
	ClockInterval time.Duration
	StatusTimeout time.Duration
}

// OptionsFromConfig extracts controller options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		RetryAttempts: cfg.Retry.Attempts,
		RetryDelay:    cfg.Retry.Delay,
		Debounce:      cfg.Refresh.Debounce,
		StaleAfter:    cfg.Refresh.StaleAfter,
		ClockInterval: cfg.Refresh.ClockInterval,
		StatusTimeout: cfg.API.StatusTimeout,
	}
}

func (o Options) withDefaults() Options {
	if o.RetryAttempts < 1 {
		o.RetryAttempts = 3
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = time.Second
	}
	if o.Debounce <= 0 {
		o.Debounce = time.Second
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = 5 * time.Minute
	}
	if o.ClockInterval <= 0 {
		o.ClockInterval = time.Second
	}
	if o.StatusTimeout <= 0 {
		o.StatusTimeout = 5 * time.Second
	}
	return o
}

// Deps are the collaborators shared by both controllers.
type Deps struct {
	API      Calendar
	Cache    *cache.Manager
	Store    storage.Store
	Session  *Session
	Notifier notify.Notifier
	Logger   logrus.FieldLogger
	Options  Options
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.Discard{}
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	if d.Session == nil {
		d.Session = NewSession()
	}
	if d.Store == nil {
		d.Store = storage.NewMemory()
	}
	if d.Cache == nil {
		d.Cache = cache.New(d.Store, d.Logger)
	}
	d.Options = d.Options.withDefaults()
	return d
}

// refresher runs the user-triggered refresh: the service-side regenerate
// call with retries, then a reload. Only one runs at a time.
type refresher struct {
	api      Calendar
	attempts int
	delay    time.Duration
	log      logrus.FieldLogger
	inFlight atomic.Bool
}

func newRefresher(d Deps, log logrus.FieldLogger) *refresher {
	return &refresher{
		api:      d.API,
		attempts: d.Options.RetryAttempts,
		delay:    d.Options.RetryDelay,
		log:      log,
	}
}

// run triggers the service refresh with retries and then calls reload.
// Each regenerate call carries its own loading indicator.
// It returns ErrRefreshInProgress without doing anything when another run
// is active.
func (r *refresher) run(ctx context.Context, reload func(context.Context) error) error {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.log.Debug("refresh ignored, one is already running")
		return ErrRefreshInProgress
	}
	defer r.inFlight.Store(false)

	_, err := infra.WithRetryNotify(ctx, func(ctx context.Context) (*calendar.RefreshAck, error) {
		return r.api.Refresh(ctx, client.WithLoading(""))
	}, r.attempts, r.delay, func(attempt int, err error) {
		r.log.WithField("attempt", attempt).WithError(err).Warn("refresh attempt failed, retrying")
	})
	if err != nil {
		return err
	}
	return reload(ctx)
}

func (r *refresher) running() bool { return r.inFlight.Load() }
