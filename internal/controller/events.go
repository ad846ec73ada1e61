package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/macrocal/internal/cache"
	"github.com/seenimoa/macrocal/internal/calendar"
	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/filter"
	"github.com/seenimoa/macrocal/internal/infra"
	"github.com/seenimoa/macrocal/internal/normalize"
	"github.com/seenimoa/macrocal/internal/storage"
	"github.com/seenimoa/macrocal/pkg/models"
)

// Filter dimensions accepted by SetFilter.
const (
	DimImportance = "importance"
	DimCurrency   = "currency"
	DimCountry    = "country"
)

// ClockLayout is the HH:mm:ss layout of the page clock.
const ClockLayout = "15:04:05"

// Panel is the server info strip at the top of the event list.
type Panel struct {
	LastUpdated string `json:"lastUpdated"`
	Mode        string `json:"mode"`
	EventsCount int    `json:"eventsCount"`
	AIEnabled   bool   `json:"aiEnabled"`
}

// EventsView is a snapshot of the event page state.
type EventsView struct {
	Events      []models.NormalizedEvent `json:"events"`
	Total       int                      `json:"total"`
	Filters     models.FilterState       `json:"filters"`
	Sort        models.SortKey           `json:"sortBy"`
	Server      Panel                    `json:"serverInfo"`
	CurrentTime string                   `json:"currentTime"`
	Loading     bool                     `json:"isLoading"`
	Refreshing  bool                     `json:"isRefreshing"`
	LoadError   bool                     `json:"loadError"`
	FromCache   bool                     `json:"fromCache"`
}

// Events drives the event list page.
type Events struct {
	d   Deps
	log logrus.FieldLogger
	ref *refresher

	mu        sync.Mutex
	events    []models.NormalizedEvent
	filtered  []models.NormalizedEvent
	filters   models.FilterState
	sortKey   models.SortKey
	panel     Panel
	clock     string
	loading   bool
	loadError bool
	fromCache bool
	closed    bool

	// filterMu serializes filter changes together with their persistence.
	filterMu sync.Mutex

	debounce  *infra.Debouncer
	ctx       context.Context // lifetime of the controller
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	clockOnce sync.Once
	closeOnce sync.Once
}

// NewEvents creates the event page controller.
func NewEvents(d Deps) *Events {
	d = d.withDefaults()
	log := d.Logger.WithField("component", "events")
	ctx, cancel := context.WithCancel(context.Background())
	return &Events{
		d:        d,
		log:      log,
		ref:      newRefresher(d, log),
		filters:  models.DefaultFilters(),
		sortKey:  models.SortByTime,
		debounce: infra.NewDebouncer(d.Options.Debounce),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Load restores the persisted filters and performs the initial load.
func (c *Events) Load(ctx context.Context) error {
	c.restoreFilters(ctx)
	return c.LoadData(ctx)
}

func (c *Events) restoreFilters(ctx context.Context) {
	var saved models.FilterState
	found, err := storage.GetJSON(ctx, c.d.Store, KeyFilters, &saved)
	if err != nil {
		c.log.WithError(err).Warn("restore filters failed")
		return
	}
	if !found {
		return
	}
	c.mu.Lock()
	c.filters = saved.WithDefaults()
	c.mu.Unlock()
}

// LoadData fetches events and status in parallel. Both must succeed. On
// failure the page keeps what it already shows, or falls back to the cached
// snapshot when it shows nothing. The returned error is nil only when the
// live fetch succeeded; it wraps client.ErrOfflineNoCache when there is
// nothing at all to show.
func (c *Events) LoadData(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.loadError = false
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.loading = false
		c.mu.Unlock()
	}()

	var (
		eventsResp *calendar.EventsResponse
		statusResp *calendar.StatusResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		eventsResp, err = c.d.API.TodayEvents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		statusResp, err = c.d.API.Status(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.fallback(ctx, err)
	}

	if eventsResp.OK() {
		events := normalize.Normalize(eventsResp.Data)
		mode := eventsResp.Mode
		if mode == "" {
			mode = "unknown"
		}
		c.mu.Lock()
		c.events = events
		c.filtered = filter.Apply(events, c.filters, c.sortKey)
		c.panel.EventsCount = len(events)
		c.panel.Mode = mode
		c.panel.LastUpdated = eventsResp.GeneratedAt
		c.fromCache = false
		c.mu.Unlock()

		c.d.Session.MarkUpdated()
		c.d.Cache.SaveEvents(ctx, events)
		c.log.WithField("count", len(events)).Info("events loaded")
	} else {
		c.log.WithFields(logrus.Fields{"status": eventsResp.Status, "message": eventsResp.Message}).
			Warn("events response not successful, keeping current list")
	}

	c.mu.Lock()
	c.panel.AIEnabled = statusResp.AIEnabled
	if statusResp.Mode != "" {
		c.panel.Mode = statusResp.Mode
	}
	c.mu.Unlock()
	c.d.Session.setServer(ServerInfo{
		Healthy:   statusResp.Healthy(),
		AIEnabled: statusResp.AIEnabled,
		Mode:      statusResp.Mode,
		Status:    statusResp.Status,
		CheckedAt: c.d.Session.Now(),
	})
	return nil
}

func (c *Events) fallback(ctx context.Context, cause error) error {
	c.log.WithError(cause).Warn("load failed")
	c.d.Notifier.Toast(MsgLoadFailed)

	c.mu.Lock()
	c.loadError = true
	hasData := len(c.events) > 0
	c.mu.Unlock()
	if hasData {
		return cause
	}

	snap := c.d.Cache.LoadSnapshot(ctx)
	if len(snap.Events) == 0 {
		return errors.Join(client.ErrOfflineNoCache, cause)
	}

	c.mu.Lock()
	c.events = snap.Events
	c.filtered = filter.Apply(snap.Events, c.filters, c.sortKey)
	c.panel.EventsCount = len(snap.Events)
	c.panel.LastUpdated = cache.StaleMarker
	c.fromCache = true
	c.mu.Unlock()
	c.log.WithField("count", len(snap.Events)).Info("showing cached events")
	return cause
}

// Refresh asks the service to regenerate today's data, with retries, and
// reloads. A refresh already running makes this a no-op returning
// ErrRefreshInProgress.
func (c *Events) Refresh(ctx context.Context) error {
	if c.ref.running() {
		return ErrRefreshInProgress
	}
	c.d.Notifier.ShowLoading(LoadingRefresh)
	defer c.d.Notifier.HideLoading()

	err := c.ref.run(ctx, c.LoadData)
	switch {
	case errors.Is(err, ErrRefreshInProgress):
		return err
	case err != nil:
		c.log.WithError(err).Warn("refresh failed")
		c.d.Notifier.Toast(MsgRefreshFailed)
		return err
	}
	c.d.Notifier.Toast(MsgRefreshOK)
	return nil
}

// RequestRefresh is the tap handler: taps within the debounce window
// collapse into one refresh, run on the controller's own context.
func (c *Events) RequestRefresh() {
	c.debounce.Trigger(func() {
		if !c.enter() {
			return
		}
		defer c.wg.Done()
		_ = c.Refresh(c.ctx)
	})
}

// enter registers background work unless the controller is closed.
func (c *Events) enter() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	return true
}

// OnShow refreshes when the last successful load is older than the
// configured staleness window.
func (c *Events) OnShow(ctx context.Context) (refreshed bool, err error) {
	if !c.d.Session.Stale(c.d.Options.StaleAfter) {
		return false, nil
	}
	return true, c.Refresh(ctx)
}

// SetFilter changes one filter dimension, persists the selection and
// reapplies it. Concurrent changes to different dimensions all land.
func (c *Events) SetFilter(ctx context.Context, dim, value string) error {
	if value == "" {
		value = models.FilterAll
	}
	var set func(f *models.FilterState)
	switch dim {
	case DimImportance:
		if _, ok := models.ImportanceLevel(value); !ok && value != models.FilterAll {
			return fmt.Errorf("invalid importance filter %q", value)
		}
		set = func(f *models.FilterState) { f.Importance = value }
	case DimCurrency:
		set = func(f *models.FilterState) { f.Currency = value }
	case DimCountry:
		set = func(f *models.FilterState) { f.Country = value }
	default:
		return fmt.Errorf("unknown filter dimension %q", dim)
	}

	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.mu.Lock()
	f := c.filters
	c.mu.Unlock()
	set(&f)
	return c.applyFilters(ctx, f)
}

// SetFilters replaces the whole filter selection, persists it and
// reapplies it.
func (c *Events) SetFilters(ctx context.Context, f models.FilterState) error {
	f = f.WithDefaults()
	if _, ok := models.ImportanceLevel(f.Importance); !ok && f.Importance != models.FilterAll {
		return fmt.Errorf("invalid importance filter %q", f.Importance)
	}
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	return c.applyFilters(ctx, f)
}

// applyFilters stores and persists f. Callers hold filterMu.
func (c *Events) applyFilters(ctx context.Context, f models.FilterState) error {
	f = f.WithDefaults()
	c.mu.Lock()
	c.filters = f
	c.filtered = filter.Apply(c.events, c.filters, c.sortKey)
	c.mu.Unlock()

	if err := storage.SetJSON(ctx, c.d.Store, KeyFilters, f); err != nil {
		c.log.WithError(err).Warn("persist filters failed")
	}
	return nil
}

// SetSort changes the sort order. Sort order is not persisted.
func (c *Events) SetSort(key models.SortKey) {
	c.mu.Lock()
	c.sortKey = key
	c.filtered = filter.Apply(c.events, c.filters, c.sortKey)
	c.mu.Unlock()
}

// ResetFilters restores all filters and the time order, and forgets the
// persisted selection.
func (c *Events) ResetFilters(ctx context.Context) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.mu.Lock()
	c.filters = models.DefaultFilters()
	c.sortKey = models.SortByTime
	c.filtered = filter.Apply(c.events, c.filters, c.sortKey)
	c.mu.Unlock()

	if err := c.d.Store.Remove(ctx, KeyFilters); err != nil {
		c.log.WithError(err).Warn("remove persisted filters failed")
	}
	c.d.Notifier.Toast(MsgFiltersReset)
}

// ToggleExpand flips the expanded state of the row at index in the
// displayed list and collapses every other row. ok is false when index is
// out of range.
func (c *Events) ToggleExpand(index int) (expanded, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.filtered) {
		return false, false
	}
	expanded = !c.filtered[index].IsExpanded
	for i := range c.filtered {
		c.filtered[i].IsExpanded = i == index && expanded
	}
	return expanded, true
}

// StartClock ticks the page clock until Close. Calling it again is a no-op.
func (c *Events) StartClock() {
	c.clockOnce.Do(func() {
		if !c.enter() {
			return
		}
		go func() {
			defer c.wg.Done()
			infra.Every(c.ctx, c.d.Options.ClockInterval, func(t time.Time) {
				c.mu.Lock()
				c.clock = t.Format(ClockLayout)
				c.mu.Unlock()
			})
		}()
	})
}

// Close stops the clock and any pending debounced refresh, waits for
// running work and saves the current list to the cache.
func (c *Events) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		c.debounce.Stop()
		c.cancel()
		c.wg.Wait()

		c.mu.Lock()
		events := c.events
		fromCache := c.fromCache
		c.mu.Unlock()
		if len(events) > 0 && !fromCache {
			c.d.Cache.SaveEvents(context.Background(), events)
		}
	})
}

// All returns a copy of the loaded events, unfiltered.
func (c *Events) All() []models.NormalizedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.NormalizedEvent, len(c.events))
	copy(out, c.events)
	return out
}

// View returns a copy of the page state.
func (c *Events) View() EventsView {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]models.NormalizedEvent, len(c.filtered))
	copy(events, c.filtered)
	return EventsView{
		Events:      events,
		Total:       len(c.events),
		Filters:     c.filters,
		Sort:        c.sortKey,
		Server:      c.panel,
		CurrentTime: c.clock,
		Loading:     c.loading,
		Refreshing:  c.ref.running(),
		LoadError:   c.loadError,
		FromCache:   c.fromCache,
	}
}
