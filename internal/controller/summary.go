package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/macrocal/internal/cache"
	"github.com/seenimoa/macrocal/internal/calendar"
	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/normalize"
	"github.com/seenimoa/macrocal/internal/summary"
)

// SummaryView is a snapshot of the summary page state.
type SummaryView struct {
	Summary     string           `json:"summary"`
	Blocks      []summary.Block  `json:"formattedSummary"`
	Sections    summary.Sections `json:"expandedSections"`
	Stats       summary.Stats    `json:"analysisStats"`
	LastUpdated string           `json:"lastUpdated"`
	AIEnabled   bool             `json:"aiEnabled"`
	Loading     bool             `json:"isLoading"`
	Refreshing  bool             `json:"isRefreshing"`
	LoadError   bool             `json:"loadError"`
	FromCache   bool             `json:"fromCache"`
}

// Summary drives the daily summary page.
type Summary struct {
	d   Deps
	log logrus.FieldLogger
	ref *refresher

	mu          sync.Mutex
	text        string
	blocks      []summary.Block
	sections    summary.Sections
	stats       summary.Stats
	lastUpdated string
	aiEnabled   bool
	loading     bool
	loadError   bool
	fromCache   bool
}

// NewSummary creates the summary page controller.
func NewSummary(d Deps) *Summary {
	d = d.withDefaults()
	log := d.Logger.WithField("component", "summary")
	return &Summary{
		d:        d,
		log:      log,
		ref:      newRefresher(d, log),
		sections: summary.DefaultSections(),
		stats:    summary.ComputeStats(nil),
	}
}

// Load fetches the summary and the events (for stats) in parallel, then
// the service status. Only the first two are required; a failed status
// call is logged and leaves the AI flag as it was.
func (c *Summary) Load(ctx context.Context) error {
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
		sumResp    *calendar.SummaryResponse
		eventsResp *calendar.EventsResponse
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sumResp, err = c.d.API.TodaySummary(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		eventsResp, err = c.d.API.TodayEvents(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.fallback(ctx, err)
	}

	if sumResp.OK() {
		text := summary.Flatten(sumResp.Summary)
		c.mu.Lock()
		c.text = text
		c.blocks = summary.Format(text)
		c.lastUpdated = sumResp.GeneratedAt
		c.fromCache = false
		c.mu.Unlock()
		c.d.Cache.SaveSummary(ctx, text)
	} else {
		c.log.WithField("status", sumResp.Status).Warn("summary response not successful")
	}

	if eventsResp.OK() {
		events := normalize.Normalize(eventsResp.Data)
		c.mu.Lock()
		c.stats = summary.ComputeStats(events)
		c.mu.Unlock()
		c.d.Cache.SaveEvents(ctx, events)
	}
	if sumResp.OK() || eventsResp.OK() {
		c.d.Session.MarkUpdated()
	}

	st, err := c.d.API.Status(ctx)
	if err != nil {
		c.log.WithError(err).Warn("status check after summary load failed")
		return nil
	}
	c.mu.Lock()
	c.aiEnabled = st.AIEnabled
	c.mu.Unlock()
	return nil
}

func (c *Summary) fallback(ctx context.Context, cause error) error {
	c.log.WithError(cause).Warn("load summary failed")
	c.d.Notifier.Toast(MsgSummaryFailed)

	c.mu.Lock()
	c.loadError = true
	hasData := c.text != ""
	c.mu.Unlock()
	if hasData {
		return cause
	}

	snap := c.d.Cache.LoadSnapshot(ctx)
	if snap.Summary == "" {
		return errors.Join(client.ErrOfflineNoCache, cause)
	}

	c.mu.Lock()
	c.text = snap.Summary
	c.blocks = summary.Format(snap.Summary)
	c.stats = summary.ComputeStats(snap.Events)
	c.lastUpdated = cache.StaleMarker
	c.fromCache = true
	c.mu.Unlock()
	return cause
}

// Refresh regenerates on the service side, with retries, and reloads.
func (c *Summary) Refresh(ctx context.Context) error {
	if c.ref.running() {
		return ErrRefreshInProgress
	}
	c.d.Notifier.ShowLoading(LoadingRefresh)
	defer c.d.Notifier.HideLoading()

	err := c.ref.run(ctx, c.Load)
	switch {
	case errors.Is(err, ErrRefreshInProgress):
		return err
	case err != nil:
		c.log.WithError(err).Warn("summary refresh failed")
		c.d.Notifier.Toast(MsgSummaryRefreshFailed)
		return err
	}
	c.d.Notifier.Toast(MsgSummaryRefreshed)
	return nil
}

// ToggleSection expands or collapses a section.
func (c *Summary) ToggleSection(name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expanded, ok := c.sections.Toggle(name)
	if !ok {
		return false, fmt.Errorf("unknown section %q", name)
	}
	return expanded, nil
}

// HTML renders the current summary text as HTML.
func (c *Summary) HTML() string {
	c.mu.Lock()
	text := c.text
	c.mu.Unlock()
	return summary.ToHTML(text)
}

// View returns a copy of the page state with collapsed sections hidden.
func (c *Summary) View() SummaryView {
	c.mu.Lock()
	defer c.mu.Unlock()
	sections := make(summary.Sections, len(c.sections))
	for k, v := range c.sections {
		sections[k] = v
	}
	return SummaryView{
		Summary:     c.text,
		Blocks:      summary.Visible(c.blocks, c.sections),
		Sections:    sections,
		Stats:       c.stats,
		LastUpdated: c.lastUpdated,
		AIEnabled:   c.aiEnabled,
		Loading:     c.loading,
		Refreshing:  c.ref.running(),
		LoadError:   c.loadError,
		FromCache:   c.fromCache,
	}
}
