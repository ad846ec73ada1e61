package controller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/seenimoa/macrocal/internal/cache"
	"github.com/seenimoa/macrocal/internal/calendar"
	"github.com/seenimoa/macrocal/internal/client"
	"github.com/seenimoa/macrocal/internal/normalize"
	"github.com/seenimoa/macrocal/internal/storage"
	"github.com/seenimoa/macrocal/pkg/models"
)

func sampleEvents() []models.RawEvent {
	return []models.RawEvent{
		rawEvent("20:30", "US", "非农就业人数", 3),
		rawEvent("09:30", "CN", "CPI年率", 2),
		rawEvent("16:00", "EU", "PMI", 1),
	}
}

func TestEventsLoad(t *testing.T) {
	f := newFixture(healthyCalendar(sampleEvents()...))
	c := NewEvents(f.deps)
	defer c.Close()

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v := c.View()
	if len(v.Events) != 3 || v.Total != 3 {
		t.Fatalf("got %d/%d events, want 3/3", len(v.Events), v.Total)
	}
	wantOrder := []string{"09:30", "16:00", "20:30"}
	for i, e := range v.Events {
		if e.Time != wantOrder[i] {
			t.Errorf("event %d time = %q, want %q", i, e.Time, wantOrder[i])
		}
	}
	if v.Server.EventsCount != 3 || v.Server.Mode != "ai" || !v.Server.AIEnabled {
		t.Errorf("panel = %+v", v.Server)
	}
	if v.Server.LastUpdated != "2024-05-01T08:00:00" {
		t.Errorf("lastUpdated = %q", v.Server.LastUpdated)
	}
	if v.LoadError || v.FromCache || v.Loading {
		t.Errorf("unexpected flags: %+v", v)
	}
	if f.session.LastUpdate().IsZero() {
		t.Error("session not marked updated")
	}
	if !f.session.Server().Healthy {
		t.Error("session server not recorded")
	}
	if snap := f.cache.LoadSnapshot(context.Background()); len(snap.Events) != 3 {
		t.Errorf("cached %d events, want 3", len(snap.Events))
	}
}

func TestEventsFallbackToCachedSnapshot(t *testing.T) {
	ctx := context.Background()
	raws := []models.RawEvent{
		rawEvent("08:30", "US", "CPI", 3),
		rawEvent("09:00", "CN", "GDP", 3),
		rawEvent("10:00", "EU", "ZEW", 2),
		rawEvent("14:00", "GB", "零售销售", 1),
		rawEvent("15:45", "JP", "贸易帐", 2),
	}
	api := healthyCalendar()
	api.eventsErr = errDown
	f := newFixture(api)
	f.cache.SaveEvents(ctx, normalize.Normalize(raws))

	c := NewEvents(f.deps)
	defer c.Close()

	err := c.Load(ctx)
	if err == nil {
		t.Fatal("Load succeeded, want live fetch error")
	}
	if client.IsKind(err, client.KindOfflineNoCache) {
		t.Fatalf("got OfflineNoCache with a cache present: %v", err)
	}

	v := c.View()
	if len(v.Events) != 5 {
		t.Fatalf("displayed %d events, want the 5 cached", len(v.Events))
	}
	got := make([]string, 0, 5)
	for _, e := range v.Events {
		got = append(got, e.ID)
	}
	want := make([]string, 0, 5)
	for _, e := range normalize.Normalize(raws) {
		want = append(want, e.ID)
	}
	sort.Strings(got)
	sort.Strings(want)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("displayed ids %v, want %v", got, want)
		}
	}
	if !v.FromCache || !v.LoadError || v.Server.LastUpdated != cache.StaleMarker {
		t.Errorf("cache flags not set: %+v", v)
	}
	if !contains(f.notices.Messages(), MsgLoadFailed) {
		t.Errorf("notices = %v, want %q", f.notices.Messages(), MsgLoadFailed)
	}
}

func TestEventsOfflineNoCache(t *testing.T) {
	api := healthyCalendar()
	api.eventsErr = errDown
	api.statusErr = errDown
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	err := c.Load(context.Background())
	if !client.IsKind(err, client.KindOfflineNoCache) {
		t.Fatalf("err = %v, want OfflineNoCache", err)
	}
	if !errors.Is(err, errDown) {
		t.Errorf("cause not preserved: %v", err)
	}
	if v := c.View(); len(v.Events) != 0 {
		t.Errorf("displayed %d events, want none", len(v.Events))
	}
}

// A failing status call fails the whole load even though events arrived.
func TestEventsStatusFailureIsTotal(t *testing.T) {
	api := healthyCalendar(sampleEvents()...)
	api.statusErr = errDown
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	if err := c.Load(context.Background()); err == nil {
		t.Fatal("Load succeeded with status down")
	}
	if v := c.View(); len(v.Events) != 0 {
		t.Errorf("partial result applied: %d events", len(v.Events))
	}
	if !f.session.LastUpdate().IsZero() {
		t.Error("session marked updated on failed load")
	}
}

func TestEventsFailureKeepsCurrentList(t *testing.T) {
	api := healthyCalendar(sampleEvents()...)
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	ctx := context.Background()
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	api.set(func(f *fakeCalendar) { f.eventsErr = errDown })

	if err := c.LoadData(ctx); !errors.Is(err, errDown) {
		t.Fatalf("err = %v, want the live error", err)
	}
	v := c.View()
	if len(v.Events) != 3 || v.FromCache {
		t.Errorf("list replaced after failure: %d events, fromCache=%v", len(v.Events), v.FromCache)
	}
}

func TestEventsNonSuccessEnvelopeIgnored(t *testing.T) {
	api := healthyCalendar(sampleEvents()...)
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	ctx := context.Background()
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	api.set(func(f *fakeCalendar) {
		f.events = &calendar.EventsResponse{Status: "error", Message: "generation failed"}
	})
	if err := c.LoadData(ctx); err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	if v := c.View(); len(v.Events) != 3 {
		t.Errorf("list changed by error envelope: %d events", len(v.Events))
	}
}

func TestEventsFiltersPersistAndReset(t *testing.T) {
	ctx := context.Background()
	api := healthyCalendar(sampleEvents()...)
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}

	if err := c.SetFilter(ctx, DimImportance, models.FilterHigh); err != nil {
		t.Fatalf("SetFilter: %v", err)
	}
	v := c.View()
	if len(v.Events) != 1 || v.Events[0].Importance != models.ImportanceHigh {
		t.Fatalf("high filter shows %d events", len(v.Events))
	}
	if v.Total != 3 {
		t.Errorf("total = %d, want 3", v.Total)
	}

	var saved models.FilterState
	found, err := storage.GetJSON(ctx, f.store, KeyFilters, &saved)
	if err != nil || !found {
		t.Fatalf("filters not persisted: found=%v err=%v", found, err)
	}
	if saved.Importance != models.FilterHigh {
		t.Errorf("persisted importance = %q", saved.Importance)
	}

	// A new page restores the selection.
	c2 := NewEvents(f.deps)
	defer c2.Close()
	if err := c2.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if got := c2.View().Filters.Importance; got != models.FilterHigh {
		t.Errorf("restored importance = %q", got)
	}

	c.SetSort(models.SortByCountry)
	c.ResetFilters(ctx)
	v = c.View()
	if !v.Filters.IsDefault() || v.Sort != models.SortByTime || len(v.Events) != 3 {
		t.Errorf("after reset: filters=%+v sort=%s events=%d", v.Filters, v.Sort, len(v.Events))
	}
	raw, err := f.store.Get(ctx, KeyFilters)
	if err != nil || raw != nil {
		t.Errorf("persisted filters not removed: %q %v", raw, err)
	}
	if !contains(f.notices.Messages(), MsgFiltersReset) {
		t.Errorf("notices = %v", f.notices.Messages())
	}
}

func TestEventsConcurrentSetFilterKeepsEveryDimension(t *testing.T) {
	ctx := context.Background()
	f := newFixture(healthyCalendar(sampleEvents()...))
	c := NewEvents(f.deps)
	defer c.Close()

	for round := 0; round < 50; round++ {
		c.ResetFilters(ctx)
		var wg sync.WaitGroup
		for dim, value := range map[string]string{
			DimImportance: models.FilterHigh,
			DimCurrency:   "EUR",
			DimCountry:    "CN",
		} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.SetFilter(ctx, dim, value); err != nil {
					t.Errorf("SetFilter(%s): %v", dim, err)
				}
			}()
		}
		wg.Wait()

		want := models.FilterState{Importance: models.FilterHigh, Currency: "EUR", Country: "CN"}
		if got := c.View().Filters; got != want {
			t.Fatalf("round %d: filters = %+v, want %+v", round, got, want)
		}
		var saved models.FilterState
		if _, err := storage.GetJSON(ctx, f.store, KeyFilters, &saved); err != nil || saved != want {
			t.Fatalf("round %d: persisted = %+v (%v), want %+v", round, saved, err, want)
		}
	}
}

func TestEventsSetFilterRejectsUnknown(t *testing.T) {
	f := newFixture(healthyCalendar())
	c := NewEvents(f.deps)
	defer c.Close()

	ctx := context.Background()
	if err := c.SetFilter(ctx, DimImportance, "extreme"); err == nil {
		t.Error("unknown importance accepted")
	}
	if err := c.SetFilter(ctx, "color", "red"); err == nil {
		t.Error("unknown dimension accepted")
	}
	if err := c.SetFilter(ctx, DimCurrency, ""); err != nil {
		t.Errorf("empty value: %v", err)
	}
	if got := c.View().Filters.Currency; got != models.FilterAll {
		t.Errorf("empty currency became %q, want all", got)
	}
}

func TestEventsToggleExpandIsExclusive(t *testing.T) {
	f := newFixture(healthyCalendar(sampleEvents()...))
	c := NewEvents(f.deps)
	defer c.Close()
	if err := c.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	expanded := func() []int {
		var out []int
		for i, e := range c.View().Events {
			if e.IsExpanded {
				out = append(out, i)
			}
		}
		return out
	}

	if exp, ok := c.ToggleExpand(0); !ok || !exp {
		t.Fatalf("toggle 0 = %v, %v", exp, ok)
	}
	if exp, _ := c.ToggleExpand(2); !exp {
		t.Fatal("toggle 2 did not expand")
	}
	if got := expanded(); len(got) != 1 || got[0] != 2 {
		t.Errorf("expanded rows = %v, want [2]", got)
	}
	if exp, _ := c.ToggleExpand(2); exp {
		t.Error("second toggle did not collapse")
	}
	if got := expanded(); len(got) != 0 {
		t.Errorf("expanded rows = %v, want none", got)
	}
	if _, ok := c.ToggleExpand(3); ok {
		t.Error("out of range index accepted")
	}
}

func TestEventsRefreshRetries(t *testing.T) {
	api := healthyCalendar(sampleEvents()...)
	api.refreshErrs = []error{errDown, errDown}
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if n := api.refreshCount(); n != 3 {
		t.Errorf("refresh calls = %d, want 3", n)
	}
	if len(c.View().Events) != 3 {
		t.Error("data not reloaded after refresh")
	}
	if !contains(f.notices.Messages(), MsgRefreshOK) {
		t.Errorf("notices = %v", f.notices.Messages())
	}
	if f.notices.Loading() {
		t.Error("loading indicator left on")
	}
	api.mu.Lock()
	opts := api.refreshOpts
	api.mu.Unlock()
	if !opts.ShowLoading || opts.LoadingText != "" {
		t.Errorf("refresh call options = %+v, want default loading indicator", opts)
	}
}

func TestEventsRefreshGivesUp(t *testing.T) {
	api := healthyCalendar()
	api.refreshErrs = []error{errDown, errDown, errDown, errDown}
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	if err := c.Refresh(context.Background()); !errors.Is(err, errDown) {
		t.Fatalf("err = %v, want the last attempt's error", err)
	}
	if n := api.refreshCount(); n != 3 {
		t.Errorf("refresh calls = %d, want 3", n)
	}
	if !contains(f.notices.Messages(), MsgRefreshFailed) {
		t.Errorf("notices = %v", f.notices.Messages())
	}
}

func TestEventsRefreshInFlightDropped(t *testing.T) {
	api := healthyCalendar(sampleEvents()...)
	api.refreshGate = make(chan struct{})
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	done := make(chan error, 1)
	go func() { done <- c.Refresh(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for api.refreshCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first refresh never started")
		}
		time.Sleep(time.Millisecond)
	}
	if !c.View().Refreshing {
		t.Error("view does not report refreshing")
	}
	if err := c.Refresh(context.Background()); !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("second refresh err = %v, want ErrRefreshInProgress", err)
	}

	close(api.refreshGate)
	if err := <-done; err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if n := api.refreshCount(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestEventsRequestRefreshDebounced(t *testing.T) {
	api := healthyCalendar(sampleEvents()...)
	f := newFixture(api)
	c := NewEvents(f.deps)
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.RequestRefresh()
	}

	deadline := time.Now().Add(2 * time.Second)
	for api.refreshCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("debounced refresh never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)
	if n := api.refreshCount(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestEventsRequestRefreshAfterCloseIsNoop(t *testing.T) {
	api := healthyCalendar()
	f := newFixture(api)
	c := NewEvents(f.deps)
	c.Close()

	c.RequestRefresh()
	time.Sleep(60 * time.Millisecond)
	if n := api.refreshCount(); n != 0 {
		t.Errorf("refresh ran after close: %d calls", n)
	}
}

func TestEventsOnShowRefreshesWhenStale(t *testing.T) {
	api := healthyCalendar(sampleEvents()...)
	f := newFixture(api)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	f.session.now = func() time.Time { return now }
	c := NewEvents(f.deps)
	defer c.Close()

	ctx := context.Background()
	if refreshed, _ := c.OnShow(ctx); refreshed {
		t.Error("refreshed before any load")
	}
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}

	now = now.Add(4 * time.Minute)
	if refreshed, _ := c.OnShow(ctx); refreshed {
		t.Error("refreshed fresh data")
	}

	now = now.Add(2 * time.Minute)
	refreshed, err := c.OnShow(ctx)
	if !refreshed || err != nil {
		t.Fatalf("OnShow = %v, %v; want refresh", refreshed, err)
	}
	if n := api.refreshCount(); n != 1 {
		t.Errorf("refresh calls = %d, want 1", n)
	}
}

func TestEventsClockTicksUntilClose(t *testing.T) {
	f := newFixture(healthyCalendar())
	c := NewEvents(f.deps)
	c.StartClock()
	c.StartClock()

	deadline := time.Now().Add(2 * time.Second)
	for c.View().CurrentTime == "" {
		if time.Now().After(deadline) {
			t.Fatal("clock never ticked")
		}
		time.Sleep(time.Millisecond)
	}
	if _, err := time.Parse(ClockLayout, c.View().CurrentTime); err != nil {
		t.Errorf("clock %q: %v", c.View().CurrentTime, err)
	}
	c.Close()
	c.Close()
}

func TestEventsCloseSavesLiveData(t *testing.T) {
	ctx := context.Background()
	f := newFixture(healthyCalendar(sampleEvents()...))
	c := NewEvents(f.deps)
	if err := c.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if err := f.cache.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	c.Close()
	if snap := f.cache.LoadSnapshot(ctx); len(snap.Events) != 3 {
		t.Errorf("close saved %d events, want 3", len(snap.Events))
	}
}
