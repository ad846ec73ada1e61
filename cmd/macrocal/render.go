package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/seenimoa/macrocal/internal/cache"
	"github.com/seenimoa/macrocal/internal/controller"
	"github.com/seenimoa/macrocal/internal/normalize"
	"github.com/seenimoa/macrocal/internal/summary"
	"github.com/seenimoa/macrocal/pkg/models"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	return t
}

func renderEvents(out io.Writer, events []models.NormalizedEvent, panel controller.Panel, fromCache bool) {
	updated := panel.LastUpdated
	if fromCache {
		updated = cache.StaleMarker
	}
	fmt.Fprintf(out, "📅 %d events · mode %s · updated %s\n", panel.EventsCount, panel.Mode, updated)

	t := newTable(out)
	t.AppendHeader(table.Row{"Time", "", "Event", "Imp.", "Forecast", "Previous", "Actual"})
	for _, e := range events {
		actual := models.NotAvailable
		if e.HasActual {
			actual = colorActual(*e.Actual, e.ActualClass)
		}
		t.AppendRow(table.Row{
			e.DisplayTime,
			e.Flag,
			e.Name,
			e.ImportanceIcon + " " + e.ImportanceText,
			e.Forecast,
			e.Previous,
			actual,
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d shown", len(events))})
	t.Render()
}

func colorActual(v, class string) string {
	switch class {
	case normalize.ActualBetter:
		return text.FgGreen.Sprint(v)
	case normalize.ActualWorse:
		return text.FgRed.Sprint(v)
	}
	return v
}

func renderSummary(out io.Writer, v controller.SummaryView) {
	t := newTable(out)
	t.AppendHeader(table.Row{"Events", "High impact", "Sentiment"})
	t.AppendRow(table.Row{v.Stats.TotalEvents, v.Stats.HighImpact, v.Stats.Sentiment})
	t.Render()

	if v.FromCache {
		fmt.Fprintf(out, "(%s)\n", cache.StaleMarker)
	}
	fmt.Fprintln(out)
	for _, b := range v.Blocks {
		switch b.Type {
		case summary.BlockTitle:
			fmt.Fprintf(out, "\n%s %s\n", b.Icon, text.Bold.Sprint(b.Content))
		case summary.BlockList:
			fmt.Fprintf(out, "  %s\n", b.Content)
		default:
			fmt.Fprintln(out, b.Content)
		}
	}
}
