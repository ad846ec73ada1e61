package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/seenimoa/macrocal/internal/controller"
	"github.com/seenimoa/macrocal/internal/normalize"
	"github.com/seenimoa/macrocal/internal/summary"
	"github.com/seenimoa/macrocal/pkg/models"
)

func TestRenderEvents(t *testing.T) {
	imp := 3
	events := normalize.Normalize([]models.RawEvent{{
		Time:       models.StringPtr("08:30"),
		Country:    models.StringPtr("US"),
		Name:       models.StringPtr("CPI"),
		Forecast:   models.StringPtr("3.1%"),
		Importance: &imp,
	}})

	var buf bytes.Buffer
	renderEvents(&buf, events, controller.Panel{EventsCount: 1, Mode: "mock", LastUpdated: "08:00"}, false)
	out := buf.String()
	for _, want := range []string{"08:30", "CPI", "3.1%", models.NotAvailable, "1 shown", "mode mock"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	renderSummary(&buf, controller.SummaryView{
		Blocks: summary.Format("市场主线\n美元: 走强"),
		Stats:  summary.Stats{TotalEvents: 4, HighImpact: 3, Sentiment: summary.SentimentVolatile},
	})
	out := buf.String()
	for _, want := range []string{"📈", "美元: 走强", summary.SentimentVolatile} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
