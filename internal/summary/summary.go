// Package summary shapes the AI market summary for display: it splits the
// text into titled sections, computes headline stats from the day's events
// and converts between the HTML and markdown renderings the service and the
// view server use.
package summary

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/russross/blackfriday/v2"

	"github.com/seenimoa/macrocal/pkg/models"
)

// Block types.
const (
	BlockTitle     = "title"
	BlockList      = "list"
	BlockParagraph = "paragraph"
)

// Section names, in display order.
const (
	SectionMarket   = "market"
	SectionEvents   = "events"
	SectionOutlook  = "outlook"
	SectionStrategy = "strategy"
)

// Block is one display unit of a formatted summary.
type Block struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Icon    string `json:"icon,omitempty"`
	Section string `json:"section,omitempty"` // section the block belongs to, if any
}

type heading struct {
	marker  string
	section string
	icon    string
}

// headings are matched in order; the outlook marker is looked up by its
// shorter form when choosing the icon.
var headings = []heading{
	{"市场主线", SectionMarket, "📈"},
	{"焦点事件", SectionEvents, "🔥"},
	{"主要货币对展望", SectionOutlook, "💱"},
	{"今日策略", SectionStrategy, "🎯"},
}

// Format splits text into blocks. Lines naming a known heading become
// titles; lines starting with a bullet or holding a colon become list
// items; the rest are paragraphs. Blank lines are dropped.
func Format(text string) []Block {
	var blocks []Block
	current := ""
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if h, ok := matchHeading(line); ok {
			current = h.section
			blocks = append(blocks, Block{Type: BlockTitle, Content: line, Icon: h.icon, Section: h.section})
			continue
		}
		b := Block{Type: BlockParagraph, Content: line, Section: current}
		if strings.HasPrefix(line, "•") || strings.HasPrefix(line, "○") ||
			strings.Contains(line, ":") || strings.Contains(line, "：") {
			b.Type = BlockList
		}
		blocks = append(blocks, b)
	}
	return blocks
}

func matchHeading(line string) (heading, bool) {
	for _, h := range headings {
		if strings.Contains(line, h.marker) {
			return h, true
		}
	}
	return heading{}, false
}

// SectionIcon returns the icon for a heading line, 📝 when none matches.
func SectionIcon(title string) string {
	if strings.Contains(title, "货币对展望") {
		return "💱"
	}
	if h, ok := matchHeading(title); ok {
		return h.icon
	}
	return "📝"
}

// Sections tracks which sections are expanded.
type Sections map[string]bool

// DefaultSections returns every section expanded.
func DefaultSections() Sections {
	return Sections{
		SectionMarket:   true,
		SectionEvents:   true,
		SectionOutlook:  true,
		SectionStrategy: true,
	}
}

// Toggle flips a section and reports its new state. ok is false for an
// unknown section.
func (s Sections) Toggle(name string) (expanded, ok bool) {
	v, ok := s[name]
	if !ok {
		return false, false
	}
	s[name] = !v
	return !v, true
}

// Visible drops the non-title blocks of collapsed sections.
func Visible(blocks []Block, s Sections) []Block {
	out := make([]Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Type != BlockTitle && b.Section != "" && !s[b.Section] {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Sentiment labels.
const (
	SentimentVolatile = "高波动"
	SentimentNeutral  = "中性"
	SentimentCalm     = "平静"
)

// Stats are the headline numbers shown above the summary.
type Stats struct {
	TotalEvents int    `json:"totalEvents"`
	HighImpact  int    `json:"highImpact"`
	Sentiment   string `json:"marketSentiment"`
}

// ComputeStats counts high-impact events and derives a rough sentiment:
// three or more is volatile, none is calm.
func ComputeStats(events []models.NormalizedEvent) Stats {
	st := Stats{TotalEvents: len(events), Sentiment: SentimentNeutral}
	for _, e := range events {
		if e.Importance == models.ImportanceHigh {
			st.HighImpact++
		}
	}
	switch {
	case st.HighImpact >= 3:
		st.Sentiment = SentimentVolatile
	case st.HighImpact == 0:
		st.Sentiment = SentimentCalm
	}
	return st
}

var htmlTag = regexp.MustCompile(`<(?:[a-zA-Z][a-zA-Z0-9]*|/[a-zA-Z][a-zA-Z0-9]*)\b[^>]*>`)

// Flatten converts an HTML-bearing summary to plain lines. Plain text is
// returned unchanged.
func Flatten(text string) string {
	if !htmlTag.MatchString(text) {
		return text
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return htmlTag.ReplaceAllString(text, "")
	}

	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("• ")
	})
	doc.Find("p, li, div, h1, h2, h3, h4, h5, h6, tr").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ToHTML renders the summary as HTML for browser views. Single newlines
// are kept as line breaks.
func ToHTML(text string) string {
	ext := blackfriday.CommonExtensions | blackfriday.HardLineBreak
	return string(blackfriday.Run([]byte(text), blackfriday.WithExtensions(ext)))
}
