// Package normalize turns raw calendar records into complete, display-ready
// events. It is the only place where defaults are applied; nothing
// downstream ever sees a partially populated event.
package normalize

import (
	"cmp"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/shopspring/decimal"

	"github.com/seenimoa/macrocal/pkg/models"
)

// Defaults for absent fields.
const (
	DefaultCountry    = "Unknown"
	DefaultName       = "未命名事件"
	DefaultCurrency   = "USD"
	DefaultAnalysis   = "暂无分析数据"
	DefaultImportance = models.ImportanceLow
	NoTime            = "--:--"
)

// Actual-versus-forecast classes.
const (
	ActualBetter = "actual-better"
	ActualWorse  = "actual-worse"
	ActualEqual  = "actual-equal"
)

// Normalize converts raw events one-for-one, preserving order. It never
// fails.
func Normalize(raw []models.RawEvent) []models.NormalizedEvent {
	out := make([]models.NormalizedEvent, len(raw))
	for i := range raw {
		out[i] = Event(raw[i])
	}
	return out
}

// Event normalizes a single raw record.
func Event(r models.RawEvent) models.NormalizedEvent {
	e := models.NormalizedEvent{
		Date:        text(r.Date, ""),
		Time:        text(r.Time, ""),
		Country:     text(r.Country, DefaultCountry),
		Name:        text(r.Name, DefaultName),
		Forecast:    text(r.Forecast, models.NotAvailable),
		Previous:    text(r.Previous, models.NotAvailable),
		Currency:    text(r.Currency, DefaultCurrency),
		AIAnalysis:  text(r.AIAnalysis, DefaultAnalysis),
		Description: text(r.Description, ""),
		Source:      text(r.Source, ""),
		Importance:  DefaultImportance,
	}
	if r.Actual != nil && strings.TrimSpace(*r.Actual) != "" {
		actual := strings.TrimSpace(*r.Actual)
		e.Actual = &actual
	}
	if r.Importance != nil && *r.Importance != 0 {
		e.Importance = *r.Importance
	}

	e.ID = text(r.ID, "")
	if e.ID == "" {
		e.ID = GenerateID(text(r.Time, ""), text(r.Country, ""), text(r.Name, ""))
	}

	e.DisplayTime = DisplayTime(e.Time)
	e.Flag = Flag(e.Country)
	e.ImportanceIcon = ImportanceIcon(e.Importance)
	e.ImportanceText = ImportanceText(e.Importance)
	e.ImportanceClass = ImportanceClass(e.Importance)
	e.HasActual = e.Actual != nil
	e.ActualClass = ActualClass(e.Actual, e.Forecast)
	return e
}

func text(p *string, def string) string {
	if p == nil {
		return def
	}
	if s := strings.TrimSpace(*p); s != "" {
		return s
	}
	return def
}

// GenerateID derives a stable identifier from (time, country, name): a
// 31-multiplier rolling hash over the UTF-16 code units of
// "time-country-name", wrapped to a signed 32-bit integer, rendered as the
// hex of its absolute value. Distinct events sharing the triple collide.
func GenerateID(time, country, name string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(time + "-" + country + "-" + name)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 16)
}

// ParseClock extracts (hour, minute) from "H:MM", "HH:MM", "HH:MM:SS" or the
// compact "HMM"/"HHMM" form. ok is false for anything else, including
// out-of-range values.
func ParseClock(s string) (hour, minute int, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, false
	}

	var hs, ms string
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return 0, 0, false
		}
		hs, ms = parts[0], parts[1]
		if len(parts) == 3 && !digits(parts[2], 2, 2) {
			return 0, 0, false
		}
		if !digits(hs, 1, 2) || !digits(ms, 1, 2) {
			return 0, 0, false
		}
	} else {
		if !digits(s, 3, 4) {
			return 0, 0, false
		}
		hs, ms = s[:len(s)-2], s[len(s)-2:]
	}

	hour, _ = strconv.Atoi(hs)
	minute, _ = strconv.Atoi(ms)
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	return hour, minute, true
}

func digits(s string, min, max int) bool {
	if len(s) < min || len(s) > max {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// DisplayTime renders a zero-padded "HH:MM", or "--:--" when the time is
// absent or unparsable.
func DisplayTime(t string) string {
	h, m, ok := ParseClock(t)
	if !ok {
		return NoTime
	}
	return twoDigits(h) + ":" + twoDigits(m)
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Flag returns the regional-indicator emoji for a two-letter country code,
// or a globe for anything else.
func Flag(country string) string {
	c := strings.ToUpper(strings.TrimSpace(country))
	if len(c) != 2 || c == "GL" {
		return "🌐"
	}
	for i := 0; i < 2; i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return "🌐"
		}
	}
	return string([]rune{0x1F1E6 + rune(c[0]-'A'), 0x1F1E6 + rune(c[1]-'A')})
}

// ImportanceText is the one-character label for a level.
func ImportanceText(level int) string {
	switch level {
	case models.ImportanceHigh:
		return "高"
	case models.ImportanceMedium:
		return "中"
	case models.ImportanceLow:
		return "低"
	default:
		return "未知"
	}
}

// ImportanceClass is the style class for a level.
func ImportanceClass(level int) string {
	switch level {
	case models.ImportanceHigh:
		return "importance-high"
	case models.ImportanceMedium:
		return "importance-medium"
	case models.ImportanceLow:
		return "importance-low"
	default:
		return ""
	}
}

// ImportanceIcon is the badge shown next to an event.
func ImportanceIcon(level int) string {
	switch level {
	case models.ImportanceHigh:
		return "🔥"
	case models.ImportanceMedium:
		return "⚠️"
	case models.ImportanceLow:
		return "📊"
	default:
		return ""
	}
}

// numberPrefix matches the leading decimal number of a figure such as
// "3.2%" or "-0.5K".
var numberPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// maxExponent bounds the decimal scale a figure may carry. Comparing two
// decimals rescales both to a common exponent, so larger ones are compared
// as float64 instead, where they saturate to ±Inf or zero.
const maxExponent = 400

func figurePrefix(s string) string {
	return strings.TrimPrefix(numberPrefix.FindString(strings.TrimSpace(s)), "+")
}

// ParseFigure reads the leading number of a published figure. Figures whose
// exponent is outside ±400 are rejected.
func ParseFigure(s string) (decimal.Decimal, bool) {
	m := figurePrefix(s)
	if m == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(m)
	if err != nil || d.Exponent() > maxExponent || d.Exponent() < -maxExponent {
		return decimal.Zero, false
	}
	return d, true
}

// compareFigures compares two matched number prefixes exactly when both fit
// a decimal, and as float64 otherwise.
func compareFigures(a, b string) int {
	da, okA := ParseFigure(a)
	db, okB := ParseFigure(b)
	if okA && okB {
		return da.Cmp(db)
	}
	// ParseFloat reports out-of-range input with ±Inf or 0 alongside ErrRange.
	fa, _ := strconv.ParseFloat(a, 64)
	fb, _ := strconv.ParseFloat(b, 64)
	return cmp.Compare(fa, fb)
}

// ActualClass compares the actual figure with the forecast.
func ActualClass(actual *string, forecast string) string {
	if actual == nil || forecast == models.NotAvailable {
		return ""
	}
	a, f := figurePrefix(*actual), figurePrefix(forecast)
	if a == "" || f == "" {
		return ""
	}
	switch compareFigures(a, f) {
	case 1:
		return ActualBetter
	case -1:
		return ActualWorse
	default:
		return ActualEqual
	}
}
