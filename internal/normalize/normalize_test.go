package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/seenimoa/macrocal/pkg/models"
)

var sp = models.StringPtr

func TestNormalizeEmptyRecordGetsDefaults(t *testing.T) {
	got := Normalize([]models.RawEvent{{}})
	if len(got) != 1 {
		t.Fatalf("got %d events, want 1", len(got))
	}
	e := got[0]

	checks := map[string][2]string{
		"time":           {e.Time, ""},
		"displayTime":    {e.DisplayTime, NoTime},
		"country":        {e.Country, DefaultCountry},
		"name":           {e.Name, DefaultName},
		"forecast":       {e.Forecast, models.NotAvailable},
		"previous":       {e.Previous, models.NotAvailable},
		"currency":       {e.Currency, DefaultCurrency},
		"ai_analysis":    {e.AIAnalysis, DefaultAnalysis},
		"importanceText": {e.ImportanceText, "低"},
		"importanceIcon": {e.ImportanceIcon, "📊"},
		"actualClass":    {e.ActualClass, ""},
		"flag":           {e.Flag, "🌐"},
		"id":             {e.ID, GenerateID("", "", "")},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}
	if e.Importance != models.ImportanceLow {
		t.Errorf("importance = %d, want 1", e.Importance)
	}
	if e.Actual != nil || e.HasActual {
		t.Errorf("actual = %v hasActual = %v, want nil/false", e.Actual, e.HasActual)
	}
	if e.IsExpanded {
		t.Error("isExpanded should default to false")
	}
}

func TestNormalizeEmptyStringsAreMissing(t *testing.T) {
	e := Event(models.RawEvent{
		Country:  sp(""),
		Forecast: sp(" "),
		Actual:   sp(""),
		Currency: sp(""),
	})
	if e.Country != DefaultCountry || e.Forecast != models.NotAvailable || e.Currency != DefaultCurrency {
		t.Errorf("empty strings not defaulted: %+v", e)
	}
	if e.HasActual {
		t.Error("empty actual should count as absent")
	}
}

func TestNormalizeFullRecord(t *testing.T) {
	imp := 3
	e := Event(models.RawEvent{
		Time:       sp("8:30"),
		Country:    sp("US"),
		Name:       sp("CPI"),
		Forecast:   sp("3.1%"),
		Previous:   sp("3.0%"),
		Actual:     sp("3.4%"),
		Importance: &imp,
		Currency:   sp("USD"),
		AIAnalysis: sp("通胀超预期"),
	})

	if e.DisplayTime != "08:30" {
		t.Errorf("displayTime = %q", e.DisplayTime)
	}
	if e.Time != "8:30" {
		t.Errorf("time = %q, want the raw value", e.Time)
	}
	if e.ImportanceText != "高" || e.ImportanceClass != "importance-high" || e.ImportanceIcon != "🔥" {
		t.Errorf("importance labels = %q %q %q", e.ImportanceText, e.ImportanceClass, e.ImportanceIcon)
	}
	if e.Flag != "🇺🇸" {
		t.Errorf("flag = %q", e.Flag)
	}
	if !e.HasActual || e.ActualClass != ActualBetter {
		t.Errorf("hasActual = %v actualClass = %q", e.HasActual, e.ActualClass)
	}
	if e.ID != GenerateID("8:30", "US", "CPI") {
		t.Errorf("id = %q", e.ID)
	}
}

func TestNormalizeKeepsUpstreamID(t *testing.T) {
	e := Event(models.RawEvent{ID: sp("42"), Time: sp("09:00")})
	if e.ID != "42" {
		t.Errorf("id = %q, want 42", e.ID)
	}
}

func TestNormalizeImportance(t *testing.T) {
	tests := []struct {
		in        *int
		want      int
		wantText  string
		wantClass string
	}{
		{nil, 1, "低", "importance-low"},
		{intp(0), 1, "低", "importance-low"},
		{intp(2), 2, "中", "importance-medium"},
		{intp(5), 5, "未知", ""},
		{intp(-1), -1, "未知", ""},
	}
	for _, tt := range tests {
		e := Event(models.RawEvent{Importance: tt.in})
		if e.Importance != tt.want || e.ImportanceText != tt.wantText || e.ImportanceClass != tt.wantClass {
			t.Errorf("importance %v -> (%d %q %q), want (%d %q %q)",
				tt.in, e.Importance, e.ImportanceText, e.ImportanceClass, tt.want, tt.wantText, tt.wantClass)
		}
	}
}

func TestNormalizePreservesOrderAndLength(t *testing.T) {
	raw := []models.RawEvent{
		{Name: sp("c")}, {Name: sp("a")}, {}, {Name: sp("b")},
	}
	got := Normalize(raw)
	if len(got) != len(raw) {
		t.Fatalf("len = %d, want %d", len(got), len(raw))
	}
	want := []string{"c", "a", DefaultName, "b"}
	for i := range want {
		if got[i].Name != want[i] {
			t.Errorf("got[%d].Name = %q, want %q", i, got[i].Name, want[i])
		}
	}
	if len(Normalize(nil)) != 0 {
		t.Error("Normalize(nil) should be empty")
	}
}

func TestNormalizeFromLooseJSON(t *testing.T) {
	var raw []models.RawEvent
	payload := `[{"time":"1430","country":"CN","importance":"high","actual":null,"forecast":50.2},"junk",{"name":null}]`
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := Normalize(raw)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].DisplayTime != "14:30" || got[0].Importance != 3 || got[0].Forecast != "50.2" || got[0].HasActual {
		t.Errorf("got[0] = %+v", got[0])
	}
	if got[1].Name != DefaultName || got[2].Name != DefaultName {
		t.Errorf("malformed entries not defaulted: %q %q", got[1].Name, got[2].Name)
	}
}

func TestGenerateID(t *testing.T) {
	tests := []struct {
		time, country, name string
		want                string
	}{
		{"08:30", "US", "CPI", "41ffb44b"},
		{"", "", "", "5a0"},
		{"14:00", "CN", "制造业PMI", "782796b8"},
		{"20:30", "US", "非农就业人数", "7ecc3118"},
	}
	for _, tt := range tests {
		if got := GenerateID(tt.time, tt.country, tt.name); got != tt.want {
			t.Errorf("GenerateID(%q,%q,%q) = %q, want %q", tt.time, tt.country, tt.name, got, tt.want)
		}
	}
}

func TestGenerateIDDeterministic(t *testing.T) {
	a := GenerateID("09:00", "EU", "ECB rate decision")
	for i := 0; i < 10; i++ {
		if b := GenerateID("09:00", "EU", "ECB rate decision"); b != a {
			t.Fatalf("GenerateID not deterministic: %q vs %q", a, b)
		}
	}
	if GenerateID("09:00", "EU", "x") == GenerateID("09:01", "EU", "x") {
		t.Error("different triples should normally give different ids")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in     string
		h, m   int
		wantOK bool
	}{
		{"08:30", 8, 30, true},
		{"8:30", 8, 30, true},
		{"23:59:59", 23, 59, true},
		{"0930", 9, 30, true},
		{"930", 9, 30, true},
		{"", 0, 0, false},
		{"24:00", 0, 0, false},
		{"12:60", 0, 0, false},
		{"ab:cd", 0, 0, false},
		{"Tentative", 0, 0, false},
		{"12", 0, 0, false},
		{"1:2:3:4", 0, 0, false},
	}
	for _, tt := range tests {
		h, m, ok := ParseClock(tt.in)
		if ok != tt.wantOK || h != tt.h || m != tt.m {
			t.Errorf("ParseClock(%q) = (%d, %d, %v), want (%d, %d, %v)", tt.in, h, m, ok, tt.h, tt.m, tt.wantOK)
		}
	}
}

func TestDisplayTime(t *testing.T) {
	tests := map[string]string{
		"9:05":    "09:05",
		"14:00":   "14:00",
		"0830":    "08:30",
		"":        NoTime,
		"All Day": NoTime,
	}
	for in, want := range tests {
		if got := DisplayTime(in); got != want {
			t.Errorf("DisplayTime(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestActualClass(t *testing.T) {
	tests := []struct {
		actual   *string
		forecast string
		want     string
	}{
		{sp("1.5"), "1.0", ActualBetter},
		{sp("0.5"), "1.0", ActualWorse},
		{sp("1.0"), "1.0", ActualEqual},
		{sp("1.00"), "1", ActualEqual},
		{sp("1.5"), models.NotAvailable, ""},
		{nil, "1.0", ""},
		{sp("n/a"), "1.0", ""},
		{sp("1.0"), "pending", ""},
		{sp("3.4%"), "3.1%", ActualBetter},
		{sp("-0.2"), "+0.1", ActualWorse},
		{sp("256K"), "200K", ActualBetter},
		{sp("1e3"), "999", ActualBetter},
		{sp("1e50000000"), "1.0", ActualBetter},
		{sp("-1e50000000"), "1.0", ActualWorse},
		{sp("1e99999999999"), "1e50000000", ActualEqual},
		{sp("1e-50000000"), "0", ActualEqual},
		{sp("2.5"), "1e-50000000", ActualBetter},
	}
	for _, tt := range tests {
		if got := ActualClass(tt.actual, tt.forecast); got != tt.want {
			a := "<nil>"
			if tt.actual != nil {
				a = *tt.actual
			}
			t.Errorf("ActualClass(%q, %q) = %q, want %q", a, tt.forecast, got, tt.want)
		}
	}
}

func TestActualClassHugeExponentReturnsPromptly(t *testing.T) {
	done := make(chan string, 1)
	go func() { done <- ActualClass(sp("1e50000000"), "1.0") }()
	select {
	case got := <-done:
		if got != ActualBetter {
			t.Errorf("ActualClass = %q, want %q", got, ActualBetter)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ActualClass did not return for a huge exponent")
	}
}

func TestParseFigureRejectsHugeExponent(t *testing.T) {
	if _, ok := ParseFigure("1e401"); ok {
		t.Error("ParseFigure accepted exponent 401")
	}
	d, ok := ParseFigure("1e400")
	if !ok || d.Exponent() != 400 {
		t.Errorf("ParseFigure(1e400) = %v, %v", d, ok)
	}
}

func TestFlag(t *testing.T) {
	tests := map[string]string{
		"US":      "🇺🇸",
		"cn":      "🇨🇳",
		"EU":      "🇪🇺",
		"GL":      "🌐",
		"Unknown": "🌐",
		"":        "🌐",
		"1A":      "🌐",
	}
	for in, want := range tests {
		if got := Flag(in); got != want {
			t.Errorf("Flag(%q) = %q, want %q", in, got, want)
		}
	}
}

func intp(n int) *int { return &n }
