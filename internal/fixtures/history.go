package fixtures

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// HistoryDays is the window the reports view generates.
const HistoryDays = 30

// DateLayout is the calendar date format used by report filters.
const DateLayout = "2006-01-02"

// AllFilter matches every crop or location.
const AllFilter = "All"

// ErrInvalidRange is returned when a report filter ends before it starts.
var ErrInvalidRange = errors.New("fixtures: report range ends before it starts")

// HistoricalDay is one day of field history.
type HistoricalDay struct {
	Date              time.Time
	PestAlerts        int // 0-4
	PesticidesApplied int // 0 or 1
	CropHealthIndex   int // 60-89
	SoilMoisture      int // 30-69
}

// Generator produces randomized history from its own faker.
type Generator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// NewGenerator returns a generator. Equal non-zero seeds produce equal
// history; zero seeds from the clock.
func NewGenerator(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

var defaultGenerator = NewGenerator(0)

// HistoricalData returns days of history ending with the day of now, oldest
// first.
func HistoricalData(days int, now time.Time) []HistoricalDay {
	return defaultGenerator.HistoricalData(days, now)
}

// HistoricalData returns days of history ending with the day of now, oldest
// first.
func (g *Generator) HistoricalData(days int, now time.Time) []HistoricalDay {
	if days <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	today := truncateDay(now)
	history := make([]HistoricalDay, days)
	for i := range history {
		pesticides := 0
		if g.faker.Bool() {
			pesticides = 1
		}
		history[i] = HistoricalDay{
			Date:              today.AddDate(0, 0, i-(days-1)),
			PestAlerts:        g.faker.IntRange(0, 4),
			PesticidesApplied: pesticides,
			CropHealthIndex:   g.faker.IntRange(60, 89),
			SoilMoisture:      g.faker.IntRange(30, 69),
		}
	}
	return history
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ReportFilter selects the days a report covers. Crop and Location are
// recorded on the report; the mock history is not broken down by either.
type ReportFilter struct {
	From     time.Time
	To       time.Time
	Crop     string
	Location string
}

// DefaultReportFilter covers the last 30 days for all crops and locations.
func DefaultReportFilter(now time.Time) ReportFilter {
	today := truncateDay(now)
	return ReportFilter{
		From:     today.AddDate(0, 0, -HistoryDays),
		To:       today,
		Crop:     AllFilter,
		Location: AllFilter,
	}
}

// ParseReportFilter reads form values, falling back to DefaultReportFilter
// for empty fields.
func ParseReportFilter(from, to, crop, location string, now time.Time) (ReportFilter, error) {
	f := DefaultReportFilter(now)

	if from = strings.TrimSpace(from); from != "" {
		t, err := time.ParseInLocation(DateLayout, from, now.Location())
		if err != nil {
			return ReportFilter{}, fmt.Errorf("fixtures: invalid from date: %w", err)
		}
		f.From = t
	}
	if to = strings.TrimSpace(to); to != "" {
		t, err := time.ParseInLocation(DateLayout, to, now.Location())
		if err != nil {
			return ReportFilter{}, fmt.Errorf("fixtures: invalid to date: %w", err)
		}
		f.To = t
	}
	if f.To.Before(f.From) {
		return ReportFilter{}, ErrInvalidRange
	}

	if crop != "" {
		if crop != AllFilter && !slices.Contains(CropTypes(), crop) {
			return ReportFilter{}, fmt.Errorf("fixtures: unknown crop %q", crop)
		}
		f.Crop = crop
	}
	if location != "" {
		if location != AllFilter && !slices.Contains(Locations(), location) {
			return ReportFilter{}, fmt.Errorf("fixtures: unknown location %q", location)
		}
		f.Location = location
	}
	return f, nil
}

// Report is the filtered history with its summary.
type Report struct {
	Filter             ReportFilter
	Days               []HistoricalDay
	TotalPestAlerts    int
	TotalApplications  int
	AverageCropHealth  float64
	AverageSoilMoisture float64
}

// BuildReport generates HistoryDays of history ending at now and summarizes
// the days filter selects.
func BuildReport(filter ReportFilter, now time.Time) Report {
	return Summarize(HistoricalData(HistoryDays, now), filter)
}

// Summarize keeps the days within filter (inclusive) and totals them.
func Summarize(history []HistoricalDay, filter ReportFilter) Report {
	r := Report{Filter: filter}

	for _, day := range history {
		if day.Date.Before(truncateDay(filter.From)) || day.Date.After(truncateDay(filter.To)) {
			continue
		}
		r.Days = append(r.Days, day)
		r.TotalPestAlerts += day.PestAlerts
		r.TotalApplications += day.PesticidesApplied
		r.AverageCropHealth += float64(day.CropHealthIndex)
		r.AverageSoilMoisture += float64(day.SoilMoisture)
	}

	if n := float64(len(r.Days)); n > 0 {
		r.AverageCropHealth /= n
		r.AverageSoilMoisture /= n
	}
	return r
}
