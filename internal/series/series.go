// Package series builds dense daily series over a trailing window of UTC
// calendar days.
package series

import (
	"time"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// Window is a trailing range of whole UTC calendar days, closed at both ends
type Window struct {
	start time.Time
	days  int
}

// NewWindow returns the window of windowDays days ending on the UTC day of now.
// windowDays must be positive; callers validate it before building.
func NewWindow(windowDays int, now time.Time) Window {
	end := truncateDay(now)
	return Window{
		start: end.AddDate(0, 0, -(windowDays - 1)),
		days:  windowDays,
	}
}

// Start returns midnight UTC of the first day in the window
func (w Window) Start() time.Time {
	return w.start
}

// End returns the last instant of the final day in the window
func (w Window) End() time.Time {
	return w.start.AddDate(0, 0, w.days).Add(-time.Nanosecond)
}

// Days returns the window length in days
func (w Window) Days() int {
	return w.days
}

// Contains reports whether t falls on a day inside the window
func (w Window) Contains(t time.Time) bool {
	t = t.UTC()
	return !t.Before(w.start) && !t.After(w.End())
}

// Build counts events per calendar day of the window ending at now
func Build(events []domain.NormalizedEvent, windowDays int, now time.Time) []domain.SeriesPoint {
	return BuildFiltered(events, windowDays, now, nil)
}

// BuildFiltered is Build restricted to events accepted by keep.
// A nil keep accepts every event.
func BuildFiltered(events []domain.NormalizedEvent, windowDays int, now time.Time, keep func(domain.NormalizedEvent) bool) []domain.SeriesPoint {
	if windowDays < 1 {
		return []domain.SeriesPoint{}
	}
	w := NewWindow(windowDays, now)

	buckets := make(map[string]float64, windowDays)
	for i := 0; i < windowDays; i++ {
		buckets[w.start.AddDate(0, 0, i).Format(domain.DateLayout)] = 0
	}

	for _, e := range events {
		if keep != nil && !keep(e) {
			continue
		}
		if !w.Contains(e.OccurredAt) {
			continue
		}
		buckets[e.OccurredAt.UTC().Format(domain.DateLayout)]++
	}

	points := make([]domain.SeriesPoint, 0, windowDays)
	for i := 0; i < windowDays; i++ {
		date := w.start.AddDate(0, 0, i).Format(domain.DateLayout)
		points = append(points, domain.SeriesPoint{Date: date, Value: buckets[date]})
	}
	return points
}

// Sum adds up the values of a series
func Sum(points []domain.SeriesPoint) float64 {
	var total float64
	for _, p := range points {
		total += p.Value
	}
	return total
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
