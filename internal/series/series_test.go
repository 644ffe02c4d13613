package series

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// referenceNow is mid-afternoon so day truncation is exercised
var referenceNow = time.Date(2025, 3, 7, 15, 4, 5, 0, time.UTC)

func deployAt(t time.Time) domain.NormalizedEvent {
	return domain.NormalizedEvent{Kind: domain.DeploymentEvent, OccurredAt: t, Outcome: domain.OutcomeSuccess}
}

func values(points []domain.SeriesPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Value
	}
	return out
}

func TestBuild_DenseForEveryWindow(t *testing.T) {
	for n := 1; n <= 120; n++ {
		points := Build(nil, n, referenceNow)

		assert.Len(t, points, n)
		for i := 1; i < len(points); i++ {
			prev, _ := time.Parse(domain.DateLayout, points[i-1].Date)
			cur, _ := time.Parse(domain.DateLayout, points[i].Date)
			assert.Equal(t, 24*time.Hour, cur.Sub(prev), "gap between %s and %s", points[i-1].Date, points[i].Date)
		}
		assert.Equal(t, "2025-03-07", points[len(points)-1].Date)
	}
}

func TestBuild_ScenarioA(t *testing.T) {
	// window of 7 days: 2025-03-01 .. 2025-03-07
	events := []domain.NormalizedEvent{
		deployAt(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)),
		deployAt(time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)),
		deployAt(time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)),
	}

	points := Build(events, 7, referenceNow)

	assert.Equal(t, []float64{2, 0, 0, 1, 0, 0, 0}, values(points))
	assert.Equal(t, "2025-03-01", points[0].Date)
	assert.Equal(t, 3.0, Sum(points))
}

func TestBuild_BoundariesInclusive(t *testing.T) {
	w := NewWindow(7, referenceNow)
	events := []domain.NormalizedEvent{
		deployAt(w.Start()),
		deployAt(w.End()),
		deployAt(w.Start().Add(-time.Nanosecond)),
		deployAt(w.End().Add(time.Nanosecond)),
	}

	points := Build(events, 7, referenceNow)

	assert.Equal(t, []float64{1, 0, 0, 0, 0, 0, 1}, values(points))
}

func TestBuild_ConvertsToUTC(t *testing.T) {
	zone := time.FixedZone("UTC+9", 9*3600)
	// 2025-03-07 08:00 in UTC+9 is 2025-03-06 23:00 UTC
	events := []domain.NormalizedEvent{deployAt(time.Date(2025, 3, 7, 8, 0, 0, 0, zone))}

	points := Build(events, 2, referenceNow)

	assert.Equal(t, []float64{1, 0}, values(points))
}

func TestBuildFiltered_OnlyMatchingEvents(t *testing.T) {
	failed := deployAt(time.Date(2025, 3, 6, 1, 0, 0, 0, time.UTC))
	failed.Outcome = domain.OutcomeFailure
	events := []domain.NormalizedEvent{failed, deployAt(time.Date(2025, 3, 6, 2, 0, 0, 0, time.UTC))}

	points := BuildFiltered(events, 3, referenceNow, func(e domain.NormalizedEvent) bool {
		return e.Outcome == domain.OutcomeFailure
	})

	assert.Equal(t, []float64{0, 1, 0}, values(points))
}

func TestBuild_InvalidWindowReturnsEmpty(t *testing.T) {
	assert.Empty(t, Build(nil, 0, referenceNow))
	assert.Empty(t, Build(nil, -3, referenceNow))
}

func TestWindow_Contains(t *testing.T) {
	w := NewWindow(1, referenceNow)

	assert.Equal(t, time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC), w.Start())
	assert.True(t, w.Contains(time.Date(2025, 3, 7, 0, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2025, 3, 7, 23, 59, 59, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 1, w.Days())
}
