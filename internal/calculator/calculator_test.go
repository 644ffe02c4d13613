package calculator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/series"
)

var referenceNow = time.Date(2025, 3, 7, 15, 0, 0, 0, time.UTC)

func day(d, hour int) time.Time {
	return time.Date(2025, 3, d, hour, 0, 0, 0, time.UTC)
}

func event(kind domain.EventKind, at time.Time, outcome domain.Outcome) domain.NormalizedEvent {
	return domain.NormalizedEvent{Kind: kind, OccurredAt: at, Outcome: outcome}
}

func resolved(kind domain.EventKind, at, resolvedAt time.Time) domain.NormalizedEvent {
	e := event(kind, at, domain.OutcomeUnknown)
	e.ResolvedAt = &resolvedAt
	return e
}

func TestDeploymentFrequency_ScenarioA(t *testing.T) {
	deployments := []domain.NormalizedEvent{
		event(domain.DeploymentEvent, day(1, 9), domain.OutcomeSuccess),
		event(domain.DeploymentEvent, day(1, 18), domain.OutcomeFailure),
		event(domain.DeploymentEvent, day(4, 12), domain.OutcomeUnknown),
	}

	result := DeploymentFrequency(deployments, 7, referenceNow)

	assert.InDelta(t, 0.4286, result.Summary.Value, 0.0001)
	assert.Equal(t, domain.UnitDeploymentsPerDay, result.Summary.Unit)
	assert.Equal(t, referenceNow, result.Summary.Timestamp)
	require.Len(t, result.Series, 7)
	assert.Equal(t, 2.0, result.Series[0].Value)
	assert.Equal(t, 1.0, result.Series[3].Value)
}

func TestDeploymentFrequency_SeriesRoundTrip(t *testing.T) {
	var deployments []domain.NormalizedEvent
	for i := 0; i < 40; i++ {
		deployments = append(deployments, event(domain.DeploymentEvent, referenceNow.Add(-time.Duration(i)*7*time.Hour), domain.OutcomeSuccess))
	}

	for _, n := range []int{1, 3, 7, 14, 30} {
		result := DeploymentFrequency(deployments, n, referenceNow)
		assert.InDelta(t, result.Summary.Value, series.Sum(result.Series)/float64(n), 1e-9, "window %d", n)
	}
}

func TestDeploymentFrequency_IgnoresEventsOutsideWindow(t *testing.T) {
	deployments := []domain.NormalizedEvent{
		event(domain.DeploymentEvent, day(1, 9), domain.OutcomeSuccess),
		event(domain.DeploymentEvent, day(8, 1), domain.OutcomeSuccess),
	}

	result := DeploymentFrequency(deployments, 1, referenceNow)

	assert.Equal(t, 0.0, result.Summary.Value)
	assert.Equal(t, []domain.SeriesPoint{{Date: "2025-03-07", Value: 0}}, result.Series)
}

func TestLeadTime_ScenarioB(t *testing.T) {
	changes := []domain.NormalizedEvent{
		resolved(domain.ChangeEvent, day(3, 10), day(4, 10)),
		event(domain.ChangeEvent, day(3, 11), domain.OutcomeUnknown),
	}

	result := LeadTime(changes, nil, 7, referenceNow, ResolvedAtMatcher{})

	assert.Equal(t, 24.0, result.Summary.Value)
	assert.Equal(t, domain.UnitHours, result.Summary.Unit)
	assert.Empty(t, result.Series)
}

func TestLeadTime_NegativeDurationExcluded(t *testing.T) {
	changes := []domain.NormalizedEvent{
		resolved(domain.ChangeEvent, day(4, 10), day(3, 10)),
		resolved(domain.ChangeEvent, day(4, 10), day(4, 16)),
	}

	result := LeadTime(changes, nil, 7, referenceNow, nil)

	assert.Equal(t, 6.0, result.Summary.Value)
}

func TestLeadTime_NothingResolvedIsZero(t *testing.T) {
	changes := []domain.NormalizedEvent{event(domain.ChangeEvent, day(4, 10), domain.OutcomeUnknown)}

	result := LeadTime(changes, nil, 7, referenceNow, ResolvedAtMatcher{})

	assert.Equal(t, 0.0, result.Summary.Value)
}

func TestLeadTime_DeploymentPrefixMatcher(t *testing.T) {
	change := event(domain.ChangeEvent, day(2, 8), domain.OutcomeUnknown)
	change.Ref = "abc123"

	deployments := []domain.NormalizedEvent{
		{Kind: domain.DeploymentEvent, OccurredAt: day(1, 8), Ref: "abc123ff", Outcome: domain.OutcomeSuccess},
		{Kind: domain.DeploymentEvent, OccurredAt: day(2, 10), Ref: "abc123ff", Outcome: domain.OutcomeFailure},
		{Kind: domain.DeploymentEvent, OccurredAt: day(2, 20), Ref: "abc123ff", Outcome: domain.OutcomeSuccess},
		{Kind: domain.DeploymentEvent, OccurredAt: day(2, 14), Ref: "abc123ff", Outcome: domain.OutcomeUnknown},
		{Kind: domain.DeploymentEvent, OccurredAt: day(2, 9), Ref: "zzz", Outcome: domain.OutcomeSuccess},
	}

	result := LeadTime([]domain.NormalizedEvent{change}, deployments, 7, referenceNow, DeploymentPrefixMatcher{})

	assert.Equal(t, 6.0, result.Summary.Value)
}

func TestDeploymentPrefixMatcher_FallsBackToID(t *testing.T) {
	change := domain.NormalizedEvent{ID: "REL-7", OccurredAt: day(2, 8)}
	deployments := []domain.NormalizedEvent{{ID: "REL-7-prod", OccurredAt: day(2, 9)}}

	at, ok := DeploymentPrefixMatcher{}.Resolve(change, deployments)

	assert.True(t, ok)
	assert.Equal(t, day(2, 9), at)

	_, ok = DeploymentPrefixMatcher{}.Resolve(domain.NormalizedEvent{OccurredAt: day(2, 8)}, deployments)
	assert.False(t, ok)
}

func TestMatcherFor(t *testing.T) {
	m, err := MatcherFor("")
	require.NoError(t, err)
	assert.IsType(t, ResolvedAtMatcher{}, m)

	m, err = MatcherFor(domain.MatcherDeploymentPrefix)
	require.NoError(t, err)
	assert.IsType(t, DeploymentPrefixMatcher{}, m)

	_, err = MatcherFor("substring")
	assert.Error(t, err)
}

func TestChangeFailureRate_ScenarioC(t *testing.T) {
	var changes []domain.NormalizedEvent
	for i := 0; i < 10; i++ {
		outcome := domain.OutcomeSuccess
		if i < 3 {
			outcome = domain.OutcomeFailure
		}
		changes = append(changes, event(domain.ChangeEvent, day(2+i%5, 10), outcome))
	}

	result := ChangeFailureRate(changes, 7, referenceNow, UnknownExclude)

	assert.InDelta(t, 30.0, result.Summary.Value, 1e-9)
	assert.Equal(t, domain.UnitPercent, result.Summary.Unit)
	assert.Len(t, result.Series, 7)
	assert.Equal(t, 3.0, series.Sum(result.Series))
}

func TestChangeFailureRate_UnknownPolicy(t *testing.T) {
	events := []domain.NormalizedEvent{
		event(domain.DeploymentEvent, day(5, 1), domain.OutcomeFailure),
		event(domain.DeploymentEvent, day(5, 2), domain.OutcomeSuccess),
		event(domain.DeploymentEvent, day(5, 3), domain.OutcomeUnknown),
		event(domain.DeploymentEvent, day(5, 4), domain.OutcomeUnknown),
	}

	exclude := ChangeFailureRate(events, 7, referenceNow, UnknownExclude)
	include := ChangeFailureRate(events, 7, referenceNow, UnknownInclude)

	assert.Equal(t, 50.0, exclude.Summary.Value)
	assert.Equal(t, 25.0, include.Summary.Value)
}

func TestChangeFailureRate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		events []domain.NormalizedEvent
		want   float64
	}{
		{"empty", nil, 0},
		{"only unknown", []domain.NormalizedEvent{event(domain.ChangeEvent, day(6, 1), domain.OutcomeUnknown)}, 0},
		{"all failed", []domain.NormalizedEvent{
			event(domain.ChangeEvent, day(6, 1), domain.OutcomeFailure),
			event(domain.ChangeEvent, day(6, 2), domain.OutcomeFailure),
		}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, policy := range []UnknownPolicy{UnknownExclude, UnknownInclude} {
				result := ChangeFailureRate(tt.events, 7, referenceNow, policy)
				assert.Equal(t, tt.want, result.Summary.Value)
				assert.GreaterOrEqual(t, result.Summary.Value, 0.0)
				assert.LessOrEqual(t, result.Summary.Value, 100.0)
			}
		})
	}
}

func TestParseUnknownPolicy(t *testing.T) {
	p, err := ParseUnknownPolicy("")
	require.NoError(t, err)
	assert.Equal(t, UnknownExclude, p)

	p, err = ParseUnknownPolicy("include")
	require.NoError(t, err)
	assert.Equal(t, UnknownInclude, p)

	_, err = ParseUnknownPolicy("sometimes")
	assert.Error(t, err)
}

func TestMeanTimeToRecovery(t *testing.T) {
	incidents := []domain.NormalizedEvent{
		resolved(domain.IncidentEvent, day(3, 10), day(3, 12)),
		resolved(domain.IncidentEvent, day(4, 10), day(4, 16)),
		event(domain.IncidentEvent, day(5, 10), domain.OutcomeUnknown),
	}

	result := MeanTimeToRecovery(incidents, 7, referenceNow)

	assert.Equal(t, 4.0, result.Summary.Value)
	assert.Equal(t, domain.UnitHours, result.Summary.Unit)
}

func TestMeanTimeToRecovery_NoIncidents(t *testing.T) {
	result := MeanTimeToRecovery(nil, 7, referenceNow)

	assert.Equal(t, 0.0, result.Summary.Value)
	assert.Equal(t, domain.UnitHours, result.Summary.Unit)
}
