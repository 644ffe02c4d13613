// Package calculator derives the four DORA metrics from normalized events.
//
// Every function is pure: the reference time is passed in, events outside the
// trailing window are ignored, and results are always finite.
package calculator

import (
	"fmt"
	"time"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/series"
)

// UnknownPolicy decides whether Unknown-outcome events count toward the
// change failure rate denominator
type UnknownPolicy string

const (
	UnknownExclude UnknownPolicy = "exclude"
	UnknownInclude UnknownPolicy = "include"
)

// ParseUnknownPolicy validates a configured policy name; empty means exclude
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch UnknownPolicy(s) {
	case "", UnknownExclude:
		return UnknownExclude, nil
	case UnknownInclude:
		return UnknownInclude, nil
	}
	return "", fmt.Errorf("unknown outcome policy %q (supported: exclude, include)", s)
}

// DeploymentFrequency returns deployments per day and the daily deployment series
func DeploymentFrequency(deployments []domain.NormalizedEvent, windowDays int, now time.Time) domain.MetricResult {
	points := series.Build(deployments, windowDays, now)

	var value float64
	if windowDays > 0 {
		value = series.Sum(points) / float64(windowDays)
	}

	return domain.MetricResult{
		Summary: summary(value, domain.UnitDeploymentsPerDay, now),
		Series:  points,
	}
}

// LeadTime returns the mean hours from change creation to resolution, where
// resolution is decided by matcher. Unresolved changes and negative
// durations are excluded.
func LeadTime(changes, deployments []domain.NormalizedEvent, windowDays int, now time.Time, matcher ChangeMatcher) domain.MetricResult {
	if matcher == nil {
		matcher = ResolvedAtMatcher{}
	}
	w := series.NewWindow(windowDays, now)

	var totalHours float64
	var eligible int
	for _, change := range changes {
		if !w.Contains(change.OccurredAt) {
			continue
		}
		resolvedAt, ok := matcher.Resolve(change, deployments)
		if !ok {
			continue
		}
		d := resolvedAt.Sub(change.OccurredAt)
		if d < 0 {
			continue
		}
		totalHours += d.Hours()
		eligible++
	}

	return domain.MetricResult{
		Summary: summary(mean(totalHours, eligible), domain.UnitHours, now),
	}
}

// ChangeFailureRate returns the percentage of failed events and the daily
// series of failures. With policy UnknownExclude, Unknown outcomes are left
// out of the denominator.
func ChangeFailureRate(events []domain.NormalizedEvent, windowDays int, now time.Time, policy UnknownPolicy) domain.MetricResult {
	w := series.NewWindow(windowDays, now)

	var failures, total int
	for _, e := range events {
		if !w.Contains(e.OccurredAt) {
			continue
		}
		switch e.Outcome {
		case domain.OutcomeFailure:
			failures++
			total++
		case domain.OutcomeSuccess:
			total++
		default:
			if policy == UnknownInclude {
				total++
			}
		}
	}

	var value float64
	if total > 0 {
		value = 100 * float64(failures) / float64(total)
	}

	return domain.MetricResult{
		Summary: summary(value, domain.UnitPercent, now),
		Series: series.BuildFiltered(events, windowDays, now, func(e domain.NormalizedEvent) bool {
			return e.Outcome == domain.OutcomeFailure
		}),
	}
}

// MeanTimeToRecovery returns the mean hours from incident open to close.
// Open incidents and negative durations are excluded.
func MeanTimeToRecovery(incidents []domain.NormalizedEvent, windowDays int, now time.Time) domain.MetricResult {
	w := series.NewWindow(windowDays, now)

	var totalHours float64
	var eligible int
	for _, incident := range incidents {
		if !w.Contains(incident.OccurredAt) {
			continue
		}
		d, ok := incident.Duration()
		if !ok {
			continue
		}
		totalHours += d.Hours()
		eligible++
	}

	return domain.MetricResult{
		Summary: summary(mean(totalHours, eligible), domain.UnitHours, now),
	}
}

func mean(total float64, n int) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func summary(value float64, unit string, now time.Time) domain.MetricSummary {
	return domain.MetricSummary{
		Value:     domain.Finite(value),
		Unit:      unit,
		Timestamp: now.UTC(),
	}
}
