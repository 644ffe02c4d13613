package domain

import (
	"math"
	"time"
)

// Metric names used in the aggregation result
const (
	MetricDeploymentFrequency = "deployment_frequency"
	MetricLeadTime            = "lead_time"
	MetricChangeFailureRate   = "change_failure_rate"
	MetricMeanTimeToRecovery  = "mean_time_to_recovery"
)

// Metric units
const (
	UnitDeploymentsPerDay = "deployments per day"
	UnitHours             = "hours"
	UnitPercent           = "percent"
)

// DateLayout is the calendar-day format used by series points
const DateLayout = "2006-01-02"

// SeriesPoint is one calendar day of a dense daily series
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// MetricSummary is the scalar value of one metric
type MetricSummary struct {
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}

// MetricResult pairs a summary with its optional daily series
type MetricResult struct {
	Summary MetricSummary
	Series  []SeriesPoint
}

// AggregationResult is the output of one aggregation run
type AggregationResult struct {
	SourceID            string
	WindowDays          int
	DeploymentFrequency MetricResult
	LeadTime            MetricResult
	ChangeFailureRate   MetricResult
	MeanTimeToRecovery  MetricResult
	DataUnavailable     bool
	Degraded            bool
	Strategy            string
	Dropped             map[EventKind]int
}

// Metric returns the result for the given metric name
func (r *AggregationResult) Metric(name string) (MetricResult, bool) {
	switch name {
	case MetricDeploymentFrequency:
		return r.DeploymentFrequency, true
	case MetricLeadTime:
		return r.LeadTime, true
	case MetricChangeFailureRate:
		return r.ChangeFailureRate, true
	case MetricMeanTimeToRecovery:
		return r.MeanTimeToRecovery, true
	}
	return MetricResult{}, false
}

// Finite replaces NaN and infinities with 0
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
