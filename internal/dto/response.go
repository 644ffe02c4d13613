package dto

import (
	"time"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"validation_error"`
	Message string `json:"message,omitempty" example:"source_id is required"`
}

// PublishEventResponse represents a successful event ingestion response
type PublishEventResponse struct {
	EventID string `json:"event_id" example:"9f86d081884c7d65"`
	Status  string `json:"status" example:"accepted"`
}

// PublishBulkEventsResponse represents a successful bulk event ingestion response
type PublishBulkEventsResponse struct {
	Accepted int      `json:"accepted" example:"5"`
	Rejected int      `json:"rejected" example:"0"`
	EventIDs []string `json:"event_ids,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// IngestStatsGroup is the event count of one group
type IngestStatsGroup struct {
	GroupValue string `json:"group_value" example:"deployment"`
	TotalCount uint64 `json:"total_count" example:"1500"`
}

// IngestStatsResponse represents the ingested event count response
type IngestStatsResponse struct {
	SourceID   string             `json:"source_id" example:"web-github"`
	From       int64              `json:"from" example:"1723475612"`
	To         int64              `json:"to" example:"1723562012"`
	TotalCount uint64             `json:"total_count" example:"5000"`
	GroupBy    string             `json:"group_by,omitempty" example:"kind"`
	Groups     []IngestStatsGroup `json:"groups,omitempty"`
}

// DashboardResponse is the serialized AggregationResult. Series-capable
// metrics carry the daily series under the metric name and the scalar under
// <name>_summary; lead time and MTTR carry only the summary.
type DashboardResponse struct {
	DeploymentFrequency        []domain.SeriesPoint `json:"deployment_frequency"`
	DeploymentFrequencySummary domain.MetricSummary `json:"deployment_frequency_summary"`
	LeadTime                   domain.MetricSummary `json:"lead_time"`
	ChangeFailureRate          []domain.SeriesPoint `json:"change_failure_rate"`
	ChangeFailureRateSummary   domain.MetricSummary `json:"change_failure_rate_summary"`
	MeanTimeToRecovery         domain.MetricSummary `json:"mean_time_to_recovery"`
	SourceID                   string               `json:"source_id"`
	WindowDays                 int                  `json:"window_days"`
	DataUnavailable            bool                 `json:"data_unavailable"`
	Degraded                   bool                 `json:"degraded"`
	Strategy                   string               `json:"strategy,omitempty"`
	DroppedEvents              map[string]int       `json:"dropped_events"`
}

// NewDashboardResponse converts an AggregationResult into its JSON shape
func NewDashboardResponse(result *domain.AggregationResult) *DashboardResponse {
	dropped := make(map[string]int, len(result.Dropped))
	for kind, n := range result.Dropped {
		dropped[string(kind)] = n
	}

	return &DashboardResponse{
		DeploymentFrequency:        seriesOrEmpty(result.DeploymentFrequency.Series),
		DeploymentFrequencySummary: finiteSummary(result.DeploymentFrequency.Summary),
		LeadTime:                   finiteSummary(result.LeadTime.Summary),
		ChangeFailureRate:          seriesOrEmpty(result.ChangeFailureRate.Series),
		ChangeFailureRateSummary:   finiteSummary(result.ChangeFailureRate.Summary),
		MeanTimeToRecovery:         finiteSummary(result.MeanTimeToRecovery.Summary),
		SourceID:                   result.SourceID,
		WindowDays:                 result.WindowDays,
		DataUnavailable:            result.DataUnavailable,
		Degraded:                   result.Degraded,
		Strategy:                   result.Strategy,
		DroppedEvents:              dropped,
	}
}

// MetricResponse is a single metric in {value, unit, timestamp, series?} form
type MetricResponse struct {
	Metric          string               `json:"metric" example:"deployment_frequency"`
	SourceID        string               `json:"source_id" example:"web-github"`
	WindowDays      int                  `json:"window_days" example:"30"`
	Value           float64              `json:"value" example:"0.43"`
	Unit            string               `json:"unit" example:"deployments per day"`
	Timestamp       time.Time            `json:"timestamp"`
	Series          []domain.SeriesPoint `json:"series,omitempty"`
	DataUnavailable bool                 `json:"data_unavailable"`
	Degraded        bool                 `json:"degraded"`
}

// NewMetricResponse extracts one named metric from an AggregationResult
func NewMetricResponse(result *domain.AggregationResult, metric string) (*MetricResponse, bool) {
	m, ok := result.Metric(metric)
	if !ok {
		return nil, false
	}
	summary := finiteSummary(m.Summary)
	return &MetricResponse{
		Metric:          metric,
		SourceID:        result.SourceID,
		WindowDays:      result.WindowDays,
		Value:           summary.Value,
		Unit:            summary.Unit,
		Timestamp:       summary.Timestamp,
		Series:          m.Series,
		DataUnavailable: result.DataUnavailable,
		Degraded:        result.Degraded,
	}, true
}

// SourcesResponse lists configured data sources without credentials
type SourcesResponse struct {
	Sources []domain.DataSourceDescriptor `json:"sources"`
}

// ConnectionTestResponse reports the outcome of a source connectivity check
type ConnectionTestResponse struct {
	SourceID  string `json:"source_id" example:"web-github"`
	Connected bool   `json:"connected" example:"true"`
	Message   string `json:"message,omitempty" example:"github authentication failed"`
}

func seriesOrEmpty(points []domain.SeriesPoint) []domain.SeriesPoint {
	if points == nil {
		return []domain.SeriesPoint{}
	}
	return points
}

func finiteSummary(s domain.MetricSummary) domain.MetricSummary {
	s.Value = domain.Finite(s.Value)
	return s
}
