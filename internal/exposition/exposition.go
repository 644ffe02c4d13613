// Package exposition renders cached AggregationResults as Prometheus gauges
// in the text exposition format.
package exposition

import (
	"fmt"
	"io"
	"sort"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

const namespace = "dora"

// Format is the negotiated exposition format
var Format = expfmt.NewFormat(expfmt.TypeTextPlain)

// ContentType is the HTTP Content-Type of the exposition
var ContentType = string(Format)

type gauge struct {
	name  string
	help  string
	value func(r *domain.AggregationResult) float64
}

var gauges = []gauge{
	{
		name:  "deployment_frequency",
		help:  "Deployments per day over the window.",
		value: func(r *domain.AggregationResult) float64 { return r.DeploymentFrequency.Summary.Value },
	},
	{
		name:  "lead_time_hours",
		help:  "Mean lead time for changes in hours.",
		value: func(r *domain.AggregationResult) float64 { return r.LeadTime.Summary.Value },
	},
	{
		name:  "change_failure_rate_percent",
		help:  "Share of failed deployments or changes in percent.",
		value: func(r *domain.AggregationResult) float64 { return r.ChangeFailureRate.Summary.Value },
	},
	{
		name:  "mean_time_to_recovery_hours",
		help:  "Mean time to recover from incidents in hours.",
		value: func(r *domain.AggregationResult) float64 { return r.MeanTimeToRecovery.Summary.Value },
	},
	{
		name:  "window_days",
		help:  "Length of the aggregation window in days.",
		value: func(r *domain.AggregationResult) float64 { return float64(r.WindowDays) },
	},
	{
		name:  "degraded",
		help:  "1 when the result came from a fallback strategy or defaults.",
		value: func(r *domain.AggregationResult) float64 { return boolValue(r.Degraded) },
	},
	{
		name:  "data_unavailable",
		help:  "1 when no data source could be used.",
		value: func(r *domain.AggregationResult) float64 { return boolValue(r.DataUnavailable) },
	},
	{
		name:  "computed_timestamp_seconds",
		help:  "Unix time the result was computed.",
		value: func(r *domain.AggregationResult) float64 {
			return float64(r.DeploymentFrequency.Summary.Timestamp.Unix())
		},
	},
}

// Families builds one gauge family per metric with a sample per source.
// Results are ordered by source ID so the output is stable.
func Families(results []*domain.AggregationResult) []*dto.MetricFamily {
	sorted := make([]*domain.AggregationResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			sorted = append(sorted, r)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SourceID < sorted[j].SourceID })

	families := make([]*dto.MetricFamily, 0, len(gauges)+1)
	for _, g := range gauges {
		family := newFamily(g.name, g.help)
		for _, r := range sorted {
			family.Metric = append(family.Metric, sample(domain.Finite(g.value(r)), label("source_id", r.SourceID)))
		}
		families = append(families, family)
	}

	dropped := newFamily("dropped_events", "Records dropped during normalization in the last run.")
	for _, r := range sorted {
		for _, kind := range domain.EventKinds {
			dropped.Metric = append(dropped.Metric, sample(float64(r.Dropped[kind]),
				label("source_id", r.SourceID), label("kind", string(kind))))
		}
	}
	families = append(families, dropped)

	return families
}

// Write encodes the families for results to w
func Write(w io.Writer, results []*domain.AggregationResult) error {
	enc := expfmt.NewEncoder(w, Format)
	for _, family := range Families(results) {
		if len(family.GetMetric()) == 0 {
			continue
		}
		if err := enc.Encode(family); err != nil {
			return fmt.Errorf("failed to encode %s: %w", family.GetName(), err)
		}
	}
	return nil
}

func newFamily(name, help string) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name: proto.String(namespace + "_" + name),
		Help: proto.String(help),
		Type: dto.MetricType_GAUGE.Enum(),
	}
}

func sample(value float64, labels ...*dto.LabelPair) *dto.Metric {
	return &dto.Metric{
		Label: labels,
		Gauge: &dto.Gauge{Value: proto.Float64(value)},
	}
}

func label(name, value string) *dto.LabelPair {
	return &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
