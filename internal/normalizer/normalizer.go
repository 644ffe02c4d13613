// Package normalizer converts vendor records into domain.NormalizedEvent values.
//
// Timestamps are read through ordered extractor lists keyed by source type and
// event kind; the first parseable value wins. Records without any parseable
// occurrence timestamp are dropped and counted, never defaulted.
package normalizer

import (
	"strings"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// Events holds normalized events partitioned by kind
type Events struct {
	Deployments []domain.NormalizedEvent
	Changes     []domain.NormalizedEvent
	Incidents   []domain.NormalizedEvent
}

// Stats counts records dropped during normalization, per kind
type Stats struct {
	Dropped map[domain.EventKind]int
}

// Total returns the number of dropped records across kinds
func (s Stats) Total() int {
	total := 0
	for _, n := range s.Dropped {
		total += n
	}
	return total
}

// Normalize converts one raw record. The boolean is false when the record
// has no parseable occurrence timestamp and must be dropped.
func Normalize(raw domain.RawEvent, kind domain.EventKind, sourceType domain.SourceType) (domain.NormalizedEvent, bool) {
	set, ok := extractorsFor(sourceType, kind)
	if !ok || raw == nil {
		return domain.NormalizedEvent{}, false
	}

	occurredAt, ok := firstTime(raw, set.occurred)
	if !ok {
		return domain.NormalizedEvent{}, false
	}

	event := domain.NormalizedEvent{
		ID:         RecordID(raw),
		Kind:       kind,
		OccurredAt: occurredAt,
		Outcome:    ParseOutcome(firstString(raw, outcomeFields)),
		Ref:        firstString(raw, refFields),
	}

	if resolvedAt, ok := firstTime(raw, set.resolved); ok {
		event.ResolvedAt = &resolvedAt
	}

	return event, true
}

// NormalizeAll converts a slice of raw records of one kind, returning the
// kept events and the number dropped
func NormalizeAll(raws []domain.RawEvent, kind domain.EventKind, sourceType domain.SourceType) ([]domain.NormalizedEvent, int) {
	events := make([]domain.NormalizedEvent, 0, len(raws))
	dropped := 0
	for _, raw := range raws {
		event, ok := Normalize(raw, kind, sourceType)
		if !ok {
			dropped++
			continue
		}
		events = append(events, event)
	}
	return events, dropped
}

// NormalizeEvents converts every partition of raw records
func NormalizeEvents(raw *domain.RawEvents, sourceType domain.SourceType) (*Events, Stats) {
	stats := Stats{Dropped: make(map[domain.EventKind]int, len(domain.EventKinds))}
	out := &Events{}

	var dropped int
	out.Deployments, dropped = NormalizeAll(raw.ByKind(domain.DeploymentEvent), domain.DeploymentEvent, sourceType)
	stats.Dropped[domain.DeploymentEvent] = dropped
	out.Changes, dropped = NormalizeAll(raw.ByKind(domain.ChangeEvent), domain.ChangeEvent, sourceType)
	stats.Dropped[domain.ChangeEvent] = dropped
	out.Incidents, dropped = NormalizeAll(raw.ByKind(domain.IncidentEvent), domain.IncidentEvent, sourceType)
	stats.Dropped[domain.IncidentEvent] = dropped

	return out, stats
}

// RecordID returns the vendor identifier of a raw record, or "" if it has none
func RecordID(raw domain.RawEvent) string {
	return firstString(raw, idFields)
}

// ParseOutcome maps a vendor conclusion/state/result string to an Outcome
func ParseOutcome(s string) domain.Outcome {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return domain.OutcomeUnknown
	case strings.Contains(s, "fail"):
		return domain.OutcomeFailure
	case s == "success" || s == "successful":
		return domain.OutcomeSuccess
	}
	return domain.OutcomeUnknown
}
