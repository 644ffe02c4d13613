package domain

import "time"

// EventKind identifies which DORA input stream an event belongs to
type EventKind string

const (
	DeploymentEvent EventKind = "deployment"
	ChangeEvent     EventKind = "change"
	IncidentEvent   EventKind = "incident"
)

// EventKinds lists every kind in a fixed order
var EventKinds = []EventKind{DeploymentEvent, ChangeEvent, IncidentEvent}

// Valid reports whether k is a known event kind
func (k EventKind) Valid() bool {
	switch k {
	case DeploymentEvent, ChangeEvent, IncidentEvent:
		return true
	}
	return false
}

// Outcome is the normalized result of a deployment, change or incident
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeUnknown Outcome = "unknown"
)

// RawEvent is a vendor record decoded from the vendor's JSON payload
type RawEvent map[string]interface{}

// RawEvents holds raw records partitioned by kind
type RawEvents struct {
	Deployments []RawEvent
	Changes     []RawEvent
	Incidents   []RawEvent
}

// ByKind returns the raw records for the given kind
func (r *RawEvents) ByKind(kind EventKind) []RawEvent {
	if r == nil {
		return nil
	}
	switch kind {
	case DeploymentEvent:
		return r.Deployments
	case ChangeEvent:
		return r.Changes
	case IncidentEvent:
		return r.Incidents
	}
	return nil
}

// Append adds a raw record to the partition for kind
func (r *RawEvents) Append(kind EventKind, raw RawEvent) {
	switch kind {
	case DeploymentEvent:
		r.Deployments = append(r.Deployments, raw)
	case ChangeEvent:
		r.Changes = append(r.Changes, raw)
	case IncidentEvent:
		r.Incidents = append(r.Incidents, raw)
	}
}

// Len returns the total number of raw records
func (r *RawEvents) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Deployments) + len(r.Changes) + len(r.Incidents)
}

// NormalizedEvent is the vendor-agnostic form of a raw record
type NormalizedEvent struct {
	ID         string
	Kind       EventKind
	OccurredAt time.Time
	ResolvedAt *time.Time
	Outcome    Outcome
	// Ref is an optional correlation key such as a commit SHA
	Ref string
}

// Duration returns the resolution duration and whether it can be used
// for an average: the event must be resolved and the duration non-negative.
func (e NormalizedEvent) Duration() (time.Duration, bool) {
	if e.ResolvedAt == nil {
		return 0, false
	}
	d := e.ResolvedAt.Sub(e.OccurredAt)
	if d < 0 {
		return 0, false
	}
	return d, true
}

// StoredEvent represents a raw webhook event stored in ClickHouse
type StoredEvent struct {
	EventID    string    `ch:"event_id"`
	SourceID   string    `ch:"source_id"`
	Kind       string    `ch:"kind"`
	Payload    string    `ch:"payload"`
	ReceivedAt time.Time `ch:"received_at"`
	Version    uint64    `ch:"version"`
}
