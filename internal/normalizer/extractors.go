package normalizer

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
)

// timeLayouts are tried in order for string timestamps
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000-0700", // Jira
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	domain.DateLayout,
}

// timeField is a named timestamp extractor
type timeField struct {
	name  string
	parse func(v interface{}) (time.Time, bool)
}

func isoField(name string) timeField {
	return timeField{name: name, parse: parseTimeString}
}

func millisField(name string) timeField {
	return timeField{name: name, parse: parseEpochMillis}
}

// extractorSet holds the ordered timestamp extractors for one event kind
type extractorSet struct {
	occurred []timeField
	resolved []timeField
}

var scmExtractors = map[domain.EventKind]extractorSet{
	domain.DeploymentEvent: {
		occurred: []timeField{
			isoField("deploy_time"),
			isoField("run_started_at"),
			isoField("created_at"),
			isoField("created"),
			millisField("timestamp"),
		},
	},
	domain.ChangeEvent: {
		occurred: []timeField{isoField("created_at"), isoField("created")},
		resolved: []timeField{isoField("merged_at"), isoField("closed_at")},
	},
	domain.IncidentEvent: {
		occurred: []timeField{isoField("created_at"), isoField("created")},
		resolved: []timeField{isoField("closed_at")},
	},
}

var itsmExtractors = map[domain.EventKind]extractorSet{
	domain.DeploymentEvent: {
		occurred: []timeField{
			isoField("deploy_time"),
			isoField("fields.created"),
			isoField("created_at"),
			isoField("created"),
		},
	},
	domain.ChangeEvent: {
		occurred: []timeField{isoField("fields.created"), isoField("created_at"), isoField("created")},
		resolved: []timeField{isoField("fields.resolutiondate"), isoField("resolved_at"), isoField("resolutiondate")},
	},
	domain.IncidentEvent: {
		occurred: []timeField{
			millisField("startTime"),
			isoField("started_at"),
			isoField("fields.created"),
			isoField("created_at"),
			isoField("created"),
		},
		resolved: []timeField{
			millisField("endTime"),
			isoField("resolved_at"),
			isoField("fields.resolutiondate"),
			isoField("resolutiondate"),
		},
	},
}

// extractorsFor dispatches on the source type
func extractorsFor(sourceType domain.SourceType, kind domain.EventKind) (extractorSet, bool) {
	var table map[domain.EventKind]extractorSet
	switch sourceType {
	case domain.SourceTypeSCM:
		table = scmExtractors
	case domain.SourceTypeITSM:
		table = itsmExtractors
	default:
		return extractorSet{}, false
	}
	set, ok := table[kind]
	return set, ok
}

var (
	outcomeFields = []string{"conclusion", "state", "status", "result", "fields.status.name"}
	idFields      = []string{"id", "key", "problemId", "number", "iid"}
	refFields     = []string{"sha", "head_sha", "commit_sha"}
)

// firstTime returns the first parseable, non-null timestamp
func firstTime(raw domain.RawEvent, fields []timeField) (time.Time, bool) {
	for _, f := range fields {
		v, ok := lookup(raw, f.name)
		if !ok {
			continue
		}
		if t, ok := f.parse(v); ok {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// firstString returns the first non-empty scalar value, stringified
func firstString(raw domain.RawEvent, fields []string) string {
	for _, name := range fields {
		v, ok := lookup(raw, name)
		if !ok {
			continue
		}
		if s := stringify(v); s != "" {
			return s
		}
	}
	return ""
}

// lookup resolves a dotted field name through nested objects
func lookup(raw domain.RawEvent, name string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(raw)
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func parseTimeString(v interface{}) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseEpochMillis reads epoch milliseconds; non-positive values such as
// Dynatrace's -1 for open problems are treated as absent.
func parseEpochMillis(v interface{}) (time.Time, bool) {
	ms, ok := toInt64(v)
	if !ok || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case json.Number:
		return s.String()
	}
	return ""
}
