package dto

import "encoding/json"

// PublishEventRequest represents one raw webhook event pushed by a vendor
type PublishEventRequest struct {
	SourceID string          `json:"source_id" binding:"required" example:"web-github"`
	Kind     string          `json:"kind" binding:"required,oneof=deployment change incident" example:"deployment"`
	Payload  json.RawMessage `json:"payload" binding:"required"`
}

// PublishEventsBulkRequest represents a publish bulk event request
type PublishEventsBulkRequest struct {
	Events []PublishEventRequest `json:"events" binding:"required,min=1,max=1000,dive"`
}

// MetricsRequest selects the source and window of a metrics query. A nil
// WindowDays means the configured default.
type MetricsRequest struct {
	SourceID   string `form:"source_id" example:"web-github"`
	WindowDays *int   `form:"window_days" example:"30"`
}

// LatestRequest selects the source of a cached result. An empty SourceID
// selects every cached result.
type LatestRequest struct {
	SourceID string `form:"source_id" example:"web-github"`
}

// IngestStatsRequest represents an ingested event count query
type IngestStatsRequest struct {
	SourceID string `form:"source_id" binding:"required" example:"web-github"`
	From     int64  `form:"from" binding:"required" example:"1723475612"`
	To       int64  `form:"to" binding:"required" example:"1723562012"`
	GroupBy  string `form:"group_by" example:"kind"`
}
