package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/BarkinBalci/dora-metrics-service/internal/cache"
	"github.com/BarkinBalci/dora-metrics-service/internal/domain"
	"github.com/BarkinBalci/dora-metrics-service/internal/dto"
	"github.com/BarkinBalci/dora-metrics-service/internal/exposition"
	"github.com/BarkinBalci/dora-metrics-service/internal/service"
	"github.com/BarkinBalci/dora-metrics-service/internal/source"
)

type Handler struct {
	eventService   service.EventServicer
	metricsService service.MetricsServicer
	defaultWindow  int
	router         *gin.Engine
	log            *zap.Logger
}

func NewHandler(eventService service.EventServicer, metricsService service.MetricsServicer, defaultWindow int, log *zap.Logger) *Handler {
	h := &Handler{
		eventService:   eventService,
		metricsService: metricsService,
		defaultWindow:  defaultWindow,
		router:         gin.Default(),
		log:            log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)

	h.router.GET("/sources", h.listSources)
	h.router.GET("/sources/:id/test", h.testConnection)

	metrics := h.router.Group("/metrics")
	metrics.GET("/dashboard", h.getDashboard)
	metrics.GET("/latest", h.getLatest)
	metrics.GET("/prometheus", h.getPrometheus)
	metrics.GET("/:metric", h.getMetric)

	h.router.POST("/events", h.publishEvent)
	h.router.POST("/events/bulk", h.publishEventsBulk)
	h.router.GET("/events/stats", h.getIngestStats)
}

// healthCheck handles GET /health
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// listSources handles GET /sources
func (h *Handler) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, dto.SourcesResponse{Sources: h.metricsService.Sources()})
}

// testConnection handles GET /sources/:id/test. An unreachable vendor is
// reported in the body, not as an HTTP error.
func (h *Handler) testConnection(c *gin.Context) {
	sourceID := c.Param("id")

	err := h.metricsService.TestConnection(c.Request.Context(), sourceID)
	if errors.Is(err, source.ErrSourceNotFound) {
		h.respondError(c, err)
		return
	}

	response := dto.ConnectionTestResponse{SourceID: sourceID, Connected: err == nil}
	if err != nil {
		response.Message = err.Error()
	}
	c.JSON(http.StatusOK, response)
}

// getDashboard handles GET /metrics/dashboard
func (h *Handler) getDashboard(c *gin.Context) {
	req, ok := h.bindMetricsRequest(c)
	if !ok {
		return
	}

	windowDays := h.windowDays(req)
	if err := service.ValidateWindow(windowDays); err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.metricsService.Dashboard(c.Request.Context(), req.SourceID, windowDays)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Debug("Dashboard computed",
		zap.String("source_id", result.SourceID),
		zap.Int("window_days", result.WindowDays),
		zap.Bool("degraded", result.Degraded))

	c.JSON(http.StatusOK, dto.NewDashboardResponse(result))
}

// getMetric handles GET /metrics/:metric for a single DORA metric
func (h *Handler) getMetric(c *gin.Context) {
	metric, err := service.ParseMetricName(c.Param("metric"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	req, ok := h.bindMetricsRequest(c)
	if !ok {
		return
	}

	windowDays := h.windowDays(req)
	if err := service.ValidateWindow(windowDays); err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.metricsService.Dashboard(c.Request.Context(), req.SourceID, windowDays)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.writeMetric(c, result, metric)
}

func (h *Handler) writeMetric(c *gin.Context, result *domain.AggregationResult, metric string) {
	response, ok := dto.NewMetricResponse(result, metric)
	if !ok {
		h.respondError(c, fmt.Errorf("metric %q missing from aggregation result", metric))
		return
	}
	c.JSON(http.StatusOK, response)
}

// getLatest handles GET /metrics/latest. Without source_id every cached
// result is returned.
func (h *Handler) getLatest(c *gin.Context) {
	var req dto.LatestRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid latest request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}
	sourceID := req.SourceID

	if sourceID == "" {
		results, err := h.metricsService.LatestAll(c.Request.Context())
		if err != nil {
			h.respondError(c, err)
			return
		}
		responses := make([]*dto.DashboardResponse, 0, len(results))
		for _, result := range results {
			responses = append(responses, dto.NewDashboardResponse(result))
		}
		c.JSON(http.StatusOK, responses)
		return
	}

	result, err := h.metricsService.Latest(c.Request.Context(), sourceID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewDashboardResponse(result))
}

// getPrometheus handles GET /metrics/prometheus
func (h *Handler) getPrometheus(c *gin.Context) {
	results, err := h.metricsService.LatestAll(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := exposition.Write(&buf, results); err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, exposition.ContentType, buf.Bytes())
}

// publishEvent handles POST /events
func (h *Handler) publishEvent(c *gin.Context) {
	var req dto.PublishEventRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn("Invalid event request",
			zap.Error(err),
			zap.String("source_id", req.SourceID))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	eventID, err := h.eventService.ProcessEvent(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("Failed to process event",
			zap.Error(err),
			zap.String("source_id", req.SourceID),
			zap.String("kind", req.Kind))
		h.respondError(c, err)
		return
	}

	h.log.Info("Event accepted",
		zap.String("event_id", eventID),
		zap.String("source_id", req.SourceID),
		zap.String("kind", req.Kind))

	c.JSON(http.StatusAccepted, dto.PublishEventResponse{
		EventID: eventID,
		Status:  "accepted",
	})
}

// publishEventsBulk handles POST /events/bulk
func (h *Handler) publishEventsBulk(c *gin.Context) {
	var bulkRequest dto.PublishEventsBulkRequest

	if err := c.ShouldBindJSON(&bulkRequest); err != nil {
		h.log.Warn("Invalid bulk event request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	eventIDs, errs, err := h.eventService.ProcessBulkEvents(c.Request.Context(), bulkRequest.Events)
	if err != nil {
		h.log.Error("Failed to process bulk events",
			zap.Error(err),
			zap.Int("event_count", len(bulkRequest.Events)))
		h.respondError(c, err)
		return
	}

	h.log.Info("Bulk events processed",
		zap.Int("accepted", len(eventIDs)),
		zap.Int("rejected", len(errs)),
		zap.Int("total", len(bulkRequest.Events)))

	c.JSON(http.StatusAccepted, dto.PublishBulkEventsResponse{
		Accepted: len(eventIDs),
		Rejected: len(errs),
		EventIDs: eventIDs,
		Errors:   errs,
	})
}

// getIngestStats handles GET /events/stats
func (h *Handler) getIngestStats(c *gin.Context) {
	var req dto.IngestStatsRequest

	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid ingest stats request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	response, err := h.eventService.GetIngestStats(c.Request.Context(), &req)
	if err != nil {
		h.log.Error("Failed to get ingest stats",
			zap.Error(err),
			zap.String("source_id", req.SourceID),
			zap.Int64("from", req.From),
			zap.Int64("to", req.To))
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) bindMetricsRequest(c *gin.Context) (*dto.MetricsRequest, bool) {
	var req dto.MetricsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.log.Warn("Invalid metrics request", zap.Error(err))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return nil, false
	}
	return &req, true
}

func (h *Handler) windowDays(req *dto.MetricsRequest) int {
	if req.WindowDays == nil {
		return h.defaultWindow
	}
	return *req.WindowDays
}

// respondError maps service errors onto HTTP status codes
func (h *Handler) respondError(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "internal_error"

	switch {
	case errors.Is(err, service.ErrInvalidWindow):
		status, code = http.StatusBadRequest, "invalid_window"
	case errors.Is(err, service.ErrSourceRequired),
		errors.Is(err, service.ErrUnknownMetric),
		errors.Is(err, service.ErrInvalidEvent):
		status, code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, source.ErrSourceNotFound):
		status, code = http.StatusNotFound, "source_not_found"
	case errors.Is(err, cache.ErrNotCached):
		status, code = http.StatusNotFound, "not_cached"
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, dto.ErrorResponse{
		Error:   code,
		Message: err.Error(),
	})
}
