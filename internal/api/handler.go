// Package api is the HTTP surface: disaster listings, ingestion
// controls, the NLP and chatbot endpoints, allocation, anomalies and
// situation reports, plus the live event stream.
package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/reliefgrid/reliefgrid/internal/allocate"
	"github.com/reliefgrid/reliefgrid/internal/chatbot"
	"github.com/reliefgrid/reliefgrid/internal/ingest"
	"github.com/reliefgrid/reliefgrid/internal/models"
	"github.com/reliefgrid/reliefgrid/internal/nlp"
	"github.com/reliefgrid/reliefgrid/internal/sitrep"
	"github.com/reliefgrid/reliefgrid/internal/store"
	"github.com/reliefgrid/reliefgrid/internal/stream"
)

type Handler struct {
	store        store.Store
	orchestrator *ingest.Orchestrator
	broadcaster  *stream.Broadcaster
	chatbot      *chatbot.Engine
	sitrep       *sitrep.Generator
}

func NewHandler(st store.Store, orchestrator *ingest.Orchestrator, broadcaster *stream.Broadcaster, bot *chatbot.Engine, reports *sitrep.Generator) *Handler {
	return &Handler{
		store:        st,
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		chatbot:      bot,
		sitrep:       reports,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/api/disasters", h.getDisasters)

	r.POST("/api/ingestion/start", h.startIngestion)
	r.POST("/api/ingestion/stop", h.stopIngestion)
	r.POST("/api/ingestion/poll/:source", h.pollSource)
	r.GET("/api/ingestion/status", h.ingestionStatus)
	r.GET("/api/ingestion/stream", h.streamEvents)

	r.POST("/api/nlp/classify", h.classify)

	r.POST("/api/chatbot/message", h.chatbotMessage)
	r.GET("/api/chatbot/session/:id", h.getSession)
	r.DELETE("/api/chatbot/session/:id", h.deleteSession)

	r.POST("/api/requests", h.createRequest)
	r.GET("/api/requests", h.listRequests)
	r.POST("/api/requests/:id/cancel", h.cancelRequest)

	r.POST("/api/allocation/solve", h.solveAllocation)

	r.GET("/api/anomalies", h.listAnomalies)
	r.POST("/api/anomalies/:id/acknowledge", h.acknowledgeAnomaly)
	r.POST("/api/anomalies/:id/resolve", h.resolveAnomaly)

	r.POST("/api/sitrep/generate", h.generateSitrep)
	r.GET("/api/sitrep/latest", h.latestSitrep)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"ingestion_running": h.orchestrator.Running(),
	})
}

func (h *Handler) getDisasters(c *gin.Context) {
	filter := store.DisasterFilter{
		Limit: 20, // Default to 20 disasters if limit param not supplied
	}

	if t := c.Query("type"); t != "" {
		dt := models.DisasterType(t)
		filter.Type = &dt
	}
	if s := c.Query("status"); s != "" {
		status := models.DisasterStatus(s)
		filter.Status = &status
	}
	if s := c.Query("since"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			filter.Since = &t
		}
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	disasters, err := h.store.ListDisasters(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch disasters"})
		return
	}
	if sev := c.Query("severity"); sev != "" {
		want := models.Severity(sev)
		filtered := disasters[:0]
		for _, d := range disasters {
			if d.Severity == want {
				filtered = append(filtered, d)
			}
		}
		disasters = filtered
	}

	locations, err := h.store.ListLocations(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch locations"})
		return
	}
	locByID := make(map[string]models.Location, len(locations))
	for _, loc := range locations {
		locByID[loc.ID] = loc
	}

	c.Header("Content-Type", "application/geo+json")
	c.JSON(http.StatusOK, toGeoJSON(disasters, locByID))
}

func (h *Handler) startIngestion(c *gin.Context) {
	// Pollers outlive the request, so they run on the background context.
	h.orchestrator.Start(context.Background())
	c.JSON(http.StatusOK, gin.H{"message": "ingestion started"})
}

func (h *Handler) stopIngestion(c *gin.Context) {
	h.orchestrator.Stop()
	c.JSON(http.StatusOK, gin.H{"message": "ingestion stopped"})
}

func (h *Handler) pollSource(c *gin.Context) {
	stats, err := h.orchestrator.PollSource(c.Request.Context(), c.Param("source"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ingestionStatus(c *gin.Context) {
	status, err := h.orchestrator.Status(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch status"})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) streamEvents(c *gin.Context) {
	id, ch := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(id)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("event", eventJSON(ev))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func eventJSON(ev models.IngestedEvent) gin.H {
	return gin.H{
		"id":            ev.ID,
		"external_id":   ev.ExternalID,
		"event_type":    ev.EventType,
		"title":         ev.Title,
		"severity":      ev.Severity,
		"latitude":      ev.Latitude,
		"longitude":     ev.Longitude,
		"location_name": ev.LocationName,
		"ingested_at":   ev.IngestedAt,
	}
}

type classifyRequest struct {
	Description string `json:"description" binding:"required"`
	Priority    string `json:"priority"`
}

func (h *Handler) classify(c *gin.Context) {
	var req classifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description is required"})
		return
	}
	if req.Priority == "" {
		req.Priority = "medium"
	}
	c.JSON(http.StatusOK, nlp.ClassifyRequest(req.Description, req.Priority))
}

type chatbotRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

func (h *Handler) chatbotMessage(c *gin.Context) {
	var req chatbotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	c.JSON(http.StatusOK, h.chatbot.ProcessMessage(req.SessionID, req.Message))
}

func (h *Handler) getSession(c *gin.Context) {
	session, ok := h.chatbot.Store().Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":     session.ID,
		"state":          session.State,
		"messages":       session.Messages,
		"extracted_data": session.Extracted,
		"created_at":     session.CreatedAt,
		"updated_at":     session.UpdatedAt,
	})
}

func (h *Handler) deleteSession(c *gin.Context) {
	if !h.chatbot.Store().Delete(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

type createRequestBody struct {
	VictimID    string   `json:"victim_id" binding:"required"`
	Description string   `json:"description" binding:"required"`
	Priority    string   `json:"priority"`
	Items       []string `json:"items"`
	Quantity    int      `json:"quantity"`
}

// createRequest persists a victim request with the triage result
// attached. The classifier always yields a result, so every stored
// request carries a priority, resource type and confidence.
func (h *Handler) createRequest(c *gin.Context) {
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "victim_id and description are required"})
		return
	}
	if body.Priority == "" {
		body.Priority = "medium"
	}

	cls := nlp.ClassifyRequest(body.Description, body.Priority)

	resourceType := ""
	if len(cls.ResourceTypes) > 0 {
		resourceType = cls.ResourceTypes[0]
	}
	quantity := body.Quantity
	if quantity <= 0 {
		quantity = cls.EstimatedQuantity
	}
	if quantity <= 0 {
		quantity = 1
	}
	signals := make([]string, 0, len(cls.UrgencySignals))
	for _, s := range cls.UrgencySignals {
		signals = append(signals, s.Label)
	}

	now := time.Now().UTC()
	req := models.ResourceRequest{
		ID:           uuid.NewString(),
		VictimID:     body.VictimID,
		Description:  body.Description,
		Items:        body.Items,
		ResourceType: resourceType,
		Quantity:     quantity,
		Priority:     models.Severity(cls.RecommendedPriority),
		Status:       models.RequestPending,
		NLPClassification: map[string]any{
			"resource_types":         cls.ResourceTypes,
			"recommended_priority":   cls.RecommendedPriority,
			"original_priority":      cls.OriginalPriority,
			"priority_was_escalated": cls.PriorityWasEscalated,
			"estimated_quantity":     cls.EstimatedQuantity,
		},
		UrgencySignals: signals,
		AIConfidence:   cls.Confidence,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := h.store.InsertRequest(c.Request.Context(), &req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store request"})
		return
	}
	c.JSON(http.StatusCreated, requestJSON(req))
}

func (h *Handler) listRequests(c *gin.Context) {
	filter := store.RequestFilter{Limit: 50}
	if v := c.Query("victim_id"); v != "" {
		filter.VictimID = &v
	}
	if s := c.Query("status"); s != "" {
		status := models.RequestStatus(s)
		filter.Status = &status
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	requests, err := h.store.ListRequests(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch requests"})
		return
	}
	out := make([]gin.H, 0, len(requests))
	for _, r := range requests {
		out = append(out, requestJSON(r))
	}
	c.JSON(http.StatusOK, gin.H{"requests": out})
}

// cancelRequest rejects a pending request. Requests already in the
// fulfilment pipeline cannot be cancelled.
func (h *Handler) cancelRequest(c *gin.Context) {
	req, err := h.store.GetRequest(c.Request.Context(), c.Param("id"))
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch request"})
		return
	}
	if req.Status != models.RequestPending {
		c.JSON(http.StatusConflict, gin.H{"error": "only pending requests can be cancelled"})
		return
	}

	req.Status = models.RequestRejected
	req.UpdatedAt = time.Now().UTC()
	if err := h.store.UpdateRequest(c.Request.Context(), req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel request"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": req.ID, "status": req.Status})
}

func requestJSON(r models.ResourceRequest) gin.H {
	return gin.H{
		"id":                 r.ID,
		"victim_id":          r.VictimID,
		"description":        r.Description,
		"items":              r.Items,
		"resource_type":      r.ResourceType,
		"quantity":           r.Quantity,
		"priority":           r.Priority,
		"status":             r.Status,
		"nlp_classification": r.NLPClassification,
		"urgency_signals":    r.UrgencySignals,
		"ai_confidence":      r.AIConfidence,
		"created_at":         r.CreatedAt,
		"updated_at":         r.UpdatedAt,
	}
}

type solveRequest struct {
	Needs         []models.ResourceNeed     `json:"needs" binding:"required"`
	Weights       *allocate.PriorityWeights `json:"weights"`
	MaxDistanceKm float64                   `json:"max_distance_km"`
	DisasterID    string                    `json:"disaster_id"`
	Commit        bool                      `json:"commit"`
}

func (h *Handler) solveAllocation(c *gin.Context) {
	var req solveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "needs are required"})
		return
	}

	resources, err := h.store.ListAvailableResources(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch resources"})
		return
	}

	weights := allocate.DefaultWeights()
	if req.Weights != nil {
		weights = *req.Weights
	}
	result := allocate.Solve(resources, req.Needs, weights, req.MaxDistanceKm)

	// A commit marks the planned resources allocated to the disaster.
	if req.Commit && req.DisasterID != "" && len(result.Allocations) > 0 {
		ids := make([]string, 0, len(result.Allocations))
		for _, a := range result.Allocations {
			ids = append(ids, a.ResourceID)
		}
		if _, err := h.store.MarkResourcesAllocated(c.Request.Context(), ids, req.DisasterID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to commit allocations"})
			return
		}
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) listAnomalies(c *gin.Context) {
	filter := store.AnomalyFilter{Limit: 50}
	if s := c.Query("status"); s != "" {
		status := models.AnomalyStatus(s)
		filter.Status = &status
	}
	if t := c.Query("type"); t != "" {
		at := models.AnomalyType(t)
		filter.Type = &at
	}
	if l := c.Query("limit"); l != "" {
		if lim, err := strconv.Atoi(l); err == nil && lim > 0 && lim <= 500 {
			filter.Limit = lim
		}
	}

	anomalies, err := h.store.ListAnomalies(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch anomalies"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"anomalies": anomalyJSONList(anomalies)})
}

type ackRequest struct {
	AcknowledgedBy string `json:"acknowledged_by"`
}

type resolveRequest struct {
	Status         string `json:"status"`
	AcknowledgedBy string `json:"acknowledged_by"`
}

func (h *Handler) acknowledgeAnomaly(c *gin.Context) {
	var req ackRequest
	_ = c.ShouldBindJSON(&req)
	h.updateAnomaly(c, models.AnomalyAcked, req.AcknowledgedBy)
}

// resolveAnomaly closes an anomaly as resolved, or as false_positive
// when the caller flags it as noise.
func (h *Handler) resolveAnomaly(c *gin.Context) {
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)

	status := models.AnomalyResolved
	switch req.Status {
	case "", string(models.AnomalyResolved):
	case string(models.AnomalyFalsePositive):
		status = models.AnomalyFalsePositive
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be resolved or false_positive"})
		return
	}
	h.updateAnomaly(c, status, req.AcknowledgedBy)
}

func (h *Handler) updateAnomaly(c *gin.Context, status models.AnomalyStatus, ackBy string) {
	err := h.store.UpdateAnomalyStatus(c.Request.Context(), c.Param("id"), status, ackBy)
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "anomaly not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update anomaly"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": status})
}

func anomalyJSONList(anomalies []models.AnomalyAlert) []gin.H {
	out := make([]gin.H, 0, len(anomalies))
	for _, a := range anomalies {
		out = append(out, gin.H{
			"id":             a.ID,
			"anomaly_type":   a.AnomalyType,
			"severity":       a.Severity,
			"title":          a.Title,
			"description":    a.Description,
			"metric_name":    a.MetricName,
			"metric_value":   a.MetricValue,
			"expected_range": a.ExpectedRange,
			"anomaly_score":  a.AnomalyScore,
			"ai_explanation": a.AIExplanation,
			"status":         a.Status,
			"detected_at":    a.DetectedAt,
		})
	}
	return out
}

func (h *Handler) generateSitrep(c *gin.Context) {
	report, err := h.sitrep.Generate(c.Request.Context(), "manual")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate report"})
		return
	}
	c.JSON(http.StatusOK, reportJSON(report))
}

func (h *Handler) latestSitrep(c *gin.Context) {
	report, err := h.store.LatestReport(c.Request.Context())
	if err == store.ErrNotFound {
		c.JSON(http.StatusNotFound, gin.H{"error": "no reports generated yet"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch report"})
		return
	}
	c.JSON(http.StatusOK, reportJSON(report))
}

func reportJSON(r *models.SituationReport) gin.H {
	return gin.H{
		"id":           r.ID,
		"report_date":  r.ReportDate,
		"content":      r.Content,
		"stats":        r.Stats,
		"generated_by": r.GeneratedBy,
		"created_at":   r.CreatedAt,
	}
}
