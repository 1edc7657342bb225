package handlers

import (
	"net/http"
	"strconv"

	"task-tracker-api/internal/models"
	"task-tracker-api/internal/tracking"

	"github.com/gin-gonic/gin"
)

// RecordEvent handles POST /api/events
func (h *Handler) RecordEvent(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var in tracking.BehaviorInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := h.Tasks.Get(c.Request.Context(), userID, in.TaskID); err != nil {
		h.respondError(c, err)
		return
	}

	ev, err := h.Recorder.RecordBehavior(c.Request.Context(), nil, userID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ev)
}

// GetEventSummary handles GET /api/events/summary
func (h *Handler) GetEventSummary(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	sum, err := h.Recorder.Summary(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// GetGoalEvents handles GET /api/events/goals?type=...
func (h *Handler) GetGoalEvents(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	rows, err := h.Recorder.GoalEvents(c.Request.Context(), userID, models.GoalEventType(c.Query("type")))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows, "count": len(rows)})
}

// OpenSession handles POST /api/sessions/app-open
func (h *Handler) OpenSession(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	s, err := h.Sessions.Open(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

// SessionAction handles POST /api/sessions/:id/action
func (h *Handler) SessionAction(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	s, err := h.Sessions.Action(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// CloseSession handles POST /api/sessions/:id/app-close
func (h *Handler) CloseSession(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	s, err := h.Sessions.Close(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// ListSessions handles GET /api/sessions
func (h *Handler) ListSessions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	sessions, err := h.Sessions.List(c.Request.Context(), userID, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

// CheckIntervention handles GET /api/sessions/:id/intervention and
// POST /api/sessions/:id/intervention/check. Both may fire the intervention.
func (h *Handler) CheckIntervention(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	state, err := h.Sessions.CheckIntervention(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// GetInterventions handles GET /api/interventions
func (h *Handler) GetInterventions(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	logs, err := h.Sessions.Interventions(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interventions": logs, "count": len(logs)})
}
