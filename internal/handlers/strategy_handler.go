package handlers

import (
	"net/http"

	"task-tracker-api/internal/lifecycle"

	"github.com/gin-gonic/gin"
)

// ApplyStrategyRequest is the user's answer to the strategy prompt.
type ApplyStrategyRequest struct {
	Strategy   string `json:"strategy" binding:"required"`
	NewDueDate string `json:"new_due_date"`
}

/*
*
ApplyStrategy handles POST /api/tasks/:id/strategy
archive moves the task out, modify revives it (optionally with a new due
date), keep leaves it missed and only records the decision.
*/
func (h *Handler) ApplyStrategy(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req ApplyStrategyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	strategy, err := lifecycle.ParseStrategy(req.Strategy)
	if err != nil {
		h.respondError(c, err)
		return
	}

	apply := lifecycle.ApplyRequest{Strategy: strategy}
	if req.NewDueDate != "" {
		due, ok := h.parseDue(req.NewDueDate)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid new_due_date"})
			return
		}
		apply.NewDueDate = &due
	}

	res, err := h.Lifecycle.Apply(c.Request.Context(), userID, c.Param("id"), apply)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetTaskHistory handles GET /api/tasks/:id/history
func (h *Handler) GetTaskHistory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	rows, err := h.Lifecycle.History(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task_id": c.Param("id"), "history": rows, "count": len(rows)})
}

// GetTaskChain handles GET /api/tasks/:id/chain
func (h *Handler) GetTaskChain(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	chain, err := h.Recorder.Chain(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chain)
}

// GetArchives handles GET /api/archives
func (h *Handler) GetArchives(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	rows, err := h.Lifecycle.Archives(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"archives": rows, "count": len(rows)})
}

// GetArchiveCapacity handles GET /api/archives/capacity
func (h *Handler) GetArchiveCapacity(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	capacity, err := h.Lifecycle.Capacity(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, capacity)
}
