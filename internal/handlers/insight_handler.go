package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetMissCount handles GET /api/miss-count
func (h *Handler) GetMissCount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	n, hit, err := h.MissCount.Get(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "miss_count": n, "cache_hit": hit})
}

// RefreshMissCount handles POST /api/miss-count/refresh
func (h *Handler) RefreshMissCount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	n, err := h.MissCount.Refresh(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "miss_count": n, "cache_hit": false})
}

// TriggerCheck handles GET /api/trigger-check
func (h *Handler) TriggerCheck(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	res, err := h.Trigger.Check(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetExperiment handles GET /api/experiment. The first call assigns the user.
func (h *Handler) GetExperiment(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	res, err := h.Assigner.GetOrAssign(c.Request.Context(), h.DB, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// GetBranchedResponse handles GET /api/experiment/branched-response
func (h *Handler) GetBranchedResponse(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	res, err := h.Assigner.GetOrAssign(ctx, h.DB, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"assignment": res,
		"branch":     h.Assigner.BranchFor(ctx, res.Group),
	})
}

// RunSweep handles POST /api/sweep/run
func (h *Handler) RunSweep(c *gin.Context) {
	if h.Sweep == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Sweep is not configured"})
		return
	}
	n, err := h.Sweep.RunNow(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transitioned": n})
}
