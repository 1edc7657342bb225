package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type UpdateParamRequest struct {
	Value string `json:"value" binding:"required"`
}

// ListParams handles GET /api/params, optionally filtered by ?category=
func (h *Handler) ListParams(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		rows any
		n    int
	)
	if cat := c.Query("category"); cat != "" {
		list, err := h.ParamsAdm.ByCategory(ctx, cat)
		if err != nil {
			h.respondError(c, err)
			return
		}
		rows, n = list, len(list)
	} else {
		list, err := h.ParamsAdm.List(ctx)
		if err != nil {
			h.respondError(c, err)
			return
		}
		rows, n = list, len(list)
	}
	c.JSON(http.StatusOK, gin.H{"params": rows, "count": n})
}

// ListParamsByCategory handles GET /api/params/category/:category
func (h *Handler) ListParamsByCategory(c *gin.Context) {
	list, err := h.ParamsAdm.ByCategory(c.Request.Context(), c.Param("category"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"category": c.Param("category"), "params": list, "count": len(list)})
}

// GetParam handles GET /api/params/:key
func (h *Handler) GetParam(c *gin.Context) {
	p, err := h.ParamsAdm.Get(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// UpdateParam handles PUT /api/params/:key. The value is validated against the
// stored type and the cache is refreshed before responding.
func (h *Handler) UpdateParam(c *gin.Context) {
	var req UpdateParamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.ParamsAdm.Update(c.Request.Context(), c.Param("key"), req.Value)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.Logger.Info("parameter updated", "key", p.Key, "by", c.GetString("user_id"))
	c.JSON(http.StatusOK, p)
}

// RefreshParams handles POST /api/params/refresh
func (h *Handler) RefreshParams(c *gin.Context) {
	if err := h.ParamsAdm.Refresh(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Parameters reloaded"})
}
