package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"task-tracker-api/internal/models"
	"task-tracker-api/internal/tasks"

	"github.com/gin-gonic/gin"
)

// CreateTaskRequest represents the request payload for creating a task
type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
}

// UpdateTaskRequest represents the request payload for updating a task
type UpdateTaskRequest struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Status      *models.TaskStatus `json:"status"`
	DueDate     *string            `json:"due_date"`
	Archived    *bool              `json:"archived"`
}

/*
*
GetTasks handles GET /api/tasks
Returns the caller's tasks, newest first.
Optional query params: status, page (default 1), limit (default 20, max 100).
*/
func (h *Handler) GetTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	status := models.TaskStatus(strings.ToLower(c.Query("status")))
	all, err := h.Tasks.List(c.Request.Context(), userID, tasks.ListFilter{Status: status})
	if err != nil {
		h.respondError(c, err)
		return
	}

	total := len(all)
	start := min((page-1)*limit, total)
	end := min(start+limit, total)
	pageItems := all[start:end]

	c.JSON(http.StatusOK, gin.H{
		"tasks": pageItems,
		"count": len(pageItems),
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetHomeTasks handles GET /api/tasks/home
func (h *Handler) GetHomeTasks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	list, scope, err := h.Tasks.Home(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tasks": list,
		"count": len(list),
		"scope": scope,
	})
}

// GetTodayStats handles GET /api/tasks/stats/today
func (h *Handler) GetTodayStats(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	stats, err := h.Tasks.TodayStats(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetTaskByID handles GET /api/tasks/:id
func (h *Handler) GetTaskByID(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	task, err := h.Tasks.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

/*
*
CreateTask handles POST /api/tasks
Creates a pending task. The response carries the overload guide so the client
can show it right away.
*/
func (h *Handler) CreateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := tasks.CreateInput{Title: req.Title, Description: req.Description}
	if req.DueDate != "" {
		due, ok := h.parseDue(req.DueDate)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid due_date"})
			return
		}
		in.DueDate = &due
	}

	res, err := h.Tasks.Create(c.Request.Context(), userID, in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

/*
*
UpdateTask handles PUT /api/tasks/:id
Partial update. "archived": true moves the task into the archive instead.
*/
func (h *Handler) UpdateTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := tasks.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Archived:    req.Archived,
	}
	if req.DueDate != nil {
		due, ok := h.parseDue(*req.DueDate)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid due_date"})
			return
		}
		in.DueDate = &due
	}

	res, err := h.Tasks.Update(c.Request.Context(), userID, c.Param("id"), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if res.Archive != nil {
		c.JSON(http.StatusOK, gin.H{"archived": true, "archive": res.Archive})
		return
	}
	c.JSON(http.StatusOK, res.Task)
}

// DeleteTask handles DELETE /api/tasks/:id
func (h *Handler) DeleteTask(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	if err := h.Tasks.Delete(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}
