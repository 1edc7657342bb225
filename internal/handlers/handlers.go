package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"task-tracker-api/internal/app"
	"task-tracker-api/internal/auth"
	"task-tracker-api/internal/experiment"
	"task-tracker-api/internal/lifecycle"
	"task-tracker-api/internal/middleware"
	"task-tracker-api/internal/misscount"
	"task-tracker-api/internal/params"
	"task-tracker-api/internal/policy"
	"task-tracker-api/internal/realtime"
	"task-tracker-api/internal/tasks"
	"task-tracker-api/internal/tracking"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SweepRunner triggers an expiry sweep on demand.
type SweepRunner interface {
	RunNow(ctx context.Context) (int64, error)
}

// Deps are the services behind the HTTP handlers.
type Deps struct {
	DB        *gorm.DB
	Params    *params.Registry
	ParamsAdm *params.Service
	Assigner  *experiment.Assigner
	Recorder  *tracking.Recorder
	Sessions  *tracking.Sessions
	Tasks     *tasks.Service
	Lifecycle *lifecycle.Service
	MissCount *misscount.Counter
	Trigger   *policy.TriggerService
	Sweep     SweepRunner
	Hub       *realtime.Hub
	Location  *time.Location
	Logger    *slog.Logger
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Hub == nil {
		d.Hub = realtime.NewHub()
	}
	return &Handler{Deps: d}
}

// NewFromServices exposes a wired service graph over HTTP.
func NewFromServices(s *app.Services) *Handler {
	return New(Deps{
		DB:        s.DB,
		Params:    s.Registry,
		ParamsAdm: s.ParamsAdmin,
		Assigner:  s.Assigner,
		Recorder:  s.Recorder,
		Sessions:  s.Sessions,
		Tasks:     s.Tasks,
		Lifecycle: s.Lifecycle,
		MissCount: s.MissCount,
		Trigger:   s.Trigger,
		Sweep:     s.Scheduler,
		Hub:       s.Hub,
		Location:  s.Location,
		Logger:    s.Logger,
	})
}

// requireUser returns the authenticated user id or writes a 401.
func requireUser(c *gin.Context) (string, bool) {
	userID := c.GetString(middleware.ContextUserID)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in token"})
		return "", false
	}
	return userID, true
}

// respondError maps service errors onto HTTP responses.
func (h *Handler) respondError(c *gin.Context, err error) {
	var hardLimit *policy.HardLimitError
	switch {
	case errors.As(err, &hardLimit):
		c.JSON(http.StatusConflict, gin.H{"error": hardLimit.Error(), "limit": hardLimit})
	case errors.Is(err, lifecycle.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
	case errors.Is(err, params.ErrParameterNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Parameter not found"})
	case errors.Is(err, tracking.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	case errors.Is(err, lifecycle.ErrArchiveLimitReached),
		errors.Is(err, tracking.ErrSessionClosed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, params.ErrInvalidValue),
		errors.Is(err, lifecycle.ErrInvalidStrategy),
		errors.Is(err, tasks.ErrInvalidStatus),
		errors.Is(err, tasks.ErrEmptyTitle),
		errors.Is(err, tracking.ErrInvalidEventType),
		errors.Is(err, auth.ErrPasswordTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.Logger.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// parseDue accepts RFC3339 or a bare date. A bare date means the end of that
// day in the service timezone.
func (h *Handler) parseDue(s string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	for _, layout := range []string{"2006-01-02", "2 Jan 2006", "02 Jan 2006"} {
		if d, err := time.ParseInLocation(layout, s, h.Location); err == nil {
			return d.AddDate(0, 0, 1).Add(-time.Second).UTC(), true
		}
	}
	return time.Time{}, false
}
