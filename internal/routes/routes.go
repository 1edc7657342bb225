package routes

import (
	"log/slog"

	"task-tracker-api/internal/handlers"
	"task-tracker-api/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func SetupRoutes(h *handlers.Handler, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery(), middleware.RequestLogger(logger))

	// CORS middleware (for frontend integration)
	ginRouter.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	ginRouter.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"message": "Task tracker API is running",
		})
	})
	ginRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := ginRouter.Group("/api")
	{
		api.POST("/login", h.Login)
	}

	protectedRoutes := api.Group("")
	protectedRoutes.Use(middleware.JWTAuthMiddleware())
	{
		// Tasks
		protectedRoutes.GET("/tasks", h.GetTasks)
		protectedRoutes.GET("/tasks/home", h.GetHomeTasks)
		protectedRoutes.GET("/tasks/stats/today", h.GetTodayStats)
		protectedRoutes.GET("/tasks/:id", h.GetTaskByID)
		protectedRoutes.POST("/tasks", h.CreateTask)
		protectedRoutes.PUT("/tasks/:id", h.UpdateTask)
		protectedRoutes.DELETE("/tasks/:id", h.DeleteTask)

		// Strategies and archive
		protectedRoutes.POST("/tasks/:id/strategy", h.ApplyStrategy)
		protectedRoutes.GET("/tasks/:id/history", h.GetTaskHistory)
		protectedRoutes.GET("/tasks/:id/chain", h.GetTaskChain)
		protectedRoutes.GET("/archives", h.GetArchives)
		protectedRoutes.GET("/archives/capacity", h.GetArchiveCapacity)

		protectedRoutes.GET("/miss-count", h.GetMissCount)
		protectedRoutes.POST("/miss-count/refresh", h.RefreshMissCount)
		protectedRoutes.GET("/trigger-check", h.TriggerCheck)

		protectedRoutes.GET("/experiment", h.GetExperiment)
		protectedRoutes.GET("/experiment/branched-response", h.GetBranchedResponse)

		// Tracking
		protectedRoutes.POST("/events", h.RecordEvent)
		protectedRoutes.GET("/events/summary", h.GetEventSummary)
		protectedRoutes.GET("/events/goals", h.GetGoalEvents)
		protectedRoutes.POST("/sessions/app-open", h.OpenSession)
		protectedRoutes.POST("/sessions/:id/action", h.SessionAction)
		protectedRoutes.POST("/sessions/:id/app-close", h.CloseSession)
		protectedRoutes.GET("/sessions", h.ListSessions)
		protectedRoutes.GET("/sessions/:id/intervention", h.CheckIntervention)
		protectedRoutes.POST("/sessions/:id/intervention/check", h.CheckIntervention)
		protectedRoutes.GET("/interventions", h.GetInterventions)

		// Parameters
		protectedRoutes.GET("/params", h.ListParams)
		protectedRoutes.GET("/params/category/:category", h.ListParamsByCategory)
		protectedRoutes.GET("/params/:key", h.GetParam)
		protectedRoutes.PUT("/params/:key", h.UpdateParam)
		protectedRoutes.POST("/params/refresh", h.RefreshParams)

		protectedRoutes.POST("/sweep/run", h.RunSweep)
		protectedRoutes.GET("/users", h.GetAllUsers)
		protectedRoutes.GET("/ws", h.WebSocket)
	}

	return ginRouter
}
