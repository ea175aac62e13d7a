package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/propfix/propfix-be/internal/api/handler"
	"github.com/propfix/propfix-be/internal/session"
)

// Config holds everything the router needs to wire routes and middleware.
type Config struct {
	Logger    *slog.Logger
	Handlers  *handler.Dependencies
	Sessions  session.Store
	RateLimit RateLimiterConfig
	// ReadyChecks are probed by /ready; any failure makes the service
	// report not ready.
	ReadyChecks map[string]func(context.Context) error
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(cfg *Config) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(cfg.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoints
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "assignment-api-service",
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		failures := gin.H{}
		for name, check := range cfg.ReadyChecks {
			if err := check(ctx); err != nil {
				failures[name] = err.Error()
			}
		}

		if len(failures) > 0 {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":   "not ready",
				"failures": failures,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	assignmentHandler := handler.NewAssignmentHandler(cfg.Handlers)
	notificationHandler := handler.NewNotificationHandler(cfg.Handlers)

	// API v1 routes, all behind session authentication
	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.Sessions, cfg.Logger))
	{
		assignments := v1.Group("/assignments")
		{
			// POST /api/v1/assignments - Assign a trader to a service request
			assignments.POST("",
				RequireRole(session.RoleOwner, session.RoleAdmin),
				assignmentHandler.CreateAssignment)

			// GET /api/v1/assignments - List assignments with filtering and pagination
			assignments.GET("", assignmentHandler.ListAssignments)

			// GET /api/v1/assignments/:assignment_id - Get assignment projection
			assignments.GET("/:assignment_id", assignmentHandler.GetAssignment)

			// Trader transition endpoints, rate limited per actor
			transitions := assignments.Group("")
			transitions.Use(RequireRole(session.RoleTrader))
			if cfg.RateLimit.RedisClient != nil && cfg.RateLimit.Limit > 0 {
				transitions.Use(RateLimitMiddleware(cfg.RateLimit))
			}
			{
				transitions.POST("/:assignment_id/accept", assignmentHandler.AcceptAssignment)
				transitions.POST("/:assignment_id/reject", assignmentHandler.RejectAssignment)
				transitions.POST("/:assignment_id/start", assignmentHandler.StartAssignment)
				transitions.POST("/:assignment_id/complete", assignmentHandler.CompleteAssignment)
			}
		}

		notifications := v1.Group("/notifications")
		{
			notifications.GET("", notificationHandler.ListNotifications)
			notifications.GET("/unread-count", notificationHandler.UnreadCount)
			notifications.POST("/:notification_id/read", notificationHandler.MarkRead)
		}
	}

	return r
}
