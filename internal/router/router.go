package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/proktor-backend/internal/config"
	"github.com/stemsi/proktor-backend/internal/handler"
	"github.com/stemsi/proktor-backend/internal/middleware"
	"github.com/stemsi/proktor-backend/internal/model"
	"github.com/stemsi/proktor-backend/internal/response"
	"github.com/stemsi/proktor-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth     *handler.AuthHandler
	Session  *handler.SessionHandler
	Security *handler.SecurityHandler
	Monitor  *handler.MonitorHandler
	System   *handler.SystemHandler
	WS       *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/admin/login", handlers.Auth.AdminLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/admin/me", middleware.RequireAdminJWT(authService), handlers.Auth.GetAdminProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.POST("/exams/:exam_id/sessions", handlers.Session.StartSession)
		studentAPI.GET("/sessions", handlers.Session.ListMySessions)
		studentAPI.GET("/sessions/:id", handlers.Session.GetSession)
		studentAPI.PUT("/sessions/:id/answers", handlers.Session.SubmitAnswer)
		studentAPI.POST("/sessions/:id/submit", handlers.Session.SubmitSession)
		studentAPI.POST("/sessions/:id/security-events", handlers.Security.LogEvent)
	}

	// ─── 3. WebSocket Group (Query Token Auth) ─────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/connect", handlers.WS.Connect)
	}

	// ─── 4. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/sessions/:id",
			middleware.RequireAnyPermission(string(model.PermissionSessionsRead), string(model.PermissionSessionsReadAll)),
			handlers.Session.GetSession,
		)
		adminAPI.GET("/exams/:exam_id/sessions",
			middleware.RequireAnyPermission(string(model.PermissionSessionsRead), string(model.PermissionSessionsReadAll)),
			handlers.Session.ListExamSessions,
		)
		adminAPI.POST("/sessions/:id/grade",
			middleware.RequirePermission(string(model.PermissionSessionsGrade)),
			handlers.Session.MarkGraded,
		)

		adminAPI.GET("/sessions/:id/security-logs",
			middleware.RequireAnyPermission(string(model.PermissionSessionsRead), string(model.PermissionSessionsReadAll)),
			handlers.Security.ListSessionLogs,
		)
		adminAPI.POST("/security-logs/:id/resolve",
			middleware.RequirePermission(string(model.PermissionSecurityResolve)),
			handlers.Security.ResolveLog,
		)

		adminAPI.GET("/monitor/alerts",
			middleware.RequirePermission(string(model.PermissionSessionsMonitor)),
			handlers.Monitor.AlertFeedSSE,
		)
		adminAPI.GET("/monitor/rooms",
			middleware.RequirePermission(string(model.PermissionSessionsMonitor)),
			handlers.Monitor.GetRooms,
		)

		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
