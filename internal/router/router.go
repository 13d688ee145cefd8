package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/handler"
	"github.com/stemsi/labexam-backend/internal/metrics"
	"github.com/stemsi/labexam-backend/internal/middleware"
	"github.com/stemsi/labexam-backend/internal/response"
	"github.com/stemsi/labexam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Client  *handler.ClientHandler
	Exam    *handler.ExamHandler
	Monitor *handler.MonitorHandler
	Admin   *handler.AdminHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
}

// Services are the services middlewares authenticate against.
type Services struct {
	Auth   *service.AuthService
	Device *service.DeviceService
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// heartbeatLimiter paces session traffic and is shared with the WS handler.
func SetupRouter(
	services Services,
	handlers *Handlers,
	heartbeatLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID, middleware.HeaderDeviceID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.Middleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		SkipPaths: []string{"/metrics"},
	}))

	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.Handler())

	authSvc := services.Auth

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, 10, middleware.ByClientIP)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)
		auth.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		auth.GET("/me", middleware.RequireUserJWT(authSvc), handlers.Auth.Me)
		auth.PUT("/update-department", middleware.RequireUserJWT(authSvc), handlers.Auth.UpdateDepartment)
		auth.POST("/register-admin", middleware.RequireUserJWT(authSvc), middleware.RequireAdmin(), handlers.Auth.RegisterAdmin)
	}

	// ─── 2. Client Group (Lab Workstations) ────────────────────────────
	// Published exam summaries are identical for every workstation.
	router.GET("/api/v1/client/exam-by-code/:code", middleware.CacheControl(30), handlers.Client.ExamByCode)

	client := router.Group("/api/v1/client")
	client.Use(middleware.NoStore())
	{
		client.POST("/register", handlers.Client.RegisterDevice)
		client.GET("/exams", middleware.RequireDevice(services.Device), handlers.Client.ListExams)
		client.POST("/start",
			middleware.OptionalDevice(),
			middleware.OptionalUser(authSvc),
			handlers.Client.Start,
		)

		session := client.Group("")
		session.Use(middleware.RequireSessionJWT(authSvc))
		{
			session.GET("/exam", handlers.Client.Content)
			session.POST("/save", handlers.Client.Save)
			session.POST("/heartbeat", heartbeatLimiter.Middleware(), handlers.Client.Heartbeat)
			session.POST("/submit", handlers.Client.Submit)
		}
	}

	// ─── 3. WebSocket Group (Session Token via ?token=) ────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireSessionJWT(authSvc))
	{
		ws.GET("/session/stream", handlers.WS.SessionStream)
	}

	// ─── 4. Exam Authoring Group (Professors and Admins) ───────────────
	exams := router.Group("/api/v1/exams")
	exams.Use(middleware.RequireUserJWT(authSvc), middleware.RequireStaff())
	{
		exams.GET("", handlers.Exam.ListExams)
		exams.POST("", handlers.Exam.CreateExam)
		exams.GET("/:id", handlers.Exam.GetExam)
		exams.POST("/:id/questions", handlers.Exam.AddQuestions)
		exams.PUT("/:id/publish", handlers.Exam.PublishExam)

		// Live monitoring
		exams.GET("/:id/monitor", handlers.Monitor.Snapshot)
		exams.GET("/:id/monitor/stream", handlers.Monitor.Stream)
		exams.GET("/:id/sessions/:sid/events", handlers.Monitor.SessionEvents)
	}

	// ─── 5. Admin Group ────────────────────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireUserJWT(authSvc), middleware.RequireAdmin())
	{
		adminAPI.GET("/devices", handlers.Admin.ListDevices)
		adminAPI.POST("/devices/:id/approve", handlers.Admin.ApproveDevice)
		adminAPI.DELETE("/devices/:id", handlers.Admin.DeleteDevice)
		adminAPI.GET("/users", handlers.Admin.ListUsers)
		adminAPI.GET("/stats", handlers.Admin.Stats)
		adminAPI.GET("/events", handlers.Admin.FlaggedEvents)
		adminAPI.GET("/system", handlers.System.Status)
	}

	return router
}
