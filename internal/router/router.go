package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/uasprep/mockexam-backend/internal/config"
	"github.com/uasprep/mockexam-backend/internal/handler"
	"github.com/uasprep/mockexam-backend/internal/middleware"
	"github.com/uasprep/mockexam-backend/internal/response"
	"github.com/uasprep/mockexam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth   *handler.AuthHandler
	Exam   *handler.ExamHandler
	Portal *handler.ExamPortalHandler
	WS     *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
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
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/logout", middleware.RequireUserJWT(authService), handlers.Auth.Logout)
	}

	// ─── 2. Exam Group (JWT) ───────────────────────────────────────────
	examAPI := router.Group("/api/v1/exams")
	examAPI.Use(middleware.RequireUserJWT(authService))
	{
		examAPI.GET("", handlers.Exam.ListExams)
		examAPI.GET("/:exam_id", handlers.Exam.GetExam)

		examAPI.POST("/:exam_id/enter", handlers.Portal.EnterExam)
		examAPI.GET("/:exam_id/questions", handlers.Portal.GetSectionQuestions)
		examAPI.POST("/:exam_id/answers", handlers.Portal.SaveAnswer)
		examAPI.POST("/:exam_id/sections/submit", handlers.Portal.SubmitSection)
		examAPI.POST("/:exam_id/submit", handlers.Portal.SubmitExam)
		examAPI.GET("/:exam_id/time", handlers.Portal.CheckTime)
		examAPI.POST("/:exam_id/autosave", handlers.Portal.AutoSave)
		examAPI.POST("/:exam_id/recover", handlers.Portal.RecoverSession)
		examAPI.GET("/:exam_id/status", handlers.Portal.GetSessionStatus)
		examAPI.GET("/:exam_id/results", handlers.Portal.GetResults)
	}

	// ─── 3. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireUserWSAuth(authService))
	{
		ws.GET("/exams/:exam_id/timer", handlers.WS.TimerStream)
	}

	return router
}
