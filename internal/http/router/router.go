package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/escrow-backend/internal/config"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers"
	"github.com/ignatzorin/escrow-backend/internal/http/middleware"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	authHandler *handlers.AuthHandler,
	transactionHandler *handlers.TransactionHandler,
	milestoneHandler *handlers.MilestoneHandler,
	disputeHandler *handlers.DisputeHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authRateLimit := middleware.RateLimitMiddleware(5, cfg.RateLimitPeriod)
	authGroup.Use(authRateLimit)
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	api.GET("/ws", wsHandler.Handle)

	// Защищённые маршруты
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/payout-account", authHandler.ConnectPayoutAccount)
		protected.GET("/payout-account", authHandler.GetPayoutAccount)

		protected.POST("/transactions", transactionHandler.Create)
		protected.GET("/transactions", transactionHandler.List)
		protected.GET("/transactions/:id", middleware.UUIDValidator("id"), transactionHandler.Get)
		protected.GET("/transactions/:id/audit", middleware.UUIDValidator("id"), transactionHandler.Audit)
		protected.POST("/transactions/:id/accept", middleware.UUIDValidator("id"), transactionHandler.Accept)
		protected.POST("/transactions/:id/cancel", middleware.UUIDValidator("id"), transactionHandler.Cancel)
		protected.POST("/transactions/:id/fund", middleware.UUIDValidator("id"), transactionHandler.Fund)
		protected.POST("/transactions/:id/deliver", middleware.UUIDValidator("id"), transactionHandler.Deliver)
		protected.POST("/transactions/:id/release", middleware.UUIDValidator("id"), transactionHandler.Release)

		protected.PUT("/transactions/:id/milestones/:milestoneID", middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneID"), milestoneHandler.Update)
		protected.POST("/transactions/:id/milestones/:milestoneID/start", middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneID"), milestoneHandler.Start)
		protected.POST("/transactions/:id/milestones/:milestoneID/submit", middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneID"), milestoneHandler.Submit)
		protected.POST("/transactions/:id/milestones/:milestoneID/approve", middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneID"), milestoneHandler.Approve)
		protected.POST("/transactions/:id/milestones/:milestoneID/release", middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneID"), milestoneHandler.Release)
		protected.POST("/transactions/:id/milestones/:milestoneID/notes", middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneID"), milestoneHandler.AddNote)
		protected.POST("/transactions/:id/milestones/:milestoneID/deliverables/:deliverableID/toggle",
			middleware.UUIDValidator("id"), middleware.UUIDValidator("milestoneID"), middleware.UUIDValidator("deliverableID"), milestoneHandler.ToggleDeliverable)

		protected.POST("/transactions/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.Raise)
		protected.GET("/disputes", disputeHandler.List)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), disputeHandler.Resolve)
	}

	return r
}
