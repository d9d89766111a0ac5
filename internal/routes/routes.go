package routes

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mindspace-server/internal/config"
	"mindspace-server/internal/handlers"
	"mindspace-server/internal/middleware"
	"mindspace-server/internal/models"
	"mindspace-server/internal/services"
)

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, db *gorm.DB, cfg *config.Config, logger *zap.Logger) {
	mailer := services.NewMailer(cfg.SMTP, logger)
	notifier := services.NewNotifier(db, mailer, logger)
	meetings := services.NewGoogleMeetGenerator(cfg.Google)
	assistant := services.NewAssistant(cfg.Assistant)

	appointmentService := services.NewAppointmentService(db, cfg, notifier, meetings, logger)
	chatService := services.NewChatService(db, assistant, cfg, logger)

	authHandler := handlers.NewAuthHandler(db, cfg)
	userHandler := handlers.NewUserHandler(db)
	appointmentHandler := handlers.NewAppointmentHandler(appointmentService)
	chatbotHandler := handlers.NewChatbotHandler(chatService)
	notificationHandler := handlers.NewNotificationHandler(db)

	// Public routes (no authentication required)
	public := router.Group("/api/v1")
	{
		authRoutes := public.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh-token", authHandler.RefreshToken)
		}

		// Email-link consent responder. Unauthenticated on purpose: the links
		// must work from any device, with the token as the sole credential.
		public.GET("/appointments/:id/chat-history-access/respond", appointmentHandler.RespondChatHistoryAccess)
	}

	// Authenticated routes
	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(cfg))
	{
		authRoutesPrivate := private.Group("/auth")
		{
			authRoutesPrivate.POST("/logout", authHandler.Logout)
			authRoutesPrivate.GET("/profile", authHandler.GetProfile)
			authRoutesPrivate.PUT("/profile", authHandler.UpdateProfile)
		}

		userRoutes := private.Group("/users")
		{
			userRoutes.GET("/counsellors", userHandler.GetCounsellors)
			userRoutes.GET("/:id", userHandler.GetUserByID)
		}

		appointmentRoutes := private.Group("/appointments")
		{
			// Students book for themselves
			appointmentRoutes.POST("", middleware.RoleAuthMiddleware(models.RoleStudent), appointmentHandler.CreateAppointment)

			appointmentRoutes.GET("", appointmentHandler.GetAppointments)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)

			// Counsellor/admin approve/reject, student cancel; authorization inside the service
			appointmentRoutes.PATCH("/:id/status", appointmentHandler.UpdateAppointmentStatus)

			// Owning student deletes a cancelled booking
			appointmentRoutes.DELETE("/:id", middleware.RoleAuthMiddleware(models.RoleStudent), appointmentHandler.DeleteAppointment)

			// Consent workflow
			appointmentRoutes.POST("/:id/chat-history-access/request",
				middleware.RoleAuthMiddleware(models.RoleCounsellor), appointmentHandler.RequestChatHistoryAccess)
			appointmentRoutes.POST("/:id/chat-history-access/respond-in-app",
				middleware.RoleAuthMiddleware(models.RoleStudent), appointmentHandler.RespondChatHistoryAccessInApp)
		}

		// Counsellor read path for disclosed transcripts
		counsellorRoutes := private.Group("/counsellor")
		counsellorRoutes.Use(middleware.RoleAuthMiddleware(models.RoleCounsellor))
		{
			counsellorRoutes.GET("/chat-history/:studentId/:appointmentId", appointmentHandler.GetCounsellorChatHistory)
		}

		// Wellness assistant
		chatbotRoutes := private.Group("/chatbot")
		{
			chatbotRoutes.POST("/query", middleware.RoleAuthMiddleware(models.RoleStudent), chatbotHandler.Query)
		}

		// In-app notification feed
		notificationRoutes := private.Group("/notifications")
		{
			notificationRoutes.GET("", notificationHandler.GetNotifications)
			notificationRoutes.PATCH("/:id/read", notificationHandler.MarkNotificationRead)
		}
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "UP"})
	})
}
