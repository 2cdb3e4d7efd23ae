package api

import (
	"net/http"

	"mailcake-backend/internal/auth/delivery"
	authUsecase "mailcake-backend/internal/auth/usecase"
	emailDelivery "mailcake-backend/internal/email/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, authUsecase authUsecase.AuthUsecase, accountHandler *emailDelivery.AccountHandler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Account sync routes (protected)
		accounts := api.Group("/accounts")
		accounts.Use(delivery.AuthMiddleware(authUsecase))
		{
			accounts.POST("/:id/sync", accountHandler.TriggerSync)
			accounts.GET("/:id/status", accountHandler.GetStatus)
		}
	}
}
