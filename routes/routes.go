package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/jestadalan-dotcom/Jes-Bingo/config"
	"github.com/jestadalan-dotcom/Jes-Bingo/controllers"
	"github.com/jestadalan-dotcom/Jes-Bingo/services"
)

func SetupRoutes(r *gin.Engine, cfg *config.Config, reg *services.Registry) {
	api := r.Group("/api")

	// ----------------------
	// Room routes (host operator surface)
	// ----------------------
	api.POST("/rooms", controllers.CreateRoom(cfg, reg))
	api.GET("/rooms/:code", controllers.GetRoom(reg))
	api.POST("/rooms/:code/call", controllers.CallNext(reg))
	api.POST("/rooms/:code/rounds", controllers.NewRound(reg))
	api.POST("/rooms/:code/autocall", controllers.AutoCall(cfg, reg))
	api.GET("/rooms/:code/qr", controllers.RoomQR(cfg, reg))
}
