package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/medinote/backend/internal/api/handlers"
	"github.com/medinote/backend/internal/api/middleware"
)

type Deps struct {
	Session       *handlers.SessionHandler
	Transcription *handlers.TranscriptionHandler
	WS            *handlers.WSHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// Protected routes (JWT)
	auth := r.Group("/")
	auth.Use(middleware.JWTAuth())

	auth.POST("/sessions", d.Session.Create)
	auth.GET("/sessions/:session_id", d.Session.Get)
	auth.GET("/sessions/:session_id/transcription", d.Transcription.GetBySession)

	// Admin-only audit trail
	admin := auth.Group("/")
	admin.Use(middleware.RequireAdmin())
	admin.GET("/sessions/:session_id/chunks", d.Transcription.ListChunks)

	// WebSocket realtime transcription
	auth.GET("/ws/realtime", d.WS.Realtime)
}
