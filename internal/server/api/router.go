package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the store REST surface, the live channel socket and
// the audio file server on the engine.
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})

	v1 := r.Group("/api/v1")
	v1.GET("/conversations/:conversationId/messages", h.ListMessages)
	v1.POST("/conversations/:conversationId/messages", h.SendText)
	v1.POST("/conversations/:conversationId/audio", h.SendAudio)
	v1.GET("/conversations/:conversationId/unread", h.UnreadHint)
	v1.POST("/messages/:messageId/read", h.MarkRead)
	v1.GET("/chat/ws", h.Socket)

	r.Static("/audio", h.audioDir)
}
