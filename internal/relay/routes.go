package relay

import (
	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует операции релея, требующие общий секрет.
// Все методы POST, чтобы ответы не кэшировались и соответствовали стилю API.
func SetupRoutes(r *gin.RouterGroup, h *Handler) {
	r.POST("/status", h.Status)
	r.POST("/send-code", h.SendCode)
	r.POST("/sign-in", h.SignIn)
	r.POST("/qr/start", h.QRStart)
	r.POST("/qr/poll", h.QRPoll)
	r.POST("/qr/password", h.QRPassword)
	r.POST("/import-session", h.ImportSession)
	r.POST("/disconnect", h.Disconnect)
	r.POST("/gifts", h.Gifts)
	r.POST("/send-gift", h.SendGift)
}
