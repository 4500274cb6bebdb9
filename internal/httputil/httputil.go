package httputil

import "github.com/gin-gonic/gin"

// RespondError отправляет сообщение об ошибке в едином формате и прекращает обработку запроса.
// Используем AbortWithStatusJSON, чтобы последующие обработчики не выполнялись, даже если забыли вернуть управление.
func RespondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// RespondErrorDetails — то же, но с дополнительными полями в ответе
// (например, список доступных альтернатив при недоступном подарке).
func RespondErrorDetails(c *gin.Context, status int, msg string, details gin.H) {
	body := gin.H{"error": msg}
	for k, v := range details {
		body[k] = v
	}
	c.AbortWithStatusJSON(status, body)
}
