package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// SecretRequired проверяет общий секрет запроса: заголовок X-Relay-Secret
// или параметр relay_secret. Без корректного секрета запрос не обрабатывается.
func SecretRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader("X-Relay-Secret")
		if token == "" {
			token = c.Query("relay_secret")
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
