package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	"github.com/Netsync-Automation/PracticeTools-sub004/pkg/response"
)

// BearerSecret allows requests whose bearer token equals secret. An empty secret rejects everything.
func BearerSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			response.Unauthorized(c, "unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
