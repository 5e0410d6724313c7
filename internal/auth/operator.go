package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Padu76/lifeOS-sub000/internal/response"
)

// OperatorMiddleware guards routes that act on every user's queue. Only the
// operator token gets through; user tokens never do. An empty token closes
// the routes entirely.
func OperatorMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		presented := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token != "" && strings.HasPrefix(header, "Bearer ") &&
			subtle.ConstantTimeCompare([]byte(presented), []byte(token)) == 1 {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Unauthorized("Unauthorized"))
	}
}
