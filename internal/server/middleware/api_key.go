package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader is the header carrying the shared key.
const APIKeyHeader = "x-api-key"

// WithAPIKey enforces the x-api-key header (or a bearer token) when key is
// non-empty.
func WithAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}

		supplied := c.GetHeader(APIKeyHeader)
		if supplied == "" {
			if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
				supplied = token
			}
		}
		if subtle.ConstantTimeCompare([]byte(supplied), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "unauthorized",
			})
			return
		}

		c.Next()
	}
}
