package status

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyMiddleware returns a gin middleware that enforces API key
// authentication on every request it guards.
//
// Behaviour:
//   - If mode != "apikey" or key == "", all requests are allowed.
//   - Otherwise the value of header must equal key.
//   - A missing, empty, or incorrect key aborts with 401.
func APIKeyMiddleware(mode, header, key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if mode != "apikey" || key == "" {
			c.Next()
			return
		}
		got := c.GetHeader(header)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}
