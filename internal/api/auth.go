package api

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// BearerAuth rejects any request whose Authorization header does not
// carry the shared secret.
func BearerAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: "missing or invalid credential",
				Code:  "unauthorized",
			})
			return
		}
		c.Next()
	}
}
