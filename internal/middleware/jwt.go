package middleware

import (
	"net/http"
	"strings"

	"postflow/internal/service"

	"github.com/gin-gonic/gin"
)

// JWTMiddleware verifies the bearer token and puts the caller into the
// request context. In dev mode an X-Dev-User header stands in for a token.
func JWTMiddleware(codec *service.TokenCodec, devMode bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if devMode {
			if uid := c.GetHeader("X-Dev-User"); uid != "" {
				ctx := service.WithCaller(c.Request.Context(), &service.CallerInfo{
					UserID: uid,
					Name:   "dev-" + uid,
				})
				c.Request = c.Request.WithContext(ctx)
				c.Next()
				return
			}
		}

		tokenString := ""
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "authorization header missing"})
			return
		}

		claims, err := codec.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid access token"})
			return
		}

		ctx := service.WithCaller(c.Request.Context(), &service.CallerInfo{
			UserID: claims.UserID,
			Name:   claims.Username,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
