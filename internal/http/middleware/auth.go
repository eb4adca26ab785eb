package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ambrosia-fish/armatillo-api/internal/domain"
	"github.com/ambrosia-fish/armatillo-api/internal/service"
)

const ginUserKey = "auth_user"

// RequireAuth validates the Authorization header and stores the
// resolved user on the gin context.
func RequireAuth(auth *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":             "missing_token",
				"error_description": "Authorization header with a bearer token is required.",
			})
			return
		}

		meta := service.RequestMeta{
			IPAddress:  c.ClientIP(),
			DeviceInfo: c.Request.UserAgent(),
		}
		user, err := auth.Authenticate(c.Request.Context(), raw, meta)
		if err != nil {
			status, body := service.ErrorResponse(err)
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Set(ginUserKey, user)
		c.Next()
	}
}

// RequireAdmin rejects callers whose resolved user is not an admin.
// Must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := GetUser(c)
		if !ok || !user.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "forbidden",
				"error_description": "Admin privileges required.",
			})
			return
		}
		c.Next()
	}
}

// GetUser returns the authenticated user stored by RequireAuth.
func GetUser(c *gin.Context) (domain.User, bool) {
	value, ok := c.Get(ginUserKey)
	if !ok {
		return domain.User{}, false
	}
	user, ok := value.(domain.User)
	return user, ok
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
