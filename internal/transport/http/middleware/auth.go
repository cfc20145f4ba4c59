package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindchat/internal/domain"
	"github.com/set-night/mindchat/internal/transport/http/response"
)

const ContextUserIDKey = "user_id"

type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.User, error)
}

// AuthJWT accepts a bearer token, or a token query parameter for websocket
// clients that cannot set headers.
func AuthJWT(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, user.ID)
		c.Next()
	}
}

func UserID(c *gin.Context) (domain.UserID, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(domain.UserID)
	return id, ok && id != ""
}

func bearerToken(c *gin.Context) string {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	const prefix = "Bearer "
	if strings.HasPrefix(authHeader, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
	}
	return strings.TrimSpace(c.Query("token"))
}
