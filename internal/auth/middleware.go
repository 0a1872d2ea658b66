package auth

import (
	"strings"

	pkgerrors "proctorhub/pkg/errors"
	"proctorhub/pkg/utils/contextkey"
	"proctorhub/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// Middleware authenticates the Authorization bearer header and stores the
// principal on both the gin context and the request context.
func Middleware(tokens *TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		user, err := tokens.Authenticate(raw)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		setUser(c, user)
		c.Next()
	}
}

// RequireRole allows only principals whose role is in the given list. It must
// run after Middleware.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := UserFrom(c)
		if !ok {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.TokenMissing))
			return
		}
		if !HasRole(user.Role, roles) {
			response.AbortWithError(c, pkgerrors.New(pkgerrors.RoleNotAllowed))
			return
		}
		c.Next()
	}
}

// UserFrom returns the authenticated principal set by Middleware.
func UserFrom(c *gin.Context) (UserInfo, bool) {
	id := c.GetString(string(contextkey.UserID))
	if id == "" {
		return UserInfo{}, false
	}
	return UserInfo{ID: id, Role: c.GetString(string(contextkey.UserRole))}, true
}

func setUser(c *gin.Context, user UserInfo) {
	c.Set(string(contextkey.UserID), user.ID)
	c.Set(string(contextkey.UserRole), user.Role)
	ctx := c.Request.Context()
	ctx = contextkey.WithValue(ctx, contextkey.UserID, user.ID)
	ctx = contextkey.WithValue(ctx, contextkey.UserRole, user.Role)
	c.Request = c.Request.WithContext(ctx)
}

// bearerToken extracts the token from the Authorization header, falling back
// to the token query parameter for websocket upgrades where headers cannot be
// set by browser clients.
func bearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return strings.TrimSpace(h)
	}
	return c.Query("token")
}
