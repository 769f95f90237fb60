// README: Firebase ID-token auth; resolves the caller into a typed actor for handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"medtrans/internal/infra"
	"medtrans/internal/types"
)

const (
	ctxUID  = "caller_uid"
	ctxRole = "caller_role"

	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Auth verifies the bearer token. Websocket clients that cannot set headers may pass the
// token as the access_token query parameter instead.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := ""
		if h := c.GetHeader("Authorization"); h != "" {
			tok, ok := strings.CutPrefix(h, "Bearer ")
			if !ok {
				abort(c, http.StatusUnauthorized, "invalid authorization header")
				return
			}
			raw = tok
		} else {
			raw = c.Query("access_token")
		}
		if strings.TrimSpace(raw) == "" {
			abort(c, http.StatusUnauthorized, "missing token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			abort(c, http.StatusUnauthorized, "invalid token")
			return
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, token.Role())
		c.Next()
	}
}

// RequireRole rejects callers whose role claim is not one of roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := CallerRole(c)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "forbidden")
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// CallerRole is "driver", "admin" or "" for patients.
func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

// CallerActor maps the verified identity onto a booking actor. Tokens without a role claim
// belong to patients.
func CallerActor(c *gin.Context) types.Actor {
	id := types.ID(CallerUID(c))
	switch CallerRole(c) {
	case RoleAdmin:
		return types.Admin(id)
	case RoleDriver:
		return types.Driver(id)
	}
	return types.Patient(id)
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
