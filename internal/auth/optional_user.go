package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderUserID = "X-User-Id"
	DemoUser     = "demo-user"
)

// OptionalUser sets the owner id from the X-User-Id header without verifying
// it. With allowAnonymous a missing header falls back to "demo-user";
// otherwise the request is rejected. Use this ONLY for development/testing.
func OptionalUser(allowAnonymous bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if uid == "" {
			uid = strings.TrimSpace(c.Query("user_id"))
		}
		if uid == "" {
			if !allowAnonymous {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": gin.H{"code": http.StatusUnauthorized, "reason": "unauthorized", "message": "missing user"}})
				return
			}
			uid = DemoUser
		}

		c.Set(CtxUserID, uid)
		c.Next()
	}
}
