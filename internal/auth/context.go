package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// CtxUserID holds the authenticated owner id. Set by FirebaseAuthMiddleware
	// or OptionalUser.
	CtxUserID = "user_id"
)

// OwnerID extracts the owner id from the Gin context.
func OwnerID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxUserID))
}
