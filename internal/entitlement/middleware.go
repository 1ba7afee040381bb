package entitlement

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ktasci/quizserve/internal/auth"
	"github.com/ktasci/quizserve/internal/catalog"
	"github.com/ktasci/quizserve/internal/logging"
)

// Middleware gates routes that serve a category's content. The route must
// carry the category ID in the named URL parameter. The authenticated user,
// if any, comes from the auth middleware upstream.
func Middleware(gate *Gate, param string) gin.HandlerFunc {
	return func(c *gin.Context) {
		categoryID, err := strconv.ParseInt(c.Param(param), 10, 64)
		if err != nil || categoryID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   true,
				"message": "invalid category id",
			})
			return
		}

		decision, err := gate.CanAccess(c.Request.Context(), categoryID, auth.UserID(c))
		if err != nil {
			if errors.Is(err, catalog.ErrCategoryNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
					"error":   true,
					"message": "category not found",
				})
				return
			}
			logging.L(c.Request.Context()).Error("entitlement check failed", "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   true,
				"message": "access check failed",
			})
			return
		}

		if !decision.Allowed {
			switch decision.Reason {
			case DenyMissingIdentity:
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error":   true,
					"message": "sign in to access this category",
				})
			default:
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error":   true,
					"message": "this category requires a purchase",
				})
			}
			return
		}

		c.Next()
	}
}
