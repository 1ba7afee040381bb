package questions

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Handlers provides HTTP endpoints for quiz questions.
type Handlers struct {
	store Store
}

// NewHandlers creates question HTTP handlers.
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers question endpoints on the given router group.
// The caller is expected to attach the entitlement middleware to the group,
// since the category ID parameter gates paid content.
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListByCategory)
}

// ListByCategory handles GET /categories/:id/questions
func (h *Handlers) ListByCategory(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || categoryID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "invalid category id"})
		return
	}

	list, err := h.store.ListByCategory(c.Request.Context(), categoryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "failed to list questions"})
		return
	}
	if list == nil {
		list = []*Question{}
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "data": list})
}
