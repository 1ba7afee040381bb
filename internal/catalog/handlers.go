package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ktasci/quizserve/internal/validation"
)

// Handlers provides HTTP endpoints for browsing the catalog.
type Handlers struct {
	store Store
}

// NewHandlers creates catalog HTTP handlers.
func NewHandlers(store Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers catalog endpoints on the given router group.
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/categories", h.ListCategories)
	rg.GET("/categories/:id", h.GetCategory)
	rg.GET("/products", h.ListProducts)
	rg.GET("/products/:sku", validation.SKUParamMiddleware(), h.GetProduct)
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"error": false, "data": data})
}

func respondErr(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": true, "message": message})
}

// langParam reads and validates the optional ?lang= filter.
func langParam(c *gin.Context) (string, bool) {
	lang := c.Query("lang")
	if lang != "" && !validation.IsValidLang(lang) {
		respondErr(c, http.StatusBadRequest, "lang must be a two-letter code")
		return "", false
	}
	return lang, true
}

// ListCategories handles GET /categories
func (h *Handlers) ListCategories(c *gin.Context) {
	lang, ok := langParam(c)
	if !ok {
		return
	}

	list, err := h.store.ListCategories(c.Request.Context(), lang)
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "failed to list categories")
		return
	}
	if list == nil {
		list = []*Category{}
	}
	respondOK(c, list)
}

// GetCategory handles GET /categories/:id
func (h *Handlers) GetCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondErr(c, http.StatusBadRequest, "invalid category id")
		return
	}

	cat, err := h.store.GetCategory(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			respondErr(c, http.StatusNotFound, "category not found")
			return
		}
		respondErr(c, http.StatusInternalServerError, "failed to load category")
		return
	}
	respondOK(c, cat)
}

// ListProducts handles GET /products
func (h *Handlers) ListProducts(c *gin.Context) {
	lang, ok := langParam(c)
	if !ok {
		return
	}

	list, err := h.store.ListProducts(c.Request.Context(), lang)
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "failed to list products")
		return
	}
	if list == nil {
		list = []*Product{}
	}
	respondOK(c, list)
}

// GetProduct handles GET /products/:sku
// Malformed SKUs are rejected by the route's SKUParamMiddleware.
func (h *Handlers) GetProduct(c *gin.Context) {
	p, err := h.store.GetProduct(c.Request.Context(), c.Param("sku"))
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			respondErr(c, http.StatusNotFound, "product not found")
			return
		}
		respondErr(c, http.StatusInternalServerError, "failed to load product")
		return
	}
	respondOK(c, p)
}
