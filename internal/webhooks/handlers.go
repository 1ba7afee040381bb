package webhooks

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ktasci/quizserve/internal/idgen"
)

// Handlers provides HTTP endpoints for managing webhook subscriptions.
// These are operator endpoints; the server mounts them behind auth.
type Handlers struct {
	store       Store
	validateURL func(string) error
}

// HandlerOption customizes webhook handlers.
type HandlerOption func(*Handlers)

// WithURLValidator adds an extra check on subscription URLs, on top of the
// scheme check. The server uses this to block SSRF targets.
func WithURLValidator(fn func(string) error) HandlerOption {
	return func(h *Handlers) {
		h.validateURL = fn
	}
}

// NewHandlers creates webhook HTTP handlers.
func NewHandlers(store Store, opts ...HandlerOption) *Handlers {
	h := &Handlers{store: store}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers webhook endpoints on the given router group.
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks", h.Create)
	rg.GET("/webhooks", h.List)
	rg.DELETE("/webhooks/:id", h.Delete)
}

type createRequest struct {
	URL    string      `json:"url" binding:"required"`
	Secret string      `json:"secret"`
	Events []EventType `json:"events" binding:"required"`
}

// Create handles POST /webhooks
func (h *Handlers) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "url and events are required"})
		return
	}

	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "url must be http or https"})
		return
	}
	if h.validateURL != nil {
		if err := h.validateURL(req.URL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "url rejected: " + err.Error()})
			return
		}
	}
	for _, e := range req.Events {
		if e != EventPurchaseRecorded && e != EventPurchaseDuplicate {
			c.JSON(http.StatusBadRequest, gin.H{"error": true, "message": "unknown event type: " + string(e)})
			return
		}
	}

	sub := &Subscription{
		ID:        idgen.WithPrefix("whk"),
		URL:       req.URL,
		Secret:    req.Secret,
		Events:    req.Events,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := h.store.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "failed to create subscription"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"error": false, "data": sub})
}

// List handles GET /webhooks
func (h *Handlers) List(c *gin.Context) {
	subs, err := h.store.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "failed to list subscriptions"})
		return
	}
	if subs == nil {
		subs = []*Subscription{}
	}
	c.JSON(http.StatusOK, gin.H{"error": false, "data": subs})
}

// Delete handles DELETE /webhooks/:id
func (h *Handlers) Delete(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.store.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": true, "message": "subscription not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "failed to load subscription"})
		return
	}

	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": true, "message": "failed to delete subscription"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"error": false})
}
