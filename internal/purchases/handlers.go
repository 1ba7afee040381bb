package purchases

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ktasci/quizserve/internal/auth"
	"github.com/ktasci/quizserve/internal/iap"
	"github.com/ktasci/quizserve/internal/logging"
	"github.com/ktasci/quizserve/internal/pagination"
	"github.com/ktasci/quizserve/internal/validation"
)

// Handlers provides HTTP endpoints for purchase verification.
type Handlers struct {
	service *Service
}

// NewHandlers creates purchase HTTP handlers.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers purchase endpoints on the given router group.
func (h *Handlers) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/purchases/verify/apple", h.VerifyApple)
	rg.POST("/purchases/verify/google", h.VerifyGoogle)
	rg.GET("/users/:id/purchases", h.ListUserPurchases)
}

// Responses carry an explicit error flag so a client never has to infer
// success from the presence or absence of fields.

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{"error": false, "data": data})
}

func respondErr(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": true, "message": message})
}

type verifyAppleRequest struct {
	User    int64  `json:"user"`
	Receipt string `json:"receipt"`
}

// VerifyApple handles POST /purchases/verify/apple
func (h *Handlers) VerifyApple(c *gin.Context) {
	var req verifyAppleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validation.Validate(
		validation.Positive("user", req.User),
		validation.Required("receipt", req.Receipt),
		validation.ValidBase64("receipt", req.Receipt),
		validation.MaxLength("receipt", req.Receipt, validation.MaxReceiptLength),
	); len(errs) > 0 {
		respondErr(c, http.StatusBadRequest, errs.Error())
		return
	}

	p, err := h.service.VerifyApple(c.Request.Context(), req.User, req.Receipt)
	if err != nil {
		h.respondVerifyError(c, err)
		return
	}
	respondOK(c, p)
}

type verifyGoogleRequest struct {
	User          int64  `json:"user"`
	PurchaseToken string `json:"purchaseToken"`
	PurchaseTime  int64  `json:"purchaseTime"`
	OrderID       string `json:"orderId"`
	ProductSKU    string `json:"productSku"`
}

// VerifyGoogle handles POST /purchases/verify/google
func (h *Handlers) VerifyGoogle(c *gin.Context) {
	var req verifyGoogleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondErr(c, http.StatusBadRequest, "invalid request body")
		return
	}

	if errs := validation.Validate(
		validation.Positive("user", req.User),
		validation.Required("purchaseToken", req.PurchaseToken),
		validation.Positive("purchaseTime", req.PurchaseTime),
		validation.Required("productSku", req.ProductSKU),
		validation.ValidSKU("productSku", req.ProductSKU),
	); len(errs) > 0 {
		respondErr(c, http.StatusBadRequest, errs.Error())
		return
	}

	p, err := h.service.VerifyGoogle(c.Request.Context(), req.User, req.ProductSKU, req.PurchaseToken, req.PurchaseTime)
	if err != nil {
		h.respondVerifyError(c, err)
		return
	}
	respondOK(c, p)
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ListUserPurchases handles GET /users/:id/purchases
// Supports cursor pagination via ?limit= and ?cursor=.
func (h *Handlers) ListUserPurchases(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		respondErr(c, http.StatusBadRequest, "invalid user id")
		return
	}

	// Token holders may only read their own history.
	if caller := auth.UserID(c); caller != 0 && caller != userID {
		respondErr(c, http.StatusForbidden, "cannot view another user's purchases")
		return
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxPageSize {
			respondErr(c, http.StatusBadRequest, "limit must be between 1 and 200")
			return
		}
	}
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		respondErr(c, http.StatusBadRequest, "invalid cursor")
		return
	}

	list, err := h.service.ListByUser(c.Request.Context(), userID)
	if err != nil {
		respondErr(c, http.StatusInternalServerError, "failed to list purchases")
		return
	}

	// The list is newest-first; a cursor marks the last item of the
	// previous page. Skip everything at or before it.
	if cursor != nil {
		start := len(list)
		for i, p := range list {
			if p.ID == cursor.ID {
				start = i + 1
				break
			}
			if p.CreatedAt.Before(cursor.CreatedAt) {
				start = i
				break
			}
		}
		list = list[start:]
	}

	if len(list) > limit+1 {
		list = list[:limit+1]
	}
	page, next, hasMore := pagination.ComputePage(list, limit, func(p *Purchase) (time.Time, string) {
		return p.CreatedAt, p.ID
	})
	if page == nil {
		page = []*Purchase{}
	}

	c.JSON(http.StatusOK, gin.H{
		"error":      false,
		"data":       page,
		"nextCursor": next,
		"hasMore":    hasMore,
	})
}

// respondVerifyError maps pipeline failures to HTTP statuses. Duplicates are
// reported as a rejection so a replayed receipt can never look like a fresh
// credit to the client.
func (h *Handlers) respondVerifyError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrDuplicate):
		respondErr(c, http.StatusConflict, "purchase already processed")
	case errors.Is(err, iap.ErrPlatformRejected):
		respondErr(c, http.StatusUnprocessableEntity, "receipt rejected by platform")
	case errors.Is(err, iap.ErrTimestampMismatch):
		respondErr(c, http.StatusUnprocessableEntity, "purchase time does not match platform record")
	case errors.Is(err, iap.ErrTransientNetwork):
		respondErr(c, http.StatusBadGateway, "platform temporarily unreachable, retry later")
	case errors.Is(err, iap.ErrNotConfigured):
		respondErr(c, http.StatusServiceUnavailable, "verification not available for this platform")
	default:
		logging.L(c.Request.Context()).Error("purchase verification failed", "error", err)
		respondErr(c, http.StatusInternalServerError, "verification failed")
	}
}
