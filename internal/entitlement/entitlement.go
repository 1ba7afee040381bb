// Package entitlement decides whether a user may access paid content.
//
// The gate is a pure read path: it resolves the category's SKU and checks the
// purchase ledger. It never mutates state.
package entitlement

import (
	"context"
	"fmt"

	"github.com/ktasci/quizserve/internal/catalog"
	"github.com/ktasci/quizserve/internal/metrics"
)

// DenyReason explains a denied access check.
type DenyReason string

const (
	// DenyMissingIdentity means paid content was requested without a user.
	DenyMissingIdentity DenyReason = "missing_identity"
	// DenyNotPurchased means the user holds no purchase for the SKU.
	DenyNotPurchased DenyReason = "not_purchased"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  DenyReason // set only when denied
	SKU     string     // the category's SKU, empty for free content
}

// CategoryResolver looks up a category's access requirements.
type CategoryResolver interface {
	GetCategory(ctx context.Context, id int64) (*catalog.Category, error)
}

// PurchaseChecker answers whether a user purchased a SKU.
type PurchaseChecker interface {
	HasPurchase(ctx context.Context, userID int64, sku string) (bool, error)
}

// Gate evaluates access to quiz categories.
type Gate struct {
	categories CategoryResolver
	purchases  PurchaseChecker
}

// NewGate creates an entitlement gate.
func NewGate(categories CategoryResolver, purchases PurchaseChecker) *Gate {
	return &Gate{categories: categories, purchases: purchases}
}

// CanAccess decides whether userID may access the category. A userID of zero
// means the request carried no identity; free categories still allow it.
func (g *Gate) CanAccess(ctx context.Context, categoryID, userID int64) (Decision, error) {
	cat, err := g.categories.GetCategory(ctx, categoryID)
	if err != nil {
		return Decision{}, fmt.Errorf("entitlement: resolve category %d: %w", categoryID, err)
	}

	if !cat.Paid() {
		metrics.EntitlementChecksTotal.WithLabelValues("allow_free").Inc()
		return Decision{Allowed: true}, nil
	}

	if userID <= 0 {
		metrics.EntitlementChecksTotal.WithLabelValues("deny_missing_identity").Inc()
		return Decision{Reason: DenyMissingIdentity, SKU: cat.SKU}, nil
	}

	owned, err := g.purchases.HasPurchase(ctx, userID, cat.SKU)
	if err != nil {
		return Decision{}, fmt.Errorf("entitlement: check purchase: %w", err)
	}
	if !owned {
		metrics.EntitlementChecksTotal.WithLabelValues("deny_not_purchased").Inc()
		return Decision{Reason: DenyNotPurchased, SKU: cat.SKU}, nil
	}

	metrics.EntitlementChecksTotal.WithLabelValues("allow_purchased").Inc()
	return Decision{Allowed: true, SKU: cat.SKU}, nil
}
