// Package purchases records verified in-app purchases and answers
// entitlement lookups against them.
//
// A purchase enters the ledger only after the originating platform confirmed
// the receipt. Each record is keyed by the platform transaction key and that
// key is unique across all users, so a replayed or restored receipt can never
// credit a second account.
package purchases

import (
	"context"
	"errors"
	"time"

	"github.com/ktasci/quizserve/internal/iap"
)

var (
	// ErrDuplicate means the transaction key is already in the ledger.
	ErrDuplicate = errors.New("purchases: transaction already recorded")
	// ErrNotFound means no purchase matched the lookup.
	ErrNotFound = errors.New("purchases: not found")
)

// Purchase is one verified, recorded in-app purchase.
type Purchase struct {
	ID            string       `json:"id"`
	UserID        int64        `json:"userId"`
	Platform      iap.Platform `json:"platform"`
	ProductSKU    string       `json:"productSku"`
	TransactionID string       `json:"transactionId"`
	// TransactionKey is the platform's durable identifier for the purchase
	// (Apple original_transaction_id, Google purchase token). Unique across
	// the whole ledger.
	TransactionKey string    `json:"transactionKey"`
	PurchaseTime   time.Time `json:"purchaseTime"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Store persists purchase records.
//
// Create must enforce TransactionKey uniqueness at the storage level and
// return ErrDuplicate on conflict. An application-side pre-check is allowed
// as an optimization but is not the safety mechanism: concurrent creates for
// the same key must still collapse to one stored record.
type Store interface {
	Create(ctx context.Context, p *Purchase) error
	GetByTransactionKey(ctx context.Context, key string) (*Purchase, error)
	ExistsForUser(ctx context.Context, userID int64, sku string) (bool, error)
	ListByUser(ctx context.Context, userID int64) ([]*Purchase, error)
}
