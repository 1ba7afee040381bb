// Package iap verifies in-app purchase receipts against the store platforms.
//
// Verification model:
//   - Apple: the raw base64 receipt is posted to the verifyReceipt endpoint,
//     authenticated with an App Store Connect ES256 assertion
//   - Google: the purchase token is checked through the Android Publisher API
//     and acknowledged after the purchase is recorded
//
// Both verifiers reduce the platform response to a Receipt holding the facts
// the ledger needs, keyed by a transaction key that is unique per purchase
// across all users.
package iap

import (
	"errors"
	"time"
)

// Platform identifies the store a purchase originated from.
type Platform string

const (
	PlatformApple  Platform = "apple"
	PlatformGoogle Platform = "google"
)

// Errors
var (
	// ErrTransientNetwork marks failures reaching the platform; retryable.
	ErrTransientNetwork = errors.New("platform unreachable")
	// ErrPlatformRejected marks receipts the platform refused to validate.
	ErrPlatformRejected = errors.New("platform rejected receipt")
	// ErrTimestampMismatch marks a client-supplied purchase time that does
	// not match the platform's record.
	ErrTimestampMismatch = errors.New("purchase timestamp mismatch")
	// ErrNotConfigured marks a platform whose credentials are not set.
	ErrNotConfigured = errors.New("platform not configured")
)

// Receipt is the platform-confirmed view of a purchase.
type Receipt struct {
	Platform      Platform `json:"platform"`
	ProductSKU    string   `json:"productSku"`
	TransactionID string   `json:"transactionId"`
	// TransactionKey identifies the purchase across restores and replays.
	// Apple: original_transaction_id. Google: the purchase token.
	TransactionKey string    `json:"transactionKey"`
	PurchaseTime   time.Time `json:"purchaseTime"`
}
