package purchases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ktasci/quizserve/internal/circuitbreaker"
	"github.com/ktasci/quizserve/internal/iap"
	"github.com/ktasci/quizserve/internal/idgen"
	"github.com/ktasci/quizserve/internal/logging"
	"github.com/ktasci/quizserve/internal/metrics"
	"github.com/ktasci/quizserve/internal/retry"
	"github.com/ktasci/quizserve/internal/traces"
)

// AppleClient verifies App Store receipts.
type AppleClient interface {
	Verify(ctx context.Context, receiptData string) (*iap.Receipt, error)
}

// GoogleClient verifies and acknowledges Play Store purchases.
type GoogleClient interface {
	Verify(ctx context.Context, sku, purchaseToken string, claimedPurchaseTime int64) (*iap.Receipt, error)
	Acknowledge(ctx context.Context, sku, purchaseToken string) error
}

// Notifier receives purchase lifecycle events. Implementations fan out to
// webhooks and websocket subscribers; they must not block.
type Notifier interface {
	PurchaseRecorded(ctx context.Context, p *Purchase)
	DuplicateRejected(ctx context.Context, platform iap.Platform, transactionKey string)
}

// Service runs the verification pipeline: platform call, ledger insert,
// then platform acknowledgment where required. The platform call always
// completes and is accepted before any ledger write is attempted.
type Service struct {
	store    Store
	apple    AppleClient
	google   GoogleClient
	notifier Notifier
	breaker  *circuitbreaker.Breaker
}

// Option configures a Service.
type Option func(*Service)

// WithApple enables the Apple verification path.
func WithApple(c AppleClient) Option {
	return func(s *Service) { s.apple = c }
}

// WithGoogle enables the Google verification path.
func WithGoogle(c GoogleClient) Option {
	return func(s *Service) { s.google = c }
}

// WithNotifier sets the purchase event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates a purchase service. Platforms left unconfigured reject
// verification attempts with iap.ErrNotConfigured.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyApple validates an App Store receipt and records the purchase.
func (s *Service) VerifyApple(ctx context.Context, userID int64, receiptData string) (*Purchase, error) {
	ctx, span := traces.StartSpan(ctx, "purchases.verify_apple", traces.UserID(userID))
	defer span.End()

	if s.apple == nil {
		metrics.VerificationsTotal.WithLabelValues(string(iap.PlatformApple), "not_configured").Inc()
		return nil, fmt.Errorf("%w: apple", iap.ErrNotConfigured)
	}

	if !s.breaker.Allow(string(iap.PlatformApple)) {
		metrics.VerificationsTotal.WithLabelValues(string(iap.PlatformApple), "transient").Inc()
		return nil, fmt.Errorf("%w: apple verification suspended", iap.ErrTransientNetwork)
	}

	receipt, err := s.apple.Verify(ctx, receiptData)
	s.observePlatformCall(iap.PlatformApple, err)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(string(iap.PlatformApple), resultLabel(err)).Inc()
		return nil, err
	}

	return s.record(ctx, userID, receipt)
}

// VerifyGoogle validates a Play Store purchase token and records the
// purchase. Acknowledgment to the platform runs after the ledger insert and
// is best-effort: the recorded entitlement stands even if it fails.
func (s *Service) VerifyGoogle(ctx context.Context, userID int64, sku, purchaseToken string, claimedPurchaseTime int64) (*Purchase, error) {
	ctx, span := traces.StartSpan(ctx, "purchases.verify_google",
		traces.UserID(userID), traces.SKU(sku))
	defer span.End()

	if s.google == nil {
		metrics.VerificationsTotal.WithLabelValues(string(iap.PlatformGoogle), "not_configured").Inc()
		return nil, fmt.Errorf("%w: google", iap.ErrNotConfigured)
	}

	if !s.breaker.Allow(string(iap.PlatformGoogle)) {
		metrics.VerificationsTotal.WithLabelValues(string(iap.PlatformGoogle), "transient").Inc()
		return nil, fmt.Errorf("%w: google verification suspended", iap.ErrTransientNetwork)
	}

	receipt, err := s.google.Verify(ctx, sku, purchaseToken, claimedPurchaseTime)
	s.observePlatformCall(iap.PlatformGoogle, err)
	if err != nil {
		metrics.VerificationsTotal.WithLabelValues(string(iap.PlatformGoogle), resultLabel(err)).Inc()
		return nil, err
	}

	p, err := s.record(ctx, userID, receipt)
	if err != nil {
		return nil, err
	}

	s.acknowledge(ctx, sku, purchaseToken)
	return p, nil
}

// observePlatformCall feeds the circuit breaker. Only network trouble counts
// as a failure; a definitive rejection is a healthy upstream answering no.
func (s *Service) observePlatformCall(platform iap.Platform, err error) {
	if errors.Is(err, iap.ErrTransientNetwork) {
		s.breaker.RecordFailure(string(platform))
		return
	}
	s.breaker.RecordSuccess(string(platform))
}

// record inserts the verified purchase into the ledger. The store's
// uniqueness constraint on the transaction key is the race arbiter: of two
// concurrent inserts for the same key, exactly one succeeds.
func (s *Service) record(ctx context.Context, userID int64, receipt *iap.Receipt) (*Purchase, error) {
	platform := string(receipt.Platform)

	p := &Purchase{
		ID:             idgen.Purchase(),
		UserID:         userID,
		Platform:       receipt.Platform,
		ProductSKU:     receipt.ProductSKU,
		TransactionID:  receipt.TransactionID,
		TransactionKey: receipt.TransactionKey,
		PurchaseTime:   receipt.PurchaseTime,
		CreatedAt:      time.Now(),
	}

	if err := s.store.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicate) {
			metrics.VerificationsTotal.WithLabelValues(platform, "duplicate").Inc()
			metrics.DuplicateRejectionsTotal.WithLabelValues(platform).Inc()
			logging.L(ctx).Info("duplicate purchase rejected",
				"transaction_key", p.TransactionKey, "user_id", userID)
			if s.notifier != nil {
				s.notifier.DuplicateRejected(ctx, receipt.Platform, p.TransactionKey)
			}
			return nil, ErrDuplicate
		}
		metrics.VerificationsTotal.WithLabelValues(platform, "persistence_error").Inc()
		return nil, fmt.Errorf("purchases: store purchase: %w", err)
	}

	metrics.VerificationsTotal.WithLabelValues(platform, "recorded").Inc()
	metrics.PurchasesRecordedTotal.WithLabelValues(platform).Inc()
	logging.L(ctx).Info("purchase recorded",
		"purchase_id", p.ID,
		"platform", platform,
		"sku", p.ProductSKU,
		"transaction_key", p.TransactionKey)

	if s.notifier != nil {
		s.notifier.PurchaseRecorded(ctx, p)
	}
	return p, nil
}

// acknowledge confirms the purchase to the Play Store with a few retries.
// Failures are logged, never surfaced: the ledger insert already succeeded.
func (s *Service) acknowledge(ctx context.Context, sku, purchaseToken string) {
	err := retry.Do(ctx, 3, 500*time.Millisecond, func() error {
		err := s.google.Acknowledge(ctx, sku, purchaseToken)
		if err != nil && !errors.Is(err, iap.ErrTransientNetwork) {
			return retry.Permanent(err)
		}
		return err
	})
	if err != nil {
		logging.L(ctx).Error("google acknowledge failed after ledger insert",
			"sku", sku, "error", err)
	}
}

// HasPurchase reports whether the user holds a recorded purchase for the SKU.
func (s *Service) HasPurchase(ctx context.Context, userID int64, sku string) (bool, error) {
	return s.store.ExistsForUser(ctx, userID, sku)
}

// ListByUser returns all purchases recorded for a user.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*Purchase, error) {
	return s.store.ListByUser(ctx, userID)
}

// resultLabel maps a verification error onto a metrics label.
func resultLabel(err error) string {
	switch {
	case errors.Is(err, iap.ErrPlatformRejected):
		return "platform_rejected"
	case errors.Is(err, iap.ErrTimestampMismatch):
		return "timestamp_mismatch"
	case errors.Is(err, iap.ErrTransientNetwork):
		return "transient"
	case errors.Is(err, iap.ErrNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}
