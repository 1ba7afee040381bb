package iap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ktasci/quizserve/internal/logging"
	"github.com/ktasci/quizserve/internal/metrics"
	"github.com/ktasci/quizserve/internal/traces"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// purchaseStatePurchased is the androidpublisher state for a completed purchase.
const purchaseStatePurchased = 0

// GoogleVerifier validates Play Store purchase tokens through the Android
// Publisher API.
type GoogleVerifier struct {
	svc         *androidpublisher.Service
	packageName string
}

// NewGoogleVerifier authenticates to the Play Developer API with the given
// service-account credential. Extra options are appended after the credential
// so tests can point the client at a local server.
func NewGoogleVerifier(ctx context.Context, packageName, credentialsJSON string, extra ...option.ClientOption) (*GoogleVerifier, error) {
	opts := []option.ClientOption{}
	if credentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	opts = append(opts, extra...)

	svc, err := androidpublisher.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: androidpublisher client: %v", ErrNotConfigured, err)
	}
	return &GoogleVerifier{svc: svc, packageName: packageName}, nil
}

// Verify fetches the purchase for (sku, purchaseToken) and checks the
// client-claimed purchase time against the platform record. The client value
// is untrusted; a mismatch is treated as tampering and rejected.
func (g *GoogleVerifier) Verify(ctx context.Context, sku, purchaseToken string, claimedPurchaseTime int64) (*Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "iap.google.verify",
		traces.Platform(string(PlatformGoogle)), traces.SKU(sku))
	defer span.End()

	timer := prometheus.NewTimer(metrics.PlatformCallDuration.WithLabelValues(string(PlatformGoogle), "products_get"))
	purchase, err := g.svc.Purchases.Products.Get(g.packageName, sku, purchaseToken).Context(ctx).Do()
	timer.ObserveDuration()
	if err != nil {
		return nil, mapGoogleErr(err)
	}

	if purchase.PurchaseState != purchaseStatePurchased {
		return nil, fmt.Errorf("%w: purchase state %d", ErrPlatformRejected, purchase.PurchaseState)
	}

	if purchase.PurchaseTimeMillis != claimedPurchaseTime {
		logging.L(ctx).Warn("purchase time mismatch",
			"sku", sku,
			"claimed_ms", claimedPurchaseTime,
			"platform_ms", purchase.PurchaseTimeMillis)
		return nil, fmt.Errorf("%w: claimed %d, platform %d",
			ErrTimestampMismatch, claimedPurchaseTime, purchase.PurchaseTimeMillis)
	}

	return &Receipt{
		Platform:       PlatformGoogle,
		ProductSKU:     sku,
		TransactionID:  purchase.OrderId,
		TransactionKey: purchaseToken,
		PurchaseTime:   time.UnixMilli(purchase.PurchaseTimeMillis),
	}, nil
}

// Acknowledge confirms the purchase to the Play Store. Unacknowledged
// purchases are refunded by the platform after three days, so this must
// follow every successful verification. It is bookkeeping relative to the
// local ledger: a failure here does not invalidate the recorded entitlement.
func (g *GoogleVerifier) Acknowledge(ctx context.Context, sku, purchaseToken string) error {
	ctx, span := traces.StartSpan(ctx, "iap.google.acknowledge",
		traces.Platform(string(PlatformGoogle)), traces.SKU(sku))
	defer span.End()

	timer := prometheus.NewTimer(metrics.PlatformCallDuration.WithLabelValues(string(PlatformGoogle), "products_acknowledge"))
	err := g.svc.Purchases.Products.Acknowledge(
		g.packageName, sku, purchaseToken,
		&androidpublisher.ProductPurchasesAcknowledgeRequest{},
	).Context(ctx).Do()
	timer.ObserveDuration()
	if err != nil {
		return mapGoogleErr(err)
	}
	return nil
}

// mapGoogleErr folds googleapi errors into the verification taxonomy.
// 4xx means the platform looked at the token and refused it; anything else
// is a transport problem and safe to retry.
func mapGoogleErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 400 && apiErr.Code < 500 {
			return fmt.Errorf("%w: %s", ErrPlatformRejected, apiErr.Message)
		}
	}
	return fmt.Errorf("%w: %v", ErrTransientNetwork, err)
}
