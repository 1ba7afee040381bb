package iap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/awa/go-iap/appstore"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ktasci/quizserve/internal/logging"
	"github.com/ktasci/quizserve/internal/metrics"
	"github.com/ktasci/quizserve/internal/traces"
)

// AppleVerifier validates App Store receipts through the go-iap
// verifyReceipt client.
type AppleVerifier struct {
	client       *appstore.Client
	httpClient   *http.Client
	endpoint     string
	sharedSecret string
	assertions   *AssertionIssuer
}

// AppleOption customizes an AppleVerifier.
type AppleOption func(*AppleVerifier)

// WithAppleEndpoint overrides the verification URL (tests).
func WithAppleEndpoint(url string) AppleOption {
	return func(v *AppleVerifier) { v.endpoint = url }
}

// WithAppleHTTPClient overrides the HTTP client.
func WithAppleHTTPClient(c *http.Client) AppleOption {
	return func(v *AppleVerifier) { v.httpClient = c }
}

// NewAppleVerifier creates a verifier against the sandbox or production
// endpoint. The assertion issuer signs the App Store Connect bearer token
// attached to every call.
func NewAppleVerifier(sharedSecret string, sandbox bool, assertions *AssertionIssuer, opts ...AppleOption) *AppleVerifier {
	v := &AppleVerifier{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		sharedSecret: sharedSecret,
		assertions:   assertions,
	}
	for _, opt := range opts {
		opt(v)
	}

	base := v.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client := appstore.NewWithClient(&http.Client{
		Timeout:   v.httpClient.Timeout,
		Transport: &assertionTransport{issuer: assertions, base: base},
	})
	if sandbox {
		client.ProductionURL = client.SandboxURL
	}
	if v.endpoint != "" {
		client.ProductionURL = v.endpoint
		client.SandboxURL = v.endpoint
	}
	v.client = client
	return v
}

// assertionTransport attaches a fresh bearer assertion to every outbound
// verifyReceipt call.
type assertionTransport struct {
	issuer *AssertionIssuer
	base   http.RoundTripper
}

func (t *assertionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.issuer.Assertion()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(req)
}

// verifyReceiptResponse narrows the verifyReceipt reply to the fields the
// pipeline consumes. go-iap decodes into whatever shape it is given.
type verifyReceiptResponse struct {
	Status  int `json:"status"`
	Receipt struct {
		InApp []appstore.InApp `json:"in_app"`
	} `json:"receipt"`
}

// Verify posts the receipt to Apple and returns the normalized purchase facts.
// A non-zero status from Apple is ErrPlatformRejected; failures reaching the
// endpoint are ErrTransientNetwork. The 21007 environment-mismatch status is
// retried against the sandbox by the client itself.
func (v *AppleVerifier) Verify(ctx context.Context, receiptData string) (*Receipt, error) {
	ctx, span := traces.StartSpan(ctx, "iap.apple.verify", traces.Platform(string(PlatformApple)))
	defer span.End()

	req := appstore.IAPRequest{
		ReceiptData:            receiptData,
		Password:               v.sharedSecret,
		ExcludeOldTransactions: true,
	}

	var parsed verifyReceiptResponse
	timer := prometheus.NewTimer(metrics.PlatformCallDuration.WithLabelValues(string(PlatformApple), "verify_receipt"))
	err := v.client.Verify(ctx, req, &parsed)
	timer.ObserveDuration()
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return nil, fmt.Errorf("%w: assertion signing failed", ErrNotConfigured)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransientNetwork, err)
	}

	if parsed.Status != 0 {
		logging.L(ctx).Warn("apple rejected receipt",
			"status", parsed.Status, "reason", appstore.HandleError(parsed.Status))
		return nil, fmt.Errorf("%w: status %d", ErrPlatformRejected, parsed.Status)
	}

	entry, ok := newestEntry(parsed.Receipt.InApp)
	if !ok {
		return nil, fmt.Errorf("%w: receipt contains no in-app purchases", ErrPlatformRejected)
	}

	ms, err := strconv.ParseInt(entry.PurchaseDateMS, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad purchase_date_ms %q", ErrPlatformRejected, entry.PurchaseDateMS)
	}

	return &Receipt{
		Platform:       PlatformApple,
		ProductSKU:     entry.ProductID,
		TransactionID:  entry.TransactionID,
		TransactionKey: string(entry.OriginalTransactionID),
		PurchaseTime:   time.UnixMilli(ms),
	}, nil
}

// newestEntry picks the in-app entry with the highest purchase_date_ms.
// Receipts carry the full renewal history; the newest entry reflects the
// purchase the client is submitting now. Equal timestamps fall back to the
// highest transaction_id so the pick never depends on array order. Entries
// with unparseable timestamps lose to any parseable one.
func newestEntry(entries []appstore.InApp) (appstore.InApp, bool) {
	if len(entries) == 0 {
		return appstore.InApp{}, false
	}
	best := entries[0]
	bestMS, _ := strconv.ParseInt(best.PurchaseDateMS, 10, 64)
	for _, e := range entries[1:] {
		ms, err := strconv.ParseInt(e.PurchaseDateMS, 10, 64)
		if err != nil {
			continue
		}
		if ms > bestMS || (ms == bestMS && e.TransactionID > best.TransactionID) {
			best = e
			bestMS = ms
		}
	}
	return best, true
}
