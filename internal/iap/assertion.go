package iap

import (
	"crypto/ecdsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// assertionAudience is the audience App Store Connect expects.
const assertionAudience = "appstoreconnect-v1"

// assertionTTL is the lifetime of an issued assertion. Apple rejects
// assertions valid for longer than this.
const assertionTTL = time.Hour

// AssertionIssuer mints short-lived ES256 assertions for App Store Connect.
// A fresh assertion is produced per call; assertions are never cached because
// the nonce must be unique per request.
type AssertionIssuer struct {
	issuerID string
	keyID    string
	bundleID string
	key      *ecdsa.PrivateKey

	now func() time.Time // injectable for tests
}

// NewAssertionIssuer parses the PEM-encoded ES256 private key downloaded from
// App Store Connect and returns an issuer bound to the given key and bundle.
func NewAssertionIssuer(issuerID, keyID, bundleID string, pemKey []byte) (*AssertionIssuer, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(pemKey)
	if err != nil {
		return nil, fmt.Errorf("parse App Store Connect key: %w", err)
	}
	return &AssertionIssuer{
		issuerID: issuerID,
		keyID:    keyID,
		bundleID: bundleID,
		key:      key,
		now:      time.Now,
	}, nil
}

// Assertion returns a freshly signed assertion token.
func (a *AssertionIssuer) Assertion() (string, error) {
	now := a.now()
	claims := jwt.MapClaims{
		"iss":   a.issuerID,
		"iat":   now.Unix(),
		"exp":   now.Add(assertionTTL).Unix(),
		"aud":   assertionAudience,
		"nonce": uuid.NewString(),
		"bid":   a.bundleID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = a.keyID

	signed, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}
