package entitlement

import (
	"context"
	"errors"
	"testing"

	"github.com/ktasci/quizserve/internal/catalog"
)

type stubPurchases struct {
	owned map[string]bool
	err   error
}

func (s *stubPurchases) HasPurchase(_ context.Context, userID int64, sku string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.owned[sku], nil
}

func testGate(t *testing.T, owned map[string]bool) (*Gate, *catalog.MemoryStore) {
	t.Helper()
	store := catalog.NewMemoryStore()
	store.AddCategory(catalog.Category{ID: 1, Name: "Free", Lang: "en"})
	store.AddCategory(catalog.Category{ID: 2, Name: "Paid", Lang: "en", SKU: "S1"})
	return NewGate(store, &stubPurchases{owned: owned}), store
}

func TestCanAccess_FreeCategory(t *testing.T) {
	gate, _ := testGate(t, nil)

	// Free content allows everyone, identity or not.
	for _, userID := range []int64{0, 42} {
		d, err := gate.CanAccess(context.Background(), 1, userID)
		if err != nil {
			t.Fatalf("CanAccess(user=%d): %v", userID, err)
		}
		if !d.Allowed {
			t.Errorf("expected Allow for free category, user %d", userID)
		}
	}
}

func TestCanAccess_PaidMissingIdentity(t *testing.T) {
	gate, _ := testGate(t, nil)

	d, err := gate.CanAccess(context.Background(), 2, 0)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected Deny for paid category without identity")
	}
	if d.Reason != DenyMissingIdentity {
		t.Errorf("expected DenyMissingIdentity, got %q", d.Reason)
	}
}

func TestCanAccess_PaidNotPurchased(t *testing.T) {
	gate, _ := testGate(t, map[string]bool{})

	d, err := gate.CanAccess(context.Background(), 2, 42)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected Deny without purchase")
	}
	if d.Reason != DenyNotPurchased {
		t.Errorf("expected DenyNotPurchased, got %q", d.Reason)
	}
}

func TestCanAccess_PaidPurchased(t *testing.T) {
	gate, _ := testGate(t, map[string]bool{"S1": true})

	d, err := gate.CanAccess(context.Background(), 2, 42)
	if err != nil {
		t.Fatalf("CanAccess: %v", err)
	}
	if !d.Allowed {
		t.Errorf("expected Allow after purchase, got deny %q", d.Reason)
	}
	if d.SKU != "S1" {
		t.Errorf("expected resolved sku S1, got %q", d.SKU)
	}
}

func TestCanAccess_UnknownCategory(t *testing.T) {
	gate, _ := testGate(t, nil)

	_, err := gate.CanAccess(context.Background(), 99, 42)
	if !errors.Is(err, catalog.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestCanAccess_LedgerError(t *testing.T) {
	store := catalog.NewMemoryStore()
	store.AddCategory(catalog.Category{ID: 2, Name: "Paid", Lang: "en", SKU: "S1"})
	gate := NewGate(store, &stubPurchases{err: errors.New("db down")})

	if _, err := gate.CanAccess(context.Background(), 2, 42); err == nil {
		t.Fatal("expected ledger error to propagate")
	}
}
