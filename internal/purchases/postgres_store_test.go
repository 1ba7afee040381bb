package purchases

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ktasci/quizserve/internal/testutil"
)

func TestPostgresStore_CreateAndGet(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	p := testPurchase(42, "pg-k1")
	if err := store.Create(ctx, p); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.GetByTransactionKey(ctx, "pg-k1")
	if err != nil {
		t.Fatalf("GetByTransactionKey: %v", err)
	}
	if got.UserID != 42 || got.ProductSKU != p.ProductSKU {
		t.Errorf("unexpected record %+v", got)
	}
	if !got.PurchaseTime.Equal(p.PurchaseTime) {
		t.Errorf("purchase time mismatch: %v vs %v", got.PurchaseTime, p.PurchaseTime)
	}

	if _, err := store.GetByTransactionKey(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStore_DuplicateKey(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Create(ctx, testPurchase(42, "pg-dup")); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	// Same key under a different user: still a duplicate.
	other := testPurchase(99, "pg-dup")
	other.ID = "pur_other"
	if err := store.Create(ctx, other); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	exists, err := store.ExistsForUser(ctx, 99, other.ProductSKU)
	if err != nil {
		t.Fatalf("ExistsForUser: %v", err)
	}
	if exists {
		t.Error("replayed transaction must not credit the second user")
	}
}

// The unique index, not the application, must arbitrate concurrent inserts.
func TestPostgresStore_ConcurrentCreateSameKey(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	const goroutines = 10
	var wg sync.WaitGroup
	results := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := testPurchase(int64(n+1), "pg-race")
			p.ID = "pur_race_" + string(rune('a'+n))
			results <- store.Create(ctx, p)
		}(i)
	}
	wg.Wait()
	close(results)

	var recorded, duplicates int
	for err := range results {
		switch {
		case err == nil:
			recorded++
		case errors.Is(err, ErrDuplicate):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if recorded != 1 {
		t.Errorf("expected exactly 1 recorded, got %d", recorded)
	}
	if duplicates != goroutines-1 {
		t.Errorf("expected %d duplicates, got %d", goroutines-1, duplicates)
	}

	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM purchases WHERE transaction_key = 'pg-race'`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 row for contested key, got %d", count)
	}
}

func TestPostgresStore_ListByUser(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	a := testPurchase(42, "pg-l1")
	a.ID = "pur_l1"
	b := testPurchase(42, "pg-l2")
	b.ID = "pur_l2"
	c := testPurchase(99, "pg-l3")
	c.ID = "pur_l3"
	for _, p := range []*Purchase{a, b, c} {
		if err := store.Create(ctx, p); err != nil {
			t.Fatalf("Create %s: %v", p.ID, err)
		}
	}

	list, err := store.ListByUser(ctx, 42)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 purchases, got %d", len(list))
	}

	list, err = store.ListByUser(ctx, 7)
	if err != nil {
		t.Fatalf("ListByUser empty: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected no purchases, got %d", len(list))
	}
}
