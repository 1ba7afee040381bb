package purchases

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"

	"github.com/ktasci/quizserve/internal/iap"
)

// PostgresStore persists purchase records in PostgreSQL. The unique index on
// transaction_key is the arbiter for concurrent duplicate submissions.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed purchase store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, rec *Purchase) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO purchases (
			id, user_id, platform, product_sku,
			transaction_id, transaction_key, purchase_time, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, string(rec.Platform), rec.ProductSKU,
		rec.TransactionID, rec.TransactionKey, rec.PurchaseTime, rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (p *PostgresStore) GetByTransactionKey(ctx context.Context, key string) (*Purchase, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, user_id, platform, product_sku,
		       transaction_id, transaction_key, purchase_time, created_at
		FROM purchases WHERE transaction_key = $1`, key)

	rec, err := scanPurchase(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return rec, err
}

func (p *PostgresStore) ExistsForUser(ctx context.Context, userID int64, sku string) (bool, error) {
	var exists bool
	err := p.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM purchases WHERE user_id = $1 AND product_sku = $2
		)`, userID, sku).Scan(&exists)
	return exists, err
}

func (p *PostgresStore) ListByUser(ctx context.Context, userID int64) ([]*Purchase, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, user_id, platform, product_sku,
		       transaction_id, transaction_key, purchase_time, created_at
		FROM purchases
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Purchase
	for rows.Next() {
		rec, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// --- scanners ---

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPurchase(row scannable) (*Purchase, error) {
	var rec Purchase
	var platform string
	err := row.Scan(
		&rec.ID, &rec.UserID, &platform, &rec.ProductSKU,
		&rec.TransactionID, &rec.TransactionKey, &rec.PurchaseTime, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Platform = iap.Platform(platform)
	return &rec, nil
}
