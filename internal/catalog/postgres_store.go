package catalog

import (
	"context"
	"database/sql"
)

// PostgresStore persists catalog data in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed catalog store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) GetCategory(ctx context.Context, id int64) (*Category, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, name, lang, sku, created_at
		FROM categories WHERE id = $1`, id)

	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, ErrCategoryNotFound
	}
	return c, err
}

func (p *PostgresStore) ListCategories(ctx context.Context, lang string) ([]*Category, error) {
	query := `SELECT id, name, lang, sku, created_at FROM categories`
	args := []interface{}{}
	if lang != "" {
		query += ` WHERE lang = $1`
		args = append(args, lang)
	}
	query += ` ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (p *PostgresStore) GetProduct(ctx context.Context, sku string) (*Product, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT sku, title, description, lang, created_at
		FROM products WHERE sku = $1`, sku)

	prod, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, ErrProductNotFound
	}
	return prod, err
}

func (p *PostgresStore) ListProducts(ctx context.Context, lang string) ([]*Product, error) {
	query := `SELECT sku, title, description, lang, created_at FROM products`
	args := []interface{}{}
	if lang != "" {
		query += ` WHERE lang = $1`
		args = append(args, lang)
	}
	query += ` ORDER BY sku`

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Product
	for rows.Next() {
		prod, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, prod)
	}
	return result, rows.Err()
}

// --- scanners ---

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanCategory(row scannable) (*Category, error) {
	var c Category
	var sku sql.NullString
	if err := row.Scan(&c.ID, &c.Name, &c.Lang, &sku, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.SKU = sku.String
	return &c, nil
}

func scanProduct(row scannable) (*Product, error) {
	var p Product
	var desc sql.NullString
	if err := row.Scan(&p.SKU, &p.Title, &desc, &p.Lang, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Description = desc.String
	return &p, nil
}
