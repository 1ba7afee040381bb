// Package catalog serves the quiz categories and purchasable products.
//
// A category with a SKU is paid content: serving its questions requires a
// recorded purchase of that SKU. A category without a SKU is free.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrCategoryNotFound = errors.New("catalog: category not found")
	ErrProductNotFound  = errors.New("catalog: product not found")
)

// Category is a quiz category. SKU is empty for free categories.
type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Lang      string    `json:"lang"`
	SKU       string    `json:"sku,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Paid reports whether access to the category requires a purchase.
func (c *Category) Paid() bool { return c.SKU != "" }

// Product is a purchasable item shown in the store screen.
type Product struct {
	SKU         string    `json:"sku"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Lang        string    `json:"lang"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists catalog data.
type Store interface {
	GetCategory(ctx context.Context, id int64) (*Category, error)
	ListCategories(ctx context.Context, lang string) ([]*Category, error)
	GetProduct(ctx context.Context, sku string) (*Product, error)
	ListProducts(ctx context.Context, lang string) ([]*Product, error)
}
