package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DefaultCategory is used when a product arrives without a category.
const DefaultCategory = "General"

var (
	// ErrNotFound is returned by stores when a requested product does not exist.
	ErrNotFound = errors.New("product not found")

	// ErrStoreUnavailable marks failures of the local durable store. There is no
	// fallback behind the local store, so callers must surface it.
	ErrStoreUnavailable = errors.New("local store unavailable")

	// ErrInvalid is returned when a product violates the catalog invariants.
	ErrInvalid = errors.New("invalid product")
)

// Product represents a catalog item. ID is the join key between the remote
// catalog and the local replica.
type Product struct {
	ID          int64
	Name        string
	Description string
	Price       decimal.Decimal
	ImageRef    string
	Category    string
	Stock       int
}

// InStock reports whether the product can be added to a cart.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Validate checks the price and stock invariants.
func (p Product) Validate() error {
	if p.Price.IsNegative() {
		return errors.Wrapf(ErrInvalid, "product %d: negative price %s", p.ID, p.Price)
	}
	if p.Stock < 0 {
		return errors.Wrapf(ErrInvalid, "product %d: negative stock %d", p.ID, p.Stock)
	}
	return nil
}

// Normalize fills defaults that the local tables require.
func (p Product) Normalize() Product {
	if p.Category == "" {
		p.Category = DefaultCategory
	}
	return p
}

// Store is the local durable product table. It is the cache of the last known
// catalog state and is owned by the catalog repository.
type Store interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	Count(ctx context.Context) (int, error)

	// Insert writes p, replacing any row with the same ID. A zero ID asks the
	// store to assign one. The stored ID is returned.
	Insert(ctx context.Context, p Product) (int64, error)
	InsertMany(ctx context.Context, products []Product) error
	// Upsert applies p to the row with p.ID, creating it when missing.
	Upsert(ctx context.Context, p Product) error
	Delete(ctx context.Context, id int64) error
	DeleteAll(ctx context.Context) error
	// ReplaceAll swaps the whole table for products in one write.
	ReplaceAll(ctx context.Context, products []Product) error
}
