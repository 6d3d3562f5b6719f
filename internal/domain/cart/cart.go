package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

// ErrOutOfStock is returned when adding a product whose stock is zero.
var ErrOutOfStock = errors.New("product out of stock")

// Line is one persisted cart row. Snapshot holds the product as it was when
// the line was last incremented and prices the line when the catalog's local
// store no longer has the product.
type Line struct {
	ProductID int64
	Quantity  int
	Snapshot  product.Product
	AddedAt   time.Time
}

// Item is a cart line joined with its current product.
type Item struct {
	Product  product.Product
	Quantity int
}

// Subtotal returns price × quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Product.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total sums the subtotals of items.
func Total(items []Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// Store is the local durable cart table, the sole authority for cart contents.
// Implementations publish a change signal after every committed write.
type Store interface {
	// Lines returns all lines ordered by the time they were first added.
	Lines(ctx context.Context) ([]Line, error)
	// Increment atomically creates the line for p with quantity 1 or adds one
	// unit to the existing line, refreshing its snapshot.
	Increment(ctx context.Context, p product.Product) (Line, error)
	// SetQuantity sets the quantity of an existing line. It reports whether
	// a line was updated.
	SetQuantity(ctx context.Context, productID int64, quantity int) (bool, error)
	Remove(ctx context.Context, productID int64) error
	Clear(ctx context.Context) error
	// Subscribe returns a channel signalled after each committed write. It is
	// closed when ctx is done.
	Subscribe(ctx context.Context) <-chan struct{}
}

// ProductLookup reads current products from the catalog's local store.
type ProductLookup interface {
	Cached(ctx context.Context, ids []int64) ([]product.Product, error)
}
