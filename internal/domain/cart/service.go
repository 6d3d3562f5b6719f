package cart

import (
	"context"
	"iter"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

// Service is the cart repository. It is local-only: every operation either
// succeeds against the cart store or fails with the store's error.
type Service struct {
	store    Store
	products ProductLookup
	lg       *zap.Logger
}

// NewService creates a cart Service. products prices the lines; a nil logger
// disables logging.
func NewService(store Store, products ProductLookup, lg *zap.Logger) *Service {
	if lg == nil {
		lg = zap.NewNop()
	}
	return &Service{
		store:    store,
		products: products,
		lg:       lg.Named("cart"),
	}
}

// AddProduct adds one unit of p, creating the line on first add.
func (s *Service) AddProduct(ctx context.Context, p product.Product) error {
	if !p.InStock() {
		return errors.Wrapf(ErrOutOfStock, "add product %d", p.ID)
	}

	line, err := s.store.Increment(ctx, p)
	if err != nil {
		return errors.Wrapf(err, "add product %d", p.ID)
	}

	s.lg.Debug("Product added",
		zap.Int64("product_id", p.ID),
		zap.Int("quantity", line.Quantity),
	)
	return nil
}

// SetQuantity sets the line quantity to exactly quantity. A non-positive
// quantity removes the line. Setting the quantity of a product that is not in
// the cart does nothing.
func (s *Service) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	if quantity <= 0 {
		return s.RemoveProduct(ctx, productID)
	}

	updated, err := s.store.SetQuantity(ctx, productID, quantity)
	if err != nil {
		return errors.Wrapf(err, "set quantity of product %d", productID)
	}
	if !updated {
		s.lg.Debug("Quantity change for absent line ignored", zap.Int64("product_id", productID))
	}
	return nil
}

// RemoveProduct deletes the line for productID. A missing line is not an error.
func (s *Service) RemoveProduct(ctx context.Context, productID int64) error {
	if err := s.store.Remove(ctx, productID); err != nil {
		return errors.Wrapf(err, "remove product %d", productID)
	}
	return nil
}

// ClearCart deletes every line.
func (s *Service) ClearCart(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

// Items returns the current lines joined with their products.
func (s *Service) Items(ctx context.Context) ([]Item, error) {
	lines, err := s.store.Lines(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	if len(lines) == 0 {
		return []Item{}, nil
	}

	ids := make([]int64, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}

	current, err := s.products.Cached(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "look up cart products")
	}
	byID := make(map[int64]product.Product, len(current))
	for _, p := range current {
		byID[p.ID] = p
	}

	items := make([]Item, len(lines))
	for i, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			p = l.Snapshot
			p.ID = l.ProductID
		}
		items[i] = Item{Product: p, Quantity: l.Quantity}
	}
	return items, nil
}

// Total returns the sum of subtotals of the current cart.
func (s *Service) Total(ctx context.Context) (decimal.Decimal, error) {
	items, err := s.Items(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return Total(items), nil
}

// ObserveCart returns a live view of the cart. Each iteration subscribes to the
// cart store, yields the current snapshot, and yields again after every
// committed write until ctx is done or the consumer stops. Storage failures
// are yielded as errors and observation continues with the next change.
func (s *Service) ObserveCart(ctx context.Context) iter.Seq2[[]Item, error] {
	return func(yield func([]Item, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		// Subscribe before the first read so no write slips between them.
		changes := s.store.Subscribe(ctx)
		for {
			items, err := s.Items(ctx)
			if err != nil && ctx.Err() != nil {
				return
			}
			if !yield(items, err) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-changes:
				if !ok {
					return
				}
			}
		}
	}
}

// ObserveTotal yields the cart total for every ObserveCart emission.
func (s *Service) ObserveTotal(ctx context.Context) iter.Seq2[decimal.Decimal, error] {
	return func(yield func(decimal.Decimal, error) bool) {
		for items, err := range s.ObserveCart(ctx) {
			if err != nil {
				if !yield(decimal.Zero, err) {
					return
				}
				continue
			}
			if !yield(Total(items), nil) {
				return
			}
		}
	}
}
