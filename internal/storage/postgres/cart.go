package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-catalog/internal/domain/cart"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/pkg/notify"
)

const (
	cartLineColumns = `product_id, quantity, name, description, price, image_ref, category, stock, added_at`

	listCartLinesSQL = `SELECT ` + cartLineColumns + ` FROM cart_lines ORDER BY added_at, product_id`

	// The conflict clause makes the existence check and the increment one
	// atomic statement.
	incrementCartLineSQL = `INSERT INTO cart_lines
			(product_id, quantity, name, description, price, image_ref, category, stock)
		VALUES ($1, 1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (product_id) DO UPDATE SET
			quantity = cart_lines.quantity + 1,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			image_ref = EXCLUDED.image_ref,
			category = EXCLUDED.category,
			stock = EXCLUDED.stock
		RETURNING ` + cartLineColumns

	setCartLineQuantitySQL = `UPDATE cart_lines SET quantity = $2 WHERE product_id = $1`

	deleteCartLineSQL = `DELETE FROM cart_lines WHERE product_id = $1`

	deleteAllCartLinesSQL = `DELETE FROM cart_lines`
)

var _ cart.Store = (*CartStore)(nil)

// CartStore implements cart.Store backed by PostgreSQL. Change signals are
// delivered to subscribers of this instance after each committed write.
type CartStore struct {
	pool *pgxpool.Pool
	hub  *notify.Hub
}

// NewCartStore returns a CartStore that uses the given pool.
func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool, hub: notify.NewHub()}
}

// Lines returns all cart lines ordered by the time they were first added.
func (s *CartStore) Lines(ctx context.Context) ([]cart.Line, error) {
	rows, err := s.pool.Query(ctx, listCartLinesSQL)
	if err != nil {
		return nil, unavailable("listing cart lines", err)
	}
	lines, err := pgx.CollectRows(rows, scanCartLine)
	if err != nil {
		return nil, unavailable("listing cart lines", err)
	}
	return lines, nil
}

// Increment inserts the line for p with quantity 1 or adds one unit to it.
func (s *CartStore) Increment(ctx context.Context, p product.Product) (cart.Line, error) {
	p = p.Normalize()
	rows, err := s.pool.Query(ctx, incrementCartLineSQL,
		p.ID, p.Name, p.Description, p.Price, p.ImageRef, p.Category, p.Stock,
	)
	if err != nil {
		return cart.Line{}, unavailable("incrementing cart line", err)
	}
	line, err := pgx.CollectExactlyOneRow(rows, scanCartLine)
	if err != nil {
		return cart.Line{}, unavailable("incrementing cart line", err)
	}

	s.hub.Publish()
	return line, nil
}

// SetQuantity updates the quantity of an existing line.
func (s *CartStore) SetQuantity(ctx context.Context, productID int64, quantity int) (bool, error) {
	tag, err := s.pool.Exec(ctx, setCartLineQuantitySQL, productID, quantity)
	if err != nil {
		return false, unavailable("setting cart line quantity", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	s.hub.Publish()
	return true, nil
}

// Remove deletes the line for productID.
func (s *CartStore) Remove(ctx context.Context, productID int64) error {
	tag, err := s.pool.Exec(ctx, deleteCartLineSQL, productID)
	if err != nil {
		return unavailable("deleting cart line", err)
	}
	if tag.RowsAffected() > 0 {
		s.hub.Publish()
	}
	return nil
}

// Clear deletes every line.
func (s *CartStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, deleteAllCartLinesSQL); err != nil {
		return unavailable("clearing cart", err)
	}

	s.hub.Publish()
	return nil
}

// Subscribe returns a channel signalled after each committed write.
func (s *CartStore) Subscribe(ctx context.Context) <-chan struct{} {
	return s.hub.Subscribe(ctx)
}

func scanCartLine(row pgx.CollectableRow) (cart.Line, error) {
	var l cart.Line
	err := row.Scan(
		&l.ProductID, &l.Quantity,
		&l.Snapshot.Name, &l.Snapshot.Description, &l.Snapshot.Price,
		&l.Snapshot.ImageRef, &l.Snapshot.Category, &l.Snapshot.Stock,
		&l.AddedAt,
	)
	l.Snapshot.ID = l.ProductID
	return l, err
}
