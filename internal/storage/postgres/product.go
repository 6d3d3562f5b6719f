package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/kart-catalog/internal/domain/product"
)

const (
	productColumns = `id, name, description, price, image_ref, category, stock`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY name, id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) ORDER BY id`

	countProductsSQL = `SELECT count(*) FROM products`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			image_ref = EXCLUDED.image_ref,
			category = EXCLUDED.category,
			stock = EXCLUDED.stock`

	// Serializes ID assignment between concurrent inserts without an ID.
	lockProductIDsSQL = `SELECT pg_advisory_xact_lock(hashtext('products.id'))`

	nextProductIDSQL = `SELECT COALESCE(MAX(id), 0) + 1 FROM products`

	deleteProductSQL = `DELETE FROM products WHERE id = $1`

	deleteAllProductsSQL = `DELETE FROM products`
)

var _ product.Store = (*ProductStore)(nil)

// ProductStore implements product.Store backed by PostgreSQL.
type ProductStore struct {
	pool *pgxpool.Pool
}

// NewProductStore returns a ProductStore that uses the given pool.
func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

// List returns all products ordered by name, then ID.
func (s *ProductStore) List(ctx context.Context) ([]product.Product, error) {
	rows, err := s.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, unavailable("listing products", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, unavailable("listing products", err)
	}
	return list, nil
}

// GetByID returns a single product. It returns product.ErrNotFound when no
// row matches.
func (s *ProductStore) GetByID(ctx context.Context, id int64) (*product.Product, error) {
	rows, err := s.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, unavailable("getting product", err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, unavailable("getting product", err)
	}
	return &p, nil
}

// GetByIDs returns the products matching any of ids.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []int64) ([]product.Product, error) {
	rows, err := s.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, unavailable("getting products by ids", err)
	}
	list, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, unavailable("getting products by ids", err)
	}
	return list, nil
}

// Count returns the number of stored products.
func (s *ProductStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, countProductsSQL).Scan(&n); err != nil {
		return 0, unavailable("counting products", err)
	}
	return n, nil
}

// Insert writes p, replacing an existing row. When p.ID is zero the next ID
// after the current maximum is assigned.
func (s *ProductStore) Insert(ctx context.Context, p product.Product) (int64, error) {
	p = p.Normalize()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if p.ID == 0 {
			if _, err := tx.Exec(ctx, lockProductIDsSQL); err != nil {
				return err
			}
			if err := tx.QueryRow(ctx, nextProductIDSQL).Scan(&p.ID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, upsertProductSQL, productArgs(p)...)
		return err
	})
	if err != nil {
		return 0, unavailable("inserting product", err)
	}
	return p.ID, nil
}

// InsertMany writes every product in one transaction.
func (s *ProductStore) InsertMany(ctx context.Context, products []product.Product) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return upsertBatch(ctx, tx, products)
	})
	if err != nil {
		return unavailable("inserting products", err)
	}
	return nil
}

// Upsert applies p to the row with p.ID, creating it when missing.
func (s *ProductStore) Upsert(ctx context.Context, p product.Product) error {
	if _, err := s.pool.Exec(ctx, upsertProductSQL, productArgs(p.Normalize())...); err != nil {
		return unavailable("upserting product", err)
	}
	return nil
}

// Delete removes the product with id. Missing rows are ignored.
func (s *ProductStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.pool.Exec(ctx, deleteProductSQL, id); err != nil {
		return unavailable("deleting product", err)
	}
	return nil
}

// DeleteAll empties the products table.
func (s *ProductStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, deleteAllProductsSQL); err != nil {
		return unavailable("deleting all products", err)
	}
	return nil
}

// ReplaceAll swaps the table contents for products in one transaction.
func (s *ProductStore) ReplaceAll(ctx context.Context, products []product.Product) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteAllProductsSQL); err != nil {
			return err
		}
		return upsertBatch(ctx, tx, products)
	})
	if err != nil {
		return unavailable("replacing products", err)
	}
	return nil
}

func upsertBatch(ctx context.Context, tx pgx.Tx, products []product.Product) error {
	if len(products) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, p := range products {
		b.Queue(upsertProductSQL, productArgs(p.Normalize())...)
	}
	return tx.SendBatch(ctx, b).Close()
}

func productArgs(p product.Product) []any {
	return []any{p.ID, p.Name, p.Description, p.Price, p.ImageRef, p.Category, p.Stock}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.ImageRef, &p.Category, &p.Stock)
	return p, err
}
