// Command seed-db fills the local PostgreSQL catalog from seed files.
//
//	seed-db [-database-url URL] [-replace] [file.json | file.json.gz ...]
//
// Without files the built-in products are used. By default the catalog is only
// seeded when empty; -replace swaps its contents for the seed.
package main

import (
	"context"
	"flag"
	"os"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		replace     bool
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.BoolVar(&replace, "replace", false, "replace the local catalog instead of seeding only when empty")
	flag.Parse()
	files := flag.Args()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}

	app.Run(func(ctx context.Context, lg *zap.Logger, _ *app.Telemetry) error {
		if databaseURL == "" {
			return errors.New("database URL is required: set -database-url or DATABASE_URL")
		}
		return run(ctx, lg, databaseURL, files, replace)
	})
}

func run(ctx context.Context, lg *zap.Logger, databaseURL string, files []string, replace bool) error {
	products, err := loadProducts(lg, files)
	if err != nil {
		return err
	}

	lg.Info("Connecting to database")
	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := postgres.NewProductStore(pool)
	if replace {
		if err := store.ReplaceAll(ctx, products); err != nil {
			return errors.Wrap(err, "replace products")
		}
		lg.Info("Replaced local catalog", zap.Int("products", len(products)))
		return nil
	}

	repo, err := catalog.New(nil, store, catalog.Options{Logger: lg})
	if err != nil {
		return errors.Wrap(err, "create catalog")
	}
	n, err := repo.Seed(ctx, products)
	if err != nil {
		return errors.Wrap(err, "seed products")
	}
	if n == 0 {
		lg.Info("Local catalog is not empty, nothing seeded (use -replace to overwrite)")
		return nil
	}
	lg.Info("Seeded local catalog", zap.Int("products", n))
	return nil
}

// loadProducts reads every file concurrently and merges them; a later file
// overrides products with the same ID.
func loadProducts(lg *zap.Logger, files []string) ([]product.Product, error) {
	if len(files) == 0 {
		lg.Info("No seed files given, using built-in products")
		return catalog.DefaultSeed()
	}

	loaded := make([][]product.Product, len(files))
	var g errgroup.Group
	for i, path := range files {
		g.Go(func() error {
			products, err := catalog.LoadSeedFile(path)
			if err != nil {
				return err
			}
			lg.Info("Loaded seed file", zap.String("path", path), zap.Int("products", len(products)))
			loaded[i] = products
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[int64]product.Product)
	for _, products := range loaded {
		for _, p := range products {
			byID[p.ID] = p
		}
	}
	merged := make([]product.Product, 0, len(byID))
	for _, p := range byID {
		merged = append(merged, p)
	}
	slices.SortFunc(merged, func(a, b product.Product) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return merged, nil
}
