package app

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-catalog/internal/catalog"
	"github.com/xenking/kart-catalog/internal/catalogapi"
	"github.com/xenking/kart-catalog/internal/domain/cart"
	"github.com/xenking/kart-catalog/internal/domain/product"
	"github.com/xenking/kart-catalog/internal/handler"
	"github.com/xenking/kart-catalog/internal/storage/memory"
	"github.com/xenking/kart-catalog/internal/storage/postgres"
	"github.com/xenking/kart-catalog/pkg/health"
	"github.com/xenking/kart-catalog/pkg/httpmiddleware"
)

// Stores are the two local tables shared by the repositories.
type Stores struct {
	Products product.Store
	Carts    cart.Store
	// Ping reports local store reachability. Nil for in-process stores.
	Ping health.Pinger

	close func()
}

// Close releases the underlying connections.
func (s *Stores) Close() {
	if s.close != nil {
		s.close()
	}
}

// OpenStores constructs the local stores selected by cfg.
func OpenStores(ctx context.Context, cfg StorageConfig) (*Stores, error) {
	switch cfg.Driver {
	case DriverMemory:
		return &Stores{
			Products: memory.NewProductStore(),
			Carts:    memory.NewCartStore(),
		}, nil
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		return &Stores{
			Products: postgres.NewProductStore(pool),
			Carts:    postgres.NewCartStore(pool),
			Ping:     pool,
			close:    pool.Close,
		}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// NewCatalog builds the catalog repository over products, talking to the
// remote service when one is configured.
func NewCatalog(lg *zap.Logger, m *app.Telemetry, cfg CatalogConfig, products product.Store) (*catalog.Repository, error) {
	var remote catalog.Remote
	if cfg.BaseURL != "" {
		client, err := catalogapi.New(cfg.BaseURL, catalogapi.Options{
			Timeout:        cfg.Timeout,
			TracerProvider: m.TracerProvider(),
			MeterProvider:  m.MeterProvider(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "create catalog client")
		}
		remote = client
		if cfg.Breaker.Enabled {
			remote = catalog.WithBreaker(remote, catalog.BreakerConfig{
				ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
				OpenTimeout:         cfg.Breaker.OpenTimeout,
			}, lg)
		}
	} else {
		lg.Warn("No remote catalog configured, serving the local store only")
	}

	return catalog.New(remote, products, catalog.Options{
		RefreshLocalOnRemoteSuccess: cfg.RefreshLocalOnRemoteSuccess,
		Logger:                      lg,
		MeterProvider:               m.MeterProvider(),
		TracerProvider:              m.TracerProvider(),
	})
}

// SeedCatalog fills an empty local catalog from the configured seed source.
func SeedCatalog(ctx context.Context, lg *zap.Logger, cfg CatalogConfig, repo *catalog.Repository) error {
	var (
		products []product.Product
		err      error
	)
	switch {
	case cfg.SeedFile != "":
		products, err = catalog.LoadSeedFile(cfg.SeedFile)
	case cfg.SeedDefaults:
		products, err = catalog.DefaultSeed()
	default:
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "load seed")
	}

	n, err := repo.Seed(ctx, products)
	if err != nil {
		return errors.Wrap(err, "seed catalog")
	}
	if n > 0 {
		lg.Info("Seeded local catalog", zap.Int("products", n))
	}
	return nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("catalog", cfg.Catalog.BaseURL),
	)

	stores, err := OpenStores(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer stores.Close()

	catalogRepo, err := NewCatalog(lg, m, cfg.Catalog, stores.Products)
	if err != nil {
		return errors.Wrap(err, "create catalog")
	}
	if err := SeedCatalog(ctx, lg, cfg.Catalog, catalogRepo); err != nil {
		return err
	}
	cartSvc := cart.NewService(stores.Carts, catalogRepo, lg)

	healthSvc := health.New(lg)
	if stores.Ping != nil {
		healthSvc.AddReadiness(health.Check{
			Name:    "local-store",
			Timeout: 5 * time.Second,
			Func:    health.PingCheck(stores.Ping),
		})
	}
	healthSvc.AddLiveness(health.Check{
		Name: "goroutines",
		Func: health.GoroutineCountCheck(10000),
	})
	healthSvc.Start(ctx, 10*time.Second)
	defer healthSvc.Stop()
	healthSvc.SetReady(true)

	// Request contexts outlive the drain delay and end when Shutdown starts,
	// which closes open event streams.
	baseCtx, cancelRequests := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRequests()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.New(catalogRepo, cartSvc).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// No WriteTimeout: /api/cart/events streams for the life of the client.
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("kart-api", httpmiddleware.MakeRouteFinder(mux), m.TracerProvider(), m.MeterProvider()),
			httpmiddleware.LogRequests(),
		),
	}

	server.RegisterOnShutdown(cancelRequests)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	return g.Wait()
}
