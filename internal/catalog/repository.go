// Package catalog implements the product catalog repository: reads prefer the
// remote catalog service and fall back to the local store, writes always land
// in the local store and reach the remote service on a best-effort basis.
package catalog

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/catalogapi"
	"github.com/xenking/kart-catalog/internal/domain/cart"
	"github.com/xenking/kart-catalog/internal/domain/product"
)

// Options configures a Repository.
type Options struct {
	// RefreshLocalOnRemoteSuccess writes successful remote reads into the
	// local store. Off by default: the local store is then warmed only by
	// seeding and by repository writes.
	RefreshLocalOnRemoteSuccess bool

	Logger         *zap.Logger
	MeterProvider  metric.MeterProvider
	TracerProvider trace.TracerProvider
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = metricnoop.NewMeterProvider()
	}
	if o.TracerProvider == nil {
		o.TracerProvider = tracenoop.NewTracerProvider()
	}
}

var _ cart.ProductLookup = (*Repository)(nil)

// Repository is the catalog repository. It owns the local product store.
type Repository struct {
	remote  Remote
	store   product.Store
	refresh bool

	lg      *zap.Logger
	tracer  trace.Tracer
	metrics metrics
}

// New creates a Repository. A nil remote means no catalog service is
// configured and every read is served locally.
func New(remote Remote, store product.Store, opts Options) (*Repository, error) {
	opts.setDefaults()
	if remote == nil {
		remote = Offline{}
	}

	m, err := newMetrics(opts.MeterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "create metrics")
	}

	return &Repository{
		remote:  remote,
		store:   store,
		refresh: opts.RefreshLocalOnRemoteSuccess,
		lg:      opts.Logger.Named("catalog"),
		tracer:  opts.TracerProvider.Tracer(instrumentationName),
		metrics: m,
	}, nil
}

// ListProducts returns the remote catalog when it answers with at least one
// product and the local store otherwise. The only error it returns is a local
// store failure.
func (r *Repository) ListProducts(ctx context.Context) ([]product.Product, error) {
	ctx, span := r.tracer.Start(ctx, "catalog.ListProducts")
	defer span.End()

	records, err := r.remote.ListAll(ctx)
	switch {
	case err != nil:
		if err := r.abandoned(ctx, span, "list"); err != nil {
			return nil, err
		}
		r.remoteFailed(ctx, "list", err)
	case len(records) == 0:
		r.lg.Debug("Remote catalog returned no products")
	default:
		products := make([]product.Product, len(records))
		for i, rec := range records {
			products[i] = rec.Product()
		}
		if r.refresh {
			if err := r.store.ReplaceAll(ctx, products); err != nil {
				r.lg.Error("Refresh local catalog", zap.Error(err))
			}
		}
		span.SetAttributes(attribute.String("catalog.source", "remote"))
		return products, nil
	}

	r.fellBack(ctx, span, "list")
	products, err := r.store.List(ctx)
	if err != nil {
		return nil, r.localFailed(span, "list local products", err)
	}
	if products == nil {
		products = []product.Product{}
	}
	return products, nil
}

// GetProduct returns the product with id, or nil when neither the remote
// service nor the local store has it.
func (r *Repository) GetProduct(ctx context.Context, id int64) (*product.Product, error) {
	ctx, span := r.tracer.Start(ctx, "catalog.GetProduct",
		trace.WithAttributes(attribute.Int64("product.id", id)),
	)
	defer span.End()

	rec, err := r.remote.GetByID(ctx, id)
	if err == nil && rec != nil {
		p := rec.Product()
		if r.refresh {
			if err := r.store.Upsert(ctx, p); err != nil {
				r.lg.Error("Refresh local product", zap.Int64("product_id", id), zap.Error(err))
			}
		}
		span.SetAttributes(attribute.String("catalog.source", "remote"))
		return &p, nil
	}
	if err != nil {
		if err := r.abandoned(ctx, span, "get"); err != nil {
			return nil, err
		}
		r.remoteFailed(ctx, "get", err)
	}

	r.fellBack(ctx, span, "get")
	p, err := r.store.GetByID(ctx, id)
	switch {
	case errors.Is(err, product.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, r.localFailed(span, "get local product", err)
	}
	return p, nil
}

// CreateProduct sends p to the remote service and then stores it locally,
// preferring the fields the service confirmed. The local ID is returned.
func (r *Repository) CreateProduct(ctx context.Context, p product.Product) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "catalog.CreateProduct")
	defer span.End()

	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return 0, err
	}

	if rec, err := r.remote.Create(ctx, catalogapi.RecordFrom(p)); err != nil {
		if err := r.abandoned(ctx, span, "create"); err != nil {
			return 0, err
		}
		r.remoteFailed(ctx, "create", err)
	} else if rec != nil {
		p = rec.Product()
	}

	id, err := r.store.Insert(ctx, p)
	if err != nil {
		return 0, r.localFailed(span, "insert local product", err)
	}
	span.SetAttributes(attribute.Int64("product.id", id))
	return id, nil
}

// UpdateProduct sends p to the remote service and applies it to the local
// store regardless of the remote outcome.
func (r *Repository) UpdateProduct(ctx context.Context, p product.Product) error {
	ctx, span := r.tracer.Start(ctx, "catalog.UpdateProduct",
		trace.WithAttributes(attribute.Int64("product.id", p.ID)),
	)
	defer span.End()

	p = p.Normalize()
	if err := p.Validate(); err != nil {
		return err
	}

	if _, err := r.remote.Update(ctx, p.ID, catalogapi.RecordFrom(p)); err != nil {
		if err := r.abandoned(ctx, span, "update"); err != nil {
			return err
		}
		r.remoteFailed(ctx, "update", err)
	}

	if err := r.store.Upsert(ctx, p); err != nil {
		return r.localFailed(span, "update local product", err)
	}
	return nil
}

// DeleteProduct removes p from the remote service and from the local store
// regardless of the remote outcome.
func (r *Repository) DeleteProduct(ctx context.Context, p product.Product) error {
	ctx, span := r.tracer.Start(ctx, "catalog.DeleteProduct",
		trace.WithAttributes(attribute.Int64("product.id", p.ID)),
	)
	defer span.End()

	if err := r.remote.Delete(ctx, p.ID); err != nil {
		if err := r.abandoned(ctx, span, "delete"); err != nil {
			return err
		}
		r.remoteFailed(ctx, "delete", err)
	}

	if err := r.store.Delete(ctx, p.ID); err != nil {
		return r.localFailed(span, "delete local product", err)
	}
	return nil
}

// ClearLocalCache empties the local store. The remote service is untouched.
func (r *Repository) ClearLocalCache(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "catalog.ClearLocalCache")
	defer span.End()

	if err := r.store.DeleteAll(ctx); err != nil {
		return r.localFailed(span, "clear local products", err)
	}
	r.lg.Info("Local catalog cleared")
	return nil
}

// Cached returns the locally stored products among ids. It never calls the
// remote service.
func (r *Repository) Cached(ctx context.Context, ids []int64) ([]product.Product, error) {
	products, err := r.store.GetByIDs(ctx, ids)
	if err != nil {
		if isContextErr(err) {
			return nil, errors.Wrap(err, "get local products")
		}
		return nil, storeUnavailable("get local products", err)
	}
	return products, nil
}

// Seed inserts products into the local store when it is empty and reports
// how many were written.
func (r *Repository) Seed(ctx context.Context, products []product.Product) (int, error) {
	ctx, span := r.tracer.Start(ctx, "catalog.Seed")
	defer span.End()

	n, err := r.store.Count(ctx)
	if err != nil {
		return 0, r.localFailed(span, "count local products", err)
	}
	if n > 0 {
		r.lg.Debug("Local catalog already populated, skipping seed", zap.Int("count", n))
		return 0, nil
	}

	for _, p := range products {
		if err := p.Validate(); err != nil {
			return 0, errors.Wrap(err, "seed")
		}
	}
	if err := r.store.InsertMany(ctx, products); err != nil {
		return 0, r.localFailed(span, "seed local products", err)
	}

	r.lg.Info("Local catalog seeded", zap.Int("count", len(products)))
	return len(products), nil
}

func (r *Repository) remoteFailed(ctx context.Context, op string, err error) {
	kind, ok := catalogapi.KindOf(err)
	name := "unknown"
	if ok {
		name = kind.String()
	}
	r.metrics.remoteFailed(ctx, name)

	if kind == catalogapi.KindNotFound {
		r.lg.Debug("Product not found remotely", zap.String("op", op))
		return
	}
	r.lg.Warn("Remote catalog call failed",
		zap.String("op", op),
		zap.String("kind", name),
		zap.Error(err),
	)
}

func (r *Repository) fellBack(ctx context.Context, span trace.Span, op string) {
	r.metrics.fellBack(ctx, op)
	span.SetAttributes(attribute.String("catalog.source", "local"))
}

// abandoned returns the caller's context error when the caller gave up during
// the remote call. Nothing is read or written locally in that case.
func (r *Repository) abandoned(ctx context.Context, span trace.Span, op string) error {
	err := ctx.Err()
	if err == nil {
		return nil
	}
	span.SetAttributes(attribute.Bool("catalog.abandoned", true))
	r.lg.Debug("Caller gave up during remote call", zap.String("op", op), zap.Error(err))
	return errors.Wrap(err, op)
}

func (r *Repository) localFailed(span trace.Span, op string, err error) error {
	if isContextErr(err) {
		return errors.Wrap(err, op)
	}
	err = storeUnavailable(op, err)
	span.RecordError(err)
	span.SetStatus(codes.Error, "local store unavailable")
	r.lg.Error("Local catalog store failed", zap.String("op", op), zap.Error(err))
	return err
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// storeUnavailable makes sure every local failure matches
// product.ErrStoreUnavailable.
func storeUnavailable(op string, err error) error {
	if errors.Is(err, product.ErrStoreUnavailable) {
		return errors.Wrap(err, op)
	}
	return fmt.Errorf("%s: %w: %w", op, product.ErrStoreUnavailable, err)
}
