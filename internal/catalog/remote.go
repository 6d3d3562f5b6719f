package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/xenking/kart-catalog/internal/catalogapi"
)

// Remote is the remote catalog service as seen by the Repository. Failures
// must be *catalogapi.Error values.
type Remote interface {
	ListAll(ctx context.Context) ([]catalogapi.Record, error)
	GetByID(ctx context.Context, id int64) (*catalogapi.Record, error)
	Create(ctx context.Context, r catalogapi.Record) (*catalogapi.Record, error)
	Update(ctx context.Context, id int64, r catalogapi.Record) (*catalogapi.Record, error)
	Delete(ctx context.Context, id int64) error
}

var _ Remote = (*catalogapi.Client)(nil)

// Offline is a Remote for deployments without a catalog service. Every call
// fails as unreachable, so reads are served from the local store.
type Offline struct{}

var errOffline = errors.New("no remote catalog configured")

func (Offline) offline(op string) error {
	return &catalogapi.Error{Op: op, Kind: catalogapi.KindUnreachable, Err: errOffline}
}

func (o Offline) ListAll(context.Context) ([]catalogapi.Record, error) {
	return nil, o.offline("list products")
}

func (o Offline) GetByID(context.Context, int64) (*catalogapi.Record, error) {
	return nil, o.offline("get product")
}

func (o Offline) Create(context.Context, catalogapi.Record) (*catalogapi.Record, error) {
	return nil, o.offline("create product")
}

func (o Offline) Update(context.Context, int64, catalogapi.Record) (*catalogapi.Record, error) {
	return nil, o.offline("update product")
}

func (o Offline) Delete(context.Context, int64) error {
	return o.offline("delete product")
}

// BreakerConfig controls the circuit breaker placed in front of a Remote.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker once exceeded.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
	// HalfOpenRequests is the number of trial calls allowed while half-open.
	HalfOpenRequests uint32
}

func (c *BreakerConfig) setDefaults() {
	if c.ConsecutiveFailures == 0 {
		c.ConsecutiveFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenRequests == 0 {
		c.HalfOpenRequests = 1
	}
}

type breakerRemote struct {
	next Remote
	cb   *gobreaker.CircuitBreaker[any]
}

// WithBreaker wraps next in a circuit breaker. While the breaker is open calls
// fail immediately as unreachable instead of waiting for the client timeout.
func WithBreaker(next Remote, cfg BreakerConfig, lg *zap.Logger) Remote {
	cfg.setDefaults()
	if lg == nil {
		lg = zap.NewNop()
	}
	st := gobreaker.Settings{
		Name:        "catalog-remote",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// A missing product is a valid answer from a healthy service, and a
			// caller that gave up says nothing about it.
			kind, _ := catalogapi.KindOf(err)
			return kind == catalogapi.KindNotFound || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	}
	return &breakerRemote{next: next, cb: gobreaker.NewCircuitBreaker[any](st)}
}

func guard[T any](b *breakerRemote, op string, fn func() (T, error)) (T, error) {
	var zero T
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = &catalogapi.Error{Op: op, Kind: catalogapi.KindUnreachable, Err: err}
		}
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}

func (b *breakerRemote) ListAll(ctx context.Context) ([]catalogapi.Record, error) {
	return guard(b, "list products", func() ([]catalogapi.Record, error) {
		return b.next.ListAll(ctx)
	})
}

func (b *breakerRemote) GetByID(ctx context.Context, id int64) (*catalogapi.Record, error) {
	return guard(b, "get product", func() (*catalogapi.Record, error) {
		return b.next.GetByID(ctx, id)
	})
}

func (b *breakerRemote) Create(ctx context.Context, r catalogapi.Record) (*catalogapi.Record, error) {
	return guard(b, "create product", func() (*catalogapi.Record, error) {
		return b.next.Create(ctx, r)
	})
}

func (b *breakerRemote) Update(ctx context.Context, id int64, r catalogapi.Record) (*catalogapi.Record, error) {
	return guard(b, "update product", func() (*catalogapi.Record, error) {
		return b.next.Update(ctx, id, r)
	})
}

func (b *breakerRemote) Delete(ctx context.Context, id int64) error {
	_, err := guard(b, "delete product", func() (struct{}, error) {
		return struct{}{}, b.next.Delete(ctx, id)
	})
	return err
}
