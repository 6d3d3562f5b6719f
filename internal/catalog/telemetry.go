package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "kart/catalog"

type metrics struct {
	remoteFailures metric.Int64Counter
	fallbacks      metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (metrics, error) {
	meter := mp.Meter(instrumentationName)

	remoteFailures, err := meter.Int64Counter("catalog.remote.failures",
		metric.WithDescription("Failed calls to the remote catalog service by failure kind"),
	)
	if err != nil {
		return metrics{}, errors.Wrap(err, "remote failures counter")
	}
	fallbacks, err := meter.Int64Counter("catalog.fallbacks",
		metric.WithDescription("Reads served from the local store instead of the remote catalog"),
	)
	if err != nil {
		return metrics{}, errors.Wrap(err, "fallbacks counter")
	}

	return metrics{
		remoteFailures: remoteFailures,
		fallbacks:      fallbacks,
	}, nil
}

func (m metrics) remoteFailed(ctx context.Context, kind string) {
	m.remoteFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m metrics) fellBack(ctx context.Context, op string) {
	m.fallbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
