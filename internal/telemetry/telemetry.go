// Package telemetry wires a real OpenTelemetry metrics provider so the
// instruments router.New registers under otel.Meter("router") actually
// record instead of binding to the global no-op meter.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	apimetric "go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Init constructs an SDK-backed MeterProvider scoped to serviceName, installs
// it as the process-global provider, and returns a shutdown func that must
// run before the process exits to flush any pending readers.
func Init(ctx context.Context, serviceName string) (apimetric.MeterProvider, func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	shutdown := func(ctx context.Context) error {
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown meter provider: %w", err)
		}
		return nil
	}
	return mp, shutdown, nil
}
