package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// EnvOTLPEndpoint turns on metric export when set. The exporter reads it
// along with the other standard OTEL_EXPORTER_OTLP_* variables.
const EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"

// exportInterval is how often the periodic reader pushes metrics
const exportInterval = 15 * time.Second

// SetupMeterProvider installs an OTLP/gRPC exporting meter provider as the
// global provider when EnvOTLPEndpoint is set. The returned func flushes and
// stops it; without an endpoint nothing is installed and the func is a no-op.
func SetupMeterProvider(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	if os.Getenv(EnvOTLPEndpoint) == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlpmetricgrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	provider := InstallMeterProvider(sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(exportInterval),
	), serviceName)
	return provider.Shutdown, nil
}

// InstallMeterProvider sets an SDK meter provider reading through reader as the global provider.
func InstallMeterProvider(reader sdkmetric.Reader, serviceName string) *sdkmetric.MeterProvider {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(provider)
	return provider
}
