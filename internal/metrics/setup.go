package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ShutdownFunc flushes and stops the meter provider.
type ShutdownFunc func(ctx context.Context) error

// InitMeterProvider installs a global meter provider exporting over OTLP/gRPC
// to endpoint. With an empty endpoint the global no-op provider is kept.
func InitMeterProvider(ctx context.Context, endpoint string, interval time.Duration) (ShutdownFunc, error) {
	if endpoint == "" {
		log.Info().Msg("[Metrics] no OTLP endpoint configured, metrics are not exported")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(endpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	)
	otel.SetMeterProvider(mp)
	log.Info().Str("endpoint", endpoint).Dur("interval", interval).Msg("[Metrics] exporting over OTLP")
	return mp.Shutdown, nil
}
