//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"serverless-kit/internal/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideSecretsStore,
	ProvideStore,
	ProvideCollector,
	ProvideMetricsRecorder,
	ProvideTracerProvider,
	ProvideRateLimiter,
	ProvideAuthenticator,
	ProvidePipeline,
	ProvideRepository,
	ProvideNotifier,
	ProvideEventPublisher,
	ProvideJobQueue,
	ProvideExporter,
	ProvideConnectionPusher,
	ProvideConnectionRepository,
	ProvideService,
	ProvideHandlers,
	ProvideRouterOptions,
	ProvideRouter,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container. The cleanup releases
// connections and flushes telemetry.
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil // Wire will replace this
}
