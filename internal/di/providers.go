package di

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awssecretsmanager "github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"serverless-kit/internal/aws/clients"
	"serverless-kit/internal/aws/messaging"
	"serverless-kit/internal/aws/objects"
	"serverless-kit/internal/aws/secrets"
	"serverless-kit/internal/aws/storage"
	"serverless-kit/internal/config"
	"serverless-kit/internal/observability"
	"serverless-kit/internal/subscribers"
	"serverless-kit/pkg/auth"
	apperrors "serverless-kit/pkg/errors"
	"serverless-kit/pkg/middleware"
	"serverless-kit/pkg/ratelimit"
	"serverless-kit/pkg/response"
)

const rateLimitKeyPrefix = "RATELIMIT#"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Environment, cfg.LogLevel)
}

// ProvideAWSConfig creates AWS configuration. SDK calls are traced by X-Ray
// only inside Lambda, where the runtime provides the parent segment.
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return clients.LoadConfig(ctx, clients.Options{
		Region:   cfg.AWS.Region,
		Endpoint: cfg.AWS.Endpoint,
		Tracing:  cfg.EnableTracing && config.IsLambda(),
	})
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideSecretsStore creates a cached Secrets Manager reader.
func ProvideSecretsStore(awsCfg aws.Config, logger *zap.Logger) *secrets.Store {
	return secrets.NewStore(awssecretsmanager.NewFromConfig(awsCfg), secrets.DefaultTTL, logger)
}

// ProvideStore creates the table accessor shared by repositories.
func ProvideStore(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *storage.Store {
	return storage.NewStore(client, cfg.AWS.TableName, logger)
}

// ProvideCollector creates the Prometheus collector. The namespace is the
// service name with dashes replaced, as Prometheus requires.
func ProvideCollector(cfg *config.Config) *observability.Collector {
	return observability.NewCollector(strings.ReplaceAll(cfg.ServiceName, "-", "_"))
}

// ProvideMetricsRecorder returns nil when metrics are disabled. Inside
// Lambda, request metrics also go to CloudWatch since nothing scrapes the
// Prometheus registry there.
func ProvideMetricsRecorder(cfg *config.Config, awsCfg aws.Config, collector *observability.Collector, logger *zap.Logger) middleware.MetricsRecorder {
	if !cfg.EnableMetrics {
		return nil
	}
	if config.IsLambda() {
		return observability.MultiRecorder{
			collector,
			observability.NewCloudWatchRecorderFromConfig(cfg.ServiceName, awsCfg, logger),
		}
	}
	return collector
}

// ProvideTracerProvider initialises OpenTelemetry. The cleanup flushes
// buffered spans.
func ProvideTracerProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, func(), error) {
	endpoint := ""
	if cfg.EnableTracing {
		endpoint = cfg.OTLPEndpoint
	}
	tp, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.Environment, endpoint)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			logger.Warn("Failed to shut down tracer provider", zap.Error(err))
		}
	}
	return tp, cleanup, nil
}

// ProvideRateLimiter selects the limiter backend named in the config.
func ProvideRateLimiter(cfg *config.Config, client *awsdynamodb.Client, logger *zap.Logger) (ratelimit.Limiter, func(), error) {
	rl := cfg.RateLimit
	switch rl.Backend {
	case config.RateLimitMemory:
		return ratelimit.NewSlidingWindow(rl.Max, rl.Window, ratelimit.WithMaxKeys(rl.MaxKeys)), func() {}, nil
	case config.RateLimitDynamoDB:
		return ratelimit.NewDynamoDB(client, cfg.AWS.TableName, rl.Max, rl.Window, rateLimitKeyPrefix), func() {}, nil
	case config.RateLimitRedis:
		rdb := redis.NewClient(&redis.Options{Addr: rl.RedisAddr})
		cleanup := func() {
			if err := rdb.Close(); err != nil {
				logger.Warn("Failed to close redis client", zap.Error(err))
			}
		}
		return ratelimit.NewRedis(rdb, rateLimitKeyPrefix, rl.Max, rl.Window), cleanup, nil
	default:
		return nil, nil, fmt.Errorf("unknown rate limit backend %q", rl.Backend)
	}
}

// ProvideAuthenticator builds the bearer token validator. It returns nil
// when no signing secret is configured, which leaves routes open. A secret
// name wins over an inline secret.
func ProvideAuthenticator(ctx context.Context, cfg *config.Config, store *secrets.Store) (auth.TokenValidator, error) {
	if !cfg.Auth.Enabled() {
		return nil, nil
	}

	secret := cfg.Auth.JWTSecret
	if cfg.Auth.JWTSecretName != "" {
		var err error
		secret, err = store.Get(ctx, cfg.Auth.JWTSecretName)
		if err != nil {
			return nil, fmt.Errorf("failed to load JWT secret: %w", err)
		}
	}

	var audience []string
	if cfg.Auth.JWTAudience != "" {
		audience = strings.Split(cfg.Auth.JWTAudience, ",")
	}
	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     secret,
		Issuer:        cfg.Auth.JWTIssuer,
		Audience:      audience,
	})
	if err != nil {
		return nil, err
	}
	return validator, nil
}

// ProvidePipeline assembles the standard middleware pipeline.
func ProvidePipeline(
	cfg *config.Config,
	logger *zap.Logger,
	tp *observability.TracerProvider,
	recorder middleware.MetricsRecorder,
	limiter ratelimit.Limiter,
	authenticator auth.TokenValidator,
) *middleware.Pipeline {
	deps := middleware.StandardDeps{
		Logger:        logger,
		Mapper:        apperrors.NewMapper(logger, cfg.IsProduction()),
		Builder:       response.NewBuilder(),
		CORSMaxAge:    cfg.CORSMaxAge,
		Metrics:       recorder,
		Limiter:       limiter,
		RateLimitKey:  middleware.BySourceIP,
		Authenticator: authenticator,
	}
	if cfg.EnableTracing {
		deps.Tracer = tp.Tracer()
	}
	if cfg.Breaker.Enabled {
		deps.CircuitBreaker = &middleware.CircuitBreakerConfig{
			Name:             cfg.ServiceName,
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			MinRequests:      cfg.Breaker.MinRequests,
		}
	}
	return middleware.Standard(deps)
}

// ProvideRepository creates the subscriber repository.
func ProvideRepository(store *storage.Store) *subscribers.Repository {
	return subscribers.NewRepository(store)
}

// ProvideNotifier returns nil when no topic is configured.
func ProvideNotifier(awsCfg aws.Config, cfg *config.Config) subscribers.Notifier {
	if cfg.AWS.TopicARN == "" {
		return nil
	}
	return messaging.NewNotifier(awssns.NewFromConfig(awsCfg), cfg.AWS.TopicARN)
}

// ProvideEventPublisher returns nil when no event bus is configured.
func ProvideEventPublisher(awsCfg aws.Config, cfg *config.Config, logger *zap.Logger) subscribers.EventPublisher {
	if cfg.AWS.EventBusName == "" {
		return nil
	}
	return messaging.NewEventPublisher(awseventbridge.NewFromConfig(awsCfg), cfg.AWS.EventBusName, cfg.ServiceName, logger)
}

// ProvideJobQueue returns nil when no queue is configured.
func ProvideJobQueue(awsCfg aws.Config, cfg *config.Config) subscribers.JobQueue {
	if cfg.AWS.QueueURL == "" {
		return nil
	}
	return messaging.NewQueue(awssqs.NewFromConfig(awsCfg), cfg.AWS.QueueURL)
}

// ProvideExporter returns nil when no export bucket is configured.
func ProvideExporter(awsCfg aws.Config, cfg *config.Config) subscribers.Exporter {
	if cfg.AWS.BucketName == "" {
		return nil
	}
	return objects.NewBucketFromConfig(awsCfg, cfg.AWS.BucketName)
}

// ProvideConnectionPusher returns nil when no WebSocket API is configured,
// which turns the live feed off.
func ProvideConnectionPusher(awsCfg aws.Config, cfg *config.Config) subscribers.Broadcaster {
	if cfg.AWS.WebSocketEndpoint == "" {
		return nil
	}
	return messaging.NewConnectionPusherForEndpoint(awsCfg, cfg.AWS.WebSocketEndpoint)
}

// ProvideConnectionRepository creates the live-feed connection store.
func ProvideConnectionRepository(store *storage.Store) *subscribers.ConnectionRepository {
	return subscribers.NewConnectionRepository(store)
}

// ProvideService wires the subscriber use cases.
func ProvideService(
	repo *subscribers.Repository,
	notifier subscribers.Notifier,
	events subscribers.EventPublisher,
	queue subscribers.JobQueue,
	exporter subscribers.Exporter,
	feed subscribers.Broadcaster,
	connections *subscribers.ConnectionRepository,
	collector *observability.Collector,
	logger *zap.Logger,
) *subscribers.Service {
	return subscribers.NewService(subscribers.Deps{
		Store:       repo,
		Notifier:    notifier,
		Events:      events,
		Queue:       queue,
		Exporter:    exporter,
		Feed:        feed,
		Connections: connections,
		Created:     collector.SubscribersCreated,
		Deleted:     collector.SubscribersDeleted,
		Logger:      logger,
	})
}

// ProvideHandlers creates the HTTP-facing handlers.
func ProvideHandlers(service *subscribers.Service) *subscribers.Handlers {
	return subscribers.NewHandlers(service)
}

// ProvideRouterOptions requires the admin role for destructive routes only
// when tokens are validated.
func ProvideRouterOptions(cfg *config.Config) subscribers.RouterOptions {
	if !cfg.Auth.Enabled() {
		return subscribers.RouterOptions{}
	}
	return subscribers.RouterOptions{AdminRole: cfg.Auth.AdminRole}
}

// ProvideRouter creates the route table.
func ProvideRouter(h *subscribers.Handlers, opts subscribers.RouterOptions) *subscribers.Router {
	return subscribers.NewRouter(h, opts)
}
