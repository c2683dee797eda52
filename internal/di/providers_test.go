package di

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"serverless-kit/internal/config"
	"serverless-kit/internal/observability"
	"serverless-kit/pkg/ratelimit"
)

func TestProvideRateLimiter(t *testing.T) {
	tests := []struct {
		name    string
		backend string
		check   func(t *testing.T, l ratelimit.Limiter)
		wantErr bool
	}{
		{
			name:    "memory",
			backend: config.RateLimitMemory,
			check: func(t *testing.T, l ratelimit.Limiter) {
				assert.IsType(t, &ratelimit.SlidingWindow{}, l)
			},
		},
		{
			name:    "dynamodb",
			backend: config.RateLimitDynamoDB,
			check: func(t *testing.T, l ratelimit.Limiter) {
				assert.IsType(t, &ratelimit.DynamoDB{}, l)
			},
		},
		{
			name:    "redis",
			backend: config.RateLimitRedis,
			check: func(t *testing.T, l ratelimit.Limiter) {
				assert.IsType(t, &ratelimit.Redis{}, l)
			},
		},
		{name: "unknown", backend: "memcached", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.RateLimit.Backend = tt.backend
			cfg.RateLimit.RedisAddr = "localhost:6379"

			l, cleanup, err := ProvideRateLimiter(cfg, ProvideDynamoDBClient(aws.Config{Region: "us-east-1"}), zap.NewNop())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer cleanup()
			tt.check(t, l)
		})
	}
}

func TestProvideAuthenticator(t *testing.T) {
	ctx := context.Background()

	t.Run("Should leave routes open without a secret", func(t *testing.T) {
		v, err := ProvideAuthenticator(ctx, config.Default(), nil)
		require.NoError(t, err)
		assert.Nil(t, v)
		assert.Equal(t, "", ProvideRouterOptions(config.Default()).AdminRole)
	})

	t.Run("Should validate with an inline secret", func(t *testing.T) {
		cfg := config.Default()
		cfg.Auth.JWTSecret = "test-secret"

		v, err := ProvideAuthenticator(ctx, cfg, nil)
		require.NoError(t, err)
		assert.NotNil(t, v)
		assert.Equal(t, "admin", ProvideRouterOptions(cfg).AdminRole)
	})
}

func TestOptionalCollaborators(t *testing.T) {
	cfg := config.Default()
	awsCfg := aws.Config{Region: "us-east-1"}

	assert.Nil(t, ProvideNotifier(awsCfg, cfg))
	assert.Nil(t, ProvideEventPublisher(awsCfg, cfg, zap.NewNop()))
	assert.Nil(t, ProvideJobQueue(awsCfg, cfg))
	assert.Nil(t, ProvideExporter(awsCfg, cfg))
	assert.Nil(t, ProvideConnectionPusher(awsCfg, cfg))

	cfg.AWS.TopicARN = "arn:aws:sns:us-east-1:123456789012:signups"
	cfg.AWS.QueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/welcome"
	assert.NotNil(t, ProvideNotifier(awsCfg, cfg))
	assert.NotNil(t, ProvideJobQueue(awsCfg, cfg))
}

func TestProvidePipeline(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	cfg := config.Default()
	cfg.EnableMetrics = true
	cfg.Breaker.Enabled = true

	tp, cleanup, err := ProvideTracerProvider(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	collector := observability.NewCollector("test")
	recorder := ProvideMetricsRecorder(cfg, aws.Config{}, collector, zap.NewNop())
	assert.Same(t, collector, recorder)

	limiter, _, err := ProvideRateLimiter(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	p := ProvidePipeline(cfg, zap.NewNop(), tp, recorder, limiter, nil)
	assert.Equal(t, []string{"error-boundary", "logging", "metrics", "cors", "rate-limit", "circuit-breaker", "parse-body"}, p.Steps())
}
