package clients

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_CONFIG_FILE", "/dev/null")
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", "/dev/null")

	t.Run("Should apply region and endpoint", func(t *testing.T) {
		cfg, err := LoadConfig(context.Background(), Options{Region: "eu-west-1", Endpoint: "http://localhost:4566"})
		require.NoError(t, err)

		assert.Equal(t, "eu-west-1", cfg.Region)
		assert.Equal(t, "http://localhost:4566", aws.ToString(cfg.BaseEndpoint))
		assert.Empty(t, cfg.APIOptions)
	})

	t.Run("Should instrument clients when tracing", func(t *testing.T) {
		cfg, err := LoadConfig(context.Background(), Options{Region: "us-east-1", Tracing: true})
		require.NoError(t, err)

		assert.Nil(t, cfg.BaseEndpoint)
		assert.NotEmpty(t, cfg.APIOptions)
	})
}
