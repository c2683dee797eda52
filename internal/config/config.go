// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rate limiter backends.
const (
	RateLimitMemory   = "memory"
	RateLimitDynamoDB = "dynamodb"
	RateLimitRedis    = "redis"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServiceName   string `yaml:"serviceName"`
	ServerAddress string `yaml:"serverAddress"`
	Environment   string `yaml:"environment"`
	LogLevel      string `yaml:"logLevel"`

	AWS       AWSConfig       `yaml:"aws"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Breaker   BreakerConfig   `yaml:"breaker"`

	CORSMaxAge int `yaml:"corsMaxAge"`

	// Feature flags
	EnableMetrics bool   `yaml:"enableMetrics"`
	EnableTracing bool   `yaml:"enableTracing"`
	OTLPEndpoint  string `yaml:"otlpEndpoint"`

	// ConfigFile is the YAML overlay this configuration was read from, if any.
	ConfigFile string `yaml:"-"`
}

// AWSConfig names the region, an optional endpoint override for local stacks
// and the resources the service talks to.
type AWSConfig struct {
	Region            string `yaml:"region"`
	Endpoint          string `yaml:"endpoint"`
	TableName         string `yaml:"tableName"`
	TopicARN          string `yaml:"topicArn"`
	QueueURL          string `yaml:"queueUrl"`
	EventBusName      string `yaml:"eventBusName"`
	BucketName        string `yaml:"bucketName"`
	WebSocketEndpoint string `yaml:"webSocketEndpoint"`
}

// AuthConfig configures bearer token validation. JWTSecretName, when set,
// names a Secrets Manager secret that takes precedence over JWTSecret.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwtSecret"`
	JWTSecretName string `yaml:"jwtSecretName"`
	JWTIssuer     string `yaml:"jwtIssuer"`
	JWTAudience   string `yaml:"jwtAudience"`
	// AdminRole guards destructive routes when authentication is enabled.
	AdminRole string `yaml:"adminRole"`
}

// Enabled reports whether any signing secret source is configured.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || a.JWTSecretName != ""
}

type RateLimitConfig struct {
	Max       int           `yaml:"max"`
	Window    time.Duration `yaml:"window"`
	Backend   string        `yaml:"backend"`
	RedisAddr string        `yaml:"redisAddr"`
	// MaxKeys bounds the in-memory limiter's key count. Zero is unbounded.
	MaxKeys int `yaml:"maxKeys"`
}

type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	MaxRequests      uint32        `yaml:"maxRequests"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold float64       `yaml:"failureThreshold"`
	MinRequests      uint32        `yaml:"minRequests"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		ServiceName:   "serverless-kit",
		ServerAddress: ":8080",
		Environment:   "development",
		LogLevel:      "info",
		AWS: AWSConfig{
			Region:    "us-east-1",
			TableName: "subscribers",
		},
		Auth: AuthConfig{
			JWTIssuer: "serverless-kit",
			AdminRole: "admin",
		},
		RateLimit: RateLimitConfig{
			Max:     100,
			Window:  time.Minute,
			Backend: RateLimitMemory,
			MaxKeys: 10000,
		},
		Breaker: BreakerConfig{
			MaxRequests:      5,
			Interval:         30 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.8,
			MinRequests:      5,
		},
		CORSMaxAge: 86400,
	}
}

// Load builds the configuration from defaults, the YAML file named by
// CONFIG_FILE and environment variables, then validates it.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads path over the defaults without consulting the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config YAML: %w", err)
	}
	c.ConfigFile = path
	return nil
}

func (c *Config) applyEnv() {
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	// AWS configuration
	c.AWS.Region = getEnv("AWS_REGION", c.AWS.Region)
	c.AWS.Endpoint = getEnv("AWS_ENDPOINT_URL", c.AWS.Endpoint)
	c.AWS.TableName = getEnv("TABLE_NAME", c.AWS.TableName)
	c.AWS.TopicARN = getEnv("TOPIC_ARN", c.AWS.TopicARN)
	c.AWS.QueueURL = getEnv("QUEUE_URL", c.AWS.QueueURL)
	c.AWS.EventBusName = getEnv("EVENT_BUS_NAME", c.AWS.EventBusName)
	c.AWS.BucketName = getEnv("BUCKET_NAME", c.AWS.BucketName)
	c.AWS.WebSocketEndpoint = getEnv("WEBSOCKET_ENDPOINT", c.AWS.WebSocketEndpoint)

	// Authentication
	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTSecretName = getEnv("JWT_SECRET_NAME", c.Auth.JWTSecretName)
	c.Auth.JWTIssuer = getEnv("JWT_ISSUER", c.Auth.JWTIssuer)
	c.Auth.JWTAudience = getEnv("JWT_AUDIENCE", c.Auth.JWTAudience)
	c.Auth.AdminRole = getEnv("ADMIN_ROLE", c.Auth.AdminRole)

	// Rate limiting
	c.RateLimit.Max = getEnvInt("RATE_LIMIT_MAX", c.RateLimit.Max)
	c.RateLimit.Window = getEnvDuration("RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.Backend = strings.ToLower(getEnv("RATE_LIMIT_BACKEND", c.RateLimit.Backend))
	c.RateLimit.RedisAddr = getEnv("REDIS_ADDR", c.RateLimit.RedisAddr)
	c.RateLimit.MaxKeys = getEnvInt("RATE_LIMIT_MAX_KEYS", c.RateLimit.MaxKeys)

	// Circuit breaker
	c.Breaker.Enabled = getEnvBool("ENABLE_CIRCUIT_BREAKER", c.Breaker.Enabled)
	c.Breaker.Timeout = getEnvDuration("CIRCUIT_BREAKER_TIMEOUT", c.Breaker.Timeout)

	c.CORSMaxAge = getEnvInt("CORS_MAX_AGE", c.CORSMaxAge)

	// Logging and features
	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	var errs []error

	if c.AWS.TableName == "" {
		errs = append(errs, errors.New("TABLE_NAME is required"))
	}
	if c.RateLimit.Max <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	switch c.RateLimit.Backend {
	case RateLimitMemory, RateLimitDynamoDB:
	case RateLimitRedis:
		if c.RateLimit.RedisAddr == "" {
			errs = append(errs, errors.New("REDIS_ADDR is required for the redis rate limiter"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend))
	}
	if c.Breaker.FailureThreshold <= 0 || c.Breaker.FailureThreshold > 1 {
		errs = append(errs, errors.New("breaker failure threshold must be in (0, 1]"))
	}
	if c.IsProduction() && !c.Auth.Enabled() {
		errs = append(errs, errors.New("JWT_SECRET or JWT_SECRET_NAME is required in production"))
	}

	return errors.Join(errs...)
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsLambda reports whether the process runs inside the Lambda runtime.
func IsLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
