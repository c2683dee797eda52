// Package di wires the application's dependencies with google/wire.
package di

import (
	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"

	"serverless-kit/internal/config"
	"serverless-kit/internal/observability"
	"serverless-kit/internal/subscribers"
	"serverless-kit/pkg/middleware"
)

// Container holds all application dependencies
type Container struct {
	Config    *config.Config
	Logger    *zap.Logger
	AWSConfig aws.Config
	Pipeline  *middleware.Pipeline
	Router    *subscribers.Router
	Service   *subscribers.Service
	Collector *observability.Collector
	Tracer    *observability.TracerProvider
}
