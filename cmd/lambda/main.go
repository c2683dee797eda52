package main

import (
	"context"
	"log"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"serverless-kit/internal/config"
	"serverless-kit/internal/di"
	"serverless-kit/pkg/middleware"
)

var (
	// container holds the dependency injection container
	container *di.Container

	// handler is the pipeline bound to the subscriber routes
	handler middleware.LambdaHandler

	// coldStart tracks whether this is a cold start invocation
	coldStart = true
)

// init runs during cold start
func init() {
	coldStartTime := time.Now()
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The environment is frozen, not stopped, so the cleanup never runs.
	container, _, err = di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}

	handler = container.Pipeline.Lambda(container.Router.Handle)

	container.Logger.Info("Lambda cold start completed",
		zap.Duration("duration", time.Since(coldStartTime)),
		zap.Strings("middleware", container.Pipeline.Steps()),
	)
}

// Handler is the Lambda function handler
func Handler(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	if coldStart {
		container.Logger.Info("Serving first request after cold start", zap.String("request_id", req.RequestContext.RequestID))
		coldStart = false
	}

	resp, err := handler(ctx, req)

	// Spans must leave before the runtime freezes the environment.
	if flushErr := container.Tracer.ForceFlush(ctx); flushErr != nil {
		container.Logger.Warn("Failed to flush traces", zap.Error(flushErr))
	}
	return resp, err
}

func main() {
	lambda.Start(Handler)
}
