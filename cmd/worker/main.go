package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"serverless-kit/internal/config"
	"serverless-kit/internal/di"
)

var container *di.Container

func init() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	container, _, err = di.InitializeContainer(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to initialize container: %v", err)
	}
	container.Logger.Info("Welcome worker initialized")
}

// Handler processes a batch of welcome jobs from SQS.
func Handler(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	resp, err := container.Service.HandleWelcomeQueue(ctx, ev)
	container.Logger.Info("Processed welcome batch",
		zap.Int("records", len(ev.Records)),
		zap.Int("failures", len(resp.BatchItemFailures)),
	)
	return resp, err
}

func main() {
	lambda.Start(Handler)
}
