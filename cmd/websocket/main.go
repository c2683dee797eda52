package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"

	"serverless-kit/internal/config"
	"serverless-kit/internal/di"
	apperrors "serverless-kit/pkg/errors"
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
	container.Logger.Info("Live feed handler initialized")
}

// Handler records connections to the live feed on $connect and forgets them
// on $disconnect.
func Handler(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	id := req.RequestContext.ConnectionID
	logger := container.Logger.With(
		zap.String("connection_id", id),
		zap.String("route", req.RequestContext.RouteKey),
	)

	var err error
	switch req.RequestContext.RouteKey {
	case "$connect":
		err = container.Service.Connect(ctx, id)
	case "$disconnect":
		err = container.Service.Disconnect(ctx, id)
	default:
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest}, nil
	}
	if err != nil {
		logger.Error("Live feed route failed", zap.Error(err))
		return events.APIGatewayProxyResponse{StatusCode: apperrors.HTTPStatus(err)}, nil
	}

	logger.Info("Live feed route handled")
	return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil
}

func main() {
	lambda.Start(Handler)
}
