package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
)

// ErrGone means the WebSocket connection no longer exists and should be
// forgotten.
var ErrGone = errors.New("connection gone")

// PostToConnectionAPI is the subset of the management API client the pusher
// uses.
type PostToConnectionAPI interface {
	PostToConnection(ctx context.Context, params *apigatewaymanagementapi.PostToConnectionInput, optFns ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error)
}

// ConnectionPusher sends JSON frames to WebSocket API connections.
type ConnectionPusher struct {
	client PostToConnectionAPI
}

func NewConnectionPusher(client PostToConnectionAPI) *ConnectionPusher {
	return &ConnectionPusher{client: client}
}

// NewConnectionPusherForEndpoint builds a pusher for the stage endpoint
// (https://{api-id}.execute-api.{region}.amazonaws.com/{stage}).
func NewConnectionPusherForEndpoint(cfg aws.Config, endpoint string) *ConnectionPusher {
	return NewConnectionPusher(apigatewaymanagementapi.NewFromConfig(cfg, func(o *apigatewaymanagementapi.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	}))
}

// Push sends payload to one connection. ErrGone is returned, wrapped, for
// connections that have disconnected.
func (p *ConnectionPusher) Push(ctx context.Context, connectionID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	_, err = p.client.PostToConnection(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	var gone *types.GoneException
	if errors.As(err, &gone) {
		return fmt.Errorf("%w: %s", ErrGone, connectionID)
	}
	if err != nil {
		return fmt.Errorf("failed to post to connection %s: %w", connectionID, err)
	}
	return nil
}

// Broadcast pushes payload to every connection and returns the ids that
// are gone. Other failures are joined into the error.
func (p *ConnectionPusher) Broadcast(ctx context.Context, connectionIDs []string, payload any) (gone []string, err error) {
	var errs []error
	for _, id := range connectionIDs {
		switch perr := p.Push(ctx, id, payload); {
		case perr == nil:
		case errors.Is(perr, ErrGone):
			gone = append(gone, id)
		default:
			errs = append(errs, perr)
		}
	}
	return gone, errors.Join(errs...)
}
