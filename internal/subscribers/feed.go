package subscribers

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"serverless-kit/internal/aws/storage"
)

const (
	connectionPrefix = "CONNECTION#"
	connectionTTL    = 24 * time.Hour
)

// Connection is an open WebSocket connection following the live feed.
type Connection struct {
	PK           string    `dynamodbav:"PK" json:"-"`
	ConnectionID string    `dynamodbav:"connectionId" json:"connectionId"`
	ConnectedAt  time.Time `dynamodbav:"connectedAt" json:"connectedAt"`
	// TTL lets DynamoDB expire connections whose disconnect was missed.
	TTL int64 `dynamodbav:"ttl" json:"-"`
}

// FeedFrame is the message pushed to live-feed connections.
type FeedFrame struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// ConnectionRepository stores live-feed connections in the subscriber table.
type ConnectionRepository struct {
	store *storage.Store
}

func NewConnectionRepository(store *storage.Store) *ConnectionRepository {
	return &ConnectionRepository{store: store}
}

// Add records a connection. Reconnecting with the same id refreshes it.
func (r *ConnectionRepository) Add(ctx context.Context, connectionID string, at time.Time) error {
	return storage.PutItem(ctx, r.store, Connection{
		PK:           connectionPrefix + connectionID,
		ConnectionID: connectionID,
		ConnectedAt:  at.UTC(),
		TTL:          at.Add(connectionTTL).Unix(),
	})
}

// Remove forgets a connection. Unknown ids are not an error.
func (r *ConnectionRepository) Remove(ctx context.Context, connectionID string) error {
	_, err := r.store.Delete(ctx, storage.Key("PK", connectionPrefix+connectionID))
	return err
}

// List returns the ids of every recorded connection.
func (r *ConnectionRepository) List(ctx context.Context) ([]string, error) {
	filter := expression.BeginsWith(expression.Name("PK"), connectionPrefix)
	var ids []string
	cursor := ""
	for {
		conns, next, err := storage.ScanPage[Connection](ctx, r.store, storage.ScanInput{Filter: &filter}, cursor)
		if err != nil {
			return nil, err
		}
		for _, c := range conns {
			ids = append(ids, c.ConnectionID)
		}
		if next == "" {
			return ids, nil
		}
		cursor = next
	}
}
