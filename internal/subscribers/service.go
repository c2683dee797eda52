package subscribers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"serverless-kit/internal/aws/messaging"
	"serverless-kit/internal/observability"
	apperrors "serverless-kit/pkg/errors"
)

// Event detail types published to the bus.
const (
	EventCreated = "SubscriberCreated"
	EventDeleted = "SubscriberDeleted"
)

// Store is the persistence the service needs.
type Store interface {
	Create(ctx context.Context, s *Subscriber) error
	Get(ctx context.Context, id string) (*Subscriber, error)
	List(ctx context.Context, limit int, cursor string) ([]Subscriber, string, error)
	MarkWelcomed(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

type Notifier interface {
	Notify(ctx context.Context, subject string, payload any, attributes map[string]string) (string, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, events ...messaging.Event) error
}

type JobQueue interface {
	Send(ctx context.Context, payload any, attributes map[string]string) (string, error)
}

type Exporter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Broadcaster pushes a frame to WebSocket connections and reports the ones
// that have gone away.
type Broadcaster interface {
	Broadcast(ctx context.Context, connectionIDs []string, payload any) (gone []string, err error)
}

// ConnectionStore tracks live-feed connections.
type ConnectionStore interface {
	Add(ctx context.Context, connectionID string, at time.Time) error
	Remove(ctx context.Context, connectionID string) error
	List(ctx context.Context) ([]string, error)
}

// WelcomeJob is the queue message asking for a welcome to be sent.
type WelcomeJob struct {
	SubscriberID string `json:"subscriberId"`
	Email        string `json:"email"`
}

// Deps holds the service's collaborators. Everything but Store is optional.
type Deps struct {
	Store    Store
	Notifier Notifier
	Events   EventPublisher
	Queue    JobQueue
	Exporter Exporter
	// Feed and Connections together enable the live feed.
	Feed        Broadcaster
	Connections ConnectionStore
	Created  prometheus.Counter
	Deleted  prometheus.Counter
	Logger   *zap.Logger
}

// Service implements the subscriber use cases. Side effects after a
// successful write are best effort: their failures are logged, never
// returned.
type Service struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{deps: deps, logger: logger, now: time.Now}
}

// Subscribe creates a subscriber. A duplicate email is a conflict.
func (s *Service) Subscribe(ctx context.Context, in CreateInput) (*Subscriber, error) {
	sub := &Subscriber{
		ID:        SubscriberID(in.Email),
		Email:     in.Email,
		Name:      in.Name,
		Topics:    in.Topics,
		Status:    StatusActive,
		CreatedAt: s.now().UTC(),
	}
	if sub.Topics == nil {
		sub.Topics = []string{}
	}

	err := observability.Segment(ctx, "subscribers.create", func(ctx context.Context) error {
		return s.deps.Store.Create(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	observability.Annotate(ctx, "subscriber_id", sub.ID)
	if s.deps.Created != nil {
		s.deps.Created.Inc()
	}

	if s.deps.Notifier != nil {
		if _, err := s.deps.Notifier.Notify(ctx, "New subscriber", sub, map[string]string{"event": EventCreated}); err != nil {
			s.logger.Warn("Failed to publish subscriber notification", zap.String("subscriber_id", sub.ID), zap.Error(err))
		}
	}
	s.publish(ctx, EventCreated, sub)
	if s.deps.Queue != nil {
		if _, err := s.deps.Queue.Send(ctx, WelcomeJob{SubscriberID: sub.ID, Email: sub.Email}, map[string]string{"kind": "welcome"}); err != nil {
			s.logger.Warn("Failed to enqueue welcome job", zap.String("subscriber_id", sub.ID), zap.Error(err))
		}
	}

	s.logger.Info("Subscriber created", zap.String("subscriber_id", sub.ID))
	return sub, nil
}

// Get returns one subscriber.
func (s *Service) Get(ctx context.Context, id string) (*Subscriber, error) {
	var sub *Subscriber
	err := observability.Segment(ctx, "subscribers.get", func(ctx context.Context) error {
		var err error
		sub, err = s.deps.Store.Get(ctx, id)
		return err
	})
	return sub, err
}

// List returns a page of subscribers and the cursor of the next one.
func (s *Service) List(ctx context.Context, limit int, cursor string) ([]Subscriber, string, error) {
	return s.deps.Store.List(ctx, limit, cursor)
}

// Unsubscribe deletes a subscriber.
func (s *Service) Unsubscribe(ctx context.Context, id string) error {
	err := observability.Segment(ctx, "subscribers.delete", func(ctx context.Context) error {
		return s.deps.Store.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	if s.deps.Deleted != nil {
		s.deps.Deleted.Inc()
	}
	s.publish(ctx, EventDeleted, map[string]string{"id": id})
	s.logger.Info("Subscriber deleted", zap.String("subscriber_id", id))
	return nil
}

// Welcome handles a welcome job taken off the queue.
func (s *Service) Welcome(ctx context.Context, job WelcomeJob) error {
	if job.SubscriberID == "" {
		return apperrors.NewValidationError("welcome job has no subscriber id")
	}
	return s.deps.Store.MarkWelcomed(ctx, job.SubscriberID, s.now())
}

// Export writes the subscriber record to the export bucket and returns a
// short-lived download URL.
func (s *Service) Export(ctx context.Context, id string, ttl time.Duration) (string, error) {
	if s.deps.Exporter == nil {
		return "", apperrors.NewUnavailableError("export")
	}
	sub, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return "", fmt.Errorf("failed to encode export: %w", err)
	}

	key := "exports/" + id + ".json"
	if err := s.deps.Exporter.Put(ctx, key, data, "application/json"); err != nil {
		return "", err
	}
	return s.deps.Exporter.PresignGet(ctx, key, ttl)
}

// Connect registers a WebSocket connection for the live feed.
func (s *Service) Connect(ctx context.Context, connectionID string) error {
	if s.deps.Connections == nil {
		return apperrors.NewUnavailableError("live feed")
	}
	if connectionID == "" {
		return apperrors.NewValidationError("connection id is required")
	}
	return s.deps.Connections.Add(ctx, connectionID, s.now())
}

// Disconnect forgets a WebSocket connection.
func (s *Service) Disconnect(ctx context.Context, connectionID string) error {
	if s.deps.Connections == nil {
		return apperrors.NewUnavailableError("live feed")
	}
	return s.deps.Connections.Remove(ctx, connectionID)
}

func (s *Service) publish(ctx context.Context, detailType string, detail any) {
	if s.deps.Events != nil {
		if err := s.deps.Events.Publish(ctx, messaging.Event{DetailType: detailType, Detail: detail, Time: s.now()}); err != nil {
			s.logger.Warn("Failed to publish event", zap.String("detail_type", detailType), zap.Error(err))
		}
	}
	s.broadcast(ctx, detailType, detail)
}

// broadcast pushes the event to the live feed and drops connections that
// have gone away.
func (s *Service) broadcast(ctx context.Context, detailType string, detail any) {
	if s.deps.Feed == nil || s.deps.Connections == nil {
		return
	}
	ids, err := s.deps.Connections.List(ctx)
	if err != nil {
		s.logger.Warn("Failed to list feed connections", zap.Error(err))
		return
	}
	if len(ids) == 0 {
		return
	}

	gone, err := s.deps.Feed.Broadcast(ctx, ids, FeedFrame{Type: detailType, Time: s.now(), Data: detail})
	if err != nil {
		s.logger.Warn("Failed to push to feed connections", zap.String("detail_type", detailType), zap.Error(err))
	}
	for _, id := range gone {
		if err := s.deps.Connections.Remove(ctx, id); err != nil {
			s.logger.Warn("Failed to remove gone connection", zap.String("connection_id", id), zap.Error(err))
		}
	}
}
