// Package messaging publishes to EventBridge and SNS, exchanges messages
// over SQS and pushes frames to API Gateway WebSocket connections.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// EventBridge limits PutEvents to 10 entries per call
const eventBatchSize = 10

// Event is a domain event bound for the bus.
type Event struct {
	DetailType string
	Detail     any
	Resources  []string
	Time       time.Time
}

// PutEventsAPI is the subset of the EventBridge client the publisher uses.
type PutEventsAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventPublisher sends events to one EventBridge bus under one source.
type EventPublisher struct {
	client  PutEventsAPI
	busName string
	source  string
	logger  *zap.Logger
}

// NewEventPublisher creates a new EventBridge publisher
func NewEventPublisher(client PutEventsAPI, busName, source string, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{client: client, busName: busName, source: source, logger: logger}
}

// Publish sends events in batches of 10. It stops at the first batch that
// fails outright or has failed entries.
func (p *EventPublisher) Publish(ctx context.Context, events ...Event) error {
	for i := 0; i < len(events); i += eventBatchSize {
		end := min(i+eventBatchSize, len(events))
		if err := p.publishBatch(ctx, events[i:end]); err != nil {
			return err
		}
	}
	return nil
}

func (p *EventPublisher) publishBatch(ctx context.Context, events []Event) error {
	entries := make([]types.PutEventsRequestEntry, 0, len(events))
	for _, ev := range events {
		detail, err := json.Marshal(ev.Detail)
		if err != nil {
			return fmt.Errorf("failed to marshal %s event: %w", ev.DetailType, err)
		}
		at := ev.Time
		if at.IsZero() {
			at = time.Now()
		}
		entries = append(entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(p.busName),
			Source:       aws.String(p.source),
			DetailType:   aws.String(ev.DetailType),
			Detail:       aws.String(string(detail)),
			Time:         aws.Time(at),
			Resources:    ev.Resources,
		})
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: entries})
	if err != nil {
		return fmt.Errorf("failed to publish events to EventBridge: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, entry := range result.Entries {
			if entry.ErrorCode != nil {
				p.logger.Error("Failed to publish event",
					zap.String("detail_type", events[i].DetailType),
					zap.String("error_code", aws.ToString(entry.ErrorCode)),
					zap.String("error_message", aws.ToString(entry.ErrorMessage)),
				)
			}
		}
		return fmt.Errorf("%d events failed to publish", result.FailedEntryCount)
	}

	p.logger.Debug("Events published to EventBridge",
		zap.Int("count", len(entries)),
		zap.String("event_bus", p.busName),
	)
	return nil
}
