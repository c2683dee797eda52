package subscribers

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	apperrors "serverless-kit/pkg/errors"
)

// HandleWelcomeQueue processes welcome jobs delivered by an SQS trigger.
// Failed records are reported individually so only they are redelivered.
// Jobs for subscribers that no longer exist are dropped.
func (s *Service) HandleWelcomeQueue(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, record := range ev.Records {
		var job WelcomeJob
		if err := json.Unmarshal([]byte(record.Body), &job); err != nil {
			s.logger.Error("Dropping malformed welcome job", zap.String("message_id", record.MessageId), zap.Error(err))
			continue
		}

		err := s.Welcome(ctx, job)
		switch {
		case err == nil:
		case apperrors.IsNotFound(err), apperrors.IsValidation(err):
			s.logger.Warn("Dropping welcome job", zap.String("message_id", record.MessageId), zap.Error(err))
		default:
			s.logger.Error("Welcome job failed", zap.String("message_id", record.MessageId), zap.Error(err))
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: record.MessageId})
		}
	}
	return resp, nil
}
