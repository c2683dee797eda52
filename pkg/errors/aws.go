package errors

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"
)

type awsMapping struct {
	kind    Kind
	message string
}

// awsCodes maps service exception identifiers onto the error kinds. Messages
// are stable and never echo the service's own text.
var awsCodes = map[string]awsMapping{
	"ConditionalCheckFailedException": {KindConflict, "Resource already exists or was modified"},
	"TransactionConflictException":    {KindConflict, "Resource was modified concurrently"},

	"ResourceNotFoundException":               {KindNotFound, "Resource not found"},
	"NoSuchKey":                               {KindNotFound, "Object not found"},
	"NoSuchBucket":                            {KindNotFound, "Bucket not found"},
	"NotFound":                                {KindNotFound, "Resource not found"},
	"NotFoundException":                       {KindNotFound, "Resource not found"},
	"QueueDoesNotExist":                       {KindNotFound, "Queue not found"},
	"AWS.SimpleQueueService.NonExistentQueue": {KindNotFound, "Queue not found"},
	"GoneException":                           {KindNotFound, "Connection no longer exists"},

	"ProvisionedThroughputExceededException": {KindThrottled, "Service is busy, please retry"},
	"ThrottlingException":                    {KindThrottled, "Service is busy, please retry"},
	"Throttling":                             {KindThrottled, "Service is busy, please retry"},
	"RequestLimitExceeded":                   {KindThrottled, "Service is busy, please retry"},
	"TooManyRequestsException":               {KindThrottled, "Service is busy, please retry"},
	"SlowDown":                               {KindThrottled, "Service is busy, please retry"},

	"ItemCollectionSizeLimitExceededException": {KindPayloadTooLarge, "Item collection size limit exceeded"},
	"RequestEntityTooLarge":                    {KindPayloadTooLarge, "Request entity too large"},
	"EntityTooLarge":                           {KindPayloadTooLarge, "Request entity too large"},
	"PayloadTooLargeException":                 {KindPayloadTooLarge, "Request entity too large"},

	"ValidationException":       {KindValidation, "Invalid request parameters"},
	"InvalidParameterException": {KindValidation, "Invalid request parameters"},
	"InvalidParameterValue":     {KindValidation, "Invalid request parameters"},
	"InvalidRequestException":   {KindValidation, "Invalid request parameters"},

	"AccessDeniedException":       {KindForbidden, "Access denied"},
	"AccessDenied":                {KindForbidden, "Access denied"},
	"UnrecognizedClientException": {KindForbidden, "Access denied"},
	"AuthorizationErrorException": {KindForbidden, "Access denied"},

	"InternalServerError":    {KindUnavailable, "Service temporarily unavailable"},
	"InternalFailure":        {KindUnavailable, "Service temporarily unavailable"},
	"InternalServiceError":   {KindUnavailable, "Service temporarily unavailable"},
	"InternalErrorException": {KindUnavailable, "Service temporarily unavailable"},
	"ServiceUnavailable":     {KindUnavailable, "Service temporarily unavailable"},

	"RequestTimeout":          {KindTimeout, "Request timed out"},
	"RequestTimeoutException": {KindTimeout, "Request timed out"},
}

// FromAWS classifies SDK and runtime failures that are not AppErrors: AWS
// service exceptions (by smithy error code) and expired contexts. ok is
// false when err is not recognised. Raw JSON decoding errors are left
// unclassified: request bodies are rejected by name through
// NewMalformedBodyError, so any other decode failure is internal.
func FromAWS(err error) (*AppError, bool) {
	if err == nil {
		return nil, false
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		m, known := awsCodes[ae.ErrorCode()]
		if !known {
			return nil, false
		}
		return &AppError{Kind: m.kind, Message: m.message, Cause: err}, true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &AppError{Kind: KindTimeout, Message: "Request timed out", Cause: err}, true
	}
	return nil, false
}
