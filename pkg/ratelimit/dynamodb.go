package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// UpdateItemAPI is the slice of the DynamoDB client the limiter needs.
type UpdateItemAPI interface {
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// DynamoDB is a fixed-window limiter whose counters live in a DynamoDB
// table, so every Lambda instance shares the same budget. Counter items
// expire through the table's TTL attribute.
type DynamoDB struct {
	client    UpdateItemAPI
	tableName string
	limit     int
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

type counterEntry struct {
	PK    string `dynamodbav:"PK"`
	Count int    `dynamodbav:"Count"`
}

// NewDynamoDB creates a shared limiter. Counters are keyed
// keyPrefix+key+"#"+window start, so keyPrefix namespaces them when several
// limiters share one table.
func NewDynamoDB(client UpdateItemAPI, tableName string, limit int, window time.Duration, keyPrefix string) *DynamoDB {
	return &DynamoDB{
		client:    client,
		tableName: tableName,
		limit:     limit,
		window:    window,
		keyPrefix: keyPrefix,
		now:       time.Now,
	}
}

// Allow atomically increments the counter for key's current window, unless
// it has already reached the limit.
func (r *DynamoDB) Allow(ctx context.Context, key string) (Decision, error) {
	now := r.now()
	windowStart := now.Truncate(r.window)
	windowEnd := windowStart.Add(r.window)

	pk := fmt.Sprintf("%s%s#%d", r.keyPrefix, key, windowStart.Unix())

	update := &dynamodb.UpdateItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
		},
		UpdateExpression:    aws.String("SET #count = if_not_exists(#count, :zero) + :incr, WindowEnd = :window_end, #ttl = :ttl"),
		ConditionExpression: aws.String("attribute_not_exists(#count) OR #count < :limit"),
		ExpressionAttributeNames: map[string]string{
			"#count": "Count",
			"#ttl":   "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":zero":       &types.AttributeValueMemberN{Value: "0"},
			":incr":       &types.AttributeValueMemberN{Value: "1"},
			":limit":      &types.AttributeValueMemberN{Value: strconv.Itoa(r.limit)},
			":window_end": &types.AttributeValueMemberS{Value: windowEnd.Format(time.RFC3339)},
			":ttl":        &types.AttributeValueMemberN{Value: strconv.FormatInt(windowEnd.Add(time.Hour).Unix(), 10)},
		},
		ReturnValues: types.ReturnValueAllNew,
	}

	result, err := r.client.UpdateItem(ctx, update)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return Decision{Allowed: false, RetryAfter: retryAfter(windowEnd.Sub(now))}, nil
		}
		return Decision{Allowed: true}, fmt.Errorf("rate limiter update (failing open): %w", err)
	}

	var entry counterEntry
	if err := attributevalue.UnmarshalMap(result.Attributes, &entry); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("rate limiter entry decode (failing open): %w", err)
	}

	remaining := r.limit - entry.Count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: entry.Count <= r.limit, Remaining: remaining}, nil
}
