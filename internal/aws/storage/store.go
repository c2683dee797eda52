// Package storage is a thin DynamoDB table gateway. SDK errors are wrapped
// with %w so the error mapper can still recognise the service exception.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

const (
	// DynamoDB limits
	maxBatchWrite = 25
	maxBatchGet   = 100

	defaultMaxRetries = 3
	defaultRetryDelay = 50 * time.Millisecond
)

// API is the subset of the DynamoDB client the store uses.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	BatchGetItem(ctx context.Context, params *dynamodb.BatchGetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Item is a raw DynamoDB item or key.
type Item = map[string]types.AttributeValue

// Key builds a key from name/value pairs of string attributes.
func Key(nameValues ...string) Item {
	key := make(Item, len(nameValues)/2)
	for i := 0; i+1 < len(nameValues); i += 2 {
		key[nameValues[i]] = &types.AttributeValueMemberS{Value: nameValues[i+1]}
	}
	return key
}

// KeyEquals is the key condition name = value.
func KeyEquals(name string, value any) expression.KeyConditionBuilder {
	return expression.Key(name).Equal(expression.Value(value))
}

// ErrUnprocessed is returned when a batch still has unprocessed entries
// after every retry.
var ErrUnprocessed = errors.New("batch left unprocessed items")

// Store reads and writes one table.
type Store struct {
	client     API
	table      string
	logger     *zap.Logger
	maxRetries int
	retryDelay time.Duration
	sleep      func(context.Context, time.Duration) error
}

// NewStore creates a store for table.
func NewStore(client API, table string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		client:     client,
		table:      table,
		logger:     logger,
		maxRetries: defaultMaxRetries,
		retryDelay: defaultRetryDelay,
		sleep:      sleepContext,
	}
}

// Table returns the table name.
func (s *Store) Table() string { return s.table }

// Get returns the item at key, or nil when there is none.
func (s *Store) Get(ctx context.Context, key Item) (Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	return out.Item, nil
}

// PutOption adjusts a put.
type PutOption func(*putOptions)

type putOptions struct {
	condition *expression.ConditionBuilder
}

// IfNotExists makes the put fail with ConditionalCheckFailedException when
// an item with attr already exists.
func IfNotExists(attr string) PutOption {
	return WithCondition(expression.AttributeNotExists(expression.Name(attr)))
}

// WithCondition attaches an arbitrary condition to the put.
func WithCondition(cond expression.ConditionBuilder) PutOption {
	return func(o *putOptions) { o.condition = &cond }
}

// Put writes item, replacing any existing item with the same key.
func (s *Store) Put(ctx context.Context, item Item, opts ...PutOption) error {
	var o putOptions
	for _, opt := range opts {
		opt(&o)
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      item,
	}
	if o.condition != nil {
		expr, err := expression.NewBuilder().WithCondition(*o.condition).Build()
		if err != nil {
			return fmt.Errorf("failed to build expression: %w", err)
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

// Update applies update to the item at key and returns the new item. A
// non-nil cond guards the update.
func (s *Store) Update(ctx context.Context, key Item, update expression.UpdateBuilder, cond *expression.ConditionBuilder) (Item, error) {
	b := expression.NewBuilder().WithUpdate(update)
	if cond != nil {
		b = b.WithCondition(*cond)
	}
	expr, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.table),
		Key:                       key,
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return out.Attributes, nil
}

// Delete removes the item at key and returns what was there, or nil.
func (s *Store) Delete(ctx context.Context, key Item) (Item, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.table),
		Key:          key,
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to delete item: %w", err)
	}
	if len(out.Attributes) == 0 {
		return nil, nil
	}
	return out.Attributes, nil
}

// BatchGet fetches keys in chunks of 100, retrying unprocessed keys. Missing
// items are simply absent from the result, which is in no particular order.
func (s *Store) BatchGet(ctx context.Context, keys []Item) ([]Item, error) {
	var items []Item
	for _, chunk := range chunk(keys, maxBatchGet) {
		pending := chunk
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > s.maxRetries {
				return items, fmt.Errorf("%w: %d keys", ErrUnprocessed, len(pending))
			}
			if err := s.backoff(ctx, attempt); err != nil {
				return items, err
			}

			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: map[string]types.KeysAndAttributes{s.table: {Keys: pending}},
			})
			if err != nil {
				return items, fmt.Errorf("failed to batch get items: %w", err)
			}
			items = append(items, out.Responses[s.table]...)
			pending = out.UnprocessedKeys[s.table].Keys
		}
	}
	return items, nil
}

// BatchWrite puts and deletes in chunks of 25. Unprocessed requests are
// retried with exponential backoff up to the retry bound.
func (s *Store) BatchWrite(ctx context.Context, puts []Item, deletes []Item) error {
	requests := make([]types.WriteRequest, 0, len(puts)+len(deletes))
	for _, item := range puts {
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	for _, key := range deletes {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
	}

	chunks := chunk(requests, maxBatchWrite)
	for i, c := range chunks {
		pending := c
		for attempt := 0; len(pending) > 0; attempt++ {
			if attempt > s.maxRetries {
				s.logger.Warn("Batch write gave up on unprocessed items",
					zap.String("table", s.table),
					zap.Int("chunk", i+1),
					zap.Int("unprocessed", len(pending)))
				return fmt.Errorf("%w: %d writes", ErrUnprocessed, len(pending))
			}
			if err := s.backoff(ctx, attempt); err != nil {
				return err
			}

			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: map[string][]types.WriteRequest{s.table: pending},
			})
			if err != nil {
				return fmt.Errorf("failed to batch write items: %w", err)
			}
			pending = out.UnprocessedItems[s.table]

			s.logger.Debug("Batch write attempt completed",
				zap.Int("chunk", i+1),
				zap.Int("total_chunks", len(chunks)),
				zap.Int("attempt", attempt),
				zap.Int("still_unprocessed", len(pending)))
		}
	}
	return nil
}

// Page is one page of query or scan results. LastKey is nil on the last page.
type Page struct {
	Items   []Item
	LastKey Item
}

// QueryInput describes a query.
type QueryInput struct {
	KeyCondition expression.KeyConditionBuilder
	Filter       *expression.ConditionBuilder
	IndexName    string
	Limit        int32
	StartKey     Item
	Descending   bool
}

// Query runs a single query request.
func (s *Store) Query(ctx context.Context, in QueryInput) (Page, error) {
	b := expression.NewBuilder().WithKeyCondition(in.KeyCondition)
	if in.Filter != nil {
		b = b.WithFilter(*in.Filter)
	}
	expr, err := b.Build()
	if err != nil {
		return Page{}, fmt.Errorf("failed to build expression: %w", err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.table),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ExclusiveStartKey:         in.StartKey,
		ScanIndexForward:          aws.Bool(!in.Descending),
	}
	if in.IndexName != "" {
		input.IndexName = aws.String(in.IndexName)
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(in.Limit)
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("failed to query items: %w", err)
	}
	return Page{Items: out.Items, LastKey: out.LastEvaluatedKey}, nil
}

// ScanInput describes a scan.
type ScanInput struct {
	Filter   *expression.ConditionBuilder
	Limit    int32
	StartKey Item
}

// Scan runs a single scan request.
func (s *Store) Scan(ctx context.Context, in ScanInput) (Page, error) {
	input := &dynamodb.ScanInput{
		TableName:         aws.String(s.table),
		ExclusiveStartKey: in.StartKey,
	}
	if in.Filter != nil {
		expr, err := expression.NewBuilder().WithFilter(*in.Filter).Build()
		if err != nil {
			return Page{}, fmt.Errorf("failed to build expression: %w", err)
		}
		input.FilterExpression = expr.Filter()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}
	if in.Limit > 0 {
		input.Limit = aws.Int32(in.Limit)
	}

	out, err := s.client.Scan(ctx, input)
	if err != nil {
		return Page{}, fmt.Errorf("failed to scan items: %w", err)
	}
	return Page{Items: out.Items, LastKey: out.LastEvaluatedKey}, nil
}

func (s *Store) backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	return s.sleep(ctx, s.retryDelay<<(attempt-1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func chunk[T any](items []T, size int) [][]T {
	var chunks [][]T
	for size < len(items) {
		items, chunks = items[size:], append(chunks, items[:size:size])
	}
	if len(items) > 0 {
		chunks = append(chunks, items)
	}
	return chunks
}
