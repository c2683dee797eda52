package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "serverless-kit/pkg/errors"
)

type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.GetItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.PutItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.UpdateItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.DeleteItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) BatchGetItem(ctx context.Context, in *dynamodb.BatchGetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchGetItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.BatchGetItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.BatchWriteItemOutput)
	return out, args.Error(1)
}

func (m *mockAPI) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.QueryOutput)
	return out, args.Error(1)
}

func (m *mockAPI) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*dynamodb.ScanOutput)
	return out, args.Error(1)
}

func newTestStore(api API) *Store {
	s := NewStore(api, "things", nil)
	s.sleep = func(context.Context, time.Duration) error { return nil }
	return s
}

type thing struct {
	PK   string `dynamodbav:"PK"`
	Name string `dynamodbav:"name"`
}

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("Should decode an existing item", func(t *testing.T) {
		api := &mockAPI{}
		api.On("GetItem", ctx, mock.MatchedBy(func(in *dynamodb.GetItemInput) bool {
			return aws.ToString(in.TableName) == "things" && in.Key["PK"].(*types.AttributeValueMemberS).Value == "T#1"
		})).Return(&dynamodb.GetItemOutput{Item: Item{
			"PK":   &types.AttributeValueMemberS{Value: "T#1"},
			"name": &types.AttributeValueMemberS{Value: "one"},
		}}, nil)

		got, ok, err := GetItem[thing](ctx, newTestStore(api), Key("PK", "T#1"))

		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, thing{PK: "T#1", Name: "one"}, got)
		api.AssertExpectations(t)
	})

	t.Run("Should report a missing item", func(t *testing.T) {
		api := &mockAPI{}
		api.On("GetItem", ctx, mock.Anything).Return(&dynamodb.GetItemOutput{}, nil)

		_, ok, err := GetItem[thing](ctx, newTestStore(api), Key("PK", "T#2"))

		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPutIfNotExists(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	conflict := &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	api.On("PutItem", ctx, mock.MatchedBy(func(in *dynamodb.PutItemInput) bool {
		return in.ConditionExpression != nil && in.ExpressionAttributeNames["#0"] == "PK"
	})).Return(nil, conflict)

	err := PutItem(ctx, newTestStore(api), thing{PK: "T#1", Name: "one"}, IfNotExists("PK"))

	require.Error(t, err)
	assert.True(t, errors.As(err, new(*types.ConditionalCheckFailedException)))
	assert.Equal(t, apperrors.KindConflict, apperrors.Classify(err).Kind)
	api.AssertExpectations(t)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("UpdateItem", ctx, mock.MatchedBy(func(in *dynamodb.UpdateItemInput) bool {
		return in.UpdateExpression != nil && in.ConditionExpression != nil && in.ReturnValues == types.ReturnValueAllNew
	})).Return(&dynamodb.UpdateItemOutput{Attributes: Item{"name": &types.AttributeValueMemberS{Value: "renamed"}}}, nil)

	cond := expression.AttributeExists(expression.Name("PK"))
	item, err := newTestStore(api).Update(ctx, Key("PK", "T#1"), expression.Set(expression.Name("name"), expression.Value("renamed")), &cond)

	require.NoError(t, err)
	assert.Equal(t, "renamed", item["name"].(*types.AttributeValueMemberS).Value)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("DeleteItem", ctx, mock.Anything).Return(&dynamodb.DeleteItemOutput{}, nil).Once()

	old, err := newTestStore(api).Delete(ctx, Key("PK", "T#1"))

	require.NoError(t, err)
	assert.Nil(t, old)
}

func putItems(n int) []Item {
	items := make([]Item, n)
	for i := range items {
		items[i] = Key("PK", fmt.Sprintf("T#%d", i))
	}
	return items
}

func TestBatchWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("Should split requests into chunks of 25", func(t *testing.T) {
		api := &mockAPI{}
		var sizes []int
		api.On("BatchWriteItem", ctx, mock.Anything).Run(func(args mock.Arguments) {
			in := args.Get(1).(*dynamodb.BatchWriteItemInput)
			sizes = append(sizes, len(in.RequestItems["things"]))
		}).Return(&dynamodb.BatchWriteItemOutput{}, nil)

		err := newTestStore(api).BatchWrite(ctx, putItems(30), []Item{Key("PK", "gone")})

		require.NoError(t, err)
		assert.Equal(t, []int{25, 6}, sizes)
	})

	t.Run("Should retry unprocessed items", func(t *testing.T) {
		api := &mockAPI{}
		leftover := []types.WriteRequest{{PutRequest: &types.PutRequest{Item: Key("PK", "T#0")}}}
		api.On("BatchWriteItem", ctx, mock.Anything).Return(&dynamodb.BatchWriteItemOutput{
			UnprocessedItems: map[string][]types.WriteRequest{"things": leftover},
		}, nil).Once()
		api.On("BatchWriteItem", ctx, mock.MatchedBy(func(in *dynamodb.BatchWriteItemInput) bool {
			return len(in.RequestItems["things"]) == 1
		})).Return(&dynamodb.BatchWriteItemOutput{}, nil).Once()

		err := newTestStore(api).BatchWrite(ctx, putItems(3), nil)

		require.NoError(t, err)
		api.AssertNumberOfCalls(t, "BatchWriteItem", 2)
	})

	t.Run("Should give up after the retry bound", func(t *testing.T) {
		api := &mockAPI{}
		leftover := []types.WriteRequest{{PutRequest: &types.PutRequest{Item: Key("PK", "T#0")}}}
		api.On("BatchWriteItem", ctx, mock.Anything).Return(&dynamodb.BatchWriteItemOutput{
			UnprocessedItems: map[string][]types.WriteRequest{"things": leftover},
		}, nil)

		err := newTestStore(api).BatchWrite(ctx, putItems(1), nil)

		assert.ErrorIs(t, err, ErrUnprocessed)
		api.AssertNumberOfCalls(t, "BatchWriteItem", defaultMaxRetries+1)
	})
}

func TestBatchGet(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("BatchGetItem", ctx, mock.Anything).Return(&dynamodb.BatchGetItemOutput{
		Responses: map[string][]Item{"things": {Key("PK", "T#0")}},
		UnprocessedKeys: map[string]types.KeysAndAttributes{
			"things": {Keys: []Item{Key("PK", "T#1")}},
		},
	}, nil).Once()
	api.On("BatchGetItem", ctx, mock.Anything).Return(&dynamodb.BatchGetItemOutput{
		Responses: map[string][]Item{"things": {Key("PK", "T#1")}},
	}, nil).Once()

	items, err := newTestStore(api).BatchGet(ctx, putItems(2))

	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestQueryPage(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	start := Key("PK", "T#1", "SK", "A")
	cursor, err := EncodeCursor(start)
	require.NoError(t, err)

	api.On("Query", ctx, mock.MatchedBy(func(in *dynamodb.QueryInput) bool {
		return aws.ToString(in.IndexName) == "ByName" &&
			aws.ToInt32(in.Limit) == 10 &&
			!aws.ToBool(in.ScanIndexForward) &&
			in.ExclusiveStartKey["SK"].(*types.AttributeValueMemberS).Value == "A"
	})).Return(&dynamodb.QueryOutput{
		Items: []Item{{"PK": &types.AttributeValueMemberS{Value: "T#2"}, "name": &types.AttributeValueMemberS{Value: "two"}}},
	}, nil)

	items, next, err := QueryPage[thing](ctx, newTestStore(api), QueryInput{
		KeyCondition: KeyEquals("PK", "T#2"),
		IndexName:    "ByName",
		Limit:        10,
		Descending:   true,
	}, cursor)

	require.NoError(t, err)
	assert.Equal(t, []thing{{PK: "T#2", Name: "two"}}, items)
	assert.Empty(t, next)
}

func TestScanPage(t *testing.T) {
	ctx := context.Background()
	api := &mockAPI{}
	api.On("Scan", ctx, mock.Anything).Return(&dynamodb.ScanOutput{
		Items:            []Item{Key("PK", "T#1")},
		LastEvaluatedKey: Key("PK", "T#1"),
	}, nil)

	items, next, err := ScanPage[thing](ctx, newTestStore(api), ScanInput{Limit: 1}, "")

	require.NoError(t, err)
	assert.Len(t, items, 1)
	decoded, err := DecodeCursor(next)
	require.NoError(t, err)
	assert.Equal(t, Key("PK", "T#1"), decoded)
}

func TestCursor(t *testing.T) {
	tests := []struct {
		name    string
		cursor  string
		wantErr bool
	}{
		{name: "empty", cursor: ""},
		{name: "not base64", cursor: "%%%", wantErr: true},
		{name: "not json", cursor: "bm9wZQ", wantErr: true},
		{name: "empty object", cursor: "e30", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := DecodeCursor(tt.cursor)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCursor)
				return
			}
			require.NoError(t, err)
			assert.Nil(t, key)
		})
	}

	t.Run("Should reject numeric key attributes", func(t *testing.T) {
		_, err := EncodeCursor(Item{"n": &types.AttributeValueMemberN{Value: "1"}})
		assert.Error(t, err)
	})
}
