package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counterTable emulates the conditional increment on a single in-memory map.
type counterTable struct {
	counts map[string]int
	err    error
	inputs []*dynamodb.UpdateItemInput
}

func (c *counterTable) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.inputs = append(c.inputs, in)
	if c.err != nil {
		return nil, c.err
	}
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	limit, _ := strconv.Atoi(in.ExpressionAttributeValues[":limit"].(*types.AttributeValueMemberN).Value)
	if c.counts[pk] >= limit {
		return nil, &types.ConditionalCheckFailedException{Message: new(string)}
	}
	c.counts[pk]++
	return &dynamodb.UpdateItemOutput{Attributes: map[string]types.AttributeValue{
		"PK":    &types.AttributeValueMemberS{Value: pk},
		"Count": &types.AttributeValueMemberN{Value: strconv.Itoa(c.counts[pk])},
	}}, nil
}

func TestDynamoDBLimiter(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 15, 0, time.UTC)

	t.Run("Should deny once the window's counter reaches the limit", func(t *testing.T) {
		table := &counterTable{counts: map[string]int{}}
		l := NewDynamoDB(table, "limits", 2, time.Minute, "RATELIMIT#IP#")
		l.now = func() time.Time { return now }

		d, err := l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1, d.Remaining)

		d, _ = l.Allow(ctx, "1.2.3.4")
		assert.True(t, d.Allowed)

		d, err = l.Allow(ctx, "1.2.3.4")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 45*time.Second, d.RetryAfter)

		assert.Equal(t, "limits", *table.inputs[0].TableName)
		assert.Equal(t, "RATELIMIT#IP#1.2.3.4#"+strconv.FormatInt(now.Truncate(time.Minute).Unix(), 10),
			table.inputs[0].Key["PK"].(*types.AttributeValueMemberS).Value)
	})

	t.Run("Should apply the key prefix once", func(t *testing.T) {
		table := &counterTable{counts: map[string]int{}}
		l := NewDynamoDB(table, "limits", 2, time.Minute, "RATELIMIT#")
		l.now = func() time.Time { return now }

		_, err := l.Allow(ctx, "ip:1.2.3.4")
		require.NoError(t, err)

		pk := table.inputs[0].Key["PK"].(*types.AttributeValueMemberS).Value
		assert.Equal(t, "RATELIMIT#ip:1.2.3.4#"+strconv.FormatInt(now.Truncate(time.Minute).Unix(), 10), pk)
		assert.Equal(t, 1, strings.Count(pk, "RATELIMIT#"))
	})

	t.Run("Should fail open on other errors", func(t *testing.T) {
		table := &counterTable{err: errors.New("network down")}
		l := NewDynamoDB(table, "limits", 2, time.Minute, "IP")

		d, err := l.Allow(ctx, "1.2.3.4")
		assert.Error(t, err)
		assert.True(t, d.Allowed)
	})
}
