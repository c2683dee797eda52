package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi"
	apigwtypes "github.com/aws/aws-sdk-go-v2/service/apigatewaymanagementapi/types"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	ebtypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBus struct {
	batches [][]ebtypes.PutEventsRequestEntry
	failAt  int
}

func (f *fakeBus) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.batches = append(f.batches, in.Entries)
	if f.failAt == len(f.batches) {
		return &eventbridge.PutEventsOutput{
			FailedEntryCount: 1,
			Entries: []ebtypes.PutEventsResultEntry{
				{ErrorCode: aws.String("ThrottlingException"), ErrorMessage: aws.String("Rate exceeded")},
			},
		}, nil
	}
	return &eventbridge.PutEventsOutput{}, nil
}

func TestEventPublisher(t *testing.T) {
	ctx := context.Background()

	t.Run("Should batch events by ten", func(t *testing.T) {
		bus := &fakeBus{}
		p := NewEventPublisher(bus, "kit-bus", "kit.subscribers", nil)

		events := make([]Event, 23)
		for i := range events {
			events[i] = Event{DetailType: "SubscriberCreated", Detail: map[string]int{"n": i}}
		}
		require.NoError(t, p.Publish(ctx, events...))

		require.Len(t, bus.batches, 3)
		assert.Len(t, bus.batches[0], 10)
		assert.Len(t, bus.batches[2], 3)
		entry := bus.batches[2][2]
		assert.Equal(t, "kit-bus", aws.ToString(entry.EventBusName))
		assert.Equal(t, "kit.subscribers", aws.ToString(entry.Source))
		assert.JSONEq(t, `{"n":22}`, aws.ToString(entry.Detail))
		assert.NotNil(t, entry.Time)
	})

	t.Run("Should report failed entries", func(t *testing.T) {
		p := NewEventPublisher(&fakeBus{failAt: 1}, "kit-bus", "kit", nil)

		err := p.Publish(ctx, Event{DetailType: "X", Detail: struct{}{}})
		assert.EqualError(t, err, "1 events failed to publish")
	})

	t.Run("Should do nothing for no events", func(t *testing.T) {
		bus := &fakeBus{}
		require.NoError(t, NewEventPublisher(bus, "b", "s", nil).Publish(ctx))
		assert.Empty(t, bus.batches)
	})
}

type fakeTopic struct {
	last *sns.PublishInput
	err  error
}

func (f *fakeTopic) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.last = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func TestNotifier(t *testing.T) {
	topic := &fakeTopic{}
	n := NewNotifier(topic, "arn:aws:sns:us-east-1:123456789012:signups")

	id, err := n.Notify(context.Background(), "New subscriber", map[string]string{"email": "a@b.io"}, map[string]string{"event": "created"})

	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	assert.Equal(t, "New subscriber", aws.ToString(topic.last.Subject))
	assert.JSONEq(t, `{"email":"a@b.io"}`, aws.ToString(topic.last.Message))
	assert.Equal(t, "created", aws.ToString(topic.last.MessageAttributes["event"].StringValue))

	topic.err = errors.New("AuthorizationError")
	_, err = n.Notify(context.Background(), "", nil, nil)
	assert.ErrorIs(t, err, topic.err)
}

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	received *sqs.ReceiveMessageInput
	deleted  []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: aws.String(fmt.Sprintf("m-%d", len(f.sent)))}, nil
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.received = in
	msgs := make([]sqstypes.Message, 0, len(f.sent))
	for i, s := range f.sent {
		msgs = append(msgs, sqstypes.Message{
			MessageId:         aws.String(fmt.Sprintf("m-%d", i+1)),
			Body:              s.MessageBody,
			ReceiptHandle:     aws.String(fmt.Sprintf("rh-%d", i+1)),
			MessageAttributes: s.MessageAttributes,
		})
	}
	return &sqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestQueue(t *testing.T) {
	ctx := context.Background()
	client := &fakeSQS{}
	q := NewQueue(client, "https://sqs.us-east-1.amazonaws.com/123456789012/welcome")

	id, err := q.Send(ctx, map[string]string{"subscriberId": "s-1"}, map[string]string{"kind": "welcome"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", id)

	msgs, err := q.Receive(ctx, 50, 1)
	require.NoError(t, err)
	assert.Equal(t, int32(10), client.received.MaxNumberOfMessages)
	require.Len(t, msgs, 1)
	assert.Equal(t, "welcome", msgs[0].Attributes["kind"])

	var body map[string]string
	require.NoError(t, msgs[0].Decode(&body))
	assert.Equal(t, "s-1", body["subscriberId"])

	require.NoError(t, q.Delete(ctx, msgs[0].ReceiptHandle))
	assert.Equal(t, []string{"rh-1"}, client.deleted)
}

type fakeConnections struct {
	frames map[string][]byte
	gone   map[string]bool
}

func (f *fakeConnections) PostToConnection(_ context.Context, in *apigatewaymanagementapi.PostToConnectionInput, _ ...func(*apigatewaymanagementapi.Options)) (*apigatewaymanagementapi.PostToConnectionOutput, error) {
	id := aws.ToString(in.ConnectionId)
	if f.gone[id] {
		return nil, &apigwtypes.GoneException{Message: aws.String("gone")}
	}
	if id == "broken" {
		return nil, errors.New("LimitExceededException")
	}
	f.frames[id] = in.Data
	return &apigatewaymanagementapi.PostToConnectionOutput{}, nil
}

func TestConnectionPusher(t *testing.T) {
	client := &fakeConnections{frames: map[string][]byte{}, gone: map[string]bool{"c2": true}}
	p := NewConnectionPusher(client)

	t.Run("Should mark gone connections", func(t *testing.T) {
		err := p.Push(context.Background(), "c2", "hi")
		assert.ErrorIs(t, err, ErrGone)
	})

	t.Run("Should broadcast and collect gone ids", func(t *testing.T) {
		gone, err := p.Broadcast(context.Background(), []string{"c1", "c2", "broken"}, map[string]string{"type": "ping"})

		assert.Equal(t, []string{"c2"}, gone)
		assert.ErrorContains(t, err, "broken")

		var frame map[string]string
		require.NoError(t, json.Unmarshal(client.frames["c1"], &frame))
		assert.Equal(t, "ping", frame["type"])
	})
}
