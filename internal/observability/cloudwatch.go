package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
)

// PutMetricDataAPI is the slice of the CloudWatch client the recorder uses.
type PutMetricDataAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchRecorder publishes request latency and count to CloudWatch.
// Publishing failures are logged and never reach the request.
type CloudWatchRecorder struct {
	namespace string
	client    PutMetricDataAPI
	logger    *zap.Logger
}

// NewCloudWatchRecorder creates a recorder. A nil client disables it.
func NewCloudWatchRecorder(namespace string, client PutMetricDataAPI, logger *zap.Logger) *CloudWatchRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatchRecorder{namespace: namespace, client: client, logger: logger}
}

// NewCloudWatchRecorderFromConfig builds the recorder on a real client.
func NewCloudWatchRecorderFromConfig(namespace string, cfg aws.Config, logger *zap.Logger) *CloudWatchRecorder {
	return NewCloudWatchRecorder(namespace, cloudwatch.NewFromConfig(cfg), logger)
}

// RecordRequest sends RequestLatency and RequestCount for one request.
func (r *CloudWatchRecorder) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if r.client == nil {
		return
	}

	now := time.Now()
	dimensions := []types.Dimension{
		{Name: aws.String("Method"), Value: aws.String(method)},
		{Name: aws.String("Route"), Value: aws.String(route)},
		{Name: aws.String("Status"), Value: aws.String(strconv.Itoa(status))},
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(r.namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String("RequestLatency"),
				Dimensions: dimensions,
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       types.StandardUnitMilliseconds,
				Timestamp:  aws.Time(now),
			},
			{
				MetricName: aws.String("RequestCount"),
				Dimensions: dimensions,
				Value:      aws.Float64(1),
				Unit:       types.StandardUnitCount,
				Timestamp:  aws.Time(now),
			},
		},
	}

	if _, err := r.client.PutMetricData(ctx, input); err != nil {
		r.logger.Warn("Failed to send metrics", zap.String("namespace", r.namespace), zap.Error(err))
	}
}

// RequestRecorder matches the pipeline's metrics hook.
type RequestRecorder interface {
	RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// MultiRecorder fans one observation out to several recorders.
type MultiRecorder []RequestRecorder

func (m MultiRecorder) RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	for _, r := range m {
		r.RecordRequest(ctx, method, route, status, duration)
	}
}
