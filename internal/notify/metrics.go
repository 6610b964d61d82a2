package notify

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"dwellops/internal/types"
)

// QueueMetrics publishes queue depth gauges from the stats tick. Publish
// failures are logged, never propagated; losing a gauge sample is not worth
// failing a tick.
type QueueMetrics interface {
	RecordQueueDepth(ctx context.Context, counts map[types.NotificationStatus]int64)
}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchQueueMetrics implements QueueMetrics by emitting a
// NotificationQueueDepth gauge per status to AWS CloudWatch.
type CloudWatchQueueMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ QueueMetrics = (*CloudWatchQueueMetrics)(nil)

// NewCloudWatchQueueMetrics creates a CloudWatchQueueMetrics publishing to
// the given namespace.
func NewCloudWatchQueueMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchQueueMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchQueueMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordQueueDepth emits one NotificationQueueDepth datum per status, with
// a Status dimension.
func (m *CloudWatchQueueMetrics) RecordQueueDepth(ctx context.Context, counts map[types.NotificationStatus]int64) {
	data := make([]cwtypes.MetricDatum, 0, len(counts))
	for status, count := range counts {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("NotificationQueueDepth"),
			Value:      aws.Float64(float64(count)),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{
				{
					Name:  aws.String("Status"),
					Value: aws.String(string(status)),
				},
			},
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	}
	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.ErrorContext(ctx, "failed to publish queue depth metrics",
			"error", err,
			"namespace", m.namespace,
		)
	}
}

// NopQueueMetrics discards all samples. Used when CloudWatch publishing is
// disabled.
type NopQueueMetrics struct{}

// RecordQueueDepth is a no-op.
func (NopQueueMetrics) RecordQueueDepth(context.Context, map[types.NotificationStatus]int64) {}
