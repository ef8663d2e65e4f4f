package awsfleet

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/craxelfn/fleetpilot/internal/domain"
)

// CloudWatchAPI is the subset of the CloudWatch client the metric source uses.
type CloudWatchAPI interface {
	GetMetricData(ctx context.Context, in *cloudwatch.GetMetricDataInput, opts ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricDataOutput, error)
}

// SignalQuery maps one load signal to a CloudWatch metric.
type SignalQuery struct {
	Namespace  string
	MetricName string
	Dimensions map[string]string
	// Stat is the statistic, e.g. "Average" or "p95".
	Stat string
	// Period is the aggregation period. Zero means one minute.
	Period time.Duration
}

// MetricSource implements [domain.MetricSource] on CloudWatch GetMetricData.
// One call fetches all requested signals; the newest datapoint per signal
// is returned. Signals with no datapoints in the window are omitted so the
// evaluator can fail static per signal.
type MetricSource struct {
	Client  CloudWatchAPI
	Queries map[string]SignalQuery
	// Window is the lookback for datapoints. Zero means five minutes.
	Window time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

func (m *MetricSource) Sample(ctx context.Context, signals []string) (map[string]float64, error) {
	queries := make([]types.MetricDataQuery, 0, len(signals))
	ids := make(map[string]string, len(signals))

	for i, name := range signals {
		q, ok := m.Queries[name]
		if !ok {
			continue
		}
		// GetMetricData ids must start with a lowercase letter.
		id := fmt.Sprintf("q%d", i)
		ids[id] = name

		dims := make([]types.Dimension, 0, len(q.Dimensions))
		for k, v := range q.Dimensions {
			dims = append(dims, types.Dimension{Name: aws.String(k), Value: aws.String(v)})
		}
		queries = append(queries, types.MetricDataQuery{
			Id: aws.String(id),
			MetricStat: &types.MetricStat{
				Metric: &types.Metric{
					Namespace:  aws.String(q.Namespace),
					MetricName: aws.String(q.MetricName),
					Dimensions: dims,
				},
				Period: aws.Int32(int32(q.period().Seconds())),
				Stat:   aws.String(q.Stat),
			},
		})
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("no queries configured for signals %v", signals)
	}

	now := m.now()
	out, err := m.Client.GetMetricData(ctx, &cloudwatch.GetMetricDataInput{
		StartTime:         aws.Time(now.Add(-m.window())),
		EndTime:           aws.Time(now),
		MetricDataQueries: queries,
		ScanBy:            types.ScanByTimestampDescending,
	})
	if err != nil {
		return nil, fmt.Errorf("get metric data: %w", err)
	}

	samples := make(map[string]float64)
	for _, result := range out.MetricDataResults {
		if result.Id == nil || len(result.Values) == 0 {
			continue
		}
		name, ok := ids[*result.Id]
		if !ok {
			continue
		}
		// ScanByTimestampDescending puts the newest datapoint first.
		samples[name] = result.Values[0]
	}
	return samples, nil
}

func (q SignalQuery) period() time.Duration {
	if q.Period > 0 {
		return q.Period
	}
	return time.Minute
}

func (m *MetricSource) window() time.Duration {
	if m.Window > 0 {
		return m.Window
	}
	return 5 * time.Minute
}

func (m *MetricSource) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

var _ domain.MetricSource = (*MetricSource)(nil)
