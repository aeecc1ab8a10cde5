package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cointrade/logger"
)

var (
	// cloudWatchPublishInterval bounds how often one metric series is sent.
	cloudWatchPublishInterval = 10 * time.Second
	timeNow                   = time.Now
	publishMetricsFunc        = logger.PublishMetrics
	cloudWatchEnabled         = logger.CloudWatchEnabled

	lastPublishMu sync.Mutex
	lastPublish   = map[string]time.Time{}
)

// EmitMetric logs the metric, hands it to registered handlers and
// publishes numeric values to CloudWatch when configured.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	event, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}
	numeric, ok := toFloat64(event.Value)
	if !ok {
		return
	}
	publishMetricDatum(event, numeric)
}

func publishMetricDatum(m Metric, value float64) {
	if !cloudWatchEnabled() {
		return
	}
	key := seriesKey(m)
	lastPublishMu.Lock()
	now := timeNow()
	if last, ok := lastPublish[key]; ok && now.Sub(last) < cloudWatchPublishInterval {
		lastPublishMu.Unlock()
		return
	}
	lastPublish[key] = now
	lastPublishMu.Unlock()

	unit := cwtypes.StandardUnitCount
	if raw, ok := m.Fields["unit"].(string); ok {
		if parsed, found := metricUnitFromString(raw); found {
			unit = parsed
		}
	}

	dims := []cwtypes.Dimension{{Name: aws.String("component"), Value: aws.String(m.Component)}}
	for _, k := range sortedKeys(m.Fields) {
		if k == "unit" {
			continue
		}
		if s, ok := m.Fields[k].(string); ok && s != "" {
			dims = append(dims, cwtypes.Dimension{Name: aws.String(k), Value: aws.String(s)})
		}
	}

	publishMetricsFunc(context.Background(), []cwtypes.MetricDatum{{
		MetricName: aws.String(m.Name),
		Dimensions: dims,
		Unit:       unit,
		Timestamp:  aws.Time(m.Timestamp),
		Value:      aws.Float64(value),
	}})
}

func seriesKey(m Metric) string {
	var b strings.Builder
	b.WriteString(m.Component)
	b.WriteByte('|')
	b.WriteString(m.Name)
	for _, k := range sortedKeys(m.Fields) {
		if s, ok := m.Fields[k].(string); ok {
			b.WriteByte('|')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(s)
		}
	}
	return b.String()
}

func resetMetricPublishTimes() {
	lastPublishMu.Lock()
	lastPublish = map[string]time.Time{}
	lastPublishMu.Unlock()
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func metricUnitFromString(unit string) (cwtypes.StandardUnit, bool) {
	switch strings.ToLower(unit) {
	case "count":
		return cwtypes.StandardUnitCount, true
	case "percent":
		return cwtypes.StandardUnitPercent, true
	case "milliseconds", "ms":
		return cwtypes.StandardUnitMilliseconds, true
	case "bytes":
		return cwtypes.StandardUnitBytes, true
	default:
		return cwtypes.StandardUnitCount, false
	}
}
