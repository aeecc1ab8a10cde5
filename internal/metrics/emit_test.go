package metrics

import (
	"context"
	"testing"
	"time"

	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"cointrade/logger"
)

func capturePublishes(t *testing.T, interval time.Duration) (*[][]cwtypes.MetricDatum, func(time.Time)) {
	t.Helper()
	resetMetricPublishTimes()
	t.Cleanup(resetMetricPublishTimes)

	origInterval, origNow, origPublish, origEnabled := cloudWatchPublishInterval, timeNow, publishMetricsFunc, cloudWatchEnabled
	t.Cleanup(func() {
		cloudWatchPublishInterval, timeNow, publishMetricsFunc, cloudWatchEnabled = origInterval, origNow, origPublish, origEnabled
	})
	cloudWatchPublishInterval = interval
	cloudWatchEnabled = func() bool { return true }

	batches := &[][]cwtypes.MetricDatum{}
	publishMetricsFunc = func(ctx context.Context, data []cwtypes.MetricDatum) {
		*batches = append(*batches, append([]cwtypes.MetricDatum(nil), data...))
	}
	setNow := func(ts time.Time) { timeNow = func() time.Time { return ts } }
	return batches, setNow
}

func TestPublishMetricDatumThrottlesToInterval(t *testing.T) {
	batches, setNow := capturePublishes(t, 50*time.Millisecond)
	base := time.Now()
	setNow(base)

	metric := Metric{Component: "binance_transport", Name: "used_weight", Timestamp: base, Fields: logger.Fields{"unit": "count"}}
	publishMetricDatum(metric, 1)

	setNow(base.Add(25 * time.Millisecond))
	publishMetricDatum(metric, 2)

	if len(*batches) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(*batches))
	}
	datum := (*batches)[0][0]
	if *datum.MetricName != "used_weight" || *datum.Value != 1 {
		t.Fatalf("unexpected datum %v=%v", *datum.MetricName, *datum.Value)
	}
}

func TestPublishMetricDatumAllowsAfterInterval(t *testing.T) {
	batches, setNow := capturePublishes(t, 50*time.Millisecond)
	base := time.Now()
	setNow(base)

	metric := Metric{Component: "binance_transport", Name: "used_weight", Timestamp: base}
	publishMetricDatum(metric, 1)
	setNow(base.Add(75 * time.Millisecond))
	publishMetricDatum(metric, 2)

	if len(*batches) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(*batches))
	}
	if v := *(*batches)[1][0].Value; v != 2 {
		t.Fatalf("unexpected second value %v", v)
	}
}

func TestPublishSeriesAreThrottledIndependently(t *testing.T) {
	batches, setNow := capturePublishes(t, time.Minute)
	setNow(time.Now())

	publishMetricDatum(Metric{Component: "transport", Name: "used_weight", Fields: logger.Fields{"exchange": "binance"}}, 1)
	publishMetricDatum(Metric{Component: "transport", Name: "used_weight", Fields: logger.Fields{"exchange": "bybit"}}, 1)

	if len(*batches) != 2 {
		t.Fatalf("distinct dimensions must not share a throttle, got %d publishes", len(*batches))
	}
	dims := (*batches)[1][0].Dimensions
	if len(dims) != 2 || *dims[1].Name != "exchange" || *dims[1].Value != "bybit" {
		t.Fatalf("unexpected dimensions %v", dims)
	}
}

func TestEmitMetricSkipsNonNumericPublish(t *testing.T) {
	batches, _ := capturePublishes(t, 0)
	EmitMetric(nil, "transport", "last_error", "boom", "gauge", nil)
	if len(*batches) != 0 {
		t.Fatalf("non numeric value published")
	}
}

func TestSubscribeFiltersByName(t *testing.T) {
	var got []string
	stop := Subscribe(func(m Metric) { got = append(got, m.Component+"/"+m.Name) }, "used_weight")

	fields := logger.Fields{"exchange": "binance"}
	EmitMetric(nil, "binance_transport", "used_weight", 3, "gauge", fields)
	EmitMetric(nil, "binance_transport", "request_error", 1, "", nil)
	EmitMetric(nil, "binance_transport", "", 1, "", nil)
	stop()
	stop()
	EmitMetric(nil, "binance_transport", "used_weight", 4, "gauge", nil)

	if len(got) != 1 || got[0] != "binance_transport/used_weight" {
		t.Fatalf("unexpected deliveries %v", got)
	}
	if len(fields) != 1 {
		t.Fatalf("caller fields mutated: %v", fields)
	}
}

func TestSubscribeDefaultsType(t *testing.T) {
	var got Metric
	stop := Subscribe(func(m Metric) { got = m })
	defer stop()

	EmitMetric(nil, "journal", "batches_written", 7, "", logger.Fields{"unit": "count"})
	if got.Type != "counter" || got.Value != 7 {
		t.Fatalf("unexpected metric %+v", got)
	}
}
