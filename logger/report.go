package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type exchangeStat struct {
	requests    int64
	retries     int64
	errors      int64
	rateLimited int64
}

var (
	errorsTotal int64
	warnsTotal  int64
	exchanges   sync.Map // map[string]*exchangeStat
)

func recordWarn(component string) {
	atomic.AddInt64(&warnsTotal, 1)
}

func recordError(component string) {
	atomic.AddInt64(&errorsTotal, 1)
}

func statFor(exchange string) *exchangeStat {
	v, _ := exchanges.LoadOrStore(exchange, &exchangeStat{})
	return v.(*exchangeStat)
}

// RecordRequest counts one HTTP attempt against exchange. attempt is
// zero-based; anything above zero is a retry.
func RecordRequest(exchange string, attempt int, failed, rateLimited bool) {
	s := statFor(exchange)
	atomic.AddInt64(&s.requests, 1)
	if attempt > 0 {
		atomic.AddInt64(&s.retries, 1)
	}
	if failed {
		atomic.AddInt64(&s.errors, 1)
	}
	if rateLimited {
		atomic.AddInt64(&s.rateLimited, 1)
	}
}

// ExchangeCounters returns a snapshot of the per-exchange counters.
func ExchangeCounters() map[string]map[string]int64 {
	out := map[string]map[string]int64{}
	exchanges.Range(func(k, v any) bool {
		s := v.(*exchangeStat)
		out[k.(string)] = map[string]int64{
			"requests":     atomic.LoadInt64(&s.requests),
			"retries":      atomic.LoadInt64(&s.retries),
			"errors":       atomic.LoadInt64(&s.errors),
			"rate_limited": atomic.LoadInt64(&s.rateLimited),
		}
		return true
	})
	return out
}

// StartReport begins periodic logging of request statistics until ctx is
// done.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	counters := ExchangeCounters()

	fields := Fields{
		"errors":     atomic.LoadInt64(&errorsTotal),
		"warns":      atomic.LoadInt64(&warnsTotal),
		"goroutines": runtime.NumGoroutine(),
		"heap_mb":    int64(mem.HeapAlloc) / 1024 / 1024,
		"exchanges":  counters,
	}
	log.WithComponent("report").WithFields(fields).Info("runtime report")

	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(mem.HeapAlloc) / 1024 / 1024)},
		{MetricName: aws.String("Goroutines"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(runtime.NumGoroutine()))},
	}
	for _, name := range names {
		dims := []cwtypes.Dimension{{Name: aws.String("Exchange"), Value: aws.String(name)}}
		c := counters[name]
		data = append(data,
			cwtypes.MetricDatum{MetricName: aws.String("Requests"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(c["requests"]))},
			cwtypes.MetricDatum{MetricName: aws.String("Retries"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(c["retries"]))},
			cwtypes.MetricDatum{MetricName: aws.String("Errors"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(c["errors"]))},
			cwtypes.MetricDatum{MetricName: aws.String("RateLimited"), Unit: cwtypes.StandardUnitCount, Dimensions: dims, Value: aws.Float64(float64(c["rate_limited"]))},
		)
	}
	PublishMetrics(ctx, data)
}
