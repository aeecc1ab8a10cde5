package metrics

import "cointrade/logger"

// WriterStats holds counters for journal sinks.
type WriterStats struct {
	BatchesWritten int64
	RecordsWritten int64
	BytesWritten   int64
	ErrorsCount    int64
	Pending        int
}

// ReportWriter emits common sink metrics using the provided logger and component name.
func ReportWriter(log *logger.Log, component string, stats WriterStats) {
	errorRate := float64(0)
	if stats.BatchesWritten+stats.ErrorsCount > 0 {
		errorRate = 100 * float64(stats.ErrorsCount) / float64(stats.BatchesWritten+stats.ErrorsCount)
	}

	EmitMetric(log, component, "batches_written", stats.BatchesWritten, "counter", logger.Fields{})
	EmitMetric(log, component, "records_written", stats.RecordsWritten, "counter", logger.Fields{})
	EmitMetric(log, component, "bytes_written", stats.BytesWritten, "counter", logger.Fields{"unit": "bytes"})
	EmitMetric(log, component, "errors_count", stats.ErrorsCount, "counter", logger.Fields{})
	EmitMetric(log, component, "error_rate", errorRate, "gauge", logger.Fields{"unit": "percent"})
	EmitMetric(log, component, "pending_records", stats.Pending, "gauge", logger.Fields{})

	if log == nil {
		log = logger.GetLogger()
	}
	entry := log.WithComponent(component).WithFields(logger.Fields{
		"batches_written": stats.BatchesWritten,
		"records_written": stats.RecordsWritten,
		"bytes_written":   stats.BytesWritten,
		"errors_count":    stats.ErrorsCount,
		"error_rate":      errorRate,
		"pending_records": stats.Pending,
	})

	if stats.ErrorsCount > 0 {
		entry.Warn(component + " metrics")
		return
	}

	entry.Info(component + " metrics")
}
