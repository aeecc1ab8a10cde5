package writer

import (
	"context"
	"fmt"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	appconfig "cointrade/config"
	"cointrade/internal/metrics"
	"cointrade/logger"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes each event as one JSON message keyed by
// exchange and symbol.
type KafkaWriter struct {
	cfg    appconfig.KafkaConfig
	writer messageWriter

	mu    sync.Mutex
	stats metrics.WriterStats
	log   *logger.Log
}

func NewKafkaWriter(cfg appconfig.KafkaConfig) (*KafkaWriter, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	kw := &KafkaWriter{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers...),
			Topic:    cfg.Topic,
			Balancer: &kafka.Hash{},
		},
		log: logger.GetLogger(),
	}
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka writer initialized")
	return kw, nil
}

func (kw *KafkaWriter) Name() string { return "kafka_writer" }

func (kw *KafkaWriter) Publish(ctx context.Context, events []Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		data, err := e.marshal()
		if err != nil {
			kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to marshal event")
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:     e.key(),
			Value:   data,
			Headers: []kafka.Header{{Key: "action", Value: []byte(e.Action)}},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	err := kw.writer.WriteMessages(ctx, msgs...)

	kw.mu.Lock()
	defer kw.mu.Unlock()
	if err != nil {
		kw.stats.ErrorsCount++
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to write messages")
		return fmt.Errorf("kafka publish: %w", err)
	}
	kw.stats.BatchesWritten++
	kw.stats.RecordsWritten += int64(len(msgs))
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{"records": len(msgs)}).Debug("events written to kafka")
	return nil
}

func (kw *KafkaWriter) Stats() metrics.WriterStats {
	kw.mu.Lock()
	defer kw.mu.Unlock()
	return kw.stats
}

func (kw *KafkaWriter) Stop() {
	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	if err := kw.writer.Close(); err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("kafka close failed")
	}
	metrics.ReportWriter(kw.log, "kafka_writer", kw.Stats())
}
