package writer

import (
	"context"
	"errors"

	appconfig "cointrade/config"
	"cointrade/logger"
	"cointrade/models"
)

// Publisher is one journal destination.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, events []Event) error
	Stop()
}

// Journal fans events out to every configured publisher. A failing
// publisher is logged and does not stop the others.
type Journal struct {
	publishers []Publisher
	log        *logger.Log
}

func NewJournal(publishers ...Publisher) *Journal {
	return &Journal{publishers: publishers, log: logger.GetLogger()}
}

// FromConfig builds the publishers enabled in cfg. The S3 journal's
// flush loop is started with ctx.
func FromConfig(ctx context.Context, cfg appconfig.JournalConfig) (*Journal, error) {
	var pubs []Publisher
	if cfg.S3.Enabled {
		s3j, err := NewS3Journal(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		if err := s3j.Start(ctx); err != nil {
			return nil, err
		}
		pubs = append(pubs, s3j)
	}
	if cfg.Kafka.Enabled {
		kw, err := NewKafkaWriter(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, kw)
	}
	return NewJournal(pubs...), nil
}

// Enabled reports whether any publisher is configured.
func (j *Journal) Enabled() bool { return j != nil && len(j.publishers) > 0 }

func (j *Journal) Publish(ctx context.Context, events []Event) error {
	if !j.Enabled() || len(events) == 0 {
		return nil
	}
	var errs []error
	for _, p := range j.publishers {
		if err := p.Publish(ctx, events); err != nil {
			j.log.WithComponent("journal").WithError(err).WithFields(logger.Fields{"publisher": p.Name(), "events": len(events)}).Warn("journal publish failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (j *Journal) RecordOrder(ctx context.Context, exchange string, o models.Order) error {
	return j.Publish(ctx, []Event{OrderEvent(exchange, o)})
}

func (j *Journal) RecordCancel(ctx context.Context, exchange string, c models.CancelResult) error {
	return j.Publish(ctx, []Event{CancelEvent(exchange, c)})
}

// PublishTrades journals a watcher batch.
func (j *Journal) PublishTrades(ctx context.Context, exchange string, trades []models.Trade) error {
	return j.Publish(ctx, TradeEvents(exchange, trades))
}

func (j *Journal) Stop() {
	if j == nil {
		return
	}
	for _, p := range j.publishers {
		p.Stop()
	}
}
