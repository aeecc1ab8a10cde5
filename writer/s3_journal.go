package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "cointrade/config"
	"cointrade/internal/metrics"
	"cointrade/logger"
)

// putObjectAPI is the part of the S3 client the journal uses.
type putObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// memFile satisfies parquet-go's file interface over a buffer.
type memFile struct{ buffer *bytes.Buffer }

func newMemFile() *memFile { return &memFile{buffer: &bytes.Buffer{}} }

func (m *memFile) Create(string) (source.ParquetFile, error) { return m, nil }
func (m *memFile) Open(string) (source.ParquetFile, error)   { return m, nil }
func (m *memFile) Seek(int64, int) (int64, error)            { return int64(m.buffer.Len()), nil }
func (m *memFile) Read([]byte) (int, error)                  { return 0, nil }
func (m *memFile) Write(b []byte) (int, error)               { return m.buffer.Write(b) }
func (m *memFile) Close() error                              { return nil }
func (m *memFile) Bytes() []byte                             { return m.buffer.Bytes() }

// S3Journal buffers events per exchange and action and uploads each
// buffer as one parquet object when it reaches the batch size or on the
// flush interval.
type S3Journal struct {
	cfg    appconfig.S3Config
	client putObjectAPI

	mu      sync.Mutex
	buffer  map[string][]Event
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stats   metrics.WriterStats
	log     *logger.Log
}

// NewS3Journal loads AWS credentials the way the SDK does, preferring
// static keys from the config when both are set.
func NewS3Journal(ctx context.Context, cfg appconfig.S3Config) (*S3Journal, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})
	return newS3Journal(cfg, client), nil
}

func newS3Journal(cfg appconfig.S3Config, client putObjectAPI) *S3Journal {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	return &S3Journal{cfg: cfg, client: client, buffer: make(map[string][]Event), log: logger.GetLogger()}
}

func (j *S3Journal) Name() string { return "s3_journal" }

// Start runs the periodic flush until Stop.
func (j *S3Journal) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return fmt.Errorf("s3 journal already running")
	}
	j.running = true
	ctx, j.cancel = context.WithCancel(ctx)
	j.mu.Unlock()

	j.wg.Add(1)
	go j.flushLoop(ctx)
	j.log.WithComponent("s3_journal").WithFields(logger.Fields{"bucket": j.cfg.Bucket, "prefix": j.cfg.Prefix}).Info("s3 journal started")
	return nil
}

// Stop halts the flush loop and uploads whatever is still buffered.
func (j *S3Journal) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		j.flushAll(context.Background())
		return
	}
	j.running = false
	cancel := j.cancel
	j.mu.Unlock()

	cancel()
	j.wg.Wait()
	j.flushAll(context.Background())
	metrics.ReportWriter(j.log, "s3_journal", j.Stats())
	j.log.WithComponent("s3_journal").Info("s3 journal stopped")
}

// Publish buffers events and flushes any buffer that reached the batch
// size.
func (j *S3Journal) Publish(ctx context.Context, events []Event) error {
	var full []string
	j.mu.Lock()
	for _, e := range events {
		k := e.Exchange + "|" + e.Action
		j.buffer[k] = append(j.buffer[k], e)
		if len(j.buffer[k]) == j.cfg.BatchSize {
			full = append(full, k)
		}
	}
	j.mu.Unlock()

	var firstErr error
	for _, k := range full {
		if err := j.flushBuffer(ctx, k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (j *S3Journal) Stats() metrics.WriterStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.stats
	for _, b := range j.buffer {
		s.Pending += len(b)
	}
	return s
}

func (j *S3Journal) flushLoop(ctx context.Context) {
	defer j.wg.Done()
	ticker := time.NewTicker(j.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.flushAll(ctx)
		}
	}
}

func (j *S3Journal) flushAll(ctx context.Context) {
	j.mu.Lock()
	keys := make([]string, 0, len(j.buffer))
	for k := range j.buffer {
		keys = append(keys, k)
	}
	j.mu.Unlock()
	for _, k := range keys {
		j.flushBuffer(ctx, k)
	}
}

func (j *S3Journal) flushBuffer(ctx context.Context, key string) error {
	j.mu.Lock()
	events := j.buffer[key]
	if len(events) == 0 {
		j.mu.Unlock()
		return nil
	}
	delete(j.buffer, key)
	j.mu.Unlock()

	parts := strings.SplitN(key, "|", 2)
	ts := now().UTC()
	data, err := createParquet(events)
	if err == nil {
		err = j.upload(ctx, j.objectKey(parts[0], parts[1], ts), data)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err != nil {
		j.stats.ErrorsCount++
		j.log.WithComponent("s3_journal").WithError(err).WithFields(logger.Fields{"exchange": parts[0], "action": parts[1], "records": len(events)}).Error("journal upload failed")
		return err
	}
	j.stats.BatchesWritten++
	j.stats.RecordsWritten += int64(len(events))
	j.stats.BytesWritten += int64(len(data))
	j.log.WithComponent("s3_journal").WithFields(logger.Fields{"exchange": parts[0], "action": parts[1], "records": len(events), "bytes": len(data)}).Debug("journal batch uploaded")
	return nil
}

func createParquet(events []Event) ([]byte, error) {
	mf := newMemFile()
	pw, err := writer.NewParquetWriter(mf, new(Event), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, e := range events {
		if err := pw.Write(e); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return mf.Bytes(), nil
}

func (j *S3Journal) upload(ctx context.Context, key string, data []byte) error {
	_, err := j.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(j.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/vnd.apache.parquet"),
	})
	return err
}

// objectKey partitions by exchange, action and hour.
func (j *S3Journal) objectKey(exchange, action string, ts time.Time) string {
	return path.Join(
		j.cfg.Prefix,
		"exchange="+exchange,
		"action="+action,
		fmt.Sprintf("year=%04d", ts.Year()),
		fmt.Sprintf("month=%02d", int(ts.Month())),
		fmt.Sprintf("day=%02d", ts.Day()),
		fmt.Sprintf("hour=%02d", ts.Hour()),
		fmt.Sprintf("%s_%s_%d_%s.parquet", exchange, action, ts.UnixNano(), uuid.NewString()[:8]),
	)
}
