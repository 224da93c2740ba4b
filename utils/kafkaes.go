package utils

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"

	"quickeats/gorest/middleware/logkafka"
)

// MessageReader is the part of *kafka.Reader the pusher uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// Indexer stores a batch of JSON documents.
type Indexer interface {
	Index(ctx context.Context, docs [][]byte) error
}

// ESIndexer bulk-indexes documents into one Elasticsearch index.
type ESIndexer struct {
	client *elasticsearch.Client
	index  string
}

func NewESIndexer(addresses []string, index string) (*ESIndexer, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: addresses})
	if err != nil {
		return nil, fmt.Errorf("error creating Elasticsearch client: %w", err)
	}
	return &ESIndexer{client: client, index: index}, nil
}

func (e *ESIndexer) Index(ctx context.Context, docs [][]byte) error {
	var buf bytes.Buffer
	for _, doc := range docs {
		buf.WriteString("{\"index\":{}}\n")
		buf.Write(doc)
		buf.WriteString("\n")
	}
	res, err := e.client.Bulk(bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.index),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		b, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk index: %s: %s", res.Status(), bytes.TrimSpace(b))
	}
	var body struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Errors {
		return errors.New("bulk index: some documents were rejected")
	}
	return nil
}

const maxReadWait = 30 * time.Second

// LogPusher moves request logs from the Kafka log topic into Elasticsearch,
// flushing when a batch fills up or the interval elapses.
type LogPusher struct {
	Reader        MessageReader
	Indexer       Indexer
	Log           *slog.Logger
	BatchSize     int
	FlushInterval time.Duration
	// ReadBackOff spaces out retries after a failed read. It is reset by the
	// next successful read.
	ReadBackOff backoff.BackOff
	now         func() time.Time
}

func NewLogPusher(reader MessageReader, indexer Indexer, log *slog.Logger) *LogPusher {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = 200 * time.Millisecond
	retry.MaxInterval = maxReadWait
	retry.MaxElapsedTime = 0
	return &LogPusher{
		Reader:        reader,
		Indexer:       indexer,
		Log:           log,
		BatchSize:     100,
		FlushInterval: 5 * time.Second,
		ReadBackOff:   retry,
		now:           time.Now,
	}
}

// Run blocks until ctx is cancelled, then flushes what it holds.
func (p *LogPusher) Run(ctx context.Context) error {
	msgs := make(chan kafka.Message)
	readCtx, stop := context.WithCancel(ctx)
	defer stop()

	go func() {
		defer close(msgs)
		for {
			m, err := p.Reader.ReadMessage(readCtx)
			if err != nil {
				if readCtx.Err() != nil {
					return
				}
				wait := p.ReadBackOff.NextBackOff()
				if wait == backoff.Stop {
					wait = maxReadWait
				}
				p.Log.Warn("kafka read error", "error", err, "retry_in", wait)
				select {
				case <-time.After(wait):
				case <-readCtx.Done():
					return
				}
				continue
			}
			p.ReadBackOff.Reset()
			select {
			case msgs <- m:
			case <-readCtx.Done():
				return
			}
		}
	}()

	batch := make([][]byte, 0, p.BatchSize)
	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := p.Indexer.Index(ctx, batch); err != nil {
			p.Log.Error("failed to push log batch", "size", len(batch), "error", err)
		} else {
			p.Log.Info("pushed log batch", "size", len(batch))
		}
		batch = batch[:0]
	}

	ticker := time.NewTicker(p.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flush(context.WithoutCancel(ctx))
			return nil
		case <-ticker.C:
			flush(ctx)
		case m, ok := <-msgs:
			if !ok {
				flush(context.WithoutCancel(ctx))
				return nil
			}
			doc, err := p.normalize(m.Value)
			if err != nil {
				p.Log.Warn("skipping undecodable log entry", "offset", m.Offset, "error", err)
				continue
			}
			batch = append(batch, doc)
			if len(batch) >= p.BatchSize {
				flush(ctx)
			}
		}
	}
}

// normalize checks that a message is a request log entry and fills in a
// missing timestamp.
func (p *LogPusher) normalize(raw []byte) ([]byte, error) {
	var entry logkafka.LogEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = p.now()
	}
	return json.Marshal(entry)
}
