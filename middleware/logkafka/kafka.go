package logkafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Sink receives encoded log entries.
type Sink interface {
	Write(ctx context.Context, msg []byte) error
}

// KafkaSink ships entries to a topic asynchronously; write errors surface
// through the writer's own logging, not the request path.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{writer: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		Async:                  true,
	}}
}

func (k *KafkaSink) Write(ctx context.Context, msg []byte) error {
	return k.writer.WriteMessages(ctx, kafka.Message{
		Value: msg,
		Time:  time.Now(),
	})
}

func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
