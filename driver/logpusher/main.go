// Command logpusher copies request logs from Kafka into Elasticsearch.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/segmentio/kafka-go"

	"quickeats/gorest/config"
	"quickeats/gorest/telem"
	"quickeats/gorest/utils"
)

func main() {
	cfg, err := config.LoadLogPusher()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := telem.NewLogger(telem.LogConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Component: "logpusher", Env: cfg.Env})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.KafkaLogTopic,
		GroupID: "es-pusher",
	})
	defer reader.Close()

	indexer, err := utils.NewESIndexer(cfg.ESAddresses, cfg.ESIndex)
	if err != nil {
		log.Error("elasticsearch setup failed", "error", err)
		os.Exit(1)
	}

	log.Info("starting Kafka to Elasticsearch pusher", "topic", cfg.KafkaLogTopic, "index", cfg.ESIndex)
	if err := utils.NewLogPusher(reader, indexer, log).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("pusher stopped", "error", err)
		os.Exit(1)
	}
}
