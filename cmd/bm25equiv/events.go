package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/internal/publisher"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/logger"
)

// eventsCommand tails the audit topic and prints one JSON event per line
// until interrupted.
func eventsCommand(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("events", pflag.ContinueOnError)
	configPath := fs.String("config", "", "path to YAML config file")
	envFile := fs.String("env-file", "", "env file with BM25EQ_* overrides")
	brokers := fs.StringSlice("brokers", nil, "Kafka brokers (default: kafka.brokers)")
	topic := fs.String("topic", "", "topic (default: kafka.topic)")
	group := fs.String("group", "", "consumer group; without one the topic is read from the start")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := loadEnv(*envFile); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	kc := cfg.Kafka
	if fs.Changed("brokers") {
		kc.Brokers = *brokers
	}
	if *topic != "" {
		kc.Topic = *topic
	}
	if *group != "" {
		kc.ConsumerGroup = *group
	}

	out := json.NewEncoder(os.Stdout)
	consumer := kafka.NewConsumer(kc, func(_ context.Context, _ []byte, value []byte) error {
		event, err := kafka.DecodeJSON[publisher.Event](value)
		if err != nil {
			return err
		}
		return out.Encode(event)
	})
	return consumer.Start(ctx)
}
