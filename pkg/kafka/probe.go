package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/config"
)

// CheckTopic dials the brokers in order and reports whether the audit topic
// has at least one partition on the first broker that answers.
func CheckTopic(ctx context.Context, cfg config.KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}
	var errs []error
	for _, broker := range cfg.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, fmt.Errorf("dialing %s: %w", broker, err))
			continue
		}
		partitions, err := conn.ReadPartitions(cfg.Topic)
		conn.Close()
		if err != nil {
			return fmt.Errorf("reading partitions of %s: %w", cfg.Topic, err)
		}
		if len(partitions) == 0 {
			return fmt.Errorf("topic %s has no partitions", cfg.Topic)
		}
		return nil
	}
	return errors.Join(errs...)
}
