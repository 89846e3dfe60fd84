package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducerConfig configures the producer that publishes ledger entries.
type KafkaProducerConfig struct {
	Brokers []string
	Topic   string

	// MaxAttempts bounds retries of a single Produce. Defaults to 3.
	MaxAttempts int

	// WriteTimeout is the writer's per-batch timeout. Defaults to 10s.
	WriteTimeout time.Duration

	// Balancer picks the partition. Defaults to key hashing, which keeps all
	// entries of one case on one partition.
	Balancer kafka.Balancer
}

// KafkaProducer wraps a kafka-go Writer with bounded produce retries.
// kafka-go's Writer does not report partition or offset, so Produce returns
// -1 for both.
type KafkaProducer struct {
	writer         *kafka.Writer
	maxAttempts    int
	attemptTimeout time.Duration
}

func NewKafkaProducer(cfg KafkaProducerConfig) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic required")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Balancer == nil {
		cfg.Balancer = &kafka.Hash{}
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     cfg.Balancer,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireAll,
	}
	return &KafkaProducer{
		writer:         w,
		maxAttempts:    cfg.MaxAttempts,
		attemptTimeout: 5 * time.Second,
	}, nil
}

// Produce writes one message, retrying with exponential backoff.
func (p *KafkaProducer) Produce(ctx context.Context, key []byte, value []byte) (partition int, offset int64, producedAt time.Time, err error) {
	var lastErr error
	backoff := 100 * time.Millisecond

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		msg := kafka.Message{
			Key:   key,
			Value: value,
			Time:  time.Now().UTC(),
		}

		attemptCtx, cancel := context.WithTimeout(ctx, p.attemptTimeout)
		err := p.writer.WriteMessages(attemptCtx, msg)
		cancel()
		if err == nil {
			return -1, -1, msg.Time, nil
		}
		lastErr = err

		if attempt == p.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return -1, -1, time.Time{}, ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	return -1, -1, time.Time{}, fmt.Errorf("produce failed after %d attempts: %w", p.maxAttempts, lastErr)
}

func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
