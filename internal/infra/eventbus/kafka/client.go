package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/castverify/pkg/common/logger"
)

// ClientConfig contains the settings needed to reach the brokers.
type ClientConfig struct {
	Brokers  []string
	ClientID string
	// MaxElapsedTime bounds the connection retries. Zero means five minutes.
	MaxElapsedTime time.Duration
}

// NewClient creates a Kafka client configured for synchronous, fully
// acknowledged, key-partitioned publishing.
func NewClient(cfg *ClientConfig) (sarama.Client, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID

	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Return.Successes = true
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Idempotent = false
	config.Producer.Retry.Max = 5

	config.Version = sarama.V3_6_0_0

	return sarama.NewClient(cfg.Brokers, config)
}

// ConnectPublisher connects to the brokers and returns a Publisher for
// topic. Broker unavailability at startup is retried with exponential
// backoff.
func ConnectPublisher(
	cfg *ClientConfig,
	topic string,
	logger *logger.Logger,
	tracer trace.Tracer,
) (*Publisher, error) {
	var publisher *Publisher

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = cfg.MaxElapsedTime
	if expBackoff.MaxElapsedTime <= 0 {
		expBackoff.MaxElapsedTime = 5 * time.Minute
	}
	expBackoff.InitialInterval = 2 * time.Second

	operation := func() error {
		client, err := NewClient(cfg)
		if err != nil {
			return fmt.Errorf("creating kafka client: %w", err)
		}

		producer, err := sarama.NewSyncProducerFromClient(client)
		if err != nil {
			client.Close()
			return fmt.Errorf("creating producer: %w", err)
		}

		publisher = NewPublisher(producer, topic, logger, tracer)
		publisher.client = client
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to kafka after retries: %w", err)
	}
	return publisher, nil
}
