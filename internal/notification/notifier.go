// Package notification publishes account-holder and operator notifications.
// Delivery (email) happens downstream of the published message.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront/internal/config"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// Kind identifies the template a downstream sender renders
type Kind string

const (
	KindOrderPlaced    Kind = "order.placed"
	KindOrderStatus    Kind = "order.status_changed"
	KindPaymentSuccess Kind = "payment.succeeded"
	KindPaymentFailed  Kind = "payment.failed"
	KindDisputeAlert   Kind = "payment.dispute_alert"
	KindPaymentAlert   Kind = "payment.reconcile_alert"
)

// Message is a single notification
type Message struct {
	Kind      Kind              `json:"kind"`
	Recipient string            `json:"recipient"`
	Subject   string            `json:"subject"`
	Body      string            `json:"body"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Notifier sends notifications. Callers treat failures as non-fatal.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// NewProducer creates a synchronous Kafka producer for the configured brokers
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) (sarama.SyncProducer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized", zap.Strings("brokers", cfg.Brokers))
	return producer, nil
}

// KafkaNotifier publishes messages as JSON to a topic
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

func NewKafkaNotifier(producer sarama.SyncProducer, topic string, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic, logger: logger}
}

func (n *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	partition, offset, err := n.producer.SendMessage(&sarama.ProducerMessage{
		Topic: n.topic,
		Key:   sarama.StringEncoder(msg.Recipient),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(msg.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	n.logger.Debug("Notification published",
		zap.String("kind", string(msg.Kind)),
		zap.String("topic", n.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the underlying producer
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

// LogNotifier writes notifications to the log; used when no broker is configured
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Message) error {
	n.logger.Info("Notification",
		zap.String("kind", string(msg.Kind)),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
	)
	return nil
}
