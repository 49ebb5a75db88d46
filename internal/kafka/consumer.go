package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"ms-reservation/internal/config"
	"ms-reservation/internal/logger"
	"ms-reservation/internal/models"

	"github.com/segmentio/kafka-go"
)

// PaymentOutcomeConsumer reads payment results off the payment-outcomes topic
// and hands each one to a handler. The payment provider publishes an outcome
// per reservation; the handler drives the confirm (or cancel) that follows.
type PaymentOutcomeConsumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

func NewPaymentOutcomeConsumer(cfg config.KafkaConfig, log *logger.Logger) *PaymentOutcomeConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topics.PaymentOutcomes,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})
	return &PaymentOutcomeConsumer{reader: reader, logger: log}
}

// Start consumes until ctx is cancelled. Handler errors are logged, not
// retried: the reservation state machine is idempotent, so a replayed outcome
// lands on a terminal state and is a no-op.
func (c *PaymentOutcomeConsumer) Start(ctx context.Context, handler func(ctx context.Context, event models.PaymentOutcomeEvent)) {
	c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "payment outcome consumer started")

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.LogKafka("CONSUME", c.reader.Config().Topic, "payment outcome consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			continue
		}

		var event models.PaymentOutcomeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to unmarshal payment outcome: %v", err))
			continue
		}

		c.logger.LogKafka("RECEIVE", c.reader.Config().Topic, fmt.Sprintf("reservation=%s outcome=%s", event.ReservationID, event.Outcome))
		handler(ctx, event)
	}
}

// Close gracefully shuts down the Kafka reader
func (c *PaymentOutcomeConsumer) Close() error {
	return c.reader.Close()
}
