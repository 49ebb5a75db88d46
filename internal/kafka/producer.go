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

// Producer publishes reservation lifecycle, seat release, and ticket issuance
// events, one writer per topic. In mock mode nothing leaves the process; the
// event is logged and dropped, which keeps local runs broker-free.
type Producer struct {
	writers  map[string]*kafka.Writer
	topics   config.TopicConfig
	logger   *logger.Logger
	mockMode bool
}

func NewProducer(cfg config.KafkaConfig, log *logger.Logger) *Producer {
	p := &Producer{
		writers:  make(map[string]*kafka.Writer),
		topics:   cfg.Topics,
		logger:   log,
		mockMode: cfg.MockMode,
	}
	if p.mockMode {
		return p
	}
	for _, topic := range []string{
		cfg.Topics.ReservationCreated,
		cfg.Topics.ReservationConfirmed,
		cfg.Topics.ReservationCancelled,
		cfg.Topics.SeatReleased,
		cfg.Topics.TicketIssued,
	} {
		p.writers[topic] = kafka.NewWriter(kafka.WriterConfig{
			Brokers: cfg.Brokers,
			Topic:   topic,
		})
	}
	return p
}

// PublishReservationCreated streams the reservation creation event to Kafka.
func (p *Producer) PublishReservationCreated(event models.ReservationEvent) error {
	return p.publish(p.topics.ReservationCreated, event.ReservationID, event)
}

// PublishReservationConfirmed streams the reservation confirmation event to Kafka.
func (p *Producer) PublishReservationConfirmed(event models.ReservationEvent) error {
	return p.publish(p.topics.ReservationConfirmed, event.ReservationID, event)
}

// PublishReservationCancelled streams the reservation cancellation event to Kafka.
func (p *Producer) PublishReservationCancelled(event models.ReservationEvent) error {
	return p.publish(p.topics.ReservationCancelled, event.ReservationID, event)
}

// PublishSeatReleased streams a unit's return to AVAILABLE. Keyed by unit id so
// releases of the same seat stay ordered within a partition.
func (p *Producer) PublishSeatReleased(event models.SeatReleasedEvent) error {
	return p.publish(p.topics.SeatReleased, event.UnitID, event)
}

// PublishTicketIssued streams a newly issued ticket to Kafka.
func (p *Producer) PublishTicketIssued(event models.TicketIssuedEvent) error {
	return p.publish(p.topics.TicketIssued, event.TicketID, event)
}

func (p *Producer) publish(topic, key string, event interface{}) error {
	msgBytes, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if p.mockMode {
		p.logger.LogKafka("MOCK_PUBLISH", topic, string(msgBytes))
		return nil
	}

	writer, ok := p.writers[topic]
	if !ok {
		return fmt.Errorf("no writer configured for topic %s", topic)
	}

	p.logger.LogKafka("PUBLISH", topic, string(msgBytes))
	return writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(key),
			Value: msgBytes,
		},
	)
}

// Close shuts down every topic writer.
func (p *Producer) Close() error {
	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close writer for %s: %w", topic, err)
		}
	}
	return firstErr
}
