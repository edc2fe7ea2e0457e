package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Event is the envelope every published message uses.
type Event struct {
	EventID   string      `json:"event_id"`
	EventType string      `json:"event_type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher is the outbound messaging contract. Implemented by Producer;
// tests substitute an in-memory recorder.
type Publisher interface {
	Publish(ctx context.Context, topic, eventType string, payload interface{}) error
}

type Producer struct {
	writer *kafka.Writer
}

func NewProducer(cfg *Config) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
			// Topic is set per message so one writer serves every event stream.
		},
	}
}

func (p *Producer) Publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	event := Event{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(event.EventID),
		Value: value,
	})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
