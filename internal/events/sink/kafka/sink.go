// Package kafka publishes request events to a Kafka topic for external
// consumers (real-time dashboards, downstream analytics).
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"tollgate/internal/events"
)

// Sink writes one message per request event, keyed by event id.
type Sink struct {
	writer *kafka.Writer
}

// New constructs a sink for the given brokers and topic.
func New(brokers []string, topic string) *Sink {
	return &Sink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

type message struct {
	ID             string `json:"id"`
	Timestamp      int64  `json:"timestamp"`
	IdentitySignal string `json:"identitySignal"`
	Path           string `json:"path"`
	Status         string `json:"status"`
	ProofToken     string `json:"proofToken,omitempty"`
	Amount         string `json:"amount,omitempty"`
	TokenAddress   string `json:"tokenAddress,omitempty"`
	ChainID        int64  `json:"chainId,omitempty"`
}

func (s *Sink) Write(ctx context.Context, event events.Event) error {
	payload, err := json.Marshal(message{
		ID:             event.ID,
		Timestamp:      event.UnixMilli(),
		IdentitySignal: event.IdentitySignal,
		Path:           event.Path,
		Status:         string(event.Status),
		ProofToken:     event.ProofToken,
		Amount:         event.Amount,
		TokenAddress:   event.TokenAddress,
		ChainID:        event.ChainID,
	})
	if err != nil {
		return fmt.Errorf("marshal request event: %w", err)
	}

	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.ID),
		Value: payload,
	})
}

// Close flushes and closes the underlying writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
