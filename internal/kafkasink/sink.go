// Package kafkasink publishes completed game summaries to a Kafka topic.
package kafkasink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/susu3304/whereami/internal/game"
)

// KafkaWriter is the part of kafka.Writer the sink uses, so tests can swap it.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink is a game.HistorySink. Messages are keyed by session id so every
// record of one session lands in the same partition.
type Sink struct {
	writer KafkaWriter
	topic  string
}

func New(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, fmt.Errorf("kafka brokers and topic are required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &Sink{writer: w, topic: topic}, nil
}

// Record publishes one summary. It does not retry; kafka.Writer already
// retries transient broker errors internally.
func (s *Sink) Record(ctx context.Context, sum game.Summary) error {
	value, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("encoding summary: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(sum.SessionID),
		Value: value,
		Time:  sum.CompletedAt,
		Headers: []kafka.Header{
			{Key: "mode", Value: []byte(sum.Mode)},
		},
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publishing summary %s: %w", sum.SessionID, err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.writer.Close()
}

// Decode turns a consumed message back into a summary.
func Decode(msg kafka.Message) (game.Summary, error) {
	var sum game.Summary
	if err := json.Unmarshal(msg.Value, &sum); err != nil {
		return game.Summary{}, fmt.Errorf("decoding summary at offset %d: %w", msg.Offset, err)
	}
	return sum, nil
}
