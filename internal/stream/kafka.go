// Package stream forwards committed chat events to Kafka for downstream
// consumers such as notifications and search indexing.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lalith-99/relaychat/internal/realtime"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// messageWriter is the part of *kafka.Writer the stream uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Writer struct {
	w      messageWriter
	logger *zap.Logger
}

// NewWriter writes to topic on brokers. Messages are keyed by chat id, so a
// chat's events land on one partition in order.
func NewWriter(brokers []string, topic string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn("kafka write failed", zap.String("detail", fmt.Sprintf(msg, args...)))
		}),
	}
	return &Writer{w: w, logger: logger.With(zap.String("component", "stream"))}
}

func (w *Writer) Publish(ctx context.Context, ev realtime.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = w.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.ChatID.String()),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.w.Close()
}
