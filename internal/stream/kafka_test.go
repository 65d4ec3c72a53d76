package stream

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/realtime"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type captureWriter struct {
	msgs []kafka.Message
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error { return nil }

func TestPublishKeysByChat(t *testing.T) {
	capture := &captureWriter{}
	w := &Writer{w: capture, logger: zap.NewNop()}
	chatID := uuid.New()

	if err := w.Publish(context.Background(), realtime.MessageDeleted(chatID, 42)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(capture.msgs) != 1 {
		t.Fatalf("wrote %d messages, want 1", len(capture.msgs))
	}
	msg := capture.msgs[0]
	if string(msg.Key) != chatID.String() {
		t.Fatalf("key = %q, want chat id", msg.Key)
	}

	var body struct {
		Type    string `json:"type"`
		ChatID  string `json:"chatId"`
		Payload struct {
			MessageID int64 `json:"messageId"`
		} `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &body); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if body.Type != "messageDeleted" || body.Payload.MessageID != 42 || body.ChatID != chatID.String() {
		t.Fatalf("value = %+v", body)
	}
}
