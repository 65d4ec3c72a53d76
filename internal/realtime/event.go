package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/models"
)

// EventType names are part of the client protocol.
type EventType string

const (
	EventReceiveMessage  EventType = "receiveMessage"
	EventMessageEdited   EventType = "messageEdited"
	EventMessageDeleted  EventType = "messageDeleted"
	EventMessagePinned   EventType = "messagePinned"
	EventMessageUnpinned EventType = "messageUnpinned"
	EventMessagesRead    EventType = "messagesRead"
)

// Event is one committed state change in a chat.
type Event struct {
	Type       EventType `json:"type"`
	ChatID     uuid.UUID `json:"chatId"`
	Payload    any       `json:"payload"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Payloads. Message events carry the whole message so a client never has to
// fetch after an event; delete and unpin only identify what went away.
type (
	MessagePayload struct {
		Message models.Message `json:"message"`
	}
	MessageIDPayload struct {
		MessageID int64 `json:"messageId"`
	}
	ChatPayload struct {
		ChatID uuid.UUID `json:"chatId"`
	}
	ReadPayload struct {
		ChatID   uuid.UUID `json:"chatId"`
		ReaderID uuid.UUID `json:"readerId"`
	}
)

func newEvent(t EventType, chatID uuid.UUID, payload any) Event {
	return Event{Type: t, ChatID: chatID, Payload: payload, OccurredAt: time.Now().UTC()}
}

func MessageReceived(m models.Message) Event {
	return newEvent(EventReceiveMessage, m.ChatID, MessagePayload{Message: m})
}

func MessageEdited(m models.Message) Event {
	return newEvent(EventMessageEdited, m.ChatID, MessagePayload{Message: m})
}

func MessageDeleted(chatID uuid.UUID, messageID int64) Event {
	return newEvent(EventMessageDeleted, chatID, MessageIDPayload{MessageID: messageID})
}

func MessagePinned(chatID uuid.UUID, messageID int64) Event {
	return newEvent(EventMessagePinned, chatID, MessageIDPayload{MessageID: messageID})
}

func MessageUnpinned(chatID uuid.UUID) Event {
	return newEvent(EventMessageUnpinned, chatID, ChatPayload{ChatID: chatID})
}

func MessagesRead(chatID, readerID uuid.UUID) Event {
	return newEvent(EventMessagesRead, chatID, ReadPayload{ChatID: chatID, ReaderID: readerID})
}

// Encode renders the event as a single text frame.
func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}
