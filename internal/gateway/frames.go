package gateway

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Inbound frame types.
const (
	frameJoinChat      = "joinChat"
	frameLeaveChat     = "leaveChat"
	frameSendMessage   = "sendMessage"
	frameEditMessage   = "editMessage"
	frameDeleteMessage = "deleteMessage"
	framePinMessage    = "pinMessage"
	frameUnpinMessage  = "unpinMessage"
	frameMarkRead      = "markRead"
	framePing          = "ping"
)

// Outbound frame types that are not chat events.
const (
	frameAck   = "ack"
	frameError = "error"
	framePong  = "pong"
)

// inFrame is what a client sends. RequestID is echoed on the ack or error
// so the client can match replies to requests.
type inFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type outFrame struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type chatPayload struct {
	ChatID uuid.UUID `json:"chatId"`
}

type sendPayload struct {
	ChatID  uuid.UUID `json:"chatId"`
	Body    *string   `json:"body"`
	FileRef *string   `json:"fileRef"`
}

type editPayload struct {
	MessageID int64  `json:"messageId"`
	Body      string `json:"body"`
}

type messagePayload struct {
	MessageID int64 `json:"messageId"`
}

type pinPayload struct {
	ChatID    uuid.UUID `json:"chatId"`
	MessageID int64     `json:"messageId"`
}

type readAck struct {
	ChatID  uuid.UUID `json:"chatId"`
	Updated int64     `json:"updated"`
}
