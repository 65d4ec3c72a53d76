package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account. It is also the response body for /users/me
// and search, so PasswordHash never serializes.
type User struct {
	ID           uuid.UUID  `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Avatar       *string    `json:"avatar"`
	LastSeen     *time.Time `json:"last_seen"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Chat is a conversation: direct (exactly two members, no name) or group
// (named).
//
// PinnedMessageID is a weak back-reference. The message is owned by the
// chat, not the other way around, so deleting the message must clear it.
type Chat struct {
	ID              uuid.UUID `json:"id"`
	IsGroup         bool      `json:"is_group"`
	Name            *string   `json:"name"`
	PinnedMessageID *int64    `json:"pinned_message_id"`
	CreatedAt       time.Time `json:"created_at"`
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ChatMember is one row of the chat_members join table. Unique per
// (ChatID, UserID).
type ChatMember struct {
	ChatID uuid.UUID `json:"chat_id"`
	UserID uuid.UUID `json:"user_id"`
	Role   Role      `json:"role"`
}

// Message is a single chat message. ID is the store-assigned insertion
// sequence; messages order by (CreatedAt, ID).
//
// SenderName is denormalized from users.username so a client can render a
// receiveMessage event without another fetch.
type Message struct {
	ID         int64      `json:"id"`
	ChatID     uuid.UUID  `json:"chat_id"`
	SenderID   uuid.UUID  `json:"sender_id"`
	SenderName string     `json:"sender_name"`
	Body       *string    `json:"body"`
	FileRef    *string    `json:"file_ref"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
	IsRead     bool       `json:"is_read"`
}

// ChatSummary is the chat-list row: the chat plus what a sidebar needs.
// OtherUser and OtherUserAvatar are only set for direct chats.
type ChatSummary struct {
	Chat
	Role            Role       `json:"role"`
	UnreadCount     int        `json:"unread_count"`
	LastMessage     *string    `json:"last_message"`
	LastMessageAt   *time.Time `json:"last_message_at"`
	OtherUser       *string    `json:"other_user"`
	OtherUserAvatar *string    `json:"other_user_avatar"`
}
