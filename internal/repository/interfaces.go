package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/models"
)

// Every method takes context.Context first: a cancelled request or an
// expired per-frame deadline cancels the query with it.
//
// Lookups return nil, nil when the row does not exist. Turning "absent" into
// a NotFound or Forbidden outcome is the caller's decision, not the store's.

// ErrEmailTaken is returned by UserRepository.Create when the email is
// already registered.
var ErrEmailTaken = errors.New("email already registered")

// UserRepository handles accounts.
type UserRepository interface {
	Create(ctx context.Context, username, email, passwordHash string, avatar *string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// Search matches username or email by substring, excluding one user
	// (the caller).
	Search(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]models.User, error)

	TouchLastSeen(ctx context.Context, userID uuid.UUID, at time.Time) error

	// UpdateProfile sets the non-nil fields and returns the updated user,
	// or nil if the user does not exist.
	UpdateProfile(ctx context.Context, userID uuid.UUID, username, avatar *string) (*models.User, error)
}

// ChatRepository handles chats and their pinned message.
type ChatRepository interface {
	// Create inserts the chat and all of its member rows atomically. The
	// ChatID field of each member is ignored and filled in by the store.
	Create(ctx context.Context, isGroup bool, name *string, members []models.ChatMember) (*models.Chat, error)

	GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error)

	// ListSummaries returns every chat the user belongs to, most recently
	// active first.
	ListSummaries(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error)

	// Pin sets the pinned message only if messageID belongs to chatID, in one
	// statement. It reports whether the pin was set.
	Pin(ctx context.Context, chatID uuid.UUID, messageID int64) (bool, error)

	Unpin(ctx context.Context, chatID uuid.UUID) error
}

// MembershipRepository handles who belongs to which chat.
type MembershipRepository interface {
	// AddMembers inserts member rows. Existing (chat, user) pairs are left
	// untouched, so re-adding is a no-op and never changes a role.
	AddMembers(ctx context.Context, chatID uuid.UUID, members []models.ChatMember) error

	ListMembers(ctx context.Context, chatID uuid.UUID) ([]models.ChatMember, error)

	// IsMember is the hot-path check run before every mutation and every
	// joinChat.
	IsMember(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (bool, error)

	// GetRole returns nil when the user is not a member.
	GetRole(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (*models.Role, error)
}

// DeleteResult reports what a message delete changed.
type DeleteResult struct {
	Deleted  bool // false when the row was already gone
	Unpinned bool // the message was its chat's pinned message
}

// MessageRepository handles message persistence. Returned messages carry
// SenderName.
type MessageRepository interface {
	// Create persists a message and returns it with ID and CreatedAt
	// assigned by the store.
	Create(ctx context.Context, chatID, senderID uuid.UUID, body, fileRef *string) (*models.Message, error)

	GetByID(ctx context.Context, messageID int64) (*models.Message, error)

	// ListByChat returns up to limit messages older than the before cursor
	// (0 = newest), in ascending (created_at, id) order.
	ListByChat(ctx context.Context, chatID uuid.UUID, before int64, limit int) ([]models.Message, error)

	// UpdateBody changes the body and stamps updated_at, but only while the
	// row still exists and still belongs to senderID. Returns nil when
	// nothing matched.
	UpdateBody(ctx context.Context, messageID int64, senderID uuid.UUID, body string) (*models.Message, error)

	// Delete removes the message and clears its chat's pin if it pointed at
	// it, atomically.
	Delete(ctx context.Context, messageID int64) (DeleteResult, error)

	// MarkRead flips is_read on every unread message in the chat not sent by
	// readerID and returns how many rows changed.
	MarkRead(ctx context.Context, chatID, readerID uuid.UUID) (int64, error)
}
