package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/relaychat/internal/models"
)

type ChatStore struct {
	pool *pgxpool.Pool
}

func NewChatStore(pool *pgxpool.Pool) *ChatStore {
	return &ChatStore{pool: pool}
}

// Create inserts the chat row and its members in one transaction, so a chat
// is never visible without its admin.
func (s *ChatStore) Create(ctx context.Context, isGroup bool, name *string, members []models.ChatMember) (*models.Chat, error) {
	query := `
		INSERT INTO chats (is_group, name, created_at)
		VALUES ($1, $2, now())
		RETURNING id, is_group, name, pinned_message_id, created_at`

	var ch models.Chat
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, query, isGroup, name).Scan(
			&ch.ID,
			&ch.IsGroup,
			&ch.Name,
			&ch.PinnedMessageID,
			&ch.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert chat: %w", err)
		}
		return insertMembers(ctx, tx, ch.ID, members)
	})
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *ChatStore) GetByID(ctx context.Context, chatID uuid.UUID) (*models.Chat, error) {
	query := `
		SELECT id, is_group, name, pinned_message_id, created_at
		FROM chats
		WHERE id = $1`

	var ch models.Chat
	err := s.pool.QueryRow(ctx, query, chatID).Scan(
		&ch.ID,
		&ch.IsGroup,
		&ch.Name,
		&ch.PinnedMessageID,
		&ch.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &ch, nil
}

func (s *ChatStore) ListSummaries(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	// Two LATERAL joins: the latest message per chat, and for direct chats
	// the other participant. Both are index lookups per chat row.
	query := `
		SELECT c.id, c.is_group, c.name, c.pinned_message_id, c.created_at,
		       cm.role,
		       (SELECT count(*) FROM messages m
		         WHERE m.chat_id = c.id AND NOT m.is_read AND m.sender_id <> $1) AS unread_count,
		       last.body, last.created_at,
		       other.username, other.avatar
		FROM chat_members cm
		JOIN chats c ON c.id = cm.chat_id
		LEFT JOIN LATERAL (
			SELECT m.body, m.created_at FROM messages m
			WHERE m.chat_id = c.id
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT 1
		) last ON true
		LEFT JOIN LATERAL (
			SELECT u.username, u.avatar FROM chat_members cm2
			JOIN users u ON u.id = cm2.user_id
			WHERE cm2.chat_id = c.id AND cm2.user_id <> $1 AND NOT c.is_group
			LIMIT 1
		) other ON true
		WHERE cm.user_id = $1
		ORDER BY COALESCE(last.created_at, c.created_at) DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	chats := make([]models.ChatSummary, 0)
	for rows.Next() {
		var cs models.ChatSummary
		var role string
		if err := rows.Scan(
			&cs.ID,
			&cs.IsGroup,
			&cs.Name,
			&cs.PinnedMessageID,
			&cs.CreatedAt,
			&role,
			&cs.UnreadCount,
			&cs.LastMessage,
			&cs.LastMessageAt,
			&cs.OtherUser,
			&cs.OtherUserAvatar,
		); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		cs.Role = models.Role(role)
		chats = append(chats, cs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}

	return chats, nil
}

func (s *ChatStore) Pin(ctx context.Context, chatID uuid.UUID, messageID int64) (bool, error) {
	// The chat row is locked first, the same lock MessageStore.Delete takes,
	// so the guarded UPDATE runs with a snapshot taken after any in-flight
	// delete committed: a message deleted in between is simply not found.
	var pinned bool
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT id FROM chats WHERE id = $1 FOR UPDATE`, chatID); err != nil {
			return fmt.Errorf("lock chat: %w", err)
		}
		tag, err := tx.Exec(ctx, `
			UPDATE chats SET pinned_message_id = $2
			WHERE id = $1
			  AND EXISTS (SELECT 1 FROM messages WHERE id = $2 AND chat_id = $1)`,
			chatID, messageID)
		if err != nil {
			return fmt.Errorf("pin message: %w", err)
		}
		pinned = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return pinned, nil
}

func (s *ChatStore) Unpin(ctx context.Context, chatID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE chats SET pinned_message_id = NULL WHERE id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("unpin message: %w", err)
	}
	return nil
}
