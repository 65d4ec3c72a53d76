package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/repository"
)

// messageSelect joins the sender's username so every message leaving the
// store is ready to broadcast. Callers append WHERE/ORDER clauses that
// refer to the "m" alias.
const messageSelect = `
	SELECT m.id, m.chat_id, m.sender_id, u.username, m.body, m.file_ref,
	       m.created_at, m.updated_at, m.is_read
	FROM messages m
	JOIN users u ON u.id = m.sender_id`

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

func scanMessage(row pgx.Row) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ChatID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.Body,
		&msg.FileRef,
		&msg.CreatedAt,
		&msg.UpdatedAt,
		&msg.IsRead,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Create(ctx context.Context, chatID, senderID uuid.UUID, body, fileRef *string) (*models.Message, error) {
	// Messages use bigserial, so Postgres assigns the ID: that ID is the
	// insertion sequence used to break created_at ties.
	query := `
		WITH m AS (
			INSERT INTO messages (chat_id, sender_id, body, file_ref, created_at)
			VALUES ($1, $2, $3, $4, clock_timestamp())
			RETURNING *
		)
		SELECT m.id, m.chat_id, m.sender_id, u.username, m.body, m.file_ref,
		       m.created_at, m.updated_at, m.is_read
		FROM m JOIN users u ON u.id = m.sender_id`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, chatID, senderID, body, fileRef))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	msg, err := scanMessage(s.pool.QueryRow(ctx, messageSelect+` WHERE m.id = $1`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListByChat(ctx context.Context, chatID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	// Cursor pagination: take the newest `limit` rows below the cursor, then
	// flip them back to ascending order for display.
	var query string
	var args []any

	// The cursor compares (created_at, id), the same key the page is ordered
	// by, so a message whose id and timestamp disagree is neither skipped nor
	// repeated. A deleted cursor message falls back to comparing ids.
	if before > 0 {
		query = `
			WITH cur AS (SELECT created_at, id FROM messages WHERE id = $2)
			SELECT * FROM (` + messageSelect + `
				WHERE m.chat_id = $1
				  AND ((m.created_at, m.id) < (SELECT created_at, id FROM cur)
				       OR (NOT EXISTS (SELECT 1 FROM cur) AND m.id < $2))
				ORDER BY m.created_at DESC, m.id DESC
				LIMIT $3
			) page ORDER BY created_at, id`
		args = []any{chatID, before, limit}
	} else {
		query = `
			SELECT * FROM (` + messageSelect + `
				WHERE m.chat_id = $1
				ORDER BY m.created_at DESC, m.id DESC
				LIMIT $2
			) page ORDER BY created_at, id`
		args = []any{chatID, limit}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}

func (s *MessageStore) UpdateBody(ctx context.Context, messageID int64, senderID uuid.UUID, body string) (*models.Message, error) {
	// The row lock taken by UPDATE serializes racing edits; an edit racing a
	// delete matches zero rows and reports not found instead of writing.
	query := `
		WITH m AS (
			UPDATE messages SET body = $3, updated_at = now()
			WHERE id = $1 AND sender_id = $2
			RETURNING *
		)
		SELECT m.id, m.chat_id, m.sender_id, u.username, m.body, m.file_ref,
		       m.created_at, m.updated_at, m.is_read
		FROM m JOIN users u ON u.id = m.sender_id`

	msg, err := scanMessage(s.pool.QueryRow(ctx, query, messageID, senderID, body))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) Delete(ctx context.Context, messageID int64) (repository.DeleteResult, error) {
	var res repository.DeleteResult

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockChatOf(ctx, tx, messageID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `UPDATE chats SET pinned_message_id = NULL WHERE pinned_message_id = $1`, messageID)
		if err != nil {
			return fmt.Errorf("clear pin: %w", err)
		}
		res.Unpinned = tag.RowsAffected() > 0

		tag, err = tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
		if err != nil {
			return fmt.Errorf("delete message: %w", err)
		}
		res.Deleted = tag.RowsAffected() == 1
		if !res.Deleted {
			// Nothing to delete: undo the pin clear too.
			res.Unpinned = false
			return errNothingDeleted
		}
		return nil
	})
	if errors.Is(err, errNothingDeleted) {
		return repository.DeleteResult{}, nil
	}
	if err != nil {
		return repository.DeleteResult{}, err
	}
	return res, nil
}

var errNothingDeleted = errors.New("nothing deleted")

func (s *MessageStore) MarkRead(ctx context.Context, chatID, readerID uuid.UUID) (int64, error) {
	query := `
		UPDATE messages SET is_read = true
		WHERE chat_id = $1 AND sender_id <> $2 AND NOT is_read`

	tag, err := s.pool.Exec(ctx, query, chatID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark read: %w", err)
	}
	return tag.RowsAffected(), nil
}

// lockChatOf takes the row lock on the chat that owns messageID. A concurrent
// Pin updates the same row, so it waits until this transaction ends instead
// of committing between the pin clear and the delete, where the FK's
// ON DELETE SET NULL would unpin without the caller ever learning of it.
// A missing message locks nothing.
func lockChatOf(ctx context.Context, tx pgx.Tx, messageID int64) error {
	_, err := tx.Exec(ctx, `
		SELECT c.id FROM chats c
		JOIN messages m ON m.chat_id = c.id
		WHERE m.id = $1
		FOR UPDATE OF c`, messageID)
	if err != nil {
		return fmt.Errorf("lock chat: %w", err)
	}
	return nil
}
