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

type MembershipStore struct {
	pool *pgxpool.Pool
}

func NewMembershipStore(pool *pgxpool.Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

func (s *MembershipStore) AddMembers(ctx context.Context, chatID uuid.UUID, members []models.ChatMember) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return insertMembers(ctx, tx, chatID, members)
	})
}

// insertMembers writes member rows with ON CONFLICT DO NOTHING: adding an
// existing member is a no-op and never changes their role.
func insertMembers(ctx context.Context, tx pgx.Tx, chatID uuid.UUID, members []models.ChatMember) error {
	query := `
		INSERT INTO chat_members (chat_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (chat_id, user_id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(query, chatID, m.UserID, string(m.Role))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("add members: %w", err)
	}
	return nil
}

func (s *MembershipStore) ListMembers(ctx context.Context, chatID uuid.UUID) ([]models.ChatMember, error) {
	query := `
		SELECT chat_id, user_id, role
		FROM chat_members
		WHERE chat_id = $1
		ORDER BY role, user_id`

	rows, err := s.pool.Query(ctx, query, chatID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.ChatMember, 0)
	for rows.Next() {
		var m models.ChatMember
		var role string
		if err := rows.Scan(&m.ChatID, &m.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role = models.Role(role)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}

func (s *MembershipStore) IsMember(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (bool, error) {
	// EXISTS stops at the first matching row.
	query := `
		SELECT EXISTS (
			SELECT 1 FROM chat_members
			WHERE chat_id = $1 AND user_id = $2
		)`

	var exists bool
	err := s.pool.QueryRow(ctx, query, chatID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

func (s *MembershipStore) GetRole(ctx context.Context, chatID uuid.UUID, userID uuid.UUID) (*models.Role, error) {
	query := `
		SELECT role FROM chat_members
		WHERE chat_id = $1 AND user_id = $2`

	var role string
	err := s.pool.QueryRow(ctx, query, chatID, userID).Scan(&role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	r := models.Role(role)
	return &r, nil
}
