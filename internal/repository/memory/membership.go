package memory

import (
	"bytes"
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/models"
)

type MembershipStore struct {
	s *Store
}

// addMembersLocked keeps existing rows untouched. Caller holds s.mu.
func (s *Store) addMembersLocked(chatID uuid.UUID, members []models.ChatMember) {
	roster, ok := s.members[chatID]
	if !ok {
		roster = make(map[uuid.UUID]models.Role)
		s.members[chatID] = roster
	}
	for _, m := range members {
		if _, exists := roster[m.UserID]; exists {
			continue
		}
		roster[m.UserID] = m.Role
	}
}

func (r *MembershipStore) AddMembers(_ context.Context, chatID uuid.UUID, members []models.ChatMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.addMembersLocked(chatID, members)
	return nil
}

func (r *MembershipStore) ListMembers(_ context.Context, chatID uuid.UUID) ([]models.ChatMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	members := make([]models.ChatMember, 0, len(r.s.members[chatID]))
	for userID, role := range r.s.members[chatID] {
		members = append(members, models.ChatMember{ChatID: chatID, UserID: userID, Role: role})
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].Role != members[j].Role {
			return members[i].Role < members[j].Role
		}
		return bytes.Compare(members[i].UserID[:], members[j].UserID[:]) < 0
	})
	return members, nil
}

func (r *MembershipStore) IsMember(_ context.Context, chatID uuid.UUID, userID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.members[chatID][userID]
	return ok, nil
}

func (r *MembershipStore) GetRole(_ context.Context, chatID uuid.UUID, userID uuid.UUID) (*models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	role, ok := r.s.members[chatID][userID]
	if !ok {
		return nil, nil
	}
	return &role, nil
}
