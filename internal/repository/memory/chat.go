package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/models"
)

type ChatStore struct {
	s *Store
}

func (r *ChatStore) Create(_ context.Context, isGroup bool, name *string, members []models.ChatMember) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ch := &models.Chat{
		ID:        uuid.New(),
		IsGroup:   isGroup,
		Name:      name,
		CreatedAt: r.s.now(),
	}
	r.s.chats[ch.ID] = ch
	r.s.addMembersLocked(ch.ID, members)
	return copyChat(ch), nil
}

func (r *ChatStore) GetByID(_ context.Context, chatID uuid.UUID) (*models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ch, ok := r.s.chats[chatID]
	if !ok {
		return nil, nil
	}
	return copyChat(ch), nil
}

func (r *ChatStore) ListSummaries(_ context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	chats := make([]models.ChatSummary, 0)
	for chatID, roster := range r.s.members {
		role, ok := roster[userID]
		if !ok {
			continue
		}
		ch := r.s.chats[chatID]
		cs := models.ChatSummary{Chat: *ch, Role: role}

		var last *models.Message
		for _, m := range r.s.messages {
			if m.ChatID != chatID {
				continue
			}
			if !m.IsRead && m.SenderID != userID {
				cs.UnreadCount++
			}
			if last == nil || messageLess(last, m) {
				last = m
			}
		}
		if last != nil {
			cs.LastMessage = last.Body
			at := last.CreatedAt
			cs.LastMessageAt = &at
		}

		if !ch.IsGroup {
			for other := range roster {
				if other == userID {
					continue
				}
				if u, ok := r.s.users[other]; ok {
					name := u.Username
					cs.OtherUser = &name
					cs.OtherUserAvatar = u.Avatar
				}
				break
			}
		}
		chats = append(chats, cs)
	}

	activity := func(cs models.ChatSummary) time.Time {
		if cs.LastMessageAt != nil {
			return *cs.LastMessageAt
		}
		return cs.CreatedAt
	}
	sort.Slice(chats, func(i, j int) bool { return activity(chats[i]).After(activity(chats[j])) })
	return chats, nil
}

func (r *ChatStore) Pin(_ context.Context, chatID uuid.UUID, messageID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ch, ok := r.s.chats[chatID]
	if !ok {
		return false, nil
	}
	m, ok := r.s.messages[messageID]
	if !ok || m.ChatID != chatID {
		return false, nil
	}
	id := messageID
	ch.PinnedMessageID = &id
	return true, nil
}

func (r *ChatStore) Unpin(_ context.Context, chatID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if ch, ok := r.s.chats[chatID]; ok {
		ch.PinnedMessageID = nil
	}
	return nil
}
