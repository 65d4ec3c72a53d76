package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/repository"
)

type MessageStore struct {
	s *Store
}

// messageLess is the (created_at, id) display order.
func messageLess(a, b *models.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *MessageStore) Create(_ context.Context, chatID, senderID uuid.UUID, body, fileRef *string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextID++
	m := &models.Message{
		ID:        r.s.nextID,
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
		FileRef:   fileRef,
		CreatedAt: r.s.now(),
	}
	r.s.messages[m.ID] = m
	return r.s.copyMessage(m), nil
}

func (r *MessageStore) GetByID(_ context.Context, messageID int64) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[messageID]
	if !ok {
		return nil, nil
	}
	return r.s.copyMessage(m), nil
}

func (r *MessageStore) ListByChat(_ context.Context, chatID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	// The cursor is compared by (created_at, id). A cursor whose message has
	// since been deleted falls back to comparing ids.
	cursor := r.s.messages[before]
	page := make([]*models.Message, 0)
	for _, m := range r.s.messages {
		if m.ChatID != chatID {
			continue
		}
		if before > 0 {
			if cursor != nil && !messageLess(m, cursor) {
				continue
			}
			if cursor == nil && m.ID >= before {
				continue
			}
		}
		page = append(page, m)
	}
	sort.Slice(page, func(i, j int) bool { return messageLess(page[i], page[j]) })
	if limit > 0 && len(page) > limit {
		page = page[len(page)-limit:]
	}

	messages := make([]models.Message, 0, len(page))
	for _, m := range page {
		messages = append(messages, *r.s.copyMessage(m))
	}
	return messages, nil
}

func (r *MessageStore) UpdateBody(_ context.Context, messageID int64, senderID uuid.UUID, body string) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[messageID]
	if !ok || m.SenderID != senderID {
		return nil, nil
	}
	b := body
	now := r.s.now()
	m.Body = &b
	m.UpdatedAt = &now
	return r.s.copyMessage(m), nil
}

func (r *MessageStore) Delete(_ context.Context, messageID int64) (repository.DeleteResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.messages[messageID]
	if !ok {
		return repository.DeleteResult{}, nil
	}

	var res repository.DeleteResult
	if ch, ok := r.s.chats[m.ChatID]; ok && ch.PinnedMessageID != nil && *ch.PinnedMessageID == messageID {
		ch.PinnedMessageID = nil
		res.Unpinned = true
	}
	delete(r.s.messages, messageID)
	res.Deleted = true
	return res, nil
}

func (r *MessageStore) MarkRead(_ context.Context, chatID, readerID uuid.UUID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, m := range r.s.messages {
		if m.ChatID == chatID && m.SenderID != readerID && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}
