package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/realtime"
)

// normalize trims s and maps blank to nil.
func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// SendMessage persists a message from a member and broadcasts
// receiveMessage. At least one of body and fileRef must be non-blank.
func (s *Service) SendMessage(ctx context.Context, chatID, senderID uuid.UUID, body, fileRef *string) (msg *models.Message, err error) {
	defer func() { s.observe("send", err) }()

	if err := s.authority.RequireMember(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	body, fileRef = normalize(body), normalize(fileRef)
	if body == nil && fileRef == nil {
		return nil, apperr.Validation("message needs a body or a file")
	}

	msg, err = s.messages.Create(ctx, chatID, senderID, body, fileRef)
	if err != nil {
		return nil, apperr.Store("send message", err)
	}

	s.publish(ctx, realtime.MessageReceived(*msg))
	return msg, nil
}

// loadOwned fetches a message and checks that actorID sent it. A missing
// message is not found; someone else's message is forbidden whether or not
// the actor is in the chat.
func (s *Service) loadOwned(ctx context.Context, messageID int64, actorID uuid.UUID) (*models.Message, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, apperr.Store("get message", err)
	}
	if msg == nil {
		return nil, apperr.NotFound("message not found")
	}
	if msg.SenderID != actorID {
		return nil, apperr.Permission("only the sender can change this message")
	}
	if err := s.authority.RequireMember(ctx, msg.ChatID, actorID); err != nil {
		return nil, err
	}
	return msg, nil
}

// EditMessage replaces the body of the actor's own message and broadcasts
// the full updated message.
func (s *Service) EditMessage(ctx context.Context, messageID int64, editorID uuid.UUID, newBody string) (msg *models.Message, err error) {
	defer func() { s.observe("edit", err) }()

	body := normalize(&newBody)
	if body == nil {
		return nil, apperr.Validation("body is required")
	}
	if _, err := s.loadOwned(ctx, messageID, editorID); err != nil {
		return nil, err
	}

	msg, err = s.messages.UpdateBody(ctx, messageID, editorID, *body)
	if err != nil {
		return nil, apperr.Store("edit message", err)
	}
	if msg == nil {
		// Deleted between the load and the update.
		return nil, apperr.NotFound("message not found")
	}

	s.publish(ctx, realtime.MessageEdited(*msg))
	return msg, nil
}

// DeleteMessage removes the actor's own message. If it was pinned the pin is
// cleared in the same store operation, and messageUnpinned follows
// messageDeleted.
func (s *Service) DeleteMessage(ctx context.Context, messageID int64, editorID uuid.UUID) (err error) {
	defer func() { s.observe("delete", err) }()

	msg, err := s.loadOwned(ctx, messageID, editorID)
	if err != nil {
		return err
	}

	res, err := s.messages.Delete(ctx, messageID)
	if err != nil {
		return apperr.Store("delete message", err)
	}
	if !res.Deleted {
		return apperr.NotFound("message not found")
	}

	s.publish(ctx, realtime.MessageDeleted(msg.ChatID, msg.ID))
	if res.Unpinned {
		s.publish(ctx, realtime.MessageUnpinned(msg.ChatID))
	}
	return nil
}

// MarkRead marks every message in the chat not sent by readerID as read and
// returns how many changed.
func (s *Service) MarkRead(ctx context.Context, chatID, readerID uuid.UUID) (n int64, err error) {
	defer func() { s.observe("mark_read", err) }()

	if err := s.authority.RequireMember(ctx, chatID, readerID); err != nil {
		return 0, err
	}

	n, err = s.messages.MarkRead(ctx, chatID, readerID)
	if err != nil {
		return 0, apperr.Store("mark read", err)
	}

	s.publish(ctx, realtime.MessagesRead(chatID, readerID))
	return n, nil
}

func (s *Service) PinMessage(ctx context.Context, chatID, actorID uuid.UUID, messageID int64) (err error) {
	defer func() { s.observe("pin", err) }()

	if err := s.authority.AuthorizePin(ctx, chatID, actorID); err != nil {
		return err
	}

	ok, err := s.chats.Pin(ctx, chatID, messageID)
	if err != nil {
		return apperr.Store("pin message", err)
	}
	if !ok {
		return apperr.NotFound("message not found in this chat")
	}

	s.publish(ctx, realtime.MessagePinned(chatID, messageID))
	return nil
}

func (s *Service) UnpinMessage(ctx context.Context, chatID, actorID uuid.UUID) (err error) {
	defer func() { s.observe("unpin", err) }()

	if err := s.authority.AuthorizePin(ctx, chatID, actorID); err != nil {
		return err
	}
	if err := s.chats.Unpin(ctx, chatID); err != nil {
		return apperr.Store("unpin message", err)
	}

	s.publish(ctx, realtime.MessageUnpinned(chatID))
	return nil
}
