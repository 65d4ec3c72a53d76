package gateway

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
)

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return apperr.Validation("payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return apperr.Validation("invalid payload")
	}
	return nil
}

func requireChat(id uuid.UUID) error {
	if id == uuid.Nil {
		return apperr.Validation("chatId is required")
	}
	return nil
}

func requireMessage(id int64) error {
	if id <= 0 {
		return apperr.Validation("messageId is required")
	}
	return nil
}

// dispatch runs one inbound frame to completion under the request timeout
// and answers it with an ack or an error. Frames from one connection are
// handled in the order they arrive.
func (s *session) dispatch(parent context.Context, frame inFrame) {
	ctx, cancel := context.WithTimeout(parent, s.h.opts.RequestTimeout)
	defer cancel()

	payload, err := s.handle(ctx, frame)
	if err != nil {
		s.sendError(frame.RequestID, err)
		return
	}
	if frame.Type == framePing {
		s.send(outFrame{Type: framePong, RequestID: frame.RequestID})
		return
	}
	s.ack(frame.RequestID, payload)
}

func (s *session) handle(ctx context.Context, frame inFrame) (any, error) {
	chats := s.h.opts.Chats
	userID := s.conn.UserID

	switch frame.Type {
	case framePing:
		return nil, nil

	case frameJoinChat:
		var p chatPayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireChat(p.ChatID); err != nil {
			return nil, err
		}
		if s.h.opts.RequireMembership {
			if err := chats.Authority().RequireMember(ctx, p.ChatID, userID); err != nil {
				return nil, err
			}
		}
		if !s.h.opts.Hub.Subscribe(s.conn, p.ChatID) {
			return nil, apperr.Validation("connection is closing")
		}
		return p, nil

	case frameLeaveChat:
		var p chatPayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireChat(p.ChatID); err != nil {
			return nil, err
		}
		s.h.opts.Hub.Unsubscribe(s.conn, p.ChatID)
		return p, nil

	case frameSendMessage:
		var p sendPayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireChat(p.ChatID); err != nil {
			return nil, err
		}
		ok, err := s.h.opts.Limiter.Allow(ctx, "send:"+userID.String())
		if err != nil {
			return nil, apperr.Store("rate limit", err)
		}
		if !ok {
			return nil, apperr.RateLimited("sending too fast")
		}
		msg, err := chats.SendMessage(ctx, p.ChatID, userID, p.Body, p.FileRef)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": msg}, nil

	case frameEditMessage:
		var p editPayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireMessage(p.MessageID); err != nil {
			return nil, err
		}
		msg, err := chats.EditMessage(ctx, p.MessageID, userID, p.Body)
		if err != nil {
			return nil, err
		}
		return map[string]any{"message": msg}, nil

	case frameDeleteMessage:
		var p messagePayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireMessage(p.MessageID); err != nil {
			return nil, err
		}
		if err := chats.DeleteMessage(ctx, p.MessageID, userID); err != nil {
			return nil, err
		}
		return p, nil

	case framePinMessage:
		var p pinPayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireChat(p.ChatID); err != nil {
			return nil, err
		}
		if err := requireMessage(p.MessageID); err != nil {
			return nil, err
		}
		if err := chats.PinMessage(ctx, p.ChatID, userID, p.MessageID); err != nil {
			return nil, err
		}
		return p, nil

	case frameUnpinMessage:
		var p chatPayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireChat(p.ChatID); err != nil {
			return nil, err
		}
		if err := chats.UnpinMessage(ctx, p.ChatID, userID); err != nil {
			return nil, err
		}
		return p, nil

	case frameMarkRead:
		var p chatPayload
		if err := decode(frame.Payload, &p); err != nil {
			return nil, err
		}
		if err := requireChat(p.ChatID); err != nil {
			return nil, err
		}
		n, err := chats.MarkRead(ctx, p.ChatID, userID)
		if err != nil {
			return nil, err
		}
		return readAck{ChatID: p.ChatID, Updated: n}, nil

	default:
		return nil, apperr.Validation("unsupported frame type")
	}
}
