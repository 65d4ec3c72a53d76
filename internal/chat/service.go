// Package chat owns the message lifecycle: every create, edit, delete, pin
// and read goes through Service, which authorizes it, commits it, and only
// then publishes the resulting event.
package chat

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/membership"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/observ"
	"github.com/lalith-99/relaychat/internal/realtime"
	"github.com/lalith-99/relaychat/internal/repository"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Publisher receives committed events. The hub is one; the Kafka stream is
// another.
type Publisher interface {
	Publish(ctx context.Context, ev realtime.Event) error
}

type Service struct {
	users      repository.UserRepository
	chats      repository.ChatRepository
	messages   repository.MessageRepository
	authority  *membership.Authority
	publishers []Publisher
	logger     *zap.Logger
	metrics    *observ.Metrics
}

func NewService(
	users repository.UserRepository,
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	authority *membership.Authority,
	logger *zap.Logger,
	metrics *observ.Metrics,
	publishers ...Publisher,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observ.NopMetrics()
	}
	return &Service{
		users:      users,
		chats:      chats,
		messages:   messages,
		authority:  authority,
		publishers: publishers,
		logger:     logger.With(zap.String("component", "chat")),
		metrics:    metrics,
	}
}

func (s *Service) Authority() *membership.Authority {
	return s.authority
}

// publish fans ev out to every publisher. A failing publisher is logged and
// skipped; the write it reports on has already committed.
func (s *Service) publish(ctx context.Context, ev realtime.Event) {
	for _, p := range s.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish failed",
				zap.String("event", string(ev.Type)),
				zap.String("chat_id", ev.ChatID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = apperr.Code(apperr.KindOf(err))
	}
	s.metrics.ChatOps.WithLabelValues(op, outcome).Inc()
}

// CreateChat creates a direct or group chat with creatorID as admin.
// A direct chat must end up with exactly two distinct members and no name.
func (s *Service) CreateChat(ctx context.Context, creatorID uuid.UUID, memberIDs []uuid.UUID, isGroup bool, name string) (chat *models.Chat, err error) {
	defer func() { s.observe("create_chat", err) }()

	name = strings.TrimSpace(name)
	if len(memberIDs) == 0 {
		return nil, apperr.Validation("members are required")
	}
	if isGroup && name == "" {
		return nil, apperr.Validation("a group chat needs a name")
	}
	if !isGroup && name != "" {
		return nil, apperr.Validation("a direct chat cannot have a name")
	}

	members, err := membership.Plan(memberIDs, creatorID)
	if err != nil {
		return nil, err
	}
	if !isGroup && len(members) != 2 {
		return nil, apperr.Validation("a direct chat needs exactly one other member")
	}

	for _, m := range members {
		u, err := s.users.GetByID(ctx, m.UserID)
		if err != nil {
			return nil, apperr.Store("load user", err)
		}
		if u == nil {
			return nil, apperr.Validation("unknown user " + m.UserID.String())
		}
	}

	var namePtr *string
	if isGroup {
		namePtr = &name
	}
	chat, err = s.chats.Create(ctx, isGroup, namePtr, members)
	if err != nil {
		return nil, apperr.Store("create chat", err)
	}
	return chat, nil
}

// GetChat returns the chat if userID is a member.
func (s *Service) GetChat(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error) {
	if err := s.authority.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	chat, err := s.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, apperr.Store("get chat", err)
	}
	if chat == nil {
		return nil, apperr.NotFound("chat not found")
	}
	return chat, nil
}

func (s *Service) ListChats(ctx context.Context, userID uuid.UUID) ([]models.ChatSummary, error) {
	chats, err := s.chats.ListSummaries(ctx, userID)
	if err != nil {
		return nil, apperr.Store("list chats", err)
	}
	return chats, nil
}

// ListMessages pages backwards through history. before is a message id
// (0 for the newest page); the page itself is in ascending order.
func (s *Service) ListMessages(ctx context.Context, chatID, userID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	if err := s.authority.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	if before < 0 {
		return nil, apperr.Validation("before must be a message id")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	messages, err := s.messages.ListByChat(ctx, chatID, before, limit)
	if err != nil {
		return nil, apperr.Store("list messages", err)
	}
	return messages, nil
}

// AddMembers lets a group admin add users after creation.
func (s *Service) AddMembers(ctx context.Context, chatID, actorID uuid.UUID, userIDs []uuid.UUID) (err error) {
	defer func() { s.observe("add_members", err) }()

	chat, err := s.GetChat(ctx, chatID, actorID)
	if err != nil {
		return err
	}
	for _, id := range userIDs {
		u, err := s.users.GetByID(ctx, id)
		if err != nil {
			return apperr.Store("load user", err)
		}
		if u == nil {
			return apperr.Validation("unknown user " + id.String())
		}
	}
	return s.authority.AddToChat(ctx, chat, actorID, userIDs)
}

func (s *Service) ListMembers(ctx context.Context, chatID, userID uuid.UUID) ([]models.ChatMember, error) {
	return s.authority.ListMembers(ctx, chatID, userID)
}
