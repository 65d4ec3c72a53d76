// Package membership decides who may act on a chat.
package membership

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/config"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/repository"
)

// PinPolicy is which role may pin and unpin: config.PinPolicyAdmin or
// config.PinPolicyMember.
type PinPolicy string

type Authority struct {
	members   repository.MembershipRepository
	pinPolicy PinPolicy
}

func NewAuthority(members repository.MembershipRepository, pinPolicy PinPolicy) *Authority {
	if pinPolicy == "" {
		pinPolicy = config.PinPolicyAdmin
	}
	return &Authority{members: members, pinPolicy: pinPolicy}
}

func (a *Authority) PinPolicy() PinPolicy {
	return a.pinPolicy
}

func (a *Authority) IsMember(ctx context.Context, chatID, userID uuid.UUID) (bool, error) {
	ok, err := a.members.IsMember(ctx, chatID, userID)
	if err != nil {
		return false, apperr.Store("check membership", err)
	}
	return ok, nil
}

// Role returns nil when the user is not a member.
func (a *Authority) Role(ctx context.Context, chatID, userID uuid.UUID) (*models.Role, error) {
	role, err := a.members.GetRole(ctx, chatID, userID)
	if err != nil {
		return nil, apperr.Store("get role", err)
	}
	return role, nil
}

// RequireMember fails with a permission error when userID is not in the
// chat. An unknown chat looks exactly the same.
func (a *Authority) RequireMember(ctx context.Context, chatID, userID uuid.UUID) error {
	ok, err := a.IsMember(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Permission("forbidden")
	}
	return nil
}

// RequireAdmin fails unless userID is an admin of the chat.
func (a *Authority) RequireAdmin(ctx context.Context, chatID, userID uuid.UUID) error {
	role, err := a.Role(ctx, chatID, userID)
	if err != nil {
		return err
	}
	if role == nil || *role != models.RoleAdmin {
		return apperr.Permission("forbidden")
	}
	return nil
}

// AuthorizePin applies the deployment's pin policy.
func (a *Authority) AuthorizePin(ctx context.Context, chatID, userID uuid.UUID) error {
	if a.pinPolicy == config.PinPolicyMember {
		return a.RequireMember(ctx, chatID, userID)
	}
	return a.RequireAdmin(ctx, chatID, userID)
}

// Plan builds the member rows for a new chat: the creator plus userIDs,
// deduplicated, creator first as admin and everyone else as member.
func Plan(userIDs []uuid.UUID, creatorID uuid.UUID) ([]models.ChatMember, error) {
	seen := make(map[uuid.UUID]struct{}, len(userIDs)+1)
	members := make([]models.ChatMember, 0, len(userIDs)+1)

	if creatorID != uuid.Nil {
		seen[creatorID] = struct{}{}
		members = append(members, models.ChatMember{UserID: creatorID, Role: models.RoleAdmin})
	}
	for _, id := range userIDs {
		if id == uuid.Nil {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, models.ChatMember{UserID: id, Role: models.RoleMember})
	}

	if len(members) == 0 {
		return nil, apperr.Validation("a chat needs at least one member")
	}
	return members, nil
}

// AddMembers writes the planned member rows for chatID. Rows that already
// exist keep their role.
func (a *Authority) AddMembers(ctx context.Context, chatID uuid.UUID, userIDs []uuid.UUID, creatorID uuid.UUID) ([]models.ChatMember, error) {
	members, err := Plan(userIDs, creatorID)
	if err != nil {
		return nil, err
	}
	for i := range members {
		members[i].ChatID = chatID
	}
	if err := a.members.AddMembers(ctx, chatID, members); err != nil {
		return nil, apperr.Store("add members", err)
	}
	return members, nil
}

// AddToChat is the post-creation path: an admin adds users to an existing
// group as plain members. Users already in the chat keep their role.
func (a *Authority) AddToChat(ctx context.Context, chat *models.Chat, actorID uuid.UUID, userIDs []uuid.UUID) error {
	if err := a.RequireAdmin(ctx, chat.ID, actorID); err != nil {
		return err
	}
	if !chat.IsGroup {
		return apperr.Validation("members cannot be added to a direct chat")
	}
	// The actor is already an admin, so a plan of just the actor adds nobody.
	if members, err := Plan(userIDs, actorID); err != nil || len(members) < 2 {
		return apperr.Validation("no users to add")
	}

	_, err := a.AddMembers(ctx, chat.ID, userIDs, actorID)
	return err
}

func (a *Authority) ListMembers(ctx context.Context, chatID, userID uuid.UUID) ([]models.ChatMember, error) {
	if err := a.RequireMember(ctx, chatID, userID); err != nil {
		return nil, err
	}
	members, err := a.members.ListMembers(ctx, chatID)
	if err != nil {
		return nil, apperr.Store("list members", err)
	}
	return members, nil
}
