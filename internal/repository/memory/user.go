package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/repository"
)

type UserStore struct {
	s *Store
}

func (r *UserStore) Create(_ context.Context, username, email, passwordHash string, avatar *string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, email) {
			return nil, repository.ErrEmailTaken
		}
	}

	u := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		Avatar:       avatar,
		PasswordHash: passwordHash,
		CreatedAt:    r.s.now(),
	}
	r.s.users[u.ID] = u
	return copyUser(u), nil
}

func (r *UserStore) GetByID(_ context.Context, userID uuid.UUID) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (r *UserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.Email == email {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *UserStore) Search(_ context.Context, q string, excludeID uuid.UUID, limit int) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	q = strings.ToLower(q)
	users := make([]models.User, 0)
	for _, u := range r.s.users {
		if u.ID == excludeID {
			continue
		}
		if strings.Contains(strings.ToLower(u.Username), q) || strings.Contains(strings.ToLower(u.Email), q) {
			users = append(users, *u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (r *UserStore) TouchLastSeen(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if u, ok := r.s.users[userID]; ok {
		t := at
		u.LastSeen = &t
	}
	return nil
}

func (r *UserStore) UpdateProfile(_ context.Context, userID uuid.UUID, username, avatar *string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, nil
	}
	if username != nil {
		u.Username = *username
	}
	if avatar != nil {
		a := *avatar
		u.Avatar = &a
	}
	return copyUser(u), nil
}
