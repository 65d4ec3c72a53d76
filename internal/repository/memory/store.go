// Package memory is an in-process implementation of the repository
// interfaces. It backs STORE_DRIVER=memory and the service, gateway and API
// tests.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/repository"
)

// Store holds all tables behind one mutex, which gives every method the
// same atomicity a single Postgres transaction would.
type Store struct {
	mu sync.Mutex

	users    map[uuid.UUID]*models.User
	chats    map[uuid.UUID]*models.Chat
	members  map[uuid.UUID]map[uuid.UUID]models.Role // chat -> user -> role
	messages map[int64]*models.Message
	nextID   int64

	now func() time.Time
}

func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*models.User),
		chats:    make(map[uuid.UUID]*models.Chat),
		members:  make(map[uuid.UUID]map[uuid.UUID]models.Role),
		messages: make(map[int64]*models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Users, Chats, Members and Messages return views over the shared tables.
// Each satisfies the matching repository interface.
func (s *Store) Users() *UserStore         { return &UserStore{s} }
func (s *Store) Chats() *ChatStore         { return &ChatStore{s} }
func (s *Store) Members() *MembershipStore { return &MembershipStore{s} }
func (s *Store) Messages() *MessageStore   { return &MessageStore{s} }

var (
	_ repository.UserRepository       = (*UserStore)(nil)
	_ repository.ChatRepository       = (*ChatStore)(nil)
	_ repository.MembershipRepository = (*MembershipStore)(nil)
	_ repository.MessageRepository    = (*MessageStore)(nil)
)

func copyUser(u *models.User) *models.User {
	c := *u
	return &c
}

func copyChat(ch *models.Chat) *models.Chat {
	c := *ch
	return &c
}

// copyMessage fills SenderName the way the SQL join does. Caller holds s.mu.
func (s *Store) copyMessage(m *models.Message) *models.Message {
	c := *m
	if u, ok := s.users[m.SenderID]; ok {
		c.SenderName = u.Username
	}
	return &c
}
