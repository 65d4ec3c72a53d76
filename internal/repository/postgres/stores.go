package postgres

import "github.com/lalith-99/relaychat/internal/repository"

var (
	_ repository.UserRepository       = (*UserStore)(nil)
	_ repository.ChatRepository       = (*ChatStore)(nil)
	_ repository.MembershipRepository = (*MembershipStore)(nil)
	_ repository.MessageRepository    = (*MessageStore)(nil)
)
