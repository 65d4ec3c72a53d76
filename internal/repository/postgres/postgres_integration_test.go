//go:build integration

package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/db"
	"github.com/lalith-99/relaychat/internal/models"
	"go.uber.org/zap"
)

// Run with: RELAYCHAT_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/postgres

type pgFixture struct {
	db       *db.DB
	chats    *ChatStore
	messages *MessageStore
	alice    *models.User
	chat     *models.Chat
}

func newPGFixture(t *testing.T) *pgFixture {
	t.Helper()
	url := os.Getenv("RELAYCHAT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("RELAYCHAT_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	database, err := db.New(ctx, url, db.PoolOptions{MaxConns: 4, MinConns: 1}, zap.NewNop())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(database.Close)
	if err := database.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	pool := database.Pool()
	users := NewUserStore(pool)
	alice, err := users.Create(ctx, "alice", "alice-"+uuid.NewString()+"@example.com", "h", nil)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	chats := NewChatStore(pool)
	name := "team"
	ch, err := chats.Create(ctx, true, &name, []models.ChatMember{{UserID: alice.ID, Role: models.RoleAdmin}})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	return &pgFixture{db: database, chats: chats, messages: NewMessageStore(pool), alice: alice, chat: ch}
}

func (f *pgFixture) send(t *testing.T, body string) *models.Message {
	t.Helper()
	m, err := f.messages.Create(context.Background(), f.chat.ID, f.alice.ID, &body, nil)
	if err != nil {
		t.Fatalf("create message: %v", err)
	}
	return m
}

func TestListByChatCursorFollowsTimestampOrder(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()

	var ids []int64
	for _, body := range []string{"1", "2", "3", "4"} {
		ids = append(ids, f.send(t, body).ID)
	}

	// Stamp the third message before the second.
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, d := range []time.Duration{10, 30, 20, 40} {
		_, err := f.db.Pool().Exec(ctx, `UPDATE messages SET created_at = $2 WHERE id = $1`, ids[i], base.Add(d*time.Second))
		if err != nil {
			t.Fatalf("restamp: %v", err)
		}
	}

	newest, err := f.messages.ListByChat(ctx, f.chat.ID, 0, 2)
	if err != nil {
		t.Fatalf("ListByChat: %v", err)
	}
	if len(newest) != 2 || newest[0].ID != ids[1] || newest[1].ID != ids[3] {
		t.Fatalf("newest page = %v, want ids %d, %d", newest, ids[1], ids[3])
	}

	older, err := f.messages.ListByChat(ctx, f.chat.ID, newest[0].ID, 10)
	if err != nil {
		t.Fatalf("ListByChat: %v", err)
	}
	if len(older) != 2 || older[0].ID != ids[0] || older[1].ID != ids[2] {
		t.Fatalf("older page = %v, want ids %d, %d", older, ids[0], ids[2])
	}
}

func TestPinWaitsForDeleteAndFindsNothing(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	msg := f.send(t, "soon gone")

	tx, err := f.db.Pool().Begin(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := lockChatOf(ctx, tx, msg.ID); err != nil {
		t.Fatalf("lockChatOf: %v", err)
	}

	type pinResult struct {
		ok  bool
		err error
	}
	done := make(chan pinResult, 1)
	go func() {
		ok, err := f.chats.Pin(ctx, f.chat.ID, msg.ID)
		done <- pinResult{ok, err}
	}()

	select {
	case r := <-done:
		t.Fatalf("Pin = %v, %v while the chat was locked", r.ok, r.err)
	case <-time.After(200 * time.Millisecond):
	}

	if _, err := tx.Exec(ctx, `DELETE FROM messages WHERE id = $1`, msg.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	r := <-done
	if r.err != nil || r.ok {
		t.Fatalf("Pin after delete = %v, %v; want false, nil", r.ok, r.err)
	}
}

func TestDeletePinnedMessageReportsUnpin(t *testing.T) {
	f := newPGFixture(t)
	ctx := context.Background()
	msg := f.send(t, "pinned")

	if ok, err := f.chats.Pin(ctx, f.chat.ID, msg.ID); err != nil || !ok {
		t.Fatalf("Pin = %v, %v", ok, err)
	}
	res, err := f.messages.Delete(ctx, msg.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !res.Deleted || !res.Unpinned {
		t.Fatalf("Delete = %+v, want deleted and unpinned", res)
	}

	ch, _ := f.chats.GetByID(ctx, f.chat.ID)
	if ch.PinnedMessageID != nil {
		t.Fatalf("pinned = %d after delete", *ch.PinnedMessageID)
	}

	var n int
	row := f.db.Pool().QueryRow(ctx, `SELECT count(*) FROM messages WHERE id = $1`, msg.ID)
	if err := row.Scan(&n); err != nil || n != 0 {
		t.Fatalf("message rows = %d, %v", n, err)
	}
}
