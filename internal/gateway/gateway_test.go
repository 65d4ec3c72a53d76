package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/relaychat/internal/auth"
	"github.com/lalith-99/relaychat/internal/chat"
	"github.com/lalith-99/relaychat/internal/config"
	"github.com/lalith-99/relaychat/internal/membership"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/realtime"
	"github.com/lalith-99/relaychat/internal/redisx"
	"github.com/lalith-99/relaychat/internal/repository/memory"
)

type testEnv struct {
	srv    *httptest.Server
	hub    *realtime.Hub
	svc    *chat.Service
	store  *memory.Store
	tokens *auth.Tokens
}

func newEnv(t *testing.T, mutate func(*Options)) *testEnv {
	t.Helper()
	store := memory.New()
	hub := realtime.NewHub(nil, nil)
	authority := membership.NewAuthority(store.Members(), config.PinPolicyAdmin)
	svc := chat.NewService(store.Users(), store.Chats(), store.Messages(), authority, nil, nil, hub)
	tokens := auth.NewTokens("test-secret", time.Hour)

	opts := Options{
		Tokens:            tokens,
		Hub:               hub,
		Chats:             svc,
		RequireMembership: true,
		RequestTimeout:    time.Second,
		OutboxSize:        32,
	}
	if mutate != nil {
		mutate(&opts)
	}

	srv := httptest.NewServer(NewHandler(opts))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, hub: hub, svc: svc, store: store, tokens: tokens}
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u, err := e.store.Users().Create(context.Background(), name, name+"@example.com", "h", nil)
	if err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

type frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	ChatID    uuid.UUID       `json:"chatId"`
	Payload   json.RawMessage `json:"payload"`
}

type client struct {
	t  *testing.T
	ws *websocket.Conn
	n  int
}

func (e *testEnv) dial(t *testing.T, u *models.User) *client {
	t.Helper()
	token, err := e.tokens.Issue(u.ID, u.Email)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return &client{t: t, ws: ws}
}

// call sends a frame and returns its request id.
func (c *client) call(typ string, payload any) string {
	c.t.Helper()
	c.n++
	reqID := typ + "-" + strconv.Itoa(c.n)
	body := map[string]any{"type": typ, "requestId": reqID}
	if payload != nil {
		body["payload"] = payload
	}
	if err := c.ws.WriteJSON(body); err != nil {
		c.t.Fatalf("write %s: %v", typ, err)
	}
	return reqID
}

func (c *client) next() frame {
	c.t.Helper()
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f frame
	if err := c.ws.ReadJSON(&f); err != nil {
		c.t.Fatalf("read: %v", err)
	}
	return f
}

// expect reads the next frame and fails unless it has type typ.
func (c *client) expect(typ string) frame {
	c.t.Helper()
	f := c.next()
	if f.Type != typ {
		c.t.Fatalf("frame type = %q (payload %s), want %q", f.Type, f.Payload, typ)
	}
	return f
}

// do sends a frame and returns the ack or error that answers it, skipping
// any events that arrive first.
func (c *client) do(typ string, payload any) frame {
	c.t.Helper()
	reqID := c.call(typ, payload)
	for {
		f := c.next()
		if f.RequestID == reqID && (f.Type == frameAck || f.Type == frameError || f.Type == framePong) {
			return f
		}
	}
}

// quiet fails if any event is queued ahead of a pong.
func (c *client) quiet() {
	c.t.Helper()
	c.call(framePing, nil)
	c.expect(framePong)
}

func errorCode(t *testing.T, f frame) string {
	t.Helper()
	if f.Type != frameError {
		t.Fatalf("frame type = %q, want error", f.Type)
	}
	var p errorPayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p.Code
}

func decodeMessage(t *testing.T, f frame) models.Message {
	t.Helper()
	var p struct {
		Message models.Message `json:"message"`
	}
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		t.Fatalf("decode message payload: %v", err)
	}
	return p.Message
}

func TestUpgradeRequiresToken(t *testing.T) {
	env := newEnv(t, nil)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial without token succeeded")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("response = %v, want 401", resp)
	}

	_, resp, err = websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial with bad token: err=%v resp=%v, want 401", err, resp)
	}
}

func TestUpgradeChecksOrigin(t *testing.T) {
	env := newEnv(t, func(o *Options) { o.AllowedOrigins = []string{"https://app.example.com"} })
	u := env.user(t, "alice")
	token, _ := env.tokens.Issue(u.ID, u.Email)
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "?token=" + token

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("dial from a foreign origin succeeded")
	}
	header = http.Header{"Origin": []string{"https://app.example.com"}}
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	ws.Close()
}

func TestDirectChatLifecycle(t *testing.T) {
	env := newEnv(t, nil)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	ctx := context.Background()

	ch, err := env.svc.CreateChat(ctx, alice.ID, []uuid.UUID{bob.ID}, false, "")
	if err != nil {
		t.Fatalf("CreateChat: %v", err)
	}

	a, b := env.dial(t, alice), env.dial(t, bob)
	if f := b.do(frameJoinChat, map[string]any{"chatId": ch.ID}); f.Type != frameAck {
		t.Fatalf("bob join: %s %s", f.Type, f.Payload)
	}

	ack := a.do(frameSendMessage, map[string]any{"chatId": ch.ID, "body": "hi"})
	if ack.Type != frameAck {
		t.Fatalf("send: %s %s", ack.Type, ack.Payload)
	}
	sent := decodeMessage(t, ack)

	f := b.expect(string(realtime.EventReceiveMessage))
	got := decodeMessage(t, f)
	if f.ChatID != ch.ID {
		t.Fatalf("event chatId = %v, want %v", f.ChatID, ch.ID)
	}
	if got.Body == nil || *got.Body != "hi" || got.SenderName != "alice" || got.ID != sent.ID {
		t.Fatalf("received = %+v", got)
	}

	if ack := a.do(frameEditMessage, map[string]any{"messageId": sent.ID, "body": "hi there"}); ack.Type != frameAck {
		t.Fatalf("edit: %s %s", ack.Type, ack.Payload)
	}
	edited := decodeMessage(t, b.expect(string(realtime.EventMessageEdited)))
	if edited.Body == nil || *edited.Body != "hi there" || edited.UpdatedAt == nil {
		t.Fatalf("edited = %+v", edited)
	}

	if ack := a.do(frameDeleteMessage, map[string]any{"messageId": sent.ID}); ack.Type != frameAck {
		t.Fatalf("delete: %s %s", ack.Type, ack.Payload)
	}
	var deleted struct {
		MessageID int64 `json:"messageId"`
	}
	json.Unmarshal(b.expect(string(realtime.EventMessageDeleted)).Payload, &deleted)
	if deleted.MessageID != sent.ID {
		t.Fatalf("deleted messageId = %d, want %d", deleted.MessageID, sent.ID)
	}

	history, err := env.svc.ListMessages(ctx, ch.ID, bob.ID, 0, 50)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	for _, m := range history {
		if m.ID == sent.ID {
			t.Fatal("deleted message still in history")
		}
	}
}

func TestGroupPinByAdminOnly(t *testing.T) {
	env := newEnv(t, nil)
	admin, bob, carol := env.user(t, "admin"), env.user(t, "bob"), env.user(t, "carol")
	ctx := context.Background()

	ch, _ := env.svc.CreateChat(ctx, admin.ID, []uuid.UUID{bob.ID, carol.ID}, true, "team")
	msg, _ := env.svc.SendMessage(ctx, ch.ID, bob.ID, strPtr("pin me"), nil)

	a, b, c := env.dial(t, admin), env.dial(t, bob), env.dial(t, carol)
	for _, cl := range []*client{a, b, c} {
		if f := cl.do(frameJoinChat, map[string]any{"chatId": ch.ID}); f.Type != frameAck {
			t.Fatalf("join: %s %s", f.Type, f.Payload)
		}
	}

	if f := a.do(framePinMessage, map[string]any{"chatId": ch.ID, "messageId": msg.ID}); f.Type != frameAck {
		t.Fatalf("admin pin: %s %s", f.Type, f.Payload)
	}
	for _, cl := range []*client{b, c} {
		var p struct {
			MessageID int64 `json:"messageId"`
		}
		json.Unmarshal(cl.expect(string(realtime.EventMessagePinned)).Payload, &p)
		if p.MessageID != msg.ID {
			t.Fatalf("pinned messageId = %d, want %d", p.MessageID, msg.ID)
		}
	}

	f := b.do(frameUnpinMessage, map[string]any{"chatId": ch.ID})
	if code := errorCode(t, f); code != "forbidden" {
		t.Fatalf("member unpin code = %q, want forbidden", code)
	}
	c.quiet()

	got, _ := env.svc.GetChat(ctx, ch.ID, admin.ID)
	if got.PinnedMessageID == nil || *got.PinnedMessageID != msg.ID {
		t.Fatalf("pin = %v after rejected unpin, want %d", got.PinnedMessageID, msg.ID)
	}
}

func TestJoinRequiresMembership(t *testing.T) {
	env := newEnv(t, nil)
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	ch, _ := env.svc.CreateChat(context.Background(), alice.ID, []uuid.UUID{bob.ID}, false, "")

	e := env.dial(t, eve)
	if code := errorCode(t, e.do(frameJoinChat, map[string]any{"chatId": ch.ID})); code != "forbidden" {
		t.Fatalf("outsider join code = %q, want forbidden", code)
	}
	if n := env.hub.Subscribers(ch.ID); n != 0 {
		t.Fatalf("Subscribers = %d after rejected join", n)
	}
}

func TestJoinWithoutMembershipCheck(t *testing.T) {
	env := newEnv(t, func(o *Options) { o.RequireMembership = false })
	alice, bob, eve := env.user(t, "alice"), env.user(t, "bob"), env.user(t, "eve")
	ch, _ := env.svc.CreateChat(context.Background(), alice.ID, []uuid.UUID{bob.ID}, false, "")

	e := env.dial(t, eve)
	if f := e.do(frameJoinChat, map[string]any{"chatId": ch.ID}); f.Type != frameAck {
		t.Fatalf("join: %s %s", f.Type, f.Payload)
	}
	// Subscribing is allowed, but writing still is not.
	f := e.do(frameSendMessage, map[string]any{"chatId": ch.ID, "body": "hi"})
	if code := errorCode(t, f); code != "forbidden" {
		t.Fatalf("outsider send code = %q, want forbidden", code)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	env := newEnv(t, nil)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	ch, _ := env.svc.CreateChat(context.Background(), alice.ID, []uuid.UUID{bob.ID}, false, "")

	a, b := env.dial(t, alice), env.dial(t, bob)
	b.do(frameJoinChat, map[string]any{"chatId": ch.ID})

	a.do(frameSendMessage, map[string]any{"chatId": ch.ID, "body": "one"})
	b.expect(string(realtime.EventReceiveMessage))

	b.do(frameLeaveChat, map[string]any{"chatId": ch.ID})
	a.do(frameSendMessage, map[string]any{"chatId": ch.ID, "body": "two"})
	b.quiet()
}

func TestDisconnectReleasesSubscriptions(t *testing.T) {
	env := newEnv(t, nil)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	ch, _ := env.svc.CreateChat(context.Background(), alice.ID, []uuid.UUID{bob.ID}, false, "")

	b := env.dial(t, bob)
	b.do(frameJoinChat, map[string]any{"chatId": ch.ID})
	if n := env.hub.Subscribers(ch.ID); n != 1 {
		t.Fatalf("Subscribers = %d, want 1", n)
	}

	b.ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers(ch.ID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not released after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBadFrames(t *testing.T) {
	env := newEnv(t, nil)
	c := env.dial(t, env.user(t, "alice"))

	if err := c.ws.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code := errorCode(t, c.next()); code != "validation_failed" {
		t.Fatalf("invalid json code = %q", code)
	}

	if code := errorCode(t, c.do("shout", nil)); code != "validation_failed" {
		t.Fatalf("unknown type code = %q", code)
	}
	if code := errorCode(t, c.do(frameJoinChat, nil)); code != "validation_failed" {
		t.Fatalf("missing payload code = %q", code)
	}
	if code := errorCode(t, c.do(frameEditMessage, map[string]any{"body": "x"})); code != "validation_failed" {
		t.Fatalf("missing messageId code = %q", code)
	}
}

func TestSendRateLimited(t *testing.T) {
	env := newEnv(t, func(o *Options) { o.Limiter = redisx.NewLocalLimiter(1, time.Minute) })
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	ch, _ := env.svc.CreateChat(context.Background(), alice.ID, []uuid.UUID{bob.ID}, false, "")

	a := env.dial(t, alice)
	if f := a.do(frameSendMessage, map[string]any{"chatId": ch.ID, "body": "one"}); f.Type != frameAck {
		t.Fatalf("first send: %s %s", f.Type, f.Payload)
	}
	if code := errorCode(t, a.do(frameSendMessage, map[string]any{"chatId": ch.ID, "body": "two"})); code != "rate_limited" {
		t.Fatalf("second send code = %q, want rate_limited", code)
	}
}

func TestMarkReadBroadcast(t *testing.T) {
	env := newEnv(t, nil)
	alice, bob := env.user(t, "alice"), env.user(t, "bob")
	ctx := context.Background()
	ch, _ := env.svc.CreateChat(ctx, alice.ID, []uuid.UUID{bob.ID}, false, "")
	env.svc.SendMessage(ctx, ch.ID, alice.ID, strPtr("unread"), nil)

	a, b := env.dial(t, alice), env.dial(t, bob)
	a.do(frameJoinChat, map[string]any{"chatId": ch.ID})

	ack := b.do(frameMarkRead, map[string]any{"chatId": ch.ID})
	var r readAck
	json.Unmarshal(ack.Payload, &r)
	if r.Updated != 1 {
		t.Fatalf("updated = %d, want 1", r.Updated)
	}

	var p struct {
		ChatID   uuid.UUID `json:"chatId"`
		ReaderID uuid.UUID `json:"readerId"`
	}
	json.Unmarshal(a.expect(string(realtime.EventMessagesRead)).Payload, &p)
	if p.ChatID != ch.ID || p.ReaderID != bob.ID {
		t.Fatalf("messagesRead payload = %+v", p)
	}
}

func strPtr(s string) *string { return &s }
