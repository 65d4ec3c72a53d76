// Package realtime routes committed chat events to the live connections
// subscribed to each chat.
package realtime

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/observ"
	"go.uber.org/zap"
)

const defaultShards = 32

type shard struct {
	mu    sync.Mutex
	chats map[uuid.UUID]map[*Conn]struct{}
}

// Hub is the chat -> connections subscription table, split into shards by
// chat id. A shard's lock covers both membership changes and publishing, so
// a publish never iterates a set that is being modified, and every
// subscriber of a chat sees that chat's events in publish order.
type Hub struct {
	shards  []*shard
	logger  *zap.Logger
	metrics *observ.Metrics
}

func NewHub(logger *zap.Logger, metrics *observ.Metrics) *Hub {
	return NewHubWithShards(defaultShards, logger, metrics)
}

func NewHubWithShards(n int, logger *zap.Logger, metrics *observ.Metrics) *Hub {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observ.NopMetrics()
	}

	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{chats: make(map[uuid.UUID]map[*Conn]struct{})}
	}
	return &Hub{
		shards:  shards,
		logger:  logger.With(zap.String("component", "hub")),
		metrics: metrics,
	}
}

func (h *Hub) shardFor(chatID uuid.UUID) *shard {
	f := fnv.New32a()
	_, _ = f.Write(chatID[:])
	return h.shards[f.Sum32()%uint32(len(h.shards))]
}

// Subscribe adds conn to chatID's subscribers. Subscribing twice is a no-op.
// It returns false if the connection has already been disconnected.
func (h *Hub) Subscribe(conn *Conn, chatID uuid.UUID) bool {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if conn.gone {
		return false
	}
	if _, ok := conn.chats[chatID]; ok {
		return true
	}
	conn.chats[chatID] = struct{}{}

	s := h.shardFor(chatID)
	s.mu.Lock()
	subs, ok := s.chats[chatID]
	if !ok {
		subs = make(map[*Conn]struct{})
		s.chats[chatID] = subs
	}
	subs[conn] = struct{}{}
	s.mu.Unlock()

	h.metrics.Subscriptions.Inc()
	return true
}

// Unsubscribe removes conn from chatID. Unsubscribing a non-subscriber is a
// no-op.
func (h *Hub) Unsubscribe(conn *Conn, chatID uuid.UUID) {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	if _, ok := conn.chats[chatID]; !ok {
		return
	}
	delete(conn.chats, chatID)
	h.remove(conn, chatID)
}

// remove drops conn from the chat's set. Caller holds conn.mu.
func (h *Hub) remove(conn *Conn, chatID uuid.UUID) {
	s := h.shardFor(chatID)
	s.mu.Lock()
	if subs, ok := s.chats[chatID]; ok {
		delete(subs, conn)
		if len(subs) == 0 {
			delete(s.chats, chatID)
		}
	}
	s.mu.Unlock()

	h.metrics.Subscriptions.Dec()
}

// Disconnect removes conn from every chat and closes its outbox. Later
// calls, and later Subscribe calls, do nothing.
func (h *Hub) Disconnect(conn *Conn) {
	conn.mu.Lock()
	if conn.gone {
		conn.mu.Unlock()
		return
	}
	conn.gone = true
	for chatID := range conn.chats {
		h.remove(conn, chatID)
	}
	conn.chats = make(map[uuid.UUID]struct{})
	conn.mu.Unlock()

	conn.Close()
}

// Publish delivers ev to every connection subscribed to ev.ChatID at this
// instant. It never blocks on a subscriber: a full outbox drops the event
// for that connection only.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	frame, err := ev.Encode()
	if err != nil {
		return err
	}
	label := string(ev.Type)
	h.metrics.EventsPublished.WithLabelValues(label).Inc()

	s := h.shardFor(ev.ChatID)
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.chats[ev.ChatID] {
		if conn.Send(frame) {
			h.metrics.EventsDelivered.WithLabelValues(label).Inc()
			continue
		}
		h.metrics.EventsDropped.WithLabelValues(label).Inc()
		h.logger.Warn("event dropped",
			zap.String("event", label),
			zap.String("chat_id", ev.ChatID.String()),
			zap.String("conn_id", conn.ID.String()),
		)
	}
	return nil
}

// Subscribers counts the live subscribers of a chat.
func (h *Hub) Subscribers(chatID uuid.UUID) int {
	s := h.shardFor(chatID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats[chatID])
}

// Subscriptions lists the chats conn is subscribed to.
func (h *Hub) Subscriptions(conn *Conn) []uuid.UUID {
	conn.mu.Lock()
	defer conn.mu.Unlock()

	chats := make([]uuid.UUID, 0, len(conn.chats))
	for id := range conn.chats {
		chats = append(chats, id)
	}
	return chats
}
