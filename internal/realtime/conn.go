package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// Conn is the hub's view of one live client connection: who it is, which
// chats it listens to, and a bounded outbox drained by a single writer.
type Conn struct {
	ID     uuid.UUID
	UserID uuid.UUID

	// mu guards chats and gone. Lock order is mu, then a shard lock, then
	// outMu.
	mu    sync.Mutex
	chats map[uuid.UUID]struct{}
	gone  bool

	outMu  sync.Mutex
	out    chan []byte
	closed bool
}

func NewConn(userID uuid.UUID, outboxSize int) *Conn {
	if outboxSize < 1 {
		outboxSize = 1
	}
	return &Conn{
		ID:     uuid.New(),
		UserID: userID,
		chats:  make(map[uuid.UUID]struct{}),
		out:    make(chan []byte, outboxSize),
	}
}

// Send enqueues a frame without blocking. It returns false when the outbox
// is full or already closed; the frame is dropped.
func (c *Conn) Send(frame []byte) bool {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

// Outbox is drained by the connection's writer. It is closed once the
// connection is disconnected from the hub.
func (c *Conn) Outbox() <-chan []byte {
	return c.out
}

// Close closes the outbox. Safe to call more than once.
func (c *Conn) Close() {
	c.outMu.Lock()
	defer c.outMu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
}
