package gateway

import (
	"sync"

	"github.com/google/uuid"

	"github.com/classcast/classcast/internal/auth"
)

const outQueueSize = 64

// Conn is one authenticated websocket connection. The identity is fixed at
// handshake time; the bound lecture changes as the client joins and leaves.
type Conn struct {
	ID       string
	Identity auth.Identity

	out  chan []byte
	done chan struct{}

	closeOnce sync.Once

	mu        sync.Mutex
	lectureID string
	streaming bool
}

func newConn(identity auth.Identity) *Conn {
	return &Conn{
		ID:       uuid.NewString(),
		Identity: identity,
		out:      make(chan []byte, outQueueSize),
		done:     make(chan struct{}),
	}
}

// Send queues a payload for the write pump. Sends never block; a connection
// that cannot drain its queue loses events rather than stalling the caller.
func (c *Conn) Send(payload []byte) {
	if payload == nil {
		return
	}
	select {
	case c.out <- payload:
	default:
	}
}

// Out is the queue drained by the connection's write pump.
func (c *Conn) Out() <-chan []byte {
	return c.out
}

// Done is closed when the connection is shut down.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close signals the write pump to exit. Idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

func (c *Conn) lecture() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lectureID
}

func (c *Conn) setLecture(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lectureID = id
	c.streaming = false
}

// streamOpened reports whether this connection already opened its lecture's
// transcription stream. Rebinding to a lecture resets it.
func (c *Conn) streamOpened() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.streaming
}

func (c *Conn) markStreamOpened() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streaming = true
}
