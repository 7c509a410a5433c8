package realtime

import (
	"sync"

	v1 "relay/contracts/chat/v1"
)

// Client represents one connected websocket session.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent broadcasters.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Client struct {
	UserID string
	Send   chan v1.Frame

	done      chan struct{}
	closeOnce sync.Once

	transportOnce  sync.Once
	closeTransport func()
}

// NewClient constructs a Client with a bounded send queue.
func NewClient(userID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		UserID: userID,
		Send:   make(chan v1.Frame, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Enqueue offers a frame to the send queue without blocking. It reports false
// when the client is shutting down or the queue is full.
func (c *Client) Enqueue(f v1.Frame) bool {
	if c == nil {
		return false
	}

	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.Send <- f:
		return true
	default:
		// Drop rather than block the broadcaster.
		return false
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep broadcast safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// SetTransportCloser installs the best-effort socket close used by the
// shutdown coordinator's forced-close step.
func (c *Client) SetTransportCloser(fn func()) {
	if c == nil {
		return
	}
	c.closeTransport = fn
}

// CloseTransport force-closes the underlying socket, at most once.
func (c *Client) CloseTransport() {
	if c == nil {
		return
	}
	c.transportOnce.Do(func() {
		if c.closeTransport != nil {
			c.closeTransport()
		}
	})
}
