package ws

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// SSEClient streams Server-Sent Events over an HTTP response writer. Every
// write carries a deadline of writeWait so a stalled reader cannot pin the
// writer forever.
type SSEClient struct {
	mu        sync.Mutex
	writer    http.ResponseWriter
	rc        *http.ResponseController
	event     string
	log       *slog.Logger
	done      chan struct{}
	closeOnce sync.Once
	last      time.Time
}

// NewSSEClient builds an SSE client. event names the SSE event field and may
// be empty.
func NewSSEClient(w http.ResponseWriter, event string, logger *slog.Logger) *SSEClient {
	return &SSEClient{
		writer: w,
		rc:     http.NewResponseController(w),
		event:  event,
		log:    logger,
		done:   make(chan struct{}),
		last:   time.Now().UTC(),
	}
}

// Send emits a data event to the SSE stream.
func (c *SSEClient) Send(payload []byte) error {
	if c.event != "" {
		return c.emit("send", fmt.Sprintf("event: %s\ndata: %s\n\n", c.event, payload))
	}
	return c.emit("send", fmt.Sprintf("data: %s\n\n", payload))
}

// Heartbeat emits a comment frame to keep the connection alive.
func (c *SSEClient) Heartbeat() error {
	return c.emit("heartbeat", ": ping\n\n")
}

func (c *SSEClient) emit(op, frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isClosed() {
		return io.EOF
	}
	if err := c.rc.SetWriteDeadline(time.Now().Add(writeWait)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		c.Close()
		return err
	}
	if _, err := io.WriteString(c.writer, frame); err != nil {
		c.Close()
		c.log.Warn("sse "+op+" failed", "error", err)
		return err
	}
	if err := c.rc.Flush(); err != nil {
		c.Close()
		c.log.Warn("sse flush failed", "error", err)
		return err
	}
	c.last = time.Now().UTC()
	return nil
}

// Close marks the stream as closed. It does not wait for a write in flight;
// use Wait for that.
func (c *SSEClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Wait blocks until any write in flight has returned.
func (c *SSEClient) Wait() {
	c.mu.Lock()
	defer c.mu.Unlock()
}

// Done is closed once the stream is closed.
func (c *SSEClient) Done() <-chan struct{} { return c.done }

// LastActivity reports the timestamp of the most recent successful write.
func (c *SSEClient) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *SSEClient) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
