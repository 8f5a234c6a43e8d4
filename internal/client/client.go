// Package client correlates commands sent to a worker with the replies that
// come back, possibly out of order, over a single channel.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/lmpeek/internal/channel"
	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/metrics"
	"github.com/samcharles93/lmpeek/internal/protocol"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithRequestTimeout bounds every Wait. Zero means requests wait only on
// their own context.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// Client owns one channel and the table of requests awaiting replies. All
// methods are safe for concurrent use.
type Client struct {
	ch      channel.Channel
	log     logger.Logger
	timeout time.Duration

	mu       sync.Mutex
	nextID   uint64
	pending  map[uint64]*Future
	failErr  error
	disposed bool
}

// Open builds the channel and installs the client's reply and error
// listeners.
func Open(ctx context.Context, factory channel.Factory, opts ...Option) (*Client, error) {
	if factory == nil {
		return nil, fmt.Errorf("client: nil channel factory")
	}
	c := &Client{
		log:     logger.Discard(),
		pending: make(map[uint64]*Future),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With("component", "client", "client_id", uuid.NewString())

	ch, err := factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c.ch = ch
	ch.Listen(c.onReply, c.onError)
	return c, nil
}

// Go sends req and returns a Future for its reply. The context only bounds
// Wait; sending does not block on it.
func (c *Client) Go(ctx context.Context, req protocol.Request) *Future {
	if req == nil {
		return settled(0, "", protocol.Errorf(protocol.ErrKindInvalidRequest, "nil request"))
	}
	action := req.Action()
	if err := ctx.Err(); err != nil {
		return settled(0, action, err)
	}

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return settled(0, action, errDisposed())
	}
	if c.failErr != nil {
		err := c.failErr
		c.mu.Unlock()
		return settled(0, action, err)
	}
	c.nextID++
	id := c.nextID
	f := newFuture(c, id, action)
	c.pending[id] = f
	c.mu.Unlock()
	metrics.RequestSent()

	c.log.Debug("send", "id", id, "action", action)
	if err := c.ch.Send(protocol.NewCommand(id, req)); err != nil {
		if taken := c.take(id); taken != nil {
			taken.settle(protocol.Reply{}, protocol.Errorf(protocol.ErrKindChannelFailure, err.Error()))
		}
	}
	return f
}

// Call sends req and waits for its reply.
func (c *Client) Call(ctx context.Context, req protocol.Request) (protocol.Reply, error) {
	return c.Go(ctx, req).Wait(ctx)
}

// Pending reports how many requests await a reply.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dispose rejects every pending request with a disposed error and closes the
// channel. Later calls fail immediately. Dispose is idempotent.
func (c *Client) Dispose() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	drained := c.drainLocked()
	c.mu.Unlock()

	for _, f := range drained {
		f.settle(protocol.Reply{}, errDisposed())
	}
	c.log.Debug("disposed", "rejected", len(drained))
	return c.ch.Close()
}

func (c *Client) onReply(rep protocol.Reply) {
	f := c.take(rep.ID)
	if f == nil {
		c.log.Debug("discarding unmatched reply", "id", rep.ID, "kind", rep.Kind, "name", rep.Name)
		metrics.UnmatchedReply()
		return
	}
	f.settle(rep, rep.Err())
}

// onError rejects everything pending. The first failure is remembered and
// returned by every later call.
func (c *Client) onError(err error) {
	perr := protocol.Errorf(protocol.ErrKindChannelFailure, err.Error())

	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	if c.failErr == nil {
		c.failErr = perr
	}
	drained := c.drainLocked()
	c.mu.Unlock()

	c.log.Error("channel failed", "error", err, "rejected", len(drained))
	for _, f := range drained {
		f.settle(protocol.Reply{}, perr)
	}
}

// take removes and returns the pending entry for id. Only the caller that
// takes an entry may settle it.
func (c *Client) take(id uint64) *Future {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.pending[id]
	if !ok {
		return nil
	}
	delete(c.pending, id)
	return f
}

func (c *Client) drainLocked() []*Future {
	out := make([]*Future, 0, len(c.pending))
	for id, f := range c.pending {
		out = append(out, f)
		delete(c.pending, id)
	}
	return out
}

func errDisposed() error {
	return protocol.Errorf(protocol.ErrKindDisposed, "model disposed")
}
