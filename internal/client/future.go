package client

import (
	"context"
	"errors"
	"time"

	"github.com/samcharles93/lmpeek/internal/metrics"
	"github.com/samcharles93/lmpeek/internal/protocol"
)

// Future is the eventual reply to one request.
type Future struct {
	c      *Client
	id     uint64
	action protocol.Action
	start  time.Time
	done   chan struct{}

	reply protocol.Reply
	err   error
}

func newFuture(c *Client, id uint64, action protocol.Action) *Future {
	return &Future{c: c, id: id, action: action, start: time.Now(), done: make(chan struct{})}
}

// settled returns a Future that never entered the pending table.
func settled(id uint64, action protocol.Action, err error) *Future {
	f := &Future{id: id, action: action, done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// ID is the request id, or 0 when the request was never sent.
func (f *Future) ID() uint64 { return f.id }

// Done is closed once the Future settles.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the reply arrives, the channel fails, the client is
// disposed, or ctx (bounded by the client's request timeout) is done. An
// error reply is returned as a *protocol.Error alongside the reply. When ctx
// ends first the request is abandoned and a late reply is discarded.
func (f *Future) Wait(ctx context.Context) (protocol.Reply, error) {
	select {
	case <-f.done:
		return f.reply, f.err
	default:
	}

	if f.c != nil && f.c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.c.timeout)
		defer cancel()
	}

	select {
	case <-f.done:
		return f.reply, f.err
	case <-ctx.Done():
	}

	if f.c != nil {
		if taken := f.c.take(f.id); taken != nil {
			f.c.log.Debug("request abandoned", "id", f.id, "action", f.action, "error", ctx.Err())
			taken.settle(protocol.Reply{}, ctx.Err())
		}
	}
	<-f.done
	return f.reply, f.err
}

func (f *Future) settle(rep protocol.Reply, err error) {
	f.reply, f.err = rep, err
	close(f.done)

	outcome := metrics.OutcomeSuccess
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		outcome = metrics.OutcomeTimeout
	case err != nil:
		outcome = metrics.OutcomeError
	}
	metrics.RequestSettled(string(f.action), outcome, time.Since(f.start))
}
