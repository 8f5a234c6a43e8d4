// Package channel carries command and reply envelopes between a client and a
// worker. The worker may run in a goroutine of the same process (Pipe) or in a
// child process speaking framed envelopes over stdio (Process).
package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/samcharles93/lmpeek/internal/protocol"
)

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("channel closed")

// Channel is a bidirectional message path to one worker. Listen installs the
// reply and error handlers; it must be called once, before the first Send.
type Channel interface {
	Listen(onReply func(protocol.Reply), onError func(error))
	Send(cmd protocol.Command) error
	Close() error
}

// Factory builds a Channel. The context bounds construction only.
type Factory func(ctx context.Context) (Channel, error)

// ServeFunc is a worker loop. It consumes cmds until the channel is closed or
// ctx is done and emits exactly one reply per command.
type ServeFunc func(ctx context.Context, cmds <-chan protocol.Command, reply func(protocol.Reply)) error

const queueSize = 64

// listeners holds the installed handlers. Events raised before Listen are
// kept and delivered when the handlers arrive.
type listeners struct {
	mu      sync.Mutex
	onReply func(protocol.Reply)
	onError func(error)
	replies []protocol.Reply
	errs    []error
}

func (l *listeners) listen(onReply func(protocol.Reply), onError func(error)) {
	l.mu.Lock()
	l.onReply, l.onError = onReply, onError
	replies, errs := l.replies, l.errs
	l.replies, l.errs = nil, nil
	l.mu.Unlock()

	for _, r := range replies {
		onReply(r)
	}
	for _, err := range errs {
		onError(err)
	}
}

func (l *listeners) reply(r protocol.Reply) {
	l.mu.Lock()
	fn := l.onReply
	if fn == nil {
		l.replies = append(l.replies, r)
	}
	l.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

func (l *listeners) fail(err error) {
	l.mu.Lock()
	fn := l.onError
	if fn == nil {
		l.errs = append(l.errs, err)
	}
	l.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}
