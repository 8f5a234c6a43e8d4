package channel

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/samcharles93/lmpeek/internal/protocol"
)

// Pipe runs serve in a goroutine of the calling process. Envelopes are passed
// as Go values; nothing is encoded. A panic in serve, or serve returning
// before Close, is reported as a channel failure.
func Pipe(serve ServeFunc) Factory {
	return func(ctx context.Context) (Channel, error) {
		if serve == nil {
			return nil, errors.New("pipe: nil serve func")
		}
		wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		p := &pipe{
			ctx:    wctx,
			cancel: cancel,
			cmds:   make(chan protocol.Command, queueSize),
			done:   make(chan struct{}),
		}
		go p.run(serve)
		return p, nil
	}
}

type pipe struct {
	listeners

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan protocol.Command
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	errMu   sync.Mutex
	failErr error
}

func (p *pipe) run(serve ServeFunc) {
	defer close(p.done)
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("worker panic: %v\n%s", r, debug.Stack())
			}
		}()
		return serve(p.ctx, p.cmds, p.deliver)
	}()

	if p.ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("worker exited")
	}
	p.errMu.Lock()
	p.failErr = err
	p.errMu.Unlock()
	p.fail(err)
}

func (p *pipe) deliver(r protocol.Reply) {
	if p.ctx.Err() != nil {
		return
	}
	p.reply(r)
}

func (p *pipe) Listen(onReply func(protocol.Reply), onError func(error)) {
	p.listen(onReply, onError)
}

func (p *pipe) Send(cmd protocol.Command) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	p.errMu.Lock()
	failErr := p.failErr
	p.errMu.Unlock()
	if failErr != nil {
		return failErr
	}
	select {
	case p.cmds <- cmd:
		return nil
	case <-p.ctx.Done():
		return ErrClosed
	case <-p.done:
		return errors.New("worker exited")
	}
}

// Close stops the worker and waits for its goroutine to return.
func (p *pipe) Close() error {
	p.cancel()
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.cmds)
	p.mu.Unlock()
	<-p.done
	return nil
}
