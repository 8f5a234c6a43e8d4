package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/protocol"
)

// ServeStream is the worker side of Process. It reads framed commands from r,
// hands them to serve, and writes framed replies to w. It returns nil when r
// reaches a clean end of stream and every queued command has been answered.
//
// A frame whose payload cannot be bound to its action is answered with an
// invalidRequest reply; a frame with no readable envelope is logged and
// skipped.
func ServeStream(ctx context.Context, r io.Reader, w io.Writer, codec protocol.Codec, serve ServeFunc, log logger.Logger) error {
	if log == nil {
		log = logger.Discard()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bw := bufio.NewWriter(w)
	var wmu sync.Mutex
	write := func(rep protocol.Reply) error {
		b, err := protocol.EncodeReply(codec, rep)
		if err != nil {
			return err
		}
		wmu.Lock()
		defer wmu.Unlock()
		if err := protocol.WriteFrame(bw, b); err != nil {
			return err
		}
		return bw.Flush()
	}
	reply := func(rep protocol.Reply) {
		err := write(rep)
		if err == nil {
			return
		}
		log.Error("write reply failed", "id", rep.ID, "error", err)
		if errors.Is(err, io.ErrClosedPipe) {
			cancel()
			return
		}
		// An unencodable reply is replaced by an error reply for the same id.
		fallback := protocol.Reply{
			ID:   rep.ID,
			Kind: protocol.KindError,
			Name: string(protocol.ErrKindChannelFailure),
			Data: fmt.Sprintf("encode reply: %v", err),
		}
		if err := write(fallback); err != nil {
			cancel()
		}
	}

	cmds := make(chan protocol.Command, queueSize)
	served := make(chan error, 1)
	go func() { served <- serve(ctx, cmds, reply) }()

	readErr := make(chan error, 1)
	go func() {
		defer close(cmds)
		readErr <- pump(ctx, r, codec, cmds, reply, log)
	}()

	err := <-served
	cancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	select {
	case rerr := <-readErr:
		return rerr
	default:
		return nil
	}
}

func pump(ctx context.Context, r io.Reader, codec protocol.Codec, cmds chan<- protocol.Command, reply func(protocol.Reply), log logger.Logger) error {
	br := bufio.NewReader(r)
	for {
		frame, err := protocol.ReadFrame(br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read command frame: %w", err)
		}
		cmd, err := protocol.DecodeCommand(codec, frame)
		if err != nil {
			if cmd.ID == 0 {
				log.Warn("dropping undecodable command", "bytes", len(frame), "error", err)
				continue
			}
			reply(protocol.Failure(cmd, protocol.ErrKindInvalidRequest, err))
			continue
		}
		select {
		case cmds <- cmd:
		case <-ctx.Done():
			return nil
		}
	}
}
