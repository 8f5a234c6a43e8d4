package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/samcharles93/lmpeek/internal/channel"
	"github.com/samcharles93/lmpeek/internal/metrics"
	"github.com/samcharles93/lmpeek/internal/protocol"
)

// fakeChannel records sent commands and lets the test inject replies and
// failures.
type fakeChannel struct {
	mu      sync.Mutex
	sent    []protocol.Command
	sendErr error
	closed  int
	onReply func(protocol.Reply)
	onError func(error)
	sentCh  chan protocol.Command
}

func newFake() *fakeChannel {
	return &fakeChannel{sentCh: make(chan protocol.Command, 64)}
}

func (f *fakeChannel) factory() channel.Factory {
	return func(context.Context) (channel.Channel, error) { return f, nil }
}

func (f *fakeChannel) Listen(onReply func(protocol.Reply), onError func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onReply, f.onError = onReply, onError
}

func (f *fakeChannel) Send(cmd protocol.Command) error {
	f.mu.Lock()
	err := f.sendErr
	if err == nil {
		f.sent = append(f.sent, cmd)
	}
	f.mu.Unlock()
	if err == nil {
		f.sentCh <- cmd
	}
	return err
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeChannel) reply(r protocol.Reply) { f.onReply(r) }
func (f *fakeChannel) fail(err error)         { f.onError(err) }

func (f *fakeChannel) next(t *testing.T) protocol.Command {
	t.Helper()
	select {
	case cmd := <-f.sentCh:
		return cmd
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a sent command")
	}
	return protocol.Command{}
}

func open(t *testing.T, opts ...Option) (*Client, *fakeChannel) {
	t.Helper()
	fake := newFake()
	c, err := Open(context.Background(), fake.factory(), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return c, fake
}

func TestOutOfOrderReplies(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	ctx := context.Background()

	a := c.Go(ctx, protocol.EncodeRequest{Text: "a"})
	b := c.Go(ctx, protocol.EncodeRequest{Text: "b"})
	cmdA, cmdB := fake.next(t), fake.next(t)
	if cmdA.ID == cmdB.ID || cmdA.ID == 0 {
		t.Fatalf("ids must be distinct and non-zero: %d %d", cmdA.ID, cmdB.ID)
	}

	fake.reply(protocol.Success(cmdB, []int{2}))
	fake.reply(protocol.Success(cmdA, []int{1}))

	for want, f := range map[int]*Future{1: a, 2: b} {
		rep, err := f.Wait(ctx)
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
		var ids []int
		if err := rep.Bind(&ids); err != nil || ids[0] != want {
			t.Fatalf("future got %v (%v), want %d", ids, err, want)
		}
	}
	if n := c.Pending(); n != 0 {
		t.Fatalf("expected empty table, got %d", n)
	}
}

func TestIDsAreMonotonic(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	var last uint64
	for range 5 {
		c.Go(context.Background(), protocol.DecodeRequest{})
		cmd := fake.next(t)
		if cmd.ID <= last {
			t.Fatalf("id %d not greater than %d", cmd.ID, last)
		}
		last = cmd.ID
	}
}

func TestErrorReply(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	f := c.Go(context.Background(), protocol.ForwardRequest{Input: []string{"x"}})
	cmd := fake.next(t)
	fake.reply(protocol.Failure(cmd, protocol.ErrKindForward, protocol.Errorf(protocol.ErrKindModelNotLoaded, "load a model first")))

	_, err := f.Wait(context.Background())
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Kind != protocol.ErrKindModelNotLoaded || perr.Message != "load a model first" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestUnmatchedReplyIsCounted(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	before := testutil.ToFloat64(metrics.UnmatchedRepliesCounter())

	f := c.Go(context.Background(), protocol.EncodeRequest{Text: "x"})
	cmd := fake.next(t)
	fake.reply(protocol.Reply{ID: cmd.ID + 100, Kind: protocol.KindSuccess, Name: "encode"})

	if got := testutil.ToFloat64(metrics.UnmatchedRepliesCounter()); got < before+1 {
		t.Fatalf("expected unmatched counter to grow, %v -> %v", before, got)
	}
	select {
	case <-f.Done():
		t.Fatal("unrelated reply settled the request")
	default:
	}

	fake.reply(protocol.Success(cmd, []int{7}))
	fake.reply(protocol.Success(cmd, []int{8}))
	rep, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	var ids []int
	_ = rep.Bind(&ids)
	if ids[0] != 7 {
		t.Fatalf("request settled twice or by the wrong reply: %v", ids)
	}
}

func TestChannelFailureRejectsAllAndFailsFast(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	ctx := context.Background()
	futures := []*Future{
		c.Go(ctx, protocol.EncodeRequest{Text: "a"}),
		c.Go(ctx, protocol.EncodeRequest{Text: "b"}),
		c.Go(ctx, protocol.SampleRequest{Logits: []float32{1}}),
	}
	fake.fail(errors.New("worker crashed"))
	fake.fail(errors.New("worker crashed again"))

	for _, f := range futures {
		if _, err := f.Wait(ctx); !errors.Is(err, protocol.ErrChannelFailure) {
			t.Fatalf("expected channelFailure, got %v", err)
		}
	}
	if n := c.Pending(); n != 0 {
		t.Fatalf("expected empty table, got %d", n)
	}

	_, err := c.Call(ctx, protocol.EncodeRequest{Text: "later"})
	var perr *protocol.Error
	if !errors.As(err, &perr) || perr.Kind != protocol.ErrKindChannelFailure || perr.Message != "worker crashed" {
		t.Fatalf("expected the first failure to be sticky, got %v", err)
	}
}

func TestSendErrorRejectsThatRequest(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	fake.sendErr = errors.New("broken pipe")
	_, err := c.Call(context.Background(), protocol.EncodeRequest{Text: "x"})
	if !errors.Is(err, protocol.ErrChannelFailure) {
		t.Fatalf("expected channelFailure, got %v", err)
	}
	if n := c.Pending(); n != 0 {
		t.Fatalf("expected empty table, got %d", n)
	}
}

func TestDispose(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	ctx := context.Background()
	f := c.Go(ctx, protocol.EncodeRequest{Text: "a"})
	cmd := fake.next(t)

	if err := c.Dispose(); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if err := c.Dispose(); err != nil {
		t.Fatalf("second dispose: %v", err)
	}
	if fake.closed != 1 {
		t.Fatalf("expected channel closed once, got %d", fake.closed)
	}
	if _, err := f.Wait(ctx); !errors.Is(err, protocol.ErrDisposed) {
		t.Fatalf("expected disposed, got %v", err)
	}

	fake.reply(protocol.Success(cmd, nil))
	if _, err := c.Call(ctx, protocol.EncodeRequest{Text: "b"}); !errors.Is(err, protocol.ErrDisposed) {
		t.Fatalf("expected disposed after dispose, got %v", err)
	}
	fake.fail(errors.New("late failure"))
	if _, err := c.Call(ctx, protocol.EncodeRequest{Text: "c"}); !errors.Is(err, protocol.ErrDisposed) {
		t.Fatalf("failure after dispose must not replace disposed, got %v", err)
	}
}

func TestContextCancelAbandonsRequest(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	ctx, cancel := context.WithCancel(context.Background())
	f := c.Go(ctx, protocol.EncodeRequest{Text: "slow"})
	cmd := fake.next(t)
	cancel()

	if _, err := f.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if n := c.Pending(); n != 0 {
		t.Fatalf("expected abandoned entry removed, got %d", n)
	}
	fake.reply(protocol.Success(cmd, nil))
}

func TestRequestTimeout(t *testing.T) {
	t.Parallel()
	c, fake := open(t, WithRequestTimeout(20*time.Millisecond))
	_, err := c.Call(context.Background(), protocol.EncodeRequest{Text: "slow"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	fake.next(t)
	if n := c.Pending(); n != 0 {
		t.Fatalf("expected timed-out entry removed, got %d", n)
	}
}

func TestCanceledContextNeverSends(t *testing.T) {
	t.Parallel()
	c, fake := open(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Call(ctx, protocol.EncodeRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.sent) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(fake.sent))
	}
}

func TestConcurrentCallsOverPipe(t *testing.T) {
	t.Parallel()
	serve := func(ctx context.Context, cmds <-chan protocol.Command, reply func(protocol.Reply)) error {
		for cmd := range cmds {
			req := cmd.Payload.(protocol.EncodeRequest)
			go reply(protocol.Success(cmd, []int{len(req.Text)}))
		}
		return nil
	}
	c, err := Open(context.Background(), channel.Pipe(serve))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Dispose()

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text := make([]byte, i)
			rep, err := c.Call(context.Background(), protocol.EncodeRequest{Text: string(text)})
			if err != nil {
				errs <- err
				return
			}
			var n []int
			if err := rep.Bind(&n); err != nil || n[0] != i {
				errs <- errors.New("reply routed to the wrong caller")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
