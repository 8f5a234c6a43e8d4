package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/protocol"
)

// ProcessConfig describes a worker subprocess.
type ProcessConfig struct {
	// Path is the worker binary. Empty means the running executable.
	Path string
	// Args defaults to ["worker", "--codec", <codec>].
	Args []string
	// Env is appended to the parent's environment.
	Env   []string
	Codec protocol.Codec
	// GracePeriod bounds each teardown step in Close. Default 2s.
	GracePeriod time.Duration
	Logger      logger.Logger
}

// Process starts a worker subprocess and speaks framed envelopes over its
// stdin and stdout. The child's stderr is relayed to the logger. The child
// exiting, or sending a frame that does not decode, is a channel failure.
func Process(cfg ProcessConfig) Factory {
	return func(ctx context.Context) (Channel, error) {
		return startProcess(ctx, cfg)
	}
}

type process struct {
	listeners

	cmd   *exec.Cmd
	codec protocol.Codec
	log   logger.Logger
	grace time.Duration

	wmu   sync.Mutex
	stdin io.WriteCloser
	bw    *bufio.Writer

	mu      sync.Mutex
	closing bool
	failErr error

	exited chan struct{}
}

func startProcess(ctx context.Context, cfg ProcessConfig) (*process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	codec := cfg.Codec
	if codec == nil {
		codec = protocol.JSON()
	}
	path := cfg.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve worker executable: %w", err)
		}
		path = exe
	}
	args := cfg.Args
	if args == nil {
		args = []string{"worker", "--codec", codec.Name()}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = 2 * time.Second
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	configureProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", path, err)
	}

	p := &process{
		cmd:    cmd,
		codec:  codec,
		log:    log.With("component", "channel", "pid", cmd.Process.Pid),
		grace:  grace,
		stdin:  stdin,
		bw:     bufio.NewWriter(stdin),
		exited: make(chan struct{}),
	}
	p.log.Debug("worker started", "path", path, "codec", codec.Name())

	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		p.readReplies(stdout)
	}()
	go func() {
		defer readers.Done()
		p.relayStderr(stderr)
	}()
	go func() {
		readers.Wait()
		err := cmd.Wait()
		close(p.exited)
		p.exit(err)
	}()
	return p, nil
}

func (p *process) Listen(onReply func(protocol.Reply), onError func(error)) {
	p.listen(onReply, onError)
}

func (p *process) Send(cmd protocol.Command) error {
	p.mu.Lock()
	closing, failErr := p.closing, p.failErr
	p.mu.Unlock()
	if closing {
		return ErrClosed
	}
	if failErr != nil {
		return failErr
	}

	b, err := protocol.EncodeCommand(p.codec, cmd)
	if err != nil {
		return fmt.Errorf("encode command %d: %w", cmd.ID, err)
	}
	p.wmu.Lock()
	defer p.wmu.Unlock()
	if err := protocol.WriteFrame(p.bw, b); err != nil {
		return fmt.Errorf("write command %d: %w", cmd.ID, err)
	}
	if err := p.bw.Flush(); err != nil {
		return fmt.Errorf("write command %d: %w", cmd.ID, err)
	}
	return nil
}

// Close ends the worker: stdin is closed so it can drain and exit, then the
// process group is sent SIGTERM, then killed. Each step waits up to the
// grace period.
func (p *process) Close() error {
	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		<-p.exited
		return nil
	}
	p.closing = true
	p.mu.Unlock()

	p.wmu.Lock()
	_ = p.stdin.Close()
	p.wmu.Unlock()

	if p.waitExit(p.grace) {
		return nil
	}
	p.log.Debug("worker did not exit after stdin closed, terminating")
	if err := terminate(p.cmd.Process); err != nil {
		p.log.Debug("terminate worker", "error", err)
	}
	if p.waitExit(p.grace) {
		return nil
	}
	p.log.Warn("worker ignored SIGTERM, killing")
	if err := kill(p.cmd.Process); err != nil {
		return fmt.Errorf("kill worker: %w", err)
	}
	<-p.exited
	return nil
}

func (p *process) waitExit(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-p.exited:
		return true
	case <-t.C:
		return false
	}
}

func (p *process) readReplies(r io.Reader) {
	br := bufio.NewReader(r)
	for {
		frame, err := protocol.ReadFrame(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				p.failf("read reply frame: %w", err)
			}
			return
		}
		rep, err := protocol.DecodeReply(p.codec, frame)
		if err != nil {
			p.failf("decode reply: %w", err)
			_ = terminate(p.cmd.Process)
			// Drain so the child is not blocked on a full pipe.
			_, _ = io.Copy(io.Discard, br)
			return
		}
		p.reply(rep)
	}
}

// relayStderr forwards the child's log lines. JSON records keep their level
// and message; anything else is logged verbatim.
func (p *process) relayStderr(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			p.log.Info("worker", "line", line)
			continue
		}
		msg, _ := rec["msg"].(string)
		level, _ := rec["level"].(string)
		args := make([]any, 0, 2*len(rec))
		for k, v := range rec {
			switch k {
			case "msg", "level", "time", "source":
				continue
			}
			args = append(args, k, v)
		}
		wl := p.log.WithGroup("worker")
		switch strings.ToUpper(level) {
		case "DEBUG":
			wl.Debug(msg, args...)
		case "WARN":
			wl.Warn(msg, args...)
		case "ERROR":
			wl.Error(msg, args...)
		default:
			wl.Info(msg, args...)
		}
	}
}

func (p *process) failf(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	p.mu.Lock()
	if p.closing || p.failErr != nil {
		p.mu.Unlock()
		return
	}
	p.failErr = err
	p.mu.Unlock()
	p.log.Error("worker channel failed", "error", err)
	p.fail(err)
}

func (p *process) exit(err error) {
	p.mu.Lock()
	closing := p.closing
	p.mu.Unlock()
	if closing {
		p.log.Debug("worker exited", "error", err)
		return
	}
	if err == nil {
		p.failf("worker exited")
		return
	}
	p.failf("worker exited: %w", err)
}
