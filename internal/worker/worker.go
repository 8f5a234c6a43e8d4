// Package worker executes protocol commands against a single model session.
// Commands are handled one at a time in the order they arrive, and every
// command gets exactly one reply.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/lmpeek/internal/artifact"
	"github.com/samcharles93/lmpeek/internal/engine"
	"github.com/samcharles93/lmpeek/internal/logger"
	"github.com/samcharles93/lmpeek/internal/metrics"
	"github.com/samcharles93/lmpeek/internal/protocol"
	"github.com/samcharles93/lmpeek/internal/tokenizer"
)

// TokenizerLoader resolves a tokenizer reference.
type TokenizerLoader interface {
	Load(ctx context.Context, ref string) (tokenizer.Tokenizer, error)
}

// Artifacts makes a remote model file available locally.
type Artifacts interface {
	FetchOrLoadCached(ctx context.Context, url string) (string, error)
}

// Dependencies are the collaborators a worker loads models through.
type Dependencies struct {
	Tokenizers TokenizerLoader
	Artifacts  Artifacts
	Engines    engine.Factory
}

// DefaultDependencies wires the artifact cache at cacheDir, the Hugging Face
// tokenizer loader and the ONNX engine using the runtime library at ortLib.
func DefaultDependencies(cacheDir, ortLib string, log logger.Logger) Dependencies {
	if log == nil {
		log = logger.Discard()
	}
	store := artifact.New(cacheDir, artifact.WithLogger(log.With("component", "artifact")))
	return Dependencies{
		Tokenizers: &tokenizer.Loader{Fetcher: store},
		Artifacts:  store,
		Engines:    engine.ONNX(ortLib),
	}
}

// Worker owns a Session and serves commands against it.
type Worker struct {
	deps    Dependencies
	log     logger.Logger
	session Session
}

// New returns a worker with an empty session.
func New(deps Dependencies, log logger.Logger) *Worker {
	if log == nil {
		log = logger.Discard()
	}
	return &Worker{deps: deps, log: log.With("component", "worker", "worker_id", uuid.NewString())}
}

// Session exposes the worker state for inspection.
func (w *Worker) Session() *Session { return &w.session }

// Serve handles commands until cmds is closed or ctx is done, then releases
// the session. It satisfies channel.ServeFunc.
func (w *Worker) Serve(ctx context.Context, cmds <-chan protocol.Command, reply func(protocol.Reply)) error {
	defer func() {
		if err := w.session.close(); err != nil {
			w.log.Warn("close engine", "error", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd, ok := <-cmds:
			if !ok {
				return nil
			}
			reply(w.Handle(ctx, cmd))
		}
	}
}

// Handle runs one command and returns its reply. A panicking handler is
// answered with an error reply of the action's failure kind.
func (w *Worker) Handle(ctx context.Context, cmd protocol.Command) (rep protocol.Reply) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("handler panic", "id", cmd.ID, "action", cmd.Action, "panic", r, "stack", string(debug.Stack()))
			rep = protocol.Failure(cmd, failureKind(cmd.Action), fmt.Errorf("panic: %v", r))
		}
		outcome := metrics.OutcomeSuccess
		if rep.Kind != protocol.KindSuccess {
			outcome = metrics.OutcomeError
		}
		metrics.CommandHandled(string(cmd.Action), outcome)
		w.timing(string(cmd.Action), start, "id", cmd.ID, "outcome", outcome)
	}()

	if cmd.Kind != protocol.KindAction {
		return protocol.Failure(cmd, protocol.ErrKindInvalidRequest, fmt.Errorf("unexpected envelope kind %q", cmd.Kind))
	}

	var (
		data any
		err  error
	)
	switch req := cmd.Payload.(type) {
	case protocol.LoadRequest:
		data, err = w.load(ctx, req)
	case protocol.ForwardRequest:
		data, err = w.forward(ctx, req)
	case protocol.SampleRequest:
		data, err = w.sample(req)
	case protocol.EncodeRequest:
		data, err = w.encode(req)
	case protocol.DecodeRequest:
		data, err = w.decode(req)
	case nil:
		metrics.UnknownAction()
		w.log.Warn("unknown action", "id", cmd.ID, "action", cmd.Action)
		err = protocol.Errorf(protocol.ErrKindUnknownAction, fmt.Sprintf("unknown action %q", cmd.Action))
	default:
		err = protocol.Errorf(protocol.ErrKindInvalidRequest, fmt.Sprintf("unsupported payload %T", req))
	}
	if err != nil {
		return protocol.Failure(cmd, failureKind(cmd.Action), err)
	}
	return protocol.Success(cmd, data)
}

// failureKind is the error kind reported when a handler fails without
// classifying its error.
func failureKind(a protocol.Action) protocol.ErrorKind {
	switch a {
	case protocol.ActionLoadModel:
		return protocol.ErrKindModelLoad
	case protocol.ActionForward:
		return protocol.ErrKindForward
	case protocol.ActionSample:
		return protocol.ErrKindSample
	case protocol.ActionEncode:
		return protocol.ErrKindEncode
	case protocol.ActionDecode:
		return protocol.ErrKindDecode
	default:
		return protocol.ErrKindUnknownAction
	}
}

func (w *Worker) timing(what string, start time.Time, args ...any) {
	args = append(args, "duration_ms", float64(time.Since(start).Microseconds())/1000)
	if w.session.logging {
		w.log.Info(what, args...)
		return
	}
	w.log.Debug(what, args...)
}

// classify wraps err in a protocol error of kind unless it already carries one.
func classify(kind protocol.ErrorKind, err error) error {
	var perr *protocol.Error
	if errors.As(err, &perr) {
		return err
	}
	return protocol.Errorf(kind, err.Error())
}
