// Package protocol defines the envelopes exchanged between a client and a
// worker, the error taxonomy carried in replies, and the wire codecs used when
// the two sides live in different processes.
package protocol

import (
	"errors"
	"fmt"
	"reflect"
)

// Kind tags an envelope.
type Kind string

const (
	KindAction  Kind = "action"
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Action names a worker capability.
type Action string

const (
	ActionLoadModel Action = "loadModel"
	ActionForward   Action = "forward"
	ActionSample    Action = "sample"
	ActionEncode    Action = "encode"
	ActionDecode    Action = "decode"
)

// Command asks the worker to perform one action. ID is unique among the
// requests outstanding on one client.
type Command struct {
	ID      uint64
	Kind    Kind
	Action  Action
	Payload Request
}

// NewCommand wraps req in an action envelope.
func NewCommand(id uint64, req Request) Command {
	return Command{ID: id, Kind: KindAction, Action: req.Action(), Payload: req}
}

// Reply is the single terminal answer to a Command. On success Name echoes the
// action; on error it carries the error kind and Data the message.
type Reply struct {
	ID   uint64
	Kind Kind
	Name string
	Data any

	codec Codec
}

// Success builds a success reply for cmd.
func Success(cmd Command, data any) Reply {
	return Reply{ID: cmd.ID, Kind: KindSuccess, Name: string(cmd.Action), Data: data}
}

// Failure builds an error reply for cmd from err. Errors that are not
// *Error are reported under fallback.
func Failure(cmd Command, fallback ErrorKind, err error) Reply {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = &Error{Kind: fallback, Message: err.Error()}
	}
	return Reply{ID: cmd.ID, Kind: KindError, Name: string(perr.Kind), Data: perr.Message}
}

// Err returns the reply as an error, or nil for a success reply.
func (r Reply) Err() error {
	if r.Kind == KindSuccess {
		return nil
	}
	msg, _ := r.Data.(string)
	if r.Kind != KindError {
		return &Error{Kind: ErrorKind(r.Name), Message: fmt.Sprintf("unexpected reply kind %q", r.Kind)}
	}
	return &Error{Kind: ErrorKind(r.Name), Message: msg}
}

// Bind stores the reply data in out, which must be a non-nil pointer. Data
// produced in-process is assigned directly; data decoded off the wire is
// converted through the codec that decoded it.
func (r Reply) Bind(out any) error {
	dst := reflect.ValueOf(out)
	if dst.Kind() != reflect.Pointer || dst.IsNil() {
		return fmt.Errorf("bind: expected non-nil pointer, got %T", out)
	}
	if r.Data == nil {
		return nil
	}
	src := reflect.ValueOf(r.Data)
	if src.Type().AssignableTo(dst.Elem().Type()) {
		dst.Elem().Set(src)
		return nil
	}
	if src.Kind() == reflect.Pointer && !src.IsNil() && src.Elem().Type().AssignableTo(dst.Elem().Type()) {
		dst.Elem().Set(src.Elem())
		return nil
	}
	c := r.codec
	if c == nil {
		c = JSON()
	}
	return convert(c, r.Data, out)
}

func convert(c Codec, in any, out any) error {
	b, err := c.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: re-encode: %w", c.Name(), err)
	}
	if err := c.Unmarshal(b, out); err != nil {
		return fmt.Errorf("%s: decode into %T: %w", c.Name(), out, err)
	}
	return nil
}
