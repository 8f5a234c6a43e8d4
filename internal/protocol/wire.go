package protocol

import "fmt"

type wireCommand struct {
	ID      uint64 `json:"id"`
	Kind    Kind   `json:"kind"`
	Action  Action `json:"actionName"`
	Payload any    `json:"payload,omitempty"`
}

type wireReply struct {
	ID   uint64 `json:"id"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// EncodeCommand serialises cmd with c.
func EncodeCommand(c Codec, cmd Command) ([]byte, error) {
	return c.Marshal(wireCommand{ID: cmd.ID, Kind: cmd.Kind, Action: cmd.Action, Payload: cmd.Payload})
}

// DecodeCommand parses a command and binds its payload to the variant named
// by the action. Unknown actions yield a command with a nil Payload so the
// receiver can still answer it.
func DecodeCommand(c Codec, data []byte) (Command, error) {
	var w wireCommand
	if err := c.Unmarshal(data, &w); err != nil {
		return Command{}, fmt.Errorf("%s: decode command: %w", c.Name(), err)
	}
	if w.Kind != KindAction {
		return Command{}, fmt.Errorf("command %d: unexpected kind %q", w.ID, w.Kind)
	}
	cmd := Command{ID: w.ID, Kind: w.Kind, Action: w.Action}
	req := newRequest(w.Action)
	if req == nil {
		return cmd, nil
	}
	if w.Payload != nil {
		if err := convert(c, w.Payload, req); err != nil {
			return cmd, fmt.Errorf("command %d (%s): %w", w.ID, w.Action, err)
		}
	}
	cmd.Payload = deref(req)
	return cmd, nil
}

// EncodeReply serialises r with c.
func EncodeReply(c Codec, r Reply) ([]byte, error) {
	return c.Marshal(wireReply{ID: r.ID, Kind: r.Kind, Name: r.Name, Data: r.Data})
}

// DecodeReply parses a reply. The data stays in its generic decoded form
// until the receiver calls Bind.
func DecodeReply(c Codec, data []byte) (Reply, error) {
	var w wireReply
	if err := c.Unmarshal(data, &w); err != nil {
		return Reply{}, fmt.Errorf("%s: decode reply: %w", c.Name(), err)
	}
	switch w.Kind {
	case KindSuccess, KindError:
	default:
		return Reply{}, fmt.Errorf("reply %d: unexpected kind %q", w.ID, w.Kind)
	}
	return Reply{ID: w.ID, Kind: w.Kind, Name: w.Name, Data: w.Data, codec: c}, nil
}
