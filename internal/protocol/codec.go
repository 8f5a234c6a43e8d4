package protocol

import (
	"bytes"
	"fmt"
	"reflect"
	"sort"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec marshals envelopes for a byte-oriented channel. Struct fields are
// named by their json tags in every codec so the wire shape does not change
// with the encoding.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// DefaultCodec is used when no codec is configured.
const DefaultCodec = "json"

// LookupCodec returns the codec registered under name.
func LookupCodec(name string) (Codec, error) {
	if name == "" {
		name = DefaultCodec
	}
	c, ok := codecs[name]
	if !ok {
		return nil, fmt.Errorf("unknown codec %q (available: %v)", name, CodecNames())
	}
	return c, nil
}

// CodecNames lists the registered codecs.
func CodecNames() []string {
	out := make([]string, 0, len(codecs))
	for name := range codecs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

var codecs = map[string]Codec{
	"json":    jsonCodec{},
	"msgpack": msgpackCodec{},
	"cbor":    mustCBOR(),
}

// JSON returns the JSON codec.
func JSON() Codec { return jsonCodec{} }

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetOmitEmpty(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func mustCBOR() Codec {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("cbor dec mode: %v", err))
	}
	return cborCodec{enc: em, dec: dm}
}

func (cborCodec) Name() string                         { return "cbor" }
func (c cborCodec) Marshal(v any) ([]byte, error)      { return c.enc.Marshal(v) }
func (c cborCodec) Unmarshal(data []byte, v any) error { return c.dec.Unmarshal(data, v) }
