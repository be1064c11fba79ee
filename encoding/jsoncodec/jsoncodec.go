// Package jsoncodec registers the "json" codec used by tests, tools, and
// any message type that is a plain Go struct rather than a proto.Message.
package jsoncodec

import (
	"encoding/json"

	"github.com/corerpc/corerpc/encoding"
)

const Name = "json"

type codec struct{}

func (codec) Name() string { return Name }

func (codec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func init() {
	encoding.RegisterCodec(codec{})
}
