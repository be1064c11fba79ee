// Package protocodec registers the "proto" codec, backed by
// google.golang.org/protobuf, for messages that implement proto.Message.
package protocodec

import (
	"fmt"

	"google.golang.org/protobuf/proto"

	"github.com/corerpc/corerpc/encoding"
)

const Name = "proto"

type codec struct{}

func (codec) Name() string { return Name }

func (codec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("protocodec: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

func (codec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(proto.Message)
	if !ok {
		return fmt.Errorf("protocodec: %T does not implement proto.Message", v)
	}
	return proto.Unmarshal(data, msg)
}

func init() {
	encoding.RegisterCodec(codec{})
}
