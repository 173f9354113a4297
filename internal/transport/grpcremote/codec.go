// Package grpcremote implements chatsync.Remote over gRPC.
//
// The chat service speaks plain request/response structs encoded with a JSON codec
// registered under the "chatsync-json" content subtype, so no generated stubs are
// required. Unary calls go through ClientConn.Invoke and event subscriptions through
// server-streaming ClientConn.NewStream.
package grpcremote

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used for every chat call.
const CodecName = "chatsync-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}

	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}

	return nil
}

func (jsonCodec) Name() string {
	return CodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
