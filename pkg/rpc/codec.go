package rpc

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodec lets the peer fabric ride over a real grpc.ClientConn/Server
// without a protoc-generated message type: Message/Reply are plain Go
// structs, marshaled with encoding/json instead of the protobuf wire
// format. Selected per-call via grpc.CallContentSubtype("json"); the
// server side picks it up automatically from the negotiated
// content-subtype once registered.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return codecName }

const codecName = "json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
