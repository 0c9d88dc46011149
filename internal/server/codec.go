package server

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype of the basket service. Clients
// select it with grpc.CallContentSubtype(CodecName).
const CodecName = "json"

// jsonCodec carries the same JSON bodies over gRPC that the HTTP routes and
// NATS subjects carry, so the command wire form is identical on every
// transport.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
