// Package grpcapi exposes the run subsystem over gRPC. Transport, TLS, and
// streaming all come from google.golang.org/grpc; only the wire encoding
// differs; there is no protoc available in this environment to generate
// real protobuf messages, so this package registers a JSON codec and
// hand-writes the ServiceDesc/StreamDesc/client stub that
// protoc-gen-go-grpc would otherwise generate, operating on plain
// JSON-tagged Go structs instead of generated protobuf types.
package grpcapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is negotiated via the grpc+<name> content-subtype; both the
// client and server in this module must register and select it.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcapi: unmarshal %T: %w", v, err)
	}
	return nil
}

func (jsonCodec) Name() string { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
