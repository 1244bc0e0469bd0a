package handler

import "google.golang.org/grpc/encoding"

// JSONCodec carries gRPC messages as JSON so the service can be described
// without generated protobuf types.
type JSONCodec struct{}

var _ encoding.Codec = JSONCodec{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) Name() string { return "json" }
