package comm

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName is the content-subtype replicas
// announce on every gossip call.
const codecName = "json"

// JSONCodec marshals gossip messages as JSON.
type JSONCodec struct{}

func init() {
	encoding.RegisterCodec(JSONCodec{})
}

// Marshal fulfills the Marshal() interface
// of a gRPC codec.
func (JSONCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal fulfills the Unmarshal() interface
// of a gRPC codec.
func (JSONCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Name fulfills the Name() interface of a gRPC
// codec and names the content-subtype.
func (JSONCodec) Name() string {
	return codecName
}
