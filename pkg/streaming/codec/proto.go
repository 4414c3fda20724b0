package codec

import (
	"bytes"

	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/proto"
)

// ProtoEncoder writes each message with a varint length prefix, the framing
// read back by protodelim.UnmarshalFrom.
type ProtoEncoder struct {
	// Deterministic requests stable map ordering in the output.
	Deterministic bool
}

// Encode implements Encoder.
func (e ProtoEncoder) Encode(msg proto.Message, dst *bytes.Buffer) error {
	opts := protodelim.MarshalOptions{
		MarshalOptions: proto.MarshalOptions{Deterministic: e.Deterministic},
	}

	var frame bytes.Buffer
	if _, err := opts.MarshalTo(&frame, msg); err != nil {
		return encodeError("proto", err)
	}
	dst.Write(frame.Bytes())
	return nil
}
