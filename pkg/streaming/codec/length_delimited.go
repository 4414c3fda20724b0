package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vnykmshr/sinkflow/pkg/common/validation"
)

// DefaultMaxFrameLength is the payload limit used when none is configured.
const DefaultMaxFrameLength = 8 * 1024 * 1024

// LengthDelimitedEncoder prefixes each payload with its length as a
// big-endian unsigned integer.
type LengthDelimitedEncoder struct {
	// LengthFieldLength is the prefix width in bytes: 1, 2, 4 or 8.
	LengthFieldLength int

	// MaxFrameLength caps the payload length.
	MaxFrameLength int
}

// NewLengthDelimitedEncoder returns an encoder with a 4 byte prefix and the
// default frame limit.
func NewLengthDelimitedEncoder() LengthDelimitedEncoder {
	return LengthDelimitedEncoder{
		LengthFieldLength: 4,
		MaxFrameLength:    DefaultMaxFrameLength,
	}
}

// Validate reports an invalid prefix width or frame limit.
func (e LengthDelimitedEncoder) Validate() error {
	if err := validation.ValidateOneOf("codec", "length_field_length", e.LengthFieldLength, 1, 2, 4, 8); err != nil {
		return err
	}
	return validation.ValidatePositive("codec", "max_frame_length", e.MaxFrameLength)
}

// Encode implements Encoder.
func (e LengthDelimitedEncoder) Encode(item []byte, dst *bytes.Buffer) error {
	if err := e.Validate(); err != nil {
		return encodeError("length_delimited", err)
	}

	n := uint64(len(item))
	if n > uint64(e.MaxFrameLength) || n > e.fieldMax() {
		return encodeError("length_delimited",
			fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, n, e.limit()))
	}

	var prefix [8]byte
	switch e.LengthFieldLength {
	case 1:
		prefix[0] = byte(n)
	case 2:
		binary.BigEndian.PutUint16(prefix[:], uint16(n))
	case 4:
		binary.BigEndian.PutUint32(prefix[:], uint32(n))
	case 8:
		binary.BigEndian.PutUint64(prefix[:], n)
	}

	dst.Grow(e.LengthFieldLength + len(item))
	dst.Write(prefix[:e.LengthFieldLength])
	dst.Write(item)
	return nil
}

func (e LengthDelimitedEncoder) fieldMax() uint64 {
	if e.LengthFieldLength >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*uint(e.LengthFieldLength)) - 1
}

func (e LengthDelimitedEncoder) limit() uint64 {
	if m := e.fieldMax(); m < uint64(e.MaxFrameLength) {
		return m
	}
	return uint64(e.MaxFrameLength)
}
