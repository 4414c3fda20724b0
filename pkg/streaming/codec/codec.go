package codec

import (
	"bytes"
	"errors"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// Encoder serializes items onto the end of a buffer. Encode must append
// nothing on error; callers that need stronger guarantees truncate the
// buffer themselves.
type Encoder[T any] interface {
	Encode(item T, dst *bytes.Buffer) error
}

// EncoderFunc adapts a function into an Encoder.
type EncoderFunc[T any] func(item T, dst *bytes.Buffer) error

// Encode implements Encoder.
func (f EncoderFunc[T]) Encode(item T, dst *bytes.Buffer) error {
	return f(item, dst)
}

var (
	// ErrLineTooLong is returned when a line exceeds the encoder's MaxLength.
	ErrLineTooLong = errors.New("line too long")

	// ErrLineContainsNewline is returned when a line would split into two frames.
	ErrLineContainsNewline = errors.New("line contains newline")

	// ErrFrameTooLarge is returned when a payload exceeds the frame limit.
	ErrFrameTooLarge = errors.New("frame too large")
)

// BytesEncoder appends each slice unchanged. Item boundaries are not
// recorded, so the reader sees one continuous stream.
type BytesEncoder struct{}

// Encode implements Encoder.
func (BytesEncoder) Encode(item []byte, dst *bytes.Buffer) error {
	dst.Write(item)
	return nil
}

func encodeError(encoder string, cause error) error {
	return sferrors.NewEncodeError(encoder, cause)
}
