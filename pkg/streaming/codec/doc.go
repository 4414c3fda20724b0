/*
Package codec serializes items into byte frames.

An Encoder appends one item to a bytes.Buffer. The framed package drives
encoders to turn a Sink of items into a byte stream; the encoders here cover
the common framings:

	BytesEncoder            raw bytes, no boundaries
	LinesEncoder            text lines terminated by '\n'
	LengthDelimitedEncoder  big-endian length prefix + payload
	JSONEncoder[T]          newline-delimited JSON
	ProtoEncoder            varint-delimited protobuf messages

Failures are returned as *errors.EncodeError and match errors.ErrEncode from
pkg/common/errors.

Custom framings can be written as an EncoderFunc:

	upper := codec.EncoderFunc[string](func(s string, dst *bytes.Buffer) error {
		dst.WriteString(strings.ToUpper(s))
		return nil
	})
*/
package codec
