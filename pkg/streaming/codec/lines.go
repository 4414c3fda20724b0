package codec

import (
	"bytes"
	"fmt"
	"strings"
)

// LinesEncoder writes each string followed by a newline.
type LinesEncoder struct {
	// MaxLength caps the line length in bytes, newline excluded. Zero means no limit.
	MaxLength int
}

// NewLinesEncoder returns a LinesEncoder with the given limit.
func NewLinesEncoder(maxLength int) LinesEncoder {
	return LinesEncoder{MaxLength: maxLength}
}

// Encode implements Encoder.
func (e LinesEncoder) Encode(line string, dst *bytes.Buffer) error {
	if strings.IndexByte(line, '\n') >= 0 {
		return encodeError("lines", ErrLineContainsNewline)
	}
	if e.MaxLength > 0 && len(line) > e.MaxLength {
		return encodeError("lines", fmt.Errorf("%w: %d > %d", ErrLineTooLong, len(line), e.MaxLength))
	}

	dst.Grow(len(line) + 1)
	dst.WriteString(line)
	dst.WriteByte('\n')
	return nil
}
