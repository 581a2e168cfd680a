package mmip

import (
	"github.com/pkg/errors"

	"github.com/xiangrui/mmip/internal/huffman"
)

// Sentinel errors covering the codec's failure taxonomy. Wrap these with
// github.com/pkg/errors when adding context so callers can still match
// against the sentinel with errors.Is.
var (
	// ErrShortRead indicates the underlying reader ran out of data before a
	// fixed-size field could be fully read.
	ErrShortRead = errors.New("mmip: short read")

	// ErrBadMagic indicates the stream does not start with the MMIP magic
	// number.
	ErrBadMagic = errors.New("mmip: bad magic number")

	// ErrUnsupportedVersion indicates the stream's version byte is not one
	// this codec knows how to decode.
	ErrUnsupportedVersion = errors.New("mmip: unsupported version")

	// ErrShapeMismatch indicates a supplied buffer's dimensions don't match
	// what the header or request describes.
	ErrShapeMismatch = errors.New("mmip: shape mismatch")

	// ErrInvalidCode indicates a Huffman-coded bit sequence didn't match
	// any codeword in the active table.
	ErrInvalidCode = errors.New("mmip: invalid huffman code")

	// ErrCorruptStream indicates an internally inconsistent bitstream, such
	// as an RLE run overflowing its block or too many symbols in a block.
	ErrCorruptStream = errors.New("mmip: corrupt stream")

	// ErrRangeError indicates a value (e.g. a Huffman code length) exceeds
	// what the container format can represent.
	ErrRangeError = errors.New("mmip: value out of range")

	// ErrUnexpectedEOF indicates the bit reader ran out of bits mid-code.
	ErrUnexpectedEOF = errors.New("mmip: unexpected end of stream")
)

// wrapHuffmanErr maps a huffman package error onto the codec's own error
// taxonomy so callers can match with errors.Is(err, mmip.ErrRangeError)
// regardless of which internal package raised it.
func wrapHuffmanErr(err error) error {
	if errors.Is(err, huffman.ErrCodeTooLong) {
		return errors.Wrap(ErrRangeError, err.Error())
	}
	return errors.Wrap(err, "mmip: build huffman lengths")
}
