package bitio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	type write struct {
		code   uint32
		length int
	}
	writes := []write{
		{0b1, 1},
		{0b101, 3},
		{0b11111111, 8},
		{0b1010101010101, 13},
		{0x7FFFFFFF, 31},
		{0, 1},
		{0b110, 3},
	}

	w := NewWriter()
	for _, wr := range writes {
		w.WriteCode(wr.code, wr.length)
	}
	data := w.Finish()

	totalBits := 0
	for _, wr := range writes {
		totalBits += wr.length
	}
	require.LessOrEqual(t, totalBits, 8*len(data))

	r := NewReader(data)
	for _, wr := range writes {
		var got uint32
		for i := 0; i < wr.length; i++ {
			bit, err := r.ReadBit()
			require.NoError(t, err)
			got = (got << 1) | uint32(bit)
		}
		require.Equal(t, wr.code, got, "code mismatch for length %d", wr.length)
	}
}

func TestReaderUnexpectedEOF(t *testing.T) {
	r := NewReader(nil)
	_, err := r.ReadBit()
	require.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestFinishPadsWithZero(t *testing.T) {
	w := NewWriter()
	w.WriteCode(0b1, 1)
	data := w.Finish()
	require.Equal(t, []byte{0b10000000}, data)
}
