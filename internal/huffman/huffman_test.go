package huffman

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xiangrui/mmip/internal/bitio"
	"github.com/xiangrui/mmip/internal/rle"
)

func TestSelfConsistentRoundTrip(t *testing.T) {
	symbols := []rle.Symbol{
		{Run: 0, Value: 1},
		{Run: 0, Value: 1},
		{Run: 0, Value: 1},
		{Run: 0, Value: 1},
		{Run: 1, Value: 2},
		{Run: 1, Value: 2},
		{Run: 3, Value: -5},
		rle.EOB,
		rle.EOB,
	}
	lengths, err := BuildLengths(symbols)
	require.NoError(t, err)
	require.Len(t, lengths, 4)

	codes := CanonicalCodes(lengths)
	trie := BuildTrie(codes)

	w := bitio.NewWriter()
	for _, s := range symbols {
		c := codes[s]
		w.WriteCode(c.Bits, c.Len)
	}
	data := w.Finish()

	r := bitio.NewReader(data)
	for _, want := range symbols {
		got, err := trie.DecodeOne(r)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestCanonicalCodesArePrefixFree(t *testing.T) {
	lengths := map[rle.Symbol]int{
		{Run: 0, Value: 1}: 1,
		{Run: 0, Value: 2}: 2,
		{Run: 0, Value: 3}: 3,
		{Run: 0, Value: 4}: 3,
	}
	codes := CanonicalCodes(lengths)
	var entries []Code
	for _, c := range codes {
		entries = append(entries, c)
	}
	for i := range entries {
		for j := range entries {
			if i == j {
				continue
			}
			a, b := entries[i], entries[j]
			if a.Len > b.Len {
				continue
			}
			require.NotEqual(t, a.Bits, b.Bits>>uint(b.Len-a.Len), "code %v is a prefix of %v", a, b)
		}
	}
}

func TestSingleSymbolGetsLengthOne(t *testing.T) {
	lengths, err := BuildLengths([]rle.Symbol{{Run: 0, Value: 9}, {Run: 0, Value: 9}})
	require.NoError(t, err)
	require.Equal(t, 1, lengths[rle.Symbol{Run: 0, Value: 9}])
}

func TestEmptySymbolsYieldEmptyLengths(t *testing.T) {
	lengths, err := BuildLengths(nil)
	require.NoError(t, err)
	require.Empty(t, lengths)
}

func TestDecodeExhaustedReaderFails(t *testing.T) {
	lengths := map[rle.Symbol]int{
		{Run: 0, Value: 1}: 1,
		{Run: 0, Value: 2}: 1,
	}
	codes := CanonicalCodes(lengths)
	trie := BuildTrie(codes)

	// Decoding from a reader with no bytes left should surface an error
	// from the underlying reader, not a false decode.
	w := bitio.NewWriter()
	w.WriteCode(0, 1)
	data := w.Finish()
	r := bitio.NewReader(data[:0])
	_, err := trie.DecodeOne(r)
	require.Error(t, err)
}
