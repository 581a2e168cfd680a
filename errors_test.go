package mmip

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/xiangrui/mmip/internal/huffman"
)

func TestWrapHuffmanErrMapsCodeTooLongToRangeError(t *testing.T) {
	err := wrapHuffmanErr(huffman.ErrCodeTooLong)
	require.ErrorIs(t, err, ErrRangeError)
}

func TestWrapHuffmanErrPassesThroughOtherErrors(t *testing.T) {
	other := errors.New("boom")
	err := wrapHuffmanErr(other)
	require.ErrorIs(t, err, other)
	require.NotErrorIs(t, err, ErrRangeError)
}
