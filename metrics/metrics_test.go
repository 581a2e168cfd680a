package metrics

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func gray16(h, w int, fill func(r, c int) uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			img.SetGray16(c, r, color.Gray16{Y: fill(r, c)})
		}
	}
	return img
}

func TestRMSEIdenticalIsZero(t *testing.T) {
	a := gray16(4, 4, func(r, c int) uint16 { return 1000 })
	b := gray16(4, 4, func(r, c int) uint16 { return 1000 })
	v, err := RMSE(a, b)
	require.NoError(t, err)
	require.Equal(t, 0.0, v)
}

func TestPSNRIdenticalIsInf(t *testing.T) {
	a := gray16(4, 4, func(r, c int) uint16 { return 500 })
	b := gray16(4, 4, func(r, c int) uint16 { return 500 })
	v, err := PSNR(a, b, 16)
	require.NoError(t, err)
	require.True(t, math.IsInf(v, 1))
}

func TestPSNRKnownDifference(t *testing.T) {
	a := gray16(2, 2, func(r, c int) uint16 { return 100 })
	b := gray16(2, 2, func(r, c int) uint16 {
		if r == 0 && c == 0 {
			return 110
		}
		return 100
	})

	v, err := PSNR(a, b, 16)
	require.NoError(t, err)
	require.Greater(t, v, 0.0)
	require.False(t, math.IsInf(v, 1))
}

func TestRMSEShapeMismatch(t *testing.T) {
	a := gray16(4, 4, func(r, c int) uint16 { return 0 })
	b := gray16(4, 3, func(r, c int) uint16 { return 0 })
	_, err := RMSE(a, b)
	require.ErrorIs(t, err, ErrShapeMismatch)
}

func TestROIPSNREmptyMask(t *testing.T) {
	a := gray16(2, 2, func(r, c int) uint16 { return 0 })
	b := gray16(2, 2, func(r, c int) uint16 { return 0 })
	mask := [][]bool{{false, false}, {false, false}}
	_, err := ROIPSNR(a, b, mask, 16)
	require.ErrorIs(t, err, ErrEmptyROI)
}

func TestROIPSNRRestrictsToMask(t *testing.T) {
	a := gray16(2, 2, func(r, c int) uint16 {
		if r == 1 && c == 1 {
			return 0
		}
		return 1000
	})
	b := gray16(2, 2, func(r, c int) uint16 {
		if r == 1 && c == 1 {
			return 40000
		}
		return 1000
	})
	// The only differing pixel (1,1) is excluded from the mask, so the
	// ROI-restricted PSNR should be infinite despite the images differing
	// overall.
	mask := [][]bool{{true, true}, {true, false}}

	v, err := ROIPSNR(a, b, mask, 16)
	require.NoError(t, err)
	require.True(t, math.IsInf(v, 1))
}

func TestROIPSNRShapeMismatch(t *testing.T) {
	a := gray16(2, 2, func(r, c int) uint16 { return 0 })
	b := gray16(2, 2, func(r, c int) uint16 { return 0 })
	mask := [][]bool{{true, true}}
	_, err := ROIPSNR(a, b, mask, 16)
	require.ErrorIs(t, err, ErrShapeMismatch)
}
