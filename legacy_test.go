package mmip

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestV1RoundTrip(t *testing.T) {
	img := makeGray16(16, 16, func(r, c int) uint16 { return uint16(1000 + 20*c) })
	var buf bytes.Buffer
	require.NoError(t, EncodeV1(&buf, img, 8, 5))

	out, err := DecodeV1(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), out.Bounds())
}

func TestV2RoundTrip(t *testing.T) {
	img := makeGray16(16, 16, func(r, c int) uint16 { return uint16(1000 + 20*c) })
	var buf bytes.Buffer
	require.NoError(t, EncodeV2(&buf, img, 8, 5))

	out, err := DecodeV2(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), out.Bounds())
	require.Greater(t, psnr(img, out), 30.0)
}

func TestV3RoundTrip(t *testing.T) {
	img := makeGray16(16, 16, func(r, c int) uint16 {
		if r < 4 && c < 4 {
			return 12000
		}
		return 1000
	})
	var buf bytes.Buffer
	require.NoError(t, EncodeV3(&buf, img, 8, 40, 10, 9000))

	out, err := DecodeV3(bytes.NewReader(buf.Bytes()), 3)
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), out.Bounds())
}

func TestDecodeVersionDispatch(t *testing.T) {
	img := makeGray16(8, 8, func(r, c int) uint16 { return 1000 })

	var v1, v2, v3, v4 bytes.Buffer
	require.NoError(t, EncodeV1(&v1, img, 8, 5))
	require.NoError(t, EncodeV2(&v2, img, 8, 5))
	require.NoError(t, EncodeV3(&v3, img, 8, 40, 10, 9000))
	require.NoError(t, Encode(&v4, img, &Options{Quality: 10, Block: 8}))

	for _, buf := range []*bytes.Buffer{&v1, &v2, &v3, &v4} {
		out, err := DecodeVersion(bytes.NewReader(buf.Bytes()), 3, nil)
		require.NoError(t, err)
		require.Equal(t, 8, out.Bounds().Dx())
	}
}

func TestDecodeVersionBadMagic(t *testing.T) {
	_, err := DecodeVersion(bytes.NewReader([]byte("nope!")), 3, nil)
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeVersionUnsupported(t *testing.T) {
	data := []byte{'M', 'M', 'I', 'P', 9}
	_, err := DecodeVersion(bytes.NewReader(data), 3, nil)
	require.ErrorIs(t, err, ErrUnsupportedVersion)
}
