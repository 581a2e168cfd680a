package quant

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlockStatsConstantBlockHasZeroStdDev(t *testing.T) {
	n := 8
	samples := make([][]float32, n)
	for r := range samples {
		samples[r] = make([]float32, n)
		for c := range samples[r] {
			samples[r][c] = 1000
		}
	}
	mu, sd := BlockStats(samples, n)
	require.InDelta(t, 1000, float64(mu[0][0]), 1e-6)
	require.InDelta(t, 0, float64(sd[0][0]), 1e-6)
}

func TestBlockScaleQuantizeDecodeRoundTrip(t *testing.T) {
	s := [][]float32{{1.0, 1.2}, {1.6, 0.0}}
	sbQ := QuantizeBlockScale(s, 16)
	dec := DecodeBlockScale(sbQ, 16)
	require.InDelta(t, 1.0, float64(dec[0][0]), 1.0/16)
	require.InDelta(t, 1.2, float64(dec[0][1]), 1.0/16)
	require.InDelta(t, 1.6, float64(dec[1][0]), 1.0/16)
	require.InDelta(t, 0.0, float64(dec[1][1]), 1.0/16)
}

func TestQuantizeBlockScaleClips(t *testing.T) {
	s := [][]float32{{-5.0, 100.0}}
	sbQ := QuantizeBlockScale(s, 16)
	require.Equal(t, uint8(0), sbQ[0][0])
	require.Equal(t, uint8(255), sbQ[0][1])
}

func TestEncodeBlockScaleClampsToRange(t *testing.T) {
	sbQ := [][]uint8{{0, 255}}
	enc := EncodeBlockScale(sbQ, 16)
	require.Equal(t, float32(1.0), enc[0][0])
	require.Equal(t, float32(1.6), enc[0][1])
}

func TestDecodeBlockScaleUnclamped(t *testing.T) {
	sbQ := [][]uint8{{0, 255}}
	dec := DecodeBlockScale(sbQ, 16)
	require.InDelta(t, 0.0, float64(dec[0][0]), 1e-6)
	require.InDelta(t, 255.0/16.0, float64(dec[0][1]), 1e-6)
}

func TestStageFreqMatrixProtectsDC(t *testing.T) {
	m := StageFreqMatrix(8, DefaultStageParams[0])
	require.Less(t, float64(m[0][0]), float64(m[7][7]))
}

func TestQMinForStage(t *testing.T) {
	require.Equal(t, 16.0, QMinForStage(0))
	require.Equal(t, 8.0, QMinForStage(1))
	require.Equal(t, 8.0, QMinForStage(2))
}

func TestAttenuationScaleSmallerForDenserTissue(t *testing.T) {
	// A block at tau (bone-like attenuation) gets a smaller attenuation
	// scale than a background block well below tau.
	mu := [][]float32{{500, 9000}}
	s := AttenuationScale(mu, 9000, 1200, 1.5, 1e-3)
	require.Less(t, float64(s[0][1]), float64(s[0][0]))
}

func TestNoiseScaleAtLeastOne(t *testing.T) {
	mu := [][]float32{{1000}}
	sd := [][]float32{{50}}
	s := NoiseScale(mu, sd, 0.8, 300)
	require.GreaterOrEqual(t, float64(s[0][0]), 1.0)
}
