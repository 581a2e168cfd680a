package dct

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForwardInverseRoundTrip(t *testing.T) {
	n := 8
	c := Matrix(n)
	block := make([][]float32, n)
	v := float32(1)
	for r := 0; r < n; r++ {
		block[r] = make([]float32, n)
		for col := 0; col < n; col++ {
			block[r][col] = v
			v += 3
		}
	}

	coeff := Forward(block, c)
	back := Inverse(coeff, c)

	for r := 0; r < n; r++ {
		for col := 0; col < n; col++ {
			require.InDelta(t, float64(block[r][col]), float64(back[r][col]), 1e-2)
		}
	}
}

func TestMatrixIsOrthonormal(t *testing.T) {
	n := 8
	c := Matrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var dot float64
			for k := 0; k < n; k++ {
				dot += float64(c[i][k]) * float64(c[j][k])
			}
			want := 0.0
			if i == j {
				want = 1.0
			}
			require.InDelta(t, want, dot, 1e-4)
		}
	}
}

func TestDCRowIsConstant(t *testing.T) {
	n := 8
	c := Matrix(n)
	want := float32(math.Sqrt(1.0 / float64(n)))
	for _, v := range c[0] {
		require.InDelta(t, float64(want), float64(v), 1e-6)
	}
}

func TestConstantBlockHasOnlyDCEnergy(t *testing.T) {
	n := 8
	c := Matrix(n)
	block := make([][]float32, n)
	for r := range block {
		block[r] = make([]float32, n)
		for col := range block[r] {
			block[r][col] = 42
		}
	}
	coeff := Forward(block, c)
	for r := 0; r < n; r++ {
		for col := 0; col < n; col++ {
			if r == 0 && col == 0 {
				continue
			}
			require.InDelta(t, 0, float64(coeff[r][col]), 1e-3)
		}
	}
}
