// Package quant implements MMIP's physics-inspired adaptive quantization:
// per-block attenuation/noise scales and per-stage frequency weighting,
// combined into a block-scale factor that steers how aggressively each
// block's coefficients are quantized.
package quant

import "math"

// StageParams holds the (beta, p, gamma) weights of a stage's frequency
// matrix.
type StageParams struct {
	Beta, P, Gamma float64
}

// DefaultStageParams are the three spectral-selection stages' frequency
// weighting parameters: DC is protected strongly, low and high frequency
// stages are weighted progressively coarser.
var DefaultStageParams = []StageParams{
	{Beta: 0.10, P: 1.0, Gamma: 0.60},
	{Beta: 0.35, P: 1.3, Gamma: 1.00},
	{Beta: 0.35, P: 1.3, Gamma: 1.05},
}

// QMinForStage returns the floor quantization step for a stage, preventing
// coefficient overflow for 16-bit input with 8x8 blocks: DC gets a larger
// floor since it is the most likely to saturate.
func QMinForStage(stageID int) float64 {
	if stageID == 0 {
		return 16.0
	}
	return 8.0
}

// BlockStats computes the per-block mean and standard deviation over a
// padded sample grid, for blockN x blockN tiles.
func BlockStats(samples [][]float32, blockN int) (mu, sd [][]float32) {
	h := len(samples)
	w := 0
	if h > 0 {
		w = len(samples[0])
	}
	hb, wb := h/blockN, w/blockN
	mu = make([][]float32, hb)
	sd = make([][]float32, hb)
	for br := 0; br < hb; br++ {
		mu[br] = make([]float32, wb)
		sd[br] = make([]float32, wb)
		for bc := 0; bc < wb; bc++ {
			var sum float64
			n := float64(blockN * blockN)
			for r := br * blockN; r < (br+1)*blockN; r++ {
				for c := bc * blockN; c < (bc+1)*blockN; c++ {
					sum += float64(samples[r][c])
				}
			}
			mean := sum / n
			var sq float64
			for r := br * blockN; r < (br+1)*blockN; r++ {
				for c := bc * blockN; c < (bc+1)*blockN; c++ {
					d := float64(samples[r][c]) - mean
					sq += d * d
				}
			}
			mu[br][bc] = float32(mean)
			sd[br][bc] = float32(math.Sqrt(sq / n))
		}
	}
	return mu, sd
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// AttenuationScale computes the per-block importance proxy from mean
// intensity: regions with high attenuation (bone-like) get a smaller
// effective quantization step, i.e. finer quantization.
func AttenuationScale(mu [][]float32, tau, kappa, alpha, eps float64) [][]float32 {
	out := make([][]float32, len(mu))
	denom := kappa
	if denom < 1.0 {
		denom = 1.0
	}
	for br, row := range mu {
		orow := make([]float32, len(row))
		for bc, m := range row {
			w := sigmoid((float64(m) - tau) / denom)
			s := 1.0 / (eps + math.Pow(w, alpha))
			orow[bc] = float32(s)
		}
		out[br] = orow
	}
	return out
}

// NoiseScale computes a Poisson-like relative-noise proxy: noisier blocks
// get a coarser (larger) scale.
func NoiseScale(mu, sd [][]float32, lam, c float64) [][]float32 {
	out := make([][]float32, len(mu))
	for br := range mu {
		orow := make([]float32, len(mu[br]))
		for bc := range mu[br] {
			rel := float64(sd[br][bc]) / (float64(mu[br][bc]) + c)
			orow[bc] = float32(1.0 + lam*rel)
		}
		out[br] = orow
	}
	return out
}

// StageFreqMatrix returns the N×N stage-specific frequency weighting
// matrix m_s(u,v) = (1 + beta*rho^p) * gamma, where rho is the normalized
// radial frequency.
func StageFreqMatrix(blockN int, p StageParams) [][]float32 {
	m := make([][]float32, blockN)
	denom := math.Sqrt(2.0 * float64((blockN-1)*(blockN-1)))
	if denom == 0 {
		denom = 1
	}
	for u := 0; u < blockN; u++ {
		row := make([]float32, blockN)
		for v := 0; v < blockN; v++ {
			rho := math.Sqrt(float64(u*u+v*v)) / denom
			row[v] = float32((1.0 + p.Beta*math.Pow(rho, p.P)) * p.Gamma)
		}
		m[u] = row
	}
	return m
}

// QuantizeBlockScale quantizes a per-block float scale map to uint8 for
// the container: round(s*qscale), clipped to [0,255].
func QuantizeBlockScale(s [][]float32, qscale int) [][]uint8 {
	out := make([][]uint8, len(s))
	for br, row := range s {
		orow := make([]uint8, len(row))
		for bc, v := range row {
			q := math.Round(float64(v) * float64(qscale))
			if q < 0 {
				q = 0
			}
			if q > 255 {
				q = 255
			}
			orow[bc] = uint8(q)
		}
		out[br] = orow
	}
	return out
}

// EncodeBlockScale reconstructs the block-scale factor sb the encoder
// actually uses during coefficient quantization: the quantized byte map
// round-tripped to float and clamped to [1.0,1.6]. The clamp applies to
// this derived value, not to the raw pre-quantization scale.
func EncodeBlockScale(sbQ [][]uint8, qscale int) [][]float32 {
	out := make([][]float32, len(sbQ))
	for br, row := range sbQ {
		orow := make([]float32, len(row))
		for bc, v := range row {
			sb := float64(v) / float64(qscale)
			if sb < 1.0 {
				sb = 1.0
			}
			if sb > 1.6 {
				sb = 1.6
			}
			orow[bc] = float32(sb)
		}
		out[br] = orow
	}
	return out
}

// DecodeBlockScale reconstructs the block-scale factor sb the decoder
// uses: sb_q/qscale, unclamped. This intentionally does not apply the
// [1.0,1.6] clamp the encoder applies — matching the reference decoder's
// reconstruction formula exactly (see DESIGN.md).
func DecodeBlockScale(sbQ [][]uint8, qscale int) [][]float32 {
	out := make([][]float32, len(sbQ))
	for br, row := range sbQ {
		orow := make([]float32, len(row))
		for bc, v := range row {
			orow[bc] = float32(float64(v) / float64(qscale))
		}
		out[br] = orow
	}
	return out
}
