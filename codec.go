// Package mmip implements the MMIP codec: a lossy, block-transform image
// codec for 16-bit grayscale images with region-of-interest-aware
// quantization and progressive spectral-selection decoding.
package mmip

import (
	"bytes"
	"image"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/xiangrui/mmip/internal/bitio"
	"github.com/xiangrui/mmip/internal/container"
	"github.com/xiangrui/mmip/internal/dct"
	"github.com/xiangrui/mmip/internal/huffman"
	"github.com/xiangrui/mmip/internal/quant"
	"github.com/xiangrui/mmip/internal/rle"
	"github.com/xiangrui/mmip/internal/roi"
	"github.com/xiangrui/mmip/internal/zigzag"
)

// Options configures a v4 Encode call.
type Options struct {
	// Quality drives the ROI/background quantization step mapping; larger
	// is better (smaller qstep). Required, must be > 0.
	Quality int

	// Block is the transform block size. Only 8 is fully supported by the
	// progressive ROI pipeline; other sizes fall back to a single
	// DC-weighted stage.
	Block int

	// BoneThreshold overrides Params.BoneThreshold() for this call.
	BoneThreshold uint16

	// SBQScale overrides Params.SBQScale() for this call.
	SBQScale int

	// Params supplies the physics constants. DefaultParams() is used when
	// nil.
	Params *Params
}

func (o *Options) withDefaults() *Options {
	out := *o
	if out.Block == 0 {
		out.Block = 8
	}
	if out.Params == nil {
		out.Params = DefaultParams()
	}
	if out.BoneThreshold == 0 {
		out.BoneThreshold = out.Params.BoneThreshold()
	}
	if out.SBQScale == 0 {
		out.SBQScale = out.Params.SBQScale()
	}
	return &out
}

// QualityToQSteps maps a quality knob (bigger is better) to the background
// and ROI quantization steps used by the v4 pipeline.
func QualityToQSteps(quality int) (qBG, qROI int) {
	base := int(math.Round(220.0 / math.Max(1, float64(quality))))
	if base < 1 {
		base = 1
	}
	qROI = base / 2
	if qROI < 1 {
		qROI = 1
	}
	qBG = base * 2
	if qBG < 1 {
		qBG = 1
	}
	return qBG, qROI
}

func stageRanges(blockN int) [][2]int {
	if blockN == 8 {
		return [][2]int{{0, 1}, {1, 10}, {10, 64}}
	}
	return [][2]int{{0, blockN * blockN}}
}

type stageResult struct {
	k0, k1  int
	entries []container.TableEntry
	payload []byte
}

// Encode writes img as a v4 MMIP stream to w.
func Encode(w io.Writer, img *image.Gray16, o *Options) error {
	if o == nil || o.Quality <= 0 {
		return errors.New("mmip: Options.Quality must be > 0")
	}
	opt := o.withDefaults()
	p := opt.Params
	blockN := opt.Block

	samples := toGrid(img)
	height := len(samples)
	width := 0
	if height > 0 {
		width = len(samples[0])
	}

	padded, padW, padH := padEdge(samples, blockN)
	hp, wp := len(padded), 0
	if hp > 0 {
		wp = len(padded[0])
	}
	hb, wb := hp/blockN, wp/blockN

	roiPixel := roi.PixelMask(padded, opt.BoneThreshold)
	roiBlock := roi.BlockMap(roiPixel, blockN)
	roiBytes := roi.PackBits(roiBlock)

	qBG, qROI := QualityToQSteps(opt.Quality)

	floats := toFloat32Grid(padded)
	mu, sd := quant.BlockStats(floats, blockN)
	sAtt := quant.AttenuationScale(mu, p.Tau(), p.Kappa(), p.Alpha(), p.Eps())
	sNoise := quant.NoiseScale(mu, sd, p.Lambda(), p.C())
	sBlock := make([][]float32, hb)
	for br := 0; br < hb; br++ {
		row := make([]float32, wb)
		for bc := 0; bc < wb; bc++ {
			row[bc] = sAtt[br][bc] * sNoise[br][bc]
		}
		sBlock[br] = row
	}
	sbQ := quant.QuantizeBlockScale(sBlock, opt.SBQScale)
	sbEnc := quant.EncodeBlockScale(sbQ, opt.SBQScale)
	sbBytes := flattenU8(sbQ)

	cMat := dct.Matrix(blockN)
	idx := zigzag.Indices(blockN)
	ranges := stageRanges(blockN)
	stageParams := p.Stages()

	stages := make([]stageResult, 0, len(ranges))
	for si, rng := range ranges {
		k0, k1 := rng[0], rng[1]
		sp := stageParams[minInt(si, len(stageParams)-1)]
		m := quant.StageFreqMatrix(blockN, sp)
		mzz := zigzag.ScanFloat32(m, idx)
		qmin := quant.QMinForStage(si)

		blockStreams := make([][]rle.Symbol, 0, hb*wb)
		symbols := make([]rle.Symbol, 0)

		for br := 0; br < hb; br++ {
			for bc := 0; bc < wb; bc++ {
				blk := extractBlock(floats, br, bc, blockN)
				coeff := dct.Forward(blk, cMat)
				coeffZZ := zigzag.ScanFloat32(coeff, idx)

				qbase := float64(qBG)
				if roiBlock[br][bc] {
					qbase = float64(qROI)
				}
				sbv := float64(sbEnc[br][bc])

				zzq := make([]int16, blockN*blockN)
				for k := k0; k < k1; k++ {
					step := qbase * sbv * float64(mzz[k])
					if step < qmin {
						step = qmin
					}
					zzq[k] = int16(math.Round(float64(coeffZZ[k]) / step))
				}

				pairs := rle.Encode(zzq)
				blockStreams = append(blockStreams, pairs)
				symbols = append(symbols, pairs...)
			}
		}

		if len(symbols) == 0 {
			symbols = []rle.Symbol{rle.EOB}
		}

		lengths, err := huffman.BuildLengths(symbols)
		if err != nil {
			return wrapHuffmanErr(err)
		}
		codes := huffman.CanonicalCodes(lengths)

		bw := bitio.NewWriter()
		for _, pairs := range blockStreams {
			for _, sym := range pairs {
				c := codes[sym]
				bw.WriteCode(c.Bits, c.Len)
			}
		}
		payload := bw.Finish()

		entries := make([]container.TableEntry, 0, len(lengths))
		for sym, l := range lengths {
			entries = append(entries, container.TableEntry{Run: sym.Run, Value: sym.Value, CodeLen: int8(l)})
		}
		stages = append(stages, stageResult{k0: k0, k1: k1, entries: entries, payload: payload})
	}

	log.Debug().Int("width", width).Int("height", height).Int("qbg", qBG).Int("qroi", qROI).
		Int("roi_blocks", countTrue(roiBlock)).Msg("mmip: encoded v4 stream")

	hdr := container.HeaderV4{
		Flags: 0, BitDepth: 16, BlockN: uint8(blockN),
		Width: uint16(width), Height: uint16(height), PadW: uint16(padW), PadH: uint16(padH),
		QStepBG: uint16(qBG), QStepROI: uint16(qROI),
		ROIBits: uint32(hb * wb), ROIBytes: uint32(len(roiBytes)),
		SBQScale: uint16(opt.SBQScale), SBBytes: uint32(len(sbBytes)),
		NStages: uint8(len(stages)),
	}
	if err := container.WriteHeaderV4(w, hdr); err != nil {
		return err
	}
	if _, err := w.Write(roiBytes); err != nil {
		return err
	}
	if _, err := w.Write(sbBytes); err != nil {
		return err
	}
	for _, st := range stages {
		sh := container.StageHeader{K0: uint8(st.k0), K1: uint8(st.k1), TableLen: uint16(len(st.entries)), PayloadLen: uint32(len(st.payload))}
		if err := container.WriteStageHeader(w, sh); err != nil {
			return err
		}
		if err := container.WriteTable(w, st.entries); err != nil {
			return err
		}
		if _, err := w.Write(st.payload); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a v4 MMIP stream from r and reconstructs an image, using
// only the first stagesToDecode stages (clamped to [1, nstages]). Passing
// a large stagesToDecode decodes the full-quality image.
func Decode(r io.Reader, stagesToDecode int, p *Params) (*image.Gray16, error) {
	if p == nil {
		p = DefaultParams()
	}
	hdr, err := container.ReadHeaderV4(r)
	if err != nil {
		return nil, err
	}
	blockN := int(hdr.BlockN)
	hp, wp := int(hdr.Height)+int(hdr.PadH), int(hdr.Width)+int(hdr.PadW)
	hb, wb := hp/blockN, wp/blockN

	roiRaw := make([]byte, hdr.ROIBytes)
	if _, err := io.ReadFull(r, roiRaw); err != nil {
		return nil, errors.Wrap(ErrShortRead, "roi map")
	}
	roiBlock := roi.UnpackBits(roiRaw, hb, wb)

	sbRaw := make([]byte, hdr.SBBytes)
	if _, err := io.ReadFull(r, sbRaw); err != nil {
		return nil, errors.Wrap(ErrShortRead, "block-scale map")
	}
	sbQ := unflattenU8(sbRaw, hb, wb)
	sbDec := quant.DecodeBlockScale(sbQ, int(hdr.SBQScale))

	type stageData struct {
		k0, k1  int
		entries []container.TableEntry
		payload []byte
	}
	stagesData := make([]stageData, hdr.NStages)
	for i := range stagesData {
		sh, err := container.ReadStageHeader(r)
		if err != nil {
			return nil, err
		}
		entries, err := container.ReadTable(r, int(sh.TableLen))
		if err != nil {
			return nil, err
		}
		payload := make([]byte, sh.PayloadLen)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, errors.Wrap(ErrShortRead, "stage payload")
		}
		stagesData[i] = stageData{k0: int(sh.K0), k1: int(sh.K1), entries: entries, payload: payload}
	}

	n := stagesToDecode
	if n < 1 {
		n = 1
	}
	if n > len(stagesData) {
		n = len(stagesData)
	}

	k := blockN * blockN
	nb := hb * wb
	zzAcc := make([][]int16, nb)
	for i := range zzAcc {
		zzAcc[i] = make([]int16, k)
	}

	for si := 0; si < n; si++ {
		st := stagesData[si]
		lengths := make(map[rle.Symbol]int, len(st.entries))
		for _, e := range st.entries {
			lengths[rle.Symbol{Run: e.Run, Value: e.Value}] = int(e.CodeLen)
		}
		codes := huffman.CanonicalCodes(lengths)
		trie := huffman.BuildTrie(codes)
		br := bitio.NewReader(st.payload)

		for bi := 0; bi < nb; bi++ {
			pairs := make([]rle.Symbol, 0, 8)
			for {
				sym, err := trie.DecodeOne(br)
				if err != nil {
					return nil, errors.Wrap(ErrCorruptStream, err.Error())
				}
				pairs = append(pairs, sym)
				if sym == rle.EOB {
					break
				}
				if len(pairs) > k+1 {
					return nil, errors.Wrap(ErrCorruptStream, "too many symbols in block")
				}
			}
			vec, err := rle.Decode(pairs, k)
			if err != nil {
				return nil, errors.Wrap(ErrCorruptStream, err.Error())
			}
			copy(zzAcc[bi][st.k0:st.k1], vec[st.k0:st.k1])
		}
	}

	idx := zigzag.Indices(blockN)
	cMat := dct.Matrix(blockN)

	mzzByStage := make([][]float32, n)
	stageParams := p.Stages()
	for si := 0; si < n; si++ {
		sp := stageParams[minInt(si, len(stageParams)-1)]
		m := quant.StageFreqMatrix(blockN, sp)
		mzzByStage[si] = zigzag.ScanFloat32(m, idx)
	}

	out := make([][]float32, hp)
	for i := range out {
		out[i] = make([]float32, wp)
	}

	bi := 0
	for br := 0; br < hb; br++ {
		for bc := 0; bc < wb; bc++ {
			coeffZZ := make([]float32, k)
			qbase := float64(hdr.QStepBG)
			if roiBlock[br][bc] {
				qbase = float64(hdr.QStepROI)
			}
			sbv := float64(sbDec[br][bc])

			for si := 0; si < n; si++ {
				st := stagesData[si]
				qb := qbase * sbv
				for kk := st.k0; kk < st.k1; kk++ {
					w := qb
					if p.StrictDequant() {
						w *= float64(mzzByStage[si][kk])
					}
					coeffZZ[kk] = float32(float64(zzAcc[bi][kk]) * w)
				}
			}

			coeff := zigzag.UnscanFloat32(coeffZZ, blockN, idx)
			blk := dct.Inverse(coeff, cMat)
			writeBlock(out, br, bc, blockN, blk)
			bi++
		}
	}

	return fromGrid(clampCropU16(out, int(hdr.Height), int(hdr.Width))), nil
}

func toGrid(img *image.Gray16) [][]uint16 {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	out := make([][]uint16, h)
	for y := 0; y < h; y++ {
		row := make([]uint16, w)
		for x := 0; x < w; x++ {
			off := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			row[x] = uint16(img.Pix[off])<<8 | uint16(img.Pix[off+1])
		}
		out[y] = row
	}
	return out
}

func fromGrid(samples [][]uint16) *image.Gray16 {
	h := len(samples)
	w := 0
	if h > 0 {
		w = len(samples[0])
	}
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			off := img.PixOffset(x, y)
			v := samples[y][x]
			img.Pix[off] = byte(v >> 8)
			img.Pix[off+1] = byte(v)
		}
	}
	return img
}

func toFloat32Grid(samples [][]uint16) [][]float32 {
	out := make([][]float32, len(samples))
	for i, row := range samples {
		r := make([]float32, len(row))
		for j, v := range row {
			r[j] = float32(v)
		}
		out[i] = r
	}
	return out
}

// padEdge replicates the last row/column to bring samples up to a multiple
// of blockN, matching the reference codec's edge-padding mode.
func padEdge(samples [][]uint16, blockN int) (padded [][]uint16, padW, padH int) {
	h := len(samples)
	w := 0
	if h > 0 {
		w = len(samples[0])
	}
	padH = (blockN - h%blockN) % blockN
	padW = (blockN - w%blockN) % blockN
	hp, wp := h+padH, w+padW

	out := make([][]uint16, hp)
	for y := 0; y < hp; y++ {
		sy := y
		if sy >= h {
			sy = h - 1
		}
		row := make([]uint16, wp)
		for x := 0; x < wp; x++ {
			sx := x
			if sx >= w {
				sx = w - 1
			}
			row[x] = samples[sy][sx]
		}
		out[y] = row
	}
	return out, padW, padH
}

func extractBlock(samples [][]float32, br, bc, blockN int) [][]float32 {
	out := make([][]float32, blockN)
	for i := 0; i < blockN; i++ {
		row := make([]float32, blockN)
		copy(row, samples[br*blockN+i][bc*blockN:bc*blockN+blockN])
		out[i] = row
	}
	return out
}

func writeBlock(dst [][]float32, br, bc, blockN int, blk [][]float32) {
	for i := 0; i < blockN; i++ {
		copy(dst[br*blockN+i][bc*blockN:bc*blockN+blockN], blk[i])
	}
}

func clampCropU16(samples [][]float32, h, w int) [][]uint16 {
	out := make([][]uint16, h)
	for y := 0; y < h; y++ {
		row := make([]uint16, w)
		for x := 0; x < w; x++ {
			v := samples[y][x]
			if v < 0 {
				v = 0
			}
			if v > 65535 {
				v = 65535
			}
			row[x] = uint16(math.Round(float64(v)))
		}
		out[y] = row
	}
	return out
}

func flattenU8(m [][]uint8) []byte {
	var buf bytes.Buffer
	for _, row := range m {
		buf.Write(row)
	}
	return buf.Bytes()
}

func unflattenU8(data []byte, h, w int) [][]uint8 {
	out := make([][]uint8, h)
	for i := 0; i < h; i++ {
		out[i] = append([]uint8(nil), data[i*w:(i+1)*w]...)
	}
	return out
}

func countTrue(m [][]bool) int {
	n := 0
	for _, row := range m {
		for _, v := range row {
			if v {
				n++
			}
		}
	}
	return n
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
