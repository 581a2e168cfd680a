package mmip

import (
	"bytes"
	"encoding/binary"
	"image"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/xiangrui/mmip/internal/bitio"
	"github.com/xiangrui/mmip/internal/container"
	"github.com/xiangrui/mmip/internal/dct"
	"github.com/xiangrui/mmip/internal/huffman"
	"github.com/xiangrui/mmip/internal/rle"
	"github.com/xiangrui/mmip/internal/roi"
	"github.com/xiangrui/mmip/internal/zigzag"
)

// The v1-v3 pipelines below are earlier, simpler members of the same
// family as the v4 codec in codec.go: they share the DCT/zigzag/RLE/
// canonical-Huffman primitives but differ in quantization and container
// layout. They are kept as real, working pipelines (not just historical
// notes) so a stream's version byte fully determines how to decode it.

// QualityToQStepV1 maps quality to the single global qstep used by v1.
func QualityToQStepV1(quality int) int {
	q := int(math.Round(200.0 / math.Max(1, float64(quality))))
	if q < 1 {
		q = 1
	}
	return q
}

// QualityToQStepV2 maps quality to the single global qstep used by v2.
func QualityToQStepV2(quality int) int {
	q := int(math.Round(220.0 / math.Max(1, float64(quality))))
	if q < 1 {
		q = 1
	}
	return q
}

// EncodeV1 writes img as a v1 MMIP stream: DCT + uniform scalar
// quantization, no entropy coding, raw int16 zigzag payload.
func EncodeV1(w io.Writer, img *image.Gray16, blockN, qstep int) error {
	samples := toGrid(img)
	height := len(samples)
	width := 0
	if height > 0 {
		width = len(samples[0])
	}
	padded, padW, padH := padEdge(samples, blockN)
	floats := toFloat32Grid(padded)
	hp, wp := len(floats), len(floats[0])
	hb, wb := hp/blockN, wp/blockN

	cMat := dct.Matrix(blockN)
	idx := zigzag.Indices(blockN)

	if err := container.WriteHeaderV1(w, container.HeaderV1{
		Flags: 0, BitDepth: 16, BlockN: uint8(blockN),
		Width: uint16(width), Height: uint16(height), PadW: uint16(padW), PadH: uint16(padH),
		QStep: uint16(qstep),
	}); err != nil {
		return err
	}

	buf := make([]byte, 2)
	for br := 0; br < hb; br++ {
		for bc := 0; bc < wb; bc++ {
			blk := extractBlock(floats, br, bc, blockN)
			coeff := dct.Forward(blk, cMat)
			coeffZZ := zigzag.ScanFloat32(coeff, idx)
			for _, v := range coeffZZ {
				q := int16(math.Round(float64(v) / float64(qstep)))
				binary.LittleEndian.PutUint16(buf, uint16(q))
				if _, err := w.Write(buf); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// DecodeV1 reads a v1 MMIP stream.
func DecodeV1(r io.Reader) (*image.Gray16, error) {
	hdr, err := container.ReadHeaderV1(r)
	if err != nil {
		return nil, err
	}
	blockN := int(hdr.BlockN)
	hp, wp := int(hdr.Height)+int(hdr.PadH), int(hdr.Width)+int(hdr.PadW)
	hb, wb := hp/blockN, wp/blockN
	k := blockN * blockN

	cMat := dct.Matrix(blockN)
	idx := zigzag.Indices(blockN)
	out := make([][]float32, hp)
	for i := range out {
		out[i] = make([]float32, wp)
	}

	buf := make([]byte, 2*k)
	for br := 0; br < hb; br++ {
		for bc := 0; bc < wb; bc++ {
			if _, err := io.ReadFull(r, buf); err != nil {
				return nil, errors.Wrap(ErrShortRead, "v1 payload")
			}
			vec := make([]float32, k)
			for i := 0; i < k; i++ {
				q := int16(binary.LittleEndian.Uint16(buf[2*i : 2*i+2]))
				vec[i] = float32(q) * float32(hdr.QStep)
			}
			coeff := zigzag.UnscanFloat32(vec, blockN, idx)
			blk := dct.Inverse(coeff, cMat)
			writeBlock(out, br, bc, blockN, blk)
		}
	}
	return fromGrid(clampCropU16(out, int(hdr.Height), int(hdr.Width))), nil
}

// EncodeV2 writes img as a v2 MMIP stream: single-stage canonical Huffman
// over the whole block, uniform global qstep, no ROI.
func EncodeV2(w io.Writer, img *image.Gray16, blockN, qstep int) error {
	samples := toGrid(img)
	height := len(samples)
	width := 0
	if height > 0 {
		width = len(samples[0])
	}
	padded, padW, padH := padEdge(samples, blockN)
	floats := toFloat32Grid(padded)
	hp, wp := len(floats), len(floats[0])
	hb, wb := hp/blockN, wp/blockN
	k := blockN * blockN

	cMat := dct.Matrix(blockN)
	idx := zigzag.Indices(blockN)

	blockStreams := make([][]rle.Symbol, 0, hb*wb)
	symbols := make([]rle.Symbol, 0)
	for br := 0; br < hb; br++ {
		for bc := 0; bc < wb; bc++ {
			blk := extractBlock(floats, br, bc, blockN)
			coeff := dct.Forward(blk, cMat)
			coeffZZ := zigzag.ScanFloat32(coeff, idx)
			vec := make([]int16, k)
			for i, v := range coeffZZ {
				vec[i] = int16(math.Round(float64(v) / float64(qstep)))
			}
			pairs := rle.Encode(vec)
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

	if err := container.WriteHeaderV2(w, container.HeaderV2{
		Flags: 0, BitDepth: 16, BlockN: uint8(blockN),
		Width: uint16(width), Height: uint16(height), PadW: uint16(padW), PadH: uint16(padH),
		QStep: uint16(qstep), TableLen: uint16(len(entries)), PayloadLen: uint32(len(payload)),
	}); err != nil {
		return err
	}
	if err := container.WriteTable(w, entries); err != nil {
		return err
	}
	_, err = w.Write(payload)
	return err
}

// DecodeV2 reads a v2 MMIP stream.
func DecodeV2(r io.Reader) (*image.Gray16, error) {
	hdr, err := container.ReadHeaderV2(r)
	if err != nil {
		return nil, err
	}
	entries, err := container.ReadTable(r, int(hdr.TableLen))
	if err != nil {
		return nil, err
	}
	payload := make([]byte, hdr.PayloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(ErrShortRead, "v2 payload")
	}

	blockN := int(hdr.BlockN)
	hp, wp := int(hdr.Height)+int(hdr.PadH), int(hdr.Width)+int(hdr.PadW)
	hb, wb := hp/blockN, wp/blockN
	k := blockN * blockN

	lengths := make(map[rle.Symbol]int, len(entries))
	for _, e := range entries {
		lengths[rle.Symbol{Run: e.Run, Value: e.Value}] = int(e.CodeLen)
	}
	codes := huffman.CanonicalCodes(lengths)
	trie := huffman.BuildTrie(codes)
	br := bitio.NewReader(payload)

	cMat := dct.Matrix(blockN)
	idx := zigzag.Indices(blockN)
	out := make([][]float32, hp)
	for i := range out {
		out[i] = make([]float32, wp)
	}

	for bRow := 0; bRow < hb; bRow++ {
		for bCol := 0; bCol < wb; bCol++ {
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
			zz := make([]float32, k)
			for i, v := range vec {
				zz[i] = float32(v) * float32(hdr.QStep)
			}
			coeff := zigzag.UnscanFloat32(zz, blockN, idx)
			blk := dct.Inverse(coeff, cMat)
			writeBlock(out, bRow, bCol, blockN, blk)
		}
	}
	return fromGrid(clampCropU16(out, int(hdr.Height), int(hdr.Width))), nil
}

// EncodeV3 writes img as a v3 MMIP stream: ROI-aware quantization steps and
// progressive spectral-selection staging, but no physics block-scale
// quantization.
func EncodeV3(w io.Writer, img *image.Gray16, blockN int, qBG, qROI int, boneThreshold uint16) error {
	samples := toGrid(img)
	height := len(samples)
	width := 0
	if height > 0 {
		width = len(samples[0])
	}
	padded, padW, padH := padEdge(samples, blockN)
	floats := toFloat32Grid(padded)
	hp, wp := len(floats), len(floats[0])
	hb, wb := hp/blockN, wp/blockN
	k := blockN * blockN

	roiPixel := roi.PixelMask(padded, boneThreshold)
	roiBlock := roi.BlockMap(roiPixel, blockN)
	roiBytes := roi.PackBits(roiBlock)

	cMat := dct.Matrix(blockN)
	idx := zigzag.Indices(blockN)
	ranges := stageRanges(blockN)

	// Precompute every block's fully-quantized zigzag vector once, then
	// slice per stage — matching the reference's two-pass structure.
	zzAll := make([][]int16, hb*wb)
	bi := 0
	for br := 0; br < hb; br++ {
		for bc := 0; bc < wb; bc++ {
			blk := extractBlock(floats, br, bc, blockN)
			coeff := dct.Forward(blk, cMat)
			coeffZZ := zigzag.ScanFloat32(coeff, idx)
			qstep := qBG
			if roiBlock[br][bc] {
				qstep = qROI
			}
			vec := make([]int16, k)
			for i, v := range coeffZZ {
				vec[i] = int16(math.Round(float64(v) / float64(qstep)))
			}
			zzAll[bi] = vec
			bi++
		}
	}

	type stageOut struct {
		k0, k1  int
		entries []container.TableEntry
		payload []byte
	}
	stages := make([]stageOut, 0, len(ranges))
	for _, rng := range ranges {
		k0, k1 := rng[0], rng[1]
		blockStreams := make([][]rle.Symbol, 0, len(zzAll))
		symbols := make([]rle.Symbol, 0)
		for _, full := range zzAll {
			vec := make([]int16, k)
			copy(vec[k0:k1], full[k0:k1])
			pairs := rle.Encode(vec)
			blockStreams = append(blockStreams, pairs)
			symbols = append(symbols, pairs...)
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
		stages = append(stages, stageOut{k0: k0, k1: k1, entries: entries, payload: payload})
	}

	if err := container.WriteHeaderV3(w, container.HeaderV3{
		Flags: 0, BitDepth: 16, BlockN: uint8(blockN),
		Width: uint16(width), Height: uint16(height), PadW: uint16(padW), PadH: uint16(padH),
		QStepBG: uint16(qBG), QStepROI: uint16(qROI),
		ROIBits: uint32(hb * wb), ROIBytes: uint32(len(roiBytes)),
		NStages: uint8(len(stages)),
	}); err != nil {
		return err
	}
	if _, err := w.Write(roiBytes); err != nil {
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

// DecodeV3 reads a v3 MMIP stream, honoring stagesToDecode as in v4.
func DecodeV3(r io.Reader, stagesToDecode int) (*image.Gray16, error) {
	hdr, err := container.ReadHeaderV3(r)
	if err != nil {
		return nil, err
	}
	blockN := int(hdr.BlockN)
	hp, wp := int(hdr.Height)+int(hdr.PadH), int(hdr.Width)+int(hdr.PadW)
	hb, wb := hp/blockN, wp/blockN
	k := blockN * blockN

	roiRaw := make([]byte, hdr.ROIBytes)
	if _, err := io.ReadFull(r, roiRaw); err != nil {
		return nil, errors.Wrap(ErrShortRead, "roi map")
	}
	roiBlock := roi.UnpackBits(roiRaw, hb, wb)

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

	cMat := dct.Matrix(blockN)
	idx := zigzag.Indices(blockN)
	out := make([][]float32, hp)
	for i := range out {
		out[i] = make([]float32, wp)
	}
	bi := 0
	for br := 0; br < hb; br++ {
		for bc := 0; bc < wb; bc++ {
			qstep := int(hdr.QStepBG)
			if roiBlock[br][bc] {
				qstep = int(hdr.QStepROI)
			}
			zz := make([]float32, k)
			for i, v := range zzAcc[bi] {
				zz[i] = float32(v) * float32(qstep)
			}
			coeff := zigzag.UnscanFloat32(zz, blockN, idx)
			blk := dct.Inverse(coeff, cMat)
			writeBlock(out, br, bc, blockN, blk)
			bi++
		}
	}
	return fromGrid(clampCropU16(out, int(hdr.Height), int(hdr.Width))), nil
}

// DecodeVersion sniffs a stream's version byte and dispatches to the
// matching decoder. v1 and v2 ignore stagesToDecode since they carry no
// progressive staging.
func DecodeVersion(r io.Reader, stagesToDecode int, p *Params) (*image.Gray16, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < 5 {
		return nil, ErrShortRead
	}
	if !bytes.Equal(data[:4], container.Magic[:]) {
		return nil, ErrBadMagic
	}
	switch data[4] {
	case 1:
		return DecodeV1(bytes.NewReader(data))
	case 2:
		return DecodeV2(bytes.NewReader(data))
	case 3:
		return DecodeV3(bytes.NewReader(data), stagesToDecode)
	case 4:
		return Decode(bytes.NewReader(data), stagesToDecode, p)
	default:
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", data[4])
	}
}
