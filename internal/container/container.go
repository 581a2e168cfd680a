// Package container implements binary (de)serialization of the MMIP file
// header, stage headers, and Huffman table entries for each of the four
// pipeline versions (v1 raw, v2 single-stage Huffman, v3 ROI+staged, v4
// adds physics quantization). Layouts are little-endian, unpadded.
package container

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Magic is the 4-byte file signature shared by every version.
var Magic = [4]byte{'M', 'M', 'I', 'P'}

// Sentinel errors, named per the codec's error taxonomy.
var (
	ErrShortRead           = errors.New("container: short read")
	ErrBadMagic            = errors.New("container: bad magic")
	ErrUnsupportedVersion  = errors.New("container: unsupported version")
)

// HeaderV1 is the raw-payload (no entropy coding) pipeline's header.
type HeaderV1 struct {
	Flags, BitDepth, BlockN  uint8
	Width, Height, PadW, PadH uint16
	QStep                    uint16
}

// HeaderV2 is the single-stage canonical-Huffman pipeline's header.
type HeaderV2 struct {
	Flags, BitDepth, BlockN   uint8
	Width, Height, PadW, PadH uint16
	QStep                     uint16
	TableLen                  uint16
	PayloadLen                uint32
}

// HeaderV3 is the ROI-aware, progressively-staged (no physics quant)
// pipeline's header.
type HeaderV3 struct {
	Flags, BitDepth, BlockN     uint8
	Width, Height, PadW, PadH   uint16
	QStepBG, QStepROI           uint16
	ROIBits, ROIBytes           uint32
	NStages                     uint8
}

// HeaderV4 is the target pipeline's header: ROI + progressive staging +
// physics-based block-scale quantization.
type HeaderV4 struct {
	Flags, BitDepth, BlockN   uint8
	Width, Height, PadW, PadH uint16
	QStepBG, QStepROI         uint16
	ROIBits, ROIBytes         uint32
	SBQScale                  uint16
	SBBytes                   uint32
	NStages                   uint8
}

// StageHeader precedes each stage's Huffman table and payload.
type StageHeader struct {
	K0, K1     uint8
	TableLen   uint16
	PayloadLen uint32
}

// TableEntry is one canonical Huffman codebook row: a (run, value) symbol
// and its code length.
type TableEntry struct {
	Run     uint8
	Value   int16
	CodeLen int8
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrap(ErrShortRead, err.Error())
	}
	return buf, nil
}

func checkMagicVersion(buf []byte, want uint8) error {
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return ErrBadMagic
	}
	if buf[4] != want {
		return errors.Wrapf(ErrUnsupportedVersion, "got version %d, want %d", buf[4], want)
	}
	return nil
}

// WriteHeaderV1 serializes a v1 header: magic, version, flags, bitdepth,
// blockN, width, height, padW, padH, qstep.
func WriteHeaderV1(w io.Writer, h HeaderV1) error {
	buf := make([]byte, 18)
	copy(buf[0:4], Magic[:])
	buf[4] = 1
	buf[5] = h.Flags
	buf[6] = h.BitDepth
	buf[7] = h.BlockN
	binary.LittleEndian.PutUint16(buf[8:10], h.Width)
	binary.LittleEndian.PutUint16(buf[10:12], h.Height)
	binary.LittleEndian.PutUint16(buf[12:14], h.PadW)
	binary.LittleEndian.PutUint16(buf[14:16], h.PadH)
	binary.LittleEndian.PutUint16(buf[16:18], h.QStep)
	_, err := w.Write(buf)
	return err
}

// ReadHeaderV1 parses a v1 header.
func ReadHeaderV1(r io.Reader) (HeaderV1, error) {
	var h HeaderV1
	buf, err := readFull(r, 18)
	if err != nil {
		return h, err
	}
	if err := checkMagicVersion(buf, 1); err != nil {
		return h, err
	}
	h.Flags, h.BitDepth, h.BlockN = buf[5], buf[6], buf[7]
	h.Width = binary.LittleEndian.Uint16(buf[8:10])
	h.Height = binary.LittleEndian.Uint16(buf[10:12])
	h.PadW = binary.LittleEndian.Uint16(buf[12:14])
	h.PadH = binary.LittleEndian.Uint16(buf[14:16])
	h.QStep = binary.LittleEndian.Uint16(buf[16:18])
	return h, nil
}

// WriteHeaderV2 serializes a v2 header.
func WriteHeaderV2(w io.Writer, h HeaderV2) error {
	buf := make([]byte, 24)
	copy(buf[0:4], Magic[:])
	buf[4] = 2
	buf[5] = h.Flags
	buf[6] = h.BitDepth
	buf[7] = h.BlockN
	binary.LittleEndian.PutUint16(buf[8:10], h.Width)
	binary.LittleEndian.PutUint16(buf[10:12], h.Height)
	binary.LittleEndian.PutUint16(buf[12:14], h.PadW)
	binary.LittleEndian.PutUint16(buf[14:16], h.PadH)
	binary.LittleEndian.PutUint16(buf[16:18], h.QStep)
	binary.LittleEndian.PutUint16(buf[18:20], h.TableLen)
	binary.LittleEndian.PutUint32(buf[20:24], h.PayloadLen)
	_, err := w.Write(buf)
	return err
}

// ReadHeaderV2 parses a v2 header.
func ReadHeaderV2(r io.Reader) (HeaderV2, error) {
	var h HeaderV2
	buf, err := readFull(r, 24)
	if err != nil {
		return h, err
	}
	if err := checkMagicVersion(buf, 2); err != nil {
		return h, err
	}
	h.Flags, h.BitDepth, h.BlockN = buf[5], buf[6], buf[7]
	h.Width = binary.LittleEndian.Uint16(buf[8:10])
	h.Height = binary.LittleEndian.Uint16(buf[10:12])
	h.PadW = binary.LittleEndian.Uint16(buf[12:14])
	h.PadH = binary.LittleEndian.Uint16(buf[14:16])
	h.QStep = binary.LittleEndian.Uint16(buf[16:18])
	h.TableLen = binary.LittleEndian.Uint16(buf[18:20])
	h.PayloadLen = binary.LittleEndian.Uint32(buf[20:24])
	return h, nil
}

// WriteHeaderV3 serializes a v3 header.
func WriteHeaderV3(w io.Writer, h HeaderV3) error {
	buf := make([]byte, 29)
	copy(buf[0:4], Magic[:])
	buf[4] = 3
	buf[5] = h.Flags
	buf[6] = h.BitDepth
	buf[7] = h.BlockN
	binary.LittleEndian.PutUint16(buf[8:10], h.Width)
	binary.LittleEndian.PutUint16(buf[10:12], h.Height)
	binary.LittleEndian.PutUint16(buf[12:14], h.PadW)
	binary.LittleEndian.PutUint16(buf[14:16], h.PadH)
	binary.LittleEndian.PutUint16(buf[16:18], h.QStepBG)
	binary.LittleEndian.PutUint16(buf[18:20], h.QStepROI)
	binary.LittleEndian.PutUint32(buf[20:24], h.ROIBits)
	binary.LittleEndian.PutUint32(buf[24:28], h.ROIBytes)
	buf[28] = h.NStages
	_, err := w.Write(buf)
	return err
}

// ReadHeaderV3 parses a v3 header.
func ReadHeaderV3(r io.Reader) (HeaderV3, error) {
	var h HeaderV3
	buf, err := readFull(r, 29)
	if err != nil {
		return h, err
	}
	if err := checkMagicVersion(buf, 3); err != nil {
		return h, err
	}
	h.Flags, h.BitDepth, h.BlockN = buf[5], buf[6], buf[7]
	h.Width = binary.LittleEndian.Uint16(buf[8:10])
	h.Height = binary.LittleEndian.Uint16(buf[10:12])
	h.PadW = binary.LittleEndian.Uint16(buf[12:14])
	h.PadH = binary.LittleEndian.Uint16(buf[14:16])
	h.QStepBG = binary.LittleEndian.Uint16(buf[16:18])
	h.QStepROI = binary.LittleEndian.Uint16(buf[18:20])
	h.ROIBits = binary.LittleEndian.Uint32(buf[20:24])
	h.ROIBytes = binary.LittleEndian.Uint32(buf[24:28])
	h.NStages = buf[28]
	return h, nil
}

// headerV4Size is the wire size of the v4 header: magic(4) ver(1) flags(1)
// bitdepth(1) blockN(1) width(2) height(2) padW(2) padH(2) qstep_bg(2)
// qstep_roi(2) roi_bits(4) roi_bytes(4) sb_qscale(2) sb_bytes(4) nstages(1)
// reserved(3) = 38 bytes.
const headerV4Size = 38

// WriteHeaderV4 serializes a v4 header.
func WriteHeaderV4(w io.Writer, h HeaderV4) error {
	buf := make([]byte, headerV4Size)
	copy(buf[0:4], Magic[:])
	buf[4] = 4
	buf[5] = h.Flags
	buf[6] = h.BitDepth
	buf[7] = h.BlockN
	binary.LittleEndian.PutUint16(buf[8:10], h.Width)
	binary.LittleEndian.PutUint16(buf[10:12], h.Height)
	binary.LittleEndian.PutUint16(buf[12:14], h.PadW)
	binary.LittleEndian.PutUint16(buf[14:16], h.PadH)
	binary.LittleEndian.PutUint16(buf[16:18], h.QStepBG)
	binary.LittleEndian.PutUint16(buf[18:20], h.QStepROI)
	binary.LittleEndian.PutUint32(buf[20:24], h.ROIBits)
	binary.LittleEndian.PutUint32(buf[24:28], h.ROIBytes)
	binary.LittleEndian.PutUint16(buf[28:30], h.SBQScale)
	binary.LittleEndian.PutUint32(buf[30:34], h.SBBytes)
	buf[34] = h.NStages
	// buf[35:38] reserved, left zero
	_, err := w.Write(buf)
	return err
}

// ReadHeaderV4 parses a v4 header.
func ReadHeaderV4(r io.Reader) (HeaderV4, error) {
	var h HeaderV4
	buf, err := readFull(r, headerV4Size)
	if err != nil {
		return h, err
	}
	if err := checkMagicVersion(buf, 4); err != nil {
		return h, err
	}
	h.Flags, h.BitDepth, h.BlockN = buf[5], buf[6], buf[7]
	h.Width = binary.LittleEndian.Uint16(buf[8:10])
	h.Height = binary.LittleEndian.Uint16(buf[10:12])
	h.PadW = binary.LittleEndian.Uint16(buf[12:14])
	h.PadH = binary.LittleEndian.Uint16(buf[14:16])
	h.QStepBG = binary.LittleEndian.Uint16(buf[16:18])
	h.QStepROI = binary.LittleEndian.Uint16(buf[18:20])
	h.ROIBits = binary.LittleEndian.Uint32(buf[20:24])
	h.ROIBytes = binary.LittleEndian.Uint32(buf[24:28])
	h.SBQScale = binary.LittleEndian.Uint16(buf[28:30])
	h.SBBytes = binary.LittleEndian.Uint32(buf[30:34])
	h.NStages = buf[34]
	return h, nil
}

// PeekVersion reads just enough of a stream to report its version byte
// without consuming the rest of the header, by reading the first 5 bytes
// and returning them alongside the version for the caller to re-prepend.
func PeekVersion(r io.Reader) (version uint8, prefix []byte, err error) {
	buf, err := readFull(r, 5)
	if err != nil {
		return 0, nil, err
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] || buf[3] != Magic[3] {
		return 0, buf, ErrBadMagic
	}
	return buf[4], buf, nil
}

// WriteStageHeader serializes a stage header: k0, k1, table length, payload
// length.
func WriteStageHeader(w io.Writer, s StageHeader) error {
	buf := make([]byte, 8)
	buf[0] = s.K0
	buf[1] = s.K1
	binary.LittleEndian.PutUint16(buf[2:4], s.TableLen)
	binary.LittleEndian.PutUint32(buf[4:8], s.PayloadLen)
	_, err := w.Write(buf)
	return err
}

// ReadStageHeader parses a stage header.
func ReadStageHeader(r io.Reader) (StageHeader, error) {
	var s StageHeader
	buf, err := readFull(r, 8)
	if err != nil {
		return s, err
	}
	s.K0 = buf[0]
	s.K1 = buf[1]
	s.TableLen = binary.LittleEndian.Uint16(buf[2:4])
	s.PayloadLen = binary.LittleEndian.Uint32(buf[4:8])
	return s, nil
}

// WriteTable serializes a Huffman codebook: one (run, value, codelen) row
// per entry.
func WriteTable(w io.Writer, entries []TableEntry) error {
	buf := make([]byte, 4)
	for _, e := range entries {
		buf[0] = e.Run
		binary.LittleEndian.PutUint16(buf[1:3], uint16(e.Value))
		buf[3] = byte(e.CodeLen)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadTable parses n Huffman codebook rows.
func ReadTable(r io.Reader, n int) ([]TableEntry, error) {
	out := make([]TableEntry, n)
	buf := make([]byte, 4)
	for i := 0; i < n; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, errors.Wrap(ErrShortRead, err.Error())
		}
		out[i] = TableEntry{
			Run:     buf[0],
			Value:   int16(binary.LittleEndian.Uint16(buf[1:3])),
			CodeLen: int8(buf[3]),
		}
	}
	return out, nil
}
