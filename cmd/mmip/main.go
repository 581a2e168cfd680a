// Command mmip encodes and decodes MMIP v4 streams from a minimal raw
// pixel container: a little-endian (width uint32, height uint32) header
// followed by width*height little-endian uint16 samples. Reading real
// DICOM/NumPy inputs is an external collaborator's job (see spec.md §1);
// this raw format exists only so the codec is runnable end-to-end without
// pulling in an out-of-scope parser.
package main

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xiangrui/mmip"
)

func readRaw(path string) (*image.Gray16, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var dims [8]byte
	if _, err := io.ReadFull(f, dims[:]); err != nil {
		return nil, fmt.Errorf("mmip: read raw header: %w", err)
	}
	width := binary.LittleEndian.Uint32(dims[0:4])
	height := binary.LittleEndian.Uint32(dims[4:8])

	img := image.NewGray16(image.Rect(0, 0, int(width), int(height)))
	buf := make([]byte, 2)
	for y := 0; y < int(height); y++ {
		for x := 0; x < int(width); x++ {
			if _, err := io.ReadFull(f, buf); err != nil {
				return nil, fmt.Errorf("mmip: read raw sample: %w", err)
			}
			off := img.PixOffset(x, y)
			v := binary.LittleEndian.Uint16(buf)
			img.Pix[off] = byte(v >> 8)
			img.Pix[off+1] = byte(v)
		}
	}
	return img, nil
}

func writeRaw(path string, img *image.Gray16) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	b := img.Bounds()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[0:4], uint32(b.Dx()))
	binary.LittleEndian.PutUint32(dims[4:8], uint32(b.Dy()))
	if _, err := f.Write(dims[:]); err != nil {
		return err
	}

	buf := make([]byte, 2)
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			v := img.Gray16At(b.Min.X+x, b.Min.Y+y).Y
			binary.LittleEndian.PutUint16(buf, v)
			if _, err := f.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func newEncodeCmd() *cobra.Command {
	var input, output string
	var quality, block int
	var boneThreshold int
	var sbQScale int

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a raw 16-bit grayscale image into an MMIP v4 stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := readRaw(input)
			if err != nil {
				return err
			}
			out, err := os.Create(output)
			if err != nil {
				return err
			}
			defer out.Close()

			opt := &mmip.Options{
				Quality:       quality,
				Block:         block,
				BoneThreshold: uint16(boneThreshold),
				SBQScale:      sbQScale,
			}
			return mmip.Encode(out, img, opt)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input raw image path (required)")
	cmd.Flags().StringVar(&output, "output", "", "output .mmip path (required)")
	cmd.Flags().IntVar(&quality, "quality", 10, "quality knob, bigger is better")
	cmd.Flags().IntVar(&block, "block", 8, "transform block size")
	cmd.Flags().IntVar(&boneThreshold, "bone_threshold", 9000, "ROI pixel threshold")
	cmd.Flags().IntVar(&sbQScale, "sb_qscale", 16, "block-scale quantizer")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	var input, output string
	var stages int

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode an MMIP v4 stream into a raw 16-bit grayscale image",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(input)
			if err != nil {
				return err
			}
			defer in.Close()

			img, err := mmip.Decode(in, stages, nil)
			if err != nil {
				return err
			}
			return writeRaw(output, img)
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "input .mmip path (required)")
	cmd.Flags().StringVar(&output, "output", "", "output raw image path (required)")
	cmd.Flags().IntVar(&stages, "stages", 3, "number of spectral stages to decode")
	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("output")
	return cmd
}

func main() {
	root := &cobra.Command{
		Use:   "mmip",
		Short: "MMIP progressive, ROI-aware medical image codec",
	}
	root.AddCommand(newEncodeCmd(), newDecodeCmd())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
