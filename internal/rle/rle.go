// Package rle implements the run-length coding MMIP applies to zigzag
// coefficient vectors prior to Huffman coding.
package rle

import "errors"

// ErrOverflow indicates a decoded run sequence produced more coefficients
// than the target vector can hold — a corrupt or malicious stream.
var ErrOverflow = errors.New("rle: decode overflow")

// Symbol is a single RLE token: Run leading zeros followed by Value.
// EOB is the reserved (0,0) terminator.
type Symbol struct {
	Run   uint8
	Value int16
}

// EOB is the end-of-block terminator symbol.
var EOB = Symbol{Run: 0, Value: 0}

// Encode converts a zigzag-ordered coefficient vector into a run-length
// token stream terminated by EOB. Runs longer than 255 are split into
// (255,1) filler pairs, matching the reference encoder. Each filler decodes
// as 255 zeros followed by a literal 1, so a vector containing such a run
// does not round-trip exactly.
func Encode(vec []int16) []Symbol {
	out := make([]Symbol, 0, len(vec)/2+1)
	run := 0
	for _, v := range vec {
		if v == 0 {
			run++
			continue
		}
		for run > 255 {
			out = append(out, Symbol{Run: 255, Value: 1})
			run -= 255
		}
		out = append(out, Symbol{Run: uint8(run), Value: v})
		run = 0
	}
	out = append(out, EOB)
	return out
}

// Decode reconstructs an n-element coefficient vector from a run-length
// token stream. Decoding stops at the first EOB in pairs, so the stream may
// be passed with or without its terminating EOB.
func Decode(pairs []Symbol, n int) ([]int16, error) {
	out := make([]int16, 0, n)
	for _, p := range pairs {
		if p == EOB {
			break
		}
		for i := 0; i < int(p.Run); i++ {
			out = append(out, 0)
		}
		out = append(out, p.Value)
		if len(out) > n {
			return nil, ErrOverflow
		}
	}
	for len(out) < n {
		out = append(out, 0)
	}
	return out, nil
}
