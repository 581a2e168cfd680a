// Package huffman builds and applies canonical Huffman codes over the
// (run, value) symbols produced by package rle.
package huffman

import (
	"container/heap"
	"errors"
	"sort"

	"github.com/xiangrui/mmip/internal/bitio"
	"github.com/xiangrui/mmip/internal/rle"
)

// ErrCodeTooLong is returned when a computed code length exceeds what the
// container's codelen field can represent.
var ErrCodeTooLong = errors.New("huffman: code length exceeds 31 bits")

// ErrInvalidCode is returned by Decode when the bit stream does not match
// any known code — a corrupt or truncated stream.
var ErrInvalidCode = errors.New("huffman: invalid code")

// Code is a canonical Huffman codeword: the low Len bits of Bits, MSB first.
type Code struct {
	Bits uint32
	Len  int
}

type node struct {
	freq        int
	seq         int // insertion sequence, breaks frequency ties deterministically
	sym         rle.Symbol
	isLeaf      bool
	left, right *node
}

// a min-heap on (freq, seq) so ties resolve FIFO, matching the order
// symbols were first counted in.
type nodeHeap []*node

func (h nodeHeap) Len() int { return len(h) }
func (h nodeHeap) Less(i, j int) bool {
	if h[i].freq != h[j].freq {
		return h[i].freq < h[j].freq
	}
	return h[i].seq < h[j].seq
}
func (h nodeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nodeHeap) Push(x any)        { *h = append(*h, x.(*node)) }
func (h *nodeHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

// BuildLengths computes a code length per distinct symbol by repeatedly
// joining the two lowest-frequency nodes, mirroring classic Huffman tree
// construction. Frequency ties are broken by insertion order (FIFO), which
// makes the resulting lengths a deterministic function of symbols' first
// occurrence order.
func BuildLengths(symbols []rle.Symbol) (map[rle.Symbol]int, error) {
	freq := make(map[rle.Symbol]int)
	order := make([]rle.Symbol, 0)
	for _, s := range symbols {
		if _, ok := freq[s]; !ok {
			order = append(order, s)
		}
		freq[s]++
	}

	h := make(nodeHeap, 0, len(order))
	for i, s := range order {
		h = append(h, &node{freq: freq[s], seq: i, sym: s, isLeaf: true})
	}
	heap.Init(&h)

	seq := len(order)
	var root *node
	switch {
	case len(h) == 0:
		return map[rle.Symbol]int{}, nil
	case len(h) == 1:
		only := h[0]
		root = &node{freq: only.freq, seq: seq, left: only, right: &node{freq: 0, seq: seq + 1, isLeaf: false}}
	default:
		for h.Len() > 1 {
			a := heap.Pop(&h).(*node)
			b := heap.Pop(&h).(*node)
			seq++
			heap.Push(&h, &node{freq: a.freq + b.freq, seq: seq, left: a, right: b})
		}
		root = h[0]
	}

	lengths := make(map[rle.Symbol]int, len(order))
	var walk func(n *node, depth int)
	walk = func(n *node, depth int) {
		if n.isLeaf {
			l := depth
			if l < 1 {
				l = 1
			}
			lengths[n.sym] = l
			return
		}
		if n.left != nil {
			walk(n.left, depth+1)
		}
		if n.right != nil {
			walk(n.right, depth+1)
		}
	}
	walk(root, 0)

	for _, l := range lengths {
		if l > 31 {
			return nil, ErrCodeTooLong
		}
	}
	return lengths, nil
}

// symKey orders symbols within an equal code length: run ascending, then
// value ascending (shifted unsigned to keep negative values ordered).
func symKey(s rle.Symbol) (int, int) {
	return int(s.Run), int(s.Value) + 32768
}

// CanonicalCodes assigns canonical Huffman codewords from a length table:
// symbols are sorted by (length, symKey) and codes are assigned in that
// order, left-shifting by the length delta and incrementing by one at each
// step.
func CanonicalCodes(lengths map[rle.Symbol]int) map[rle.Symbol]Code {
	type item struct {
		sym rle.Symbol
		len int
	}
	items := make([]item, 0, len(lengths))
	for s, l := range lengths {
		items = append(items, item{s, l})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].len != items[j].len {
			return items[i].len < items[j].len
		}
		ri, vi := symKey(items[i].sym)
		rj, vj := symKey(items[j].sym)
		if ri != rj {
			return ri < rj
		}
		return vi < vj
	})

	codes := make(map[rle.Symbol]Code, len(items))
	var code uint32
	prevLen := 0
	for _, it := range items {
		code <<= uint(it.len - prevLen)
		codes[it.sym] = Code{Bits: code, Len: it.len}
		code++
		prevLen = it.len
	}
	return codes
}

type trieNode struct {
	sym      rle.Symbol
	hasSym   bool
	children [2]*trieNode
}

// Trie is a binary decode tree built from canonical codes.
type Trie struct {
	root *trieNode
}

// BuildTrie constructs a decode trie from a canonical code table.
func BuildTrie(codes map[rle.Symbol]Code) *Trie {
	root := &trieNode{}
	for sym, c := range codes {
		cur := root
		for i := c.Len - 1; i >= 0; i-- {
			bit := (c.Bits >> uint(i)) & 1
			if cur.children[bit] == nil {
				cur.children[bit] = &trieNode{}
			}
			cur = cur.children[bit]
		}
		cur.sym = sym
		cur.hasSym = true
	}
	return &Trie{root: root}
}

// DecodeOne reads bits from r until a leaf is reached and returns its
// symbol, or ErrInvalidCode if the stream diverges from every known code.
func (t *Trie) DecodeOne(r *bitio.Reader) (rle.Symbol, error) {
	cur := t.root
	for !cur.hasSym {
		bit, err := r.ReadBit()
		if err != nil {
			return rle.Symbol{}, err
		}
		next := cur.children[bit]
		if next == nil {
			return rle.Symbol{}, ErrInvalidCode
		}
		cur = next
	}
	return cur.sym, nil
}
