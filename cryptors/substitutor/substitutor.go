// Package substitutor implements table driven bit substitution (S-boxes).
//
// A Box splits its source into consecutive groups of In bits, looks group i
// up in table i mod NumTables, and packs the Out bit results back to back.
package substitutor

import (
	"fmt"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/feistel/cryptors/bitops"
)

// MaxWidth bounds both the input and the output group width.
const MaxWidth = 8

// Box is a validated, immutable set of substitution tables.
type Box struct {
	in, out int
	tables  [][]uint8
}

// New validates tables for in bit groups producing out bit values.  Every
// table must have exactly 1<<in entries, each smaller than 1<<out.
func New(in, out int, tables [][]int) (*Box, error) {
	if in < 1 || in > MaxWidth || out < 1 || out > MaxWidth {
		return nil, fmt.Errorf("%w: substitution widths %d->%d outside [1, %d]",
			cryptors.ErrConfiguration, in, out, MaxWidth)
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("%w: no substitution tables", cryptors.ErrConfiguration)
	}

	b := &Box{in: in, out: out, tables: make([][]uint8, len(tables))}
	for i, tbl := range tables {
		if len(tbl) != 1<<uint(in) {
			return nil, fmt.Errorf("%w: substitution table %d has %d entries, want %d",
				cryptors.ErrConfiguration, i, len(tbl), 1<<uint(in))
		}
		b.tables[i] = make([]uint8, len(tbl))
		for j, v := range tbl {
			if v < 0 || v >= 1<<uint(out) {
				return nil, fmt.Errorf("%w: substitution table %d entry %d is %d, wider than %d bits",
					cryptors.ErrConfiguration, i, j, v, out)
			}
			b.tables[i][j] = uint8(v)
		}
	}
	return b, nil
}

// InSize returns the input group width in bits.
func (b *Box) InSize() int { return b.in }

// OutSize returns the output group width in bits.
func (b *Box) OutSize() int { return b.out }

// NumTables returns the number of tables cycled through.
func (b *Box) NumTables() int { return len(b.tables) }

// Groups returns the number of input groups a srcBits wide source splits
// into; a short final group counts.
func (b *Box) Groups(srcBits int) int {
	return (srcBits + b.in - 1) / b.in
}

// OutputBits returns the only destination width Apply accepts for a source
// of srcBits bits.
func (b *Box) OutputBits(srcBits int) int {
	return b.Groups(srcBits) * b.out
}

// Apply substitutes src into a new buffer of destBits bits, which must equal
// OutputBits(src.Len()).  A final partial group is zero padded on the right.
func (b *Box) Apply(src *bitops.Buffer, destBits int) (*bitops.Buffer, error) {
	n := src.Len()
	if want := b.OutputBits(n); destBits != want {
		return nil, fmt.Errorf("%w: %d source bits substitute to %d bits, destination has %d",
			cryptors.ErrConfiguration, n, want, destBits)
	}

	dest, err := src.Factory().New(destBits)
	if err != nil {
		return nil, err
	}

	s, pos := 0, 0
	for begin := 0; begin < n; begin += b.in {
		end := begin + b.in
		if end > n {
			end = n
		}
		v, err := src.Range(begin, end)
		if err != nil {
			dest.Release()
			return nil, err
		}
		v <<= uint(b.in - (end - begin))

		x := b.tables[s][v]
		if err := dest.WriteRange(pos, pos+b.out, uint32(x)); err != nil {
			dest.Release()
			return nil, err
		}
		pos += b.out

		if s++; s == len(b.tables) {
			s = 0
		}
	}
	return dest, nil
}

// Substitute is the one-shot form of New(in, out, tables).Apply(src, destBits).
func Substitute(src *bitops.Buffer, destBits int, tables [][]int, in, out int) (*bitops.Buffer, error) {
	b, err := New(in, out, tables)
	if err != nil {
		return nil, err
	}
	return b.Apply(src, destBits)
}
