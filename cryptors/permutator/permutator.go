// Package permutator gathers bits from a source buffer into a destination
// buffer according to an index table.  The same table form expresses plain
// permutations and expansions (repeated indices).
package permutator

import (
	"bytes"
	"fmt"

	"github.com/bgallie/feistel/cryptors"
	"github.com/bgallie/feistel/cryptors/bitops"
)

// Table maps every destination bit k to source bit idx[k].
type Table struct {
	idx  []int
	src  int
	name string
}

// New validates indices against a source of sourceBits bits and returns the
// table.  The slice is copied.
func New(indices []int, sourceBits int) (*Table, error) {
	if sourceBits < 0 {
		return nil, fmt.Errorf("%w: negative source width %d", cryptors.ErrConfiguration, sourceBits)
	}
	for k, v := range indices {
		if v < 0 || v >= sourceBits {
			return nil, fmt.Errorf("%w: entry %d is %d, source has %d bits", bitops.ErrIndex, k, v, sourceBits)
		}
	}

	t := &Table{idx: make([]int, len(indices)), src: sourceBits}
	copy(t.idx, indices)
	return t, nil
}

// Named is New with a name that is carried into error messages and String.
func Named(name string, indices []int, sourceBits int) (*Table, error) {
	t, err := New(indices, sourceBits)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	t.name = name
	return t, nil
}

// Identity returns the table mapping n bits onto themselves.
func Identity(n int) *Table {
	t := &Table{idx: make([]int, n), src: n}
	for i := range t.idx {
		t.idx[i] = i
	}
	return t
}

// Len returns the destination width.
func (t *Table) Len() int {
	return len(t.idx)
}

// SourceBits returns the source width the table was validated against.
func (t *Table) SourceBits() int {
	return t.src
}

// Name returns the name given to Named, or "".
func (t *Table) Name() string {
	return t.name
}

// Indices returns a copy of the table entries.
func (t *Table) Indices() []int {
	out := make([]int, len(t.idx))
	copy(out, t.idx)
	return out
}

// IsBijection reports whether the table is a true permutation: as wide as
// its source, with every source bit used exactly once.
func (t *Table) IsBijection() bool {
	if len(t.idx) != t.src {
		return false
	}
	seen := make([]bool, t.src)
	for _, v := range t.idx {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}

// Inverse returns the table undoing t.  Only bijections have one.
func (t *Table) Inverse() (*Table, error) {
	if !t.IsBijection() {
		return nil, fmt.Errorf("%w: %s is not a bijection", cryptors.ErrConfiguration, t.label())
	}
	inv := &Table{idx: make([]int, len(t.idx)), src: t.src}
	for k, v := range t.idx {
		inv.idx[v] = k
	}
	if t.name != "" {
		inv.name = t.name + "^-1"
	}
	return inv, nil
}

func (t *Table) label() string {
	if t.name == "" {
		return "permutation table"
	}
	return t.name
}

// Apply gathers src through t into a new buffer of t.Len() bits that shares
// the granularity and allocator of src.
func (t *Table) Apply(src *bitops.Buffer) (*bitops.Buffer, error) {
	if src.Len() != t.src {
		return nil, fmt.Errorf("%w: %s expects %d source bits, got %d",
			cryptors.ErrConfiguration, t.label(), t.src, src.Len())
	}
	dest, err := src.Factory().New(len(t.idx))
	if err != nil {
		return nil, err
	}
	if err := gather(dest, src, t.idx); err != nil {
		dest.Release()
		return nil, err
	}
	return dest, nil
}

// gather packs eight destination bits at a time, most significant first.
func gather(dest, src *bitops.Buffer, idx []int) error {
	n := len(idx)
	for k := 0; k < n; k += 8 {
		j := 8
		if n-k < j {
			j = n - k
		}
		var x uint32
		for _, r := range idx[k : k+j] {
			x = x<<1 | uint32(src.At(r))
		}
		if err := dest.WriteRange(k, k+j, x); err != nil {
			return err
		}
	}
	return nil
}

// Permute is the one-shot form of New(table, src.Len()).Apply(src) that also
// checks the table against the requested destination width.
func Permute(src *bitops.Buffer, destBits int, table []int) (*bitops.Buffer, error) {
	if len(table) != destBits {
		return nil, fmt.Errorf("%w: table has %d entries for %d destination bits",
			cryptors.ErrConfiguration, len(table), destBits)
	}
	t, err := New(table, src.Len())
	if err != nil {
		return nil, err
	}
	return t.Apply(src)
}

// String dumps the table as a Go literal, sixteen entries per line.
func (t *Table) String() string {
	var output bytes.Buffer
	if t.name != "" {
		output.WriteString(fmt.Sprintf("\t%s", t.name))
	}
	output.WriteString(fmt.Sprintf("\t[%d]int{ // %d source bits\n", len(t.idx), t.src))

	for i := 0; i < len(t.idx); i += 16 {
		end := i + 16
		if end > len(t.idx) {
			end = len(t.idx)
		}
		output.WriteString("\t\t")
		for _, k := range t.idx[i:end] {
			output.WriteString(fmt.Sprintf("%d, ", k))
		}
		output.WriteString("\n")
	}

	output.WriteString("\t}")
	return output.String()
}
