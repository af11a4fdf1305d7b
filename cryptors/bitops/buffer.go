package bitops

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Granularity is the unit, in bytes, to which buffer storage is rounded.
type Granularity int

const (
	// ByteGranular rounds storage up to whole bytes.
	ByteGranular Granularity = 1
	// WordGranular rounds storage up to whole 64-bit words, which enables
	// the word-wide xor and rotation paths.
	WordGranular Granularity = 8
)

func (g Granularity) String() string {
	switch g {
	case WordGranular:
		return "word"
	default:
		return "byte"
	}
}

// Factory builds buffers with a chosen granularity and allocator.  The zero
// Factory builds byte granular buffers on the heap.
type Factory struct {
	Granularity Granularity
	Allocator   Allocator
}

func (f Factory) granularity() Granularity {
	if f.Granularity == WordGranular {
		return WordGranular
	}
	return ByteGranular
}

func (f Factory) allocator() Allocator {
	if f.Allocator == nil {
		return HeapAllocator{}
	}
	return f.Allocator
}

// New returns a zeroed buffer holding bits bits.  A zero length buffer has
// no storage at all.
func (f Factory) New(bits int) (*Buffer, error) {
	if bits < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrIndex, bits)
	}

	b := &Buffer{bits: bits, gran: f.granularity(), alloc: f.allocator()}
	size := Capacity(bits, b.gran)
	if size == 0 {
		return b, nil
	}

	data, err := b.alloc.Alloc(size)
	if err != nil {
		if !errors.Is(err, ErrAllocation) {
			err = fmt.Errorf("%w: %v", ErrAllocation, err)
		}
		return nil, err
	}
	if len(data) != size {
		return nil, fmt.Errorf("%w: allocator returned %d bytes, want %d", ErrAllocation, len(data), size)
	}
	b.data = data
	return b, nil
}

// FromBytes returns a buffer of bits bits initialised from the first
// ceil(bits/8) bytes of src.  The bytes are copied verbatim, so bits past
// the end of the sequence keep whatever value src had there.
func (f Factory) FromBytes(src []byte, bits int) (*Buffer, error) {
	if n := validBytes(bits); len(src) < n {
		return nil, fmt.Errorf("%w: %d bits need %d bytes, source has %d", ErrIndex, bits, n, len(src))
	}

	b, err := f.New(bits)
	if err != nil {
		return nil, err
	}
	copy(b.data, src[:validBytes(bits)])
	return b, nil
}

// New returns a zeroed heap buffer of bits bits with granularity g.
func New(bits int, g Granularity) (*Buffer, error) {
	return Factory{Granularity: g}.New(bits)
}

// FromBytes returns a heap buffer of bits bits copied from src.
func FromBytes(src []byte, bits int, g Granularity) (*Buffer, error) {
	return Factory{Granularity: g}.FromBytes(src, bits)
}

// Buffer is a fixed length sequence of bits packed into exclusively owned
// storage.  Bit 0 is the most significant bit of byte 0.
//
// A Buffer is not safe for concurrent mutation.  Concurrent readers are
// fine as long as nobody writes.
type Buffer struct {
	bits  int
	gran  Granularity
	data  []byte
	alloc Allocator
}

// Len returns the number of valid bits.
func (b *Buffer) Len() int {
	return b.bits
}

// Cap returns the allocated storage in bytes.
func (b *Buffer) Cap() int {
	return len(b.data)
}

func (b *Buffer) Granularity() Granularity {
	return b.gran
}

// Factory returns a factory producing buffers like b.
func (b *Buffer) Factory() Factory {
	return Factory{Granularity: b.gran, Allocator: b.alloc}
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() (*Buffer, error) {
	out, err := b.Factory().New(b.bits)
	if err != nil {
		return nil, err
	}
	copy(out.data, b.data)
	return out, nil
}

// Move transfers the storage of b to a new Buffer and leaves b empty.
func (b *Buffer) Move() *Buffer {
	out := *b
	*b = Buffer{gran: b.gran, alloc: b.alloc}
	return &out
}

// Release hands the storage back to its allocator and empties b.
func (b *Buffer) Release() {
	if b.data != nil {
		b.alloc.Release(b.data)
	}
	b.data = nil
	b.bits = 0
}

func (b *Buffer) checkRange(begin, end int) error {
	if begin < 0 || end < begin || end > b.bits {
		return fmt.Errorf("%w: range [%d, %d) of %d bits", ErrIndex, begin, end, b.bits)
	}
	return nil
}

// Bit returns the value of bit i.
func (b *Buffer) Bit(i int) (byte, error) {
	if i < 0 || i >= b.bits {
		return 0, fmt.Errorf("%w: bit %d of %d", ErrIndex, i, b.bits)
	}
	return getBit(b.data, i), nil
}

// At returns bit i without validating it against Len.  The caller
// guarantees 0 <= i < Len().
func (b *Buffer) At(i int) byte {
	return getBit(b.data, i)
}

// SetBit sets bit i to 1 when v is non-zero and to 0 otherwise.
func (b *Buffer) SetBit(i int, v byte) error {
	if i < 0 || i >= b.bits {
		return fmt.Errorf("%w: bit %d of %d", ErrIndex, i, b.bits)
	}
	if v != 0 {
		setBit(b.data, i)
	} else {
		clrBit(b.data, i)
	}
	return nil
}

// Range returns bits [begin, end) as an unsigned integer, most significant
// bit first.  At most 32 bits can be extracted.
func (b *Buffer) Range(begin, end int) (uint32, error) {
	if err := b.checkRange(begin, end); err != nil {
		return 0, err
	}
	if end-begin > 32 {
		return 0, fmt.Errorf("%w: range [%d, %d) wider than 32 bits", ErrIndex, begin, end)
	}

	var out uint32
	for n := end - begin; n > 0; {
		k := 8
		if n < k {
			k = n
		}
		out = out<<uint(k) | uint32(readBits(b.data, begin, k))
		begin += k
		n -= k
	}
	return out, nil
}

// WriteRange stores the low end-begin bits of v into bits [begin, end).
func (b *Buffer) WriteRange(begin, end int, v uint32) error {
	if err := b.checkRange(begin, end); err != nil {
		return err
	}
	if end-begin > 32 {
		return fmt.Errorf("%w: range [%d, %d) wider than 32 bits", ErrIndex, begin, end)
	}

	for n := end - begin; n > 0; {
		k := 8
		if n < k {
			k = n
		}
		writeBits(b.data, begin, k, byte(v>>uint(n-k)))
		begin += k
		n -= k
	}
	return nil
}

// Equal reports whether b and other hold the same bit sequence.  Padding
// bits are never compared.
func (b *Buffer) Equal(other *Buffer) bool {
	if other == nil || b.bits != other.bits {
		return false
	}
	full := b.bits >> 3
	if !bytes.Equal(b.data[:full], other.data[:full]) {
		return false
	}
	if b.bits&7 != 0 {
		return (b.data[full]^other.data[full])&tailMask(b.bits) == 0
	}
	return true
}

// XorInPlace xors the first min(Len, other.Len) bits of other into b and
// returns b.
func (b *Buffer) XorInPlace(other *Buffer) *Buffer {
	n := b.bits
	if other.bits < n {
		n = other.bits
	}
	if n == 0 {
		return b
	}

	full := n >> 3
	i := 0
	if b.gran == WordGranular && other.gran == WordGranular {
		for ; i+8 <= full; i += 8 {
			w := binary.BigEndian.Uint64(b.data[i:]) ^ binary.BigEndian.Uint64(other.data[i:])
			binary.BigEndian.PutUint64(b.data[i:], w)
		}
	}
	for ; i < full; i++ {
		b.data[i] ^= other.data[i]
	}
	if n&7 != 0 {
		b.data[full] ^= other.data[full] & tailMask(n)
	}
	return b
}

// Xor returns a new buffer holding b xor other.
func (b *Buffer) Xor(other *Buffer) (*Buffer, error) {
	out, err := b.Clone()
	if err != nil {
		return nil, err
	}
	return out.XorInPlace(other), nil
}

func (b *Buffer) normalize(offset int) int {
	s := offset % b.bits
	if s < 0 {
		s += b.bits
	}
	return s
}

// RotateLeft circularly shifts the Len bits of b left by offset positions
// and returns b.  Negative offsets rotate right.
func (b *Buffer) RotateLeft(offset int) *Buffer {
	n := b.bits
	if n == 0 {
		return b
	}
	s := b.normalize(offset)
	if s == 0 {
		return b
	}

	if b.gran == WordGranular && n <= 64 {
		mask := ^uint64(0) << uint(64-n)
		w := binary.BigEndian.Uint64(b.data) & mask
		w = (w<<uint(s) | w>>uint(n-s)) & mask
		binary.BigEndian.PutUint64(b.data, w)
		return b
	}

	var small [8]byte
	var tmp []byte
	nb := validBytes(n)
	if nb > len(small) {
		tmp = make([]byte, nb)
	} else {
		tmp = small[:nb]
	}
	copyBits(tmp, 0, b.data, s, n-s)
	copyBits(tmp, n-s, b.data, 0, s)

	m := tailMask(n)
	tmp[nb-1] = tmp[nb-1]&m | b.data[nb-1]&^m
	copy(b.data, tmp)
	return b
}

// RotateRight circularly shifts b right by offset positions.  It is exactly
// RotateLeft(Len - offset mod Len).
func (b *Buffer) RotateRight(offset int) *Buffer {
	if b.bits == 0 {
		return b
	}
	return b.RotateLeft(b.bits - b.normalize(offset))
}

// clearPadding zeroes every stored bit at or beyond Len.
func (b *Buffer) clearPadding() {
	nb := validBytes(b.bits)
	if nb > 0 {
		b.data[nb-1] &= tailMask(b.bits)
	}
	for i := nb; i < len(b.data); i++ {
		b.data[i] = 0
	}
}

// Slice returns a copy of n bits starting byteOffset bytes into b.
func (b *Buffer) Slice(n, byteOffset int) (*Buffer, error) {
	if n < 0 || byteOffset < 0 {
		return nil, fmt.Errorf("%w: slice of %d bits at byte %d", ErrIndex, n, byteOffset)
	}
	if err := b.checkRange(byteOffset<<3, byteOffset<<3+n); err != nil {
		return nil, err
	}

	out, err := b.Factory().New(n)
	if err != nil {
		return nil, err
	}
	copy(out.data, b.data[byteOffset:byteOffset+validBytes(n)])
	out.clearPadding()
	return out, nil
}

// SliceBits returns a copy of bits [begin, end).  Bits past the end of the
// copy are zero.
func (b *Buffer) SliceBits(begin, end int) (*Buffer, error) {
	if err := b.checkRange(begin, end); err != nil {
		return nil, err
	}

	out, err := b.Factory().New(end - begin)
	if err != nil {
		return nil, err
	}
	copyBits(out.data, 0, b.data, begin, end-begin)
	return out, nil
}

// Append concatenates other onto the end of b, growing storage through b's
// allocator when needed.  On error b is left unchanged.
func (b *Buffer) Append(other *Buffer) error {
	n := other.bits
	if n == 0 {
		return nil
	}

	need := Capacity(b.bits+n, b.gran)
	if need > len(b.data) {
		data, err := b.alloc.Alloc(need)
		if err != nil {
			if !errors.Is(err, ErrAllocation) {
				err = fmt.Errorf("%w: %v", ErrAllocation, err)
			}
			return err
		}
		copy(data, b.data)
		copyBits(data, b.bits, other.data, 0, n)
		if b.data != nil {
			b.alloc.Release(b.data)
		}
		b.data = data
	} else {
		copyBits(b.data, b.bits, other.data, 0, n)
	}

	b.bits += n
	b.clearPadding()
	return nil
}

// Merge returns a new buffer holding b followed by other.
func (b *Buffer) Merge(other *Buffer) (*Buffer, error) {
	out, err := b.Factory().New(b.bits + other.bits)
	if err != nil {
		return nil, err
	}
	copyBits(out.data, 0, b.data, 0, b.bits)
	copyBits(out.data, b.bits, other.data, 0, other.bits)
	return out, nil
}

// Bytes returns a copy of the ceil(Len/8) bytes holding the sequence with
// padding bits cleared.
func (b *Buffer) Bytes() []byte {
	nb := validBytes(b.bits)
	out := make([]byte, nb)
	copy(out, b.data[:nb])
	if nb > 0 {
		out[nb-1] &= tailMask(b.bits)
	}
	return out
}

func (b *Buffer) String() string {
	return fmt.Sprintf("%d:%x", b.bits, b.Bytes())
}
