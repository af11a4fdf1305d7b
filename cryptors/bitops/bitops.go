// Package bitops implements a packed bit buffer addressed most significant
// bit first: bit 0 of a buffer is the top bit of its first byte.
package bitops

// The helpers in this file operate on raw storage and perform no bounds
// checks beyond the ones Go does for slice indexing.  Callers validate bit
// offsets before reaching them.

// getBit returns bit i of ary as 0 or 1.
func getBit(ary []byte, i int) byte {
	return (ary[i>>3] >> (7 - uint(i&7))) & 1
}

func setBit(ary []byte, i int) {
	ary[i>>3] |= 0x80 >> uint(i&7)
}

func clrBit(ary []byte, i int) {
	ary[i>>3] &^= 0x80 >> uint(i&7)
}

// readBits returns n (1..8) bits starting at bit off, right aligned.
func readBits(ary []byte, off, n int) byte {
	idx, sh := off>>3, uint(off&7)
	w := uint16(ary[idx]) << 8
	if int(sh)+n > 8 {
		w |= uint16(ary[idx+1])
	}
	return byte((w << sh) >> (16 - uint(n)))
}

// writeBits stores the low n (1..8) bits of v at bit off.  Bits outside
// [off, off+n) are preserved.
func writeBits(ary []byte, off, n int, v byte) {
	idx, sh := off>>3, uint(off&7)
	pos := 16 - uint(n) - sh
	m := uint16(1<<uint(n)-1) << pos
	w := (uint16(v) << pos) & m
	ary[idx] = ary[idx]&^byte(m>>8) | byte(w>>8)
	if int(sh)+n > 8 {
		ary[idx+1] = ary[idx+1]&^byte(m) | byte(w)
	}
}

// copyBits copies n bits from src starting at srcOff into dst starting at
// dstOff.  src and dst must not overlap.
func copyBits(dst []byte, dstOff int, src []byte, srcOff, n int) {
	if dstOff&7 == 0 && srcOff&7 == 0 {
		full := n >> 3
		copy(dst[dstOff>>3:], src[srcOff>>3:(srcOff>>3)+full])
		dstOff += full << 3
		srcOff += full << 3
		n -= full << 3
	}

	for n > 0 {
		k := 8
		if n < k {
			k = n
		}
		writeBits(dst, dstOff, k, readBits(src, srcOff, k))
		dstOff += k
		srcOff += k
		n -= k
	}
}

// tailMask returns the mask selecting the valid bits of the last byte of a
// bits long sequence.  A sequence ending on a byte boundary yields 0xff.
func tailMask(bits int) byte {
	if r := bits & 7; r != 0 {
		return 0xff << uint(8-r)
	}
	return 0xff
}

// validBytes is ceil(bits/8).
func validBytes(bits int) int {
	if bits == 0 {
		return 0
	}
	return ((bits - 1) >> 3) + 1
}

// Capacity returns the storage size in bytes of a bits long buffer with
// granularity g.  The zero check comes first: (bits-1) must never be
// evaluated for an empty buffer.
func Capacity(bits int, g Granularity) int {
	if bits == 0 {
		return 0
	}
	if g == WordGranular {
		return (((bits - 1) >> 6) + 1) << 3
	}
	return ((bits - 1) >> 3) + 1
}
