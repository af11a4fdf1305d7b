package bitops

import (
	"fmt"
	"sync"
)

// Allocator supplies and reclaims buffer storage.  Alloc must return a
// zeroed slice of exactly size bytes.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Release(buf []byte)
}

// HeapAllocator allocates from the Go heap.  A positive Limit caps the size
// of a single allocation.
type HeapAllocator struct {
	Limit int
}

func (h HeapAllocator) Alloc(size int) ([]byte, error) {
	if size < 0 || (h.Limit > 0 && size > h.Limit) {
		return nil, fmt.Errorf("%w: %d bytes requested, limit %d", ErrAllocation, size, h.Limit)
	}
	return make([]byte, size), nil
}

// Release is a no-op; the garbage collector reclaims heap storage.
func (HeapAllocator) Release([]byte) {}

// PoolAllocator recycles storage of one fixed size class through a
// sync.Pool and falls back to the heap for every other size.
type PoolAllocator struct {
	pool sync.Pool
	size int
}

// NewPoolAllocator creates a pool handing out size byte buffers.
func NewPoolAllocator(size int) *PoolAllocator {
	return &PoolAllocator{
		pool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
		size: size,
	}
}

func (p *PoolAllocator) Alloc(size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("%w: %d bytes requested", ErrAllocation, size)
	}
	if size != p.size {
		return make([]byte, size), nil
	}
	buf := *(p.pool.Get().(*[]byte))
	buf = buf[:p.size]
	for i := range buf {
		buf[i] = 0
	}
	return buf, nil
}

// Release returns buf to the pool when it belongs to the pool's size class.
func (p *PoolAllocator) Release(buf []byte) {
	if buf == nil || cap(buf) < p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

// Size returns the size class served by the pool.
func (p *PoolAllocator) Size() int {
	return p.size
}
