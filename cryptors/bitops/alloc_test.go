package bitops

import (
	"errors"
	"testing"
)

type failingAllocator struct{}

func (failingAllocator) Alloc(int) ([]byte, error) { return nil, errors.New("out of memory") }
func (failingAllocator) Release([]byte)            {}

type shortAllocator struct{}

func (shortAllocator) Alloc(size int) ([]byte, error) { return make([]byte, size-1), nil }
func (shortAllocator) Release([]byte)                 {}

func TestHeapAllocatorLimit(t *testing.T) {
	f := Factory{Allocator: HeapAllocator{Limit: 4}}
	if _, err := f.New(32); err != nil {
		t.Fatalf("New(32) under a 4 byte limit: %v", err)
	}
	if _, err := f.New(33); !errors.Is(err, ErrAllocation) {
		t.Errorf("New(33) error %v, want ErrAllocation", err)
	}

	w := Factory{Granularity: WordGranular, Allocator: HeapAllocator{Limit: 4}}
	if _, err := w.New(1); !errors.Is(err, ErrAllocation) {
		t.Errorf("word granular New(1) error %v, want ErrAllocation", err)
	}
}

func TestAllocatorErrorsAreWrapped(t *testing.T) {
	if _, err := (Factory{Allocator: failingAllocator{}}).New(8); !errors.Is(err, ErrAllocation) {
		t.Errorf("failing allocator: error %v, want ErrAllocation", err)
	}
	if _, err := (Factory{Allocator: shortAllocator{}}).New(16); !errors.Is(err, ErrAllocation) {
		t.Errorf("short allocator: error %v, want ErrAllocation", err)
	}
}

func TestAppendFailureLeavesBuffer(t *testing.T) {
	f := Factory{Allocator: HeapAllocator{Limit: 1}}
	a, err := f.FromBytes([]byte{0xA5}, 8)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := New(8, ByteGranular)
	if err := a.Append(b); !errors.Is(err, ErrAllocation) {
		t.Fatalf("Append error %v, want ErrAllocation", err)
	}
	if a.Len() != 8 || a.Bytes()[0] != 0xA5 {
		t.Errorf("failed Append changed the buffer to %v", a)
	}
}

func TestPoolAllocator(t *testing.T) {
	p := NewPoolAllocator(8)
	if p.Size() != 8 {
		t.Fatalf("Size() = %d, want 8", p.Size())
	}
	f := Factory{Granularity: WordGranular, Allocator: p}

	for i := 0; i < 4; i++ {
		b, err := f.New(64)
		if err != nil {
			t.Fatal(err)
		}
		if b.Cap() != 8 {
			t.Fatalf("pooled buffer Cap %d, want 8", b.Cap())
		}
		for j := 0; j < 64; j++ {
			if b.At(j) != 0 {
				t.Fatalf("pass %d: recycled buffer not zeroed at bit %d", i, j)
			}
		}
		b.WriteRange(0, 32, 0xDEADBEEF)
		b.Release()
	}

	other, err := p.Alloc(3)
	if err != nil || len(other) != 3 {
		t.Errorf("Alloc(3) = %d bytes, %v", len(other), err)
	}
	if _, err := p.Alloc(-1); !errors.Is(err, ErrAllocation) {
		t.Errorf("Alloc(-1) error %v, want ErrAllocation", err)
	}
}
