package kern

import "sort"

// Heap is a first-fit allocator over an address range. The kernel heap,
// the IO-module heap and the user-module heap are all instances; the
// latter two hand out virtual addresses in their module's part and are
// guarded by a mutex semaphore because the code using them runs with
// interrupts enabled.
type Heap struct {
	free      []span
	allocated map[uint64]uint64
	avail     uint64
}

type span struct {
	base, size uint64
}

const heapAlign = 16

// NewHeap returns a heap managing [base, base+size).
func NewHeap(base, size uint64) *Heap {
	h := &Heap{allocated: map[uint64]uint64{}}
	h.Add(base, size)
	return h
}

// Add donates the range [base, base+size) to the heap.
func (h *Heap) Add(base, size uint64) {
	if size == 0 {
		return
	}
	h.free = append(h.free, span{base, size})
	h.avail += size
	sort.Slice(h.free, func(i, j int) bool { return h.free[i].base < h.free[j].base })
	h.coalesce()
}

func (h *Heap) coalesce() {
	out := h.free[:0]
	for _, s := range h.free {
		if n := len(out); n > 0 && out[n-1].base+out[n-1].size == s.base {
			out[n-1].size += s.size
			continue
		}
		out = append(out, s)
	}
	h.free = out
}

// Alloc carves n bytes (rounded up to the allocation granule) out of the
// first span that fits. It returns 0 when no span fits.
func (h *Heap) Alloc(n uint64) uint64 {
	if n == 0 {
		n = heapAlign
	}
	n = (n + heapAlign - 1) &^ (heapAlign - 1)
	for i := range h.free {
		s := &h.free[i]
		if s.size < n {
			continue
		}
		a := s.base
		s.base += n
		s.size -= n
		if s.size == 0 {
			h.free = append(h.free[:i], h.free[i+1:]...)
		}
		h.allocated[a] = n
		h.avail -= n
		return a
	}
	return 0
}

// Free returns a previously allocated block to the heap. Freeing an
// address that was not handed out by Alloc is a kernel fault.
func (h *Heap) Free(a uint64) {
	n, ok := h.allocated[a]
	if !ok {
		kpanicf("heap free of unallocated address %#x", a)
	}
	delete(h.allocated, a)
	h.free = append(h.free, span{a, n})
	h.avail += n
	sort.Slice(h.free, func(i, j int) bool { return h.free[i].base < h.free[j].base })
	h.coalesce()
}

// Avail returns the number of free bytes.
func (h *Heap) Avail() uint64 { return h.avail }
