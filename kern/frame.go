package kern

import "encoding/binary"

// frameDesc describes one physical frame. A frame is either on the free
// list (nextFree holds the index of the next free frame, 0 terminates the
// list) or it holds a page table (validEntries counts the present entries
// of that table). The two uses never overlap.
type frameDesc struct {
	nextFree     uint64
	validEntries uint16
}

// Mem is the simulated physical memory together with its frame
// descriptors. Frames below nM1 belong to the kernel image and heap (M1)
// and are never on the free list; the rest (M2) form the general-purpose
// frame pool.
type Mem struct {
	data   []byte
	frames []frameDesc

	nM1       uint64
	nM2       uint64
	firstFree uint64
	numFree   uint64
}

// NewMem builds the simulated memory and the free-frame list. Frames past
// endOfKernel (rounded up to a page boundary) form M2. A stride > 1 splits
// the list into stride interleaved runs threaded back to back, which is
// used to stress-test non-contiguous mappings.
func NewMem(total uint64, endOfKernel PAddr, stride int) *Mem {
	if stride < 1 {
		stride = 1
	}
	nFrame := total / PageSize
	mm := &Mem{
		data:   make([]byte, total),
		frames: make([]frameDesc, nFrame),
	}
	mm.nM1 = (uint64(endOfKernel) + PageSize - 1) / PageSize
	mm.nM2 = nFrame - mm.nM1

	if mm.nM2 == 0 {
		return mm
	}

	first := mm.nM1
	mm.firstFree = first
	var last uint64
	for j := uint64(0); j < uint64(stride); j++ {
		for i := j; i < mm.nM2; i += uint64(stride) {
			mm.frames[first+i].nextFree = first + i + uint64(stride)
			mm.numFree++
			last = i
		}
		mm.frames[first+last].nextFree = first + j + 1
	}
	mm.frames[first+last].nextFree = 0
	return mm
}

// FreeFrames returns the number of frames currently on the free list.
func (mm *Mem) FreeFrames() uint64 { return mm.numFree }

// M1Frames returns the number of frames reserved for the kernel image.
func (mm *Mem) M1Frames() uint64 { return mm.nM1 }

// M2Frames returns the number of general-purpose frames.
func (mm *Mem) M2Frames() uint64 { return mm.nM2 }

// AllocFrame pops a frame from the free list. It returns 0 when the list
// is empty; 0 is never a valid M2 frame because frame 0 always belongs to
// M1.
func (mm *Mem) AllocFrame() PAddr {
	if mm.numFree == 0 {
		return 0
	}
	j := mm.firstFree
	mm.firstFree = mm.frames[j].nextFree
	mm.frames[j].nextFree = 0
	mm.numFree--
	return PAddr(j * PageSize)
}

// FreeFrame pushes a frame back on the free list. Releasing an M1 frame is
// a kernel fault.
func (mm *Mem) FreeFrame(f PAddr) {
	j := uint64(f) / PageSize
	if j < mm.nM1 {
		kpanicf("release of M1 frame %#x", uint64(f))
	}
	mm.frames[j].nextFree = mm.firstFree
	mm.firstFree = j
	mm.numFree++
}

// ReadPhys copies from physical memory into b.
func (mm *Mem) ReadPhys(a PAddr, b []byte) {
	copy(b, mm.data[a:])
}

// WritePhys copies b into physical memory.
func (mm *Mem) WritePhys(a PAddr, b []byte) {
	copy(mm.data[a:], b)
}

func (mm *Mem) read64(a PAddr) uint64 {
	return binary.LittleEndian.Uint64(mm.data[a : a+8])
}

func (mm *Mem) write64(a PAddr, v uint64) {
	binary.LittleEndian.PutUint64(mm.data[a:a+8], v)
}
