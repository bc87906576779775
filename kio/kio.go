// kio is the IO module of the kmux machine: the console (keyboard +
// video) and the ATA disk, exposed to user processes as primitives behind
// gates. Its code runs with interrupts enabled, so the IO heap is guarded
// by a mutex semaphore, and every primitive that consumes a user pointer
// validates it with Access before touching it.
package kio

import (
	"github.com/arctir/kmux/hw"
	"github.com/arctir/kmux/kern"
)

// APIC pins of the devices this module drives.
const (
	kbdIRQ = 1
	hdIRQ  = 14
)

// IO is one instance of the module, bound to its devices.
type IO struct {
	kbd  *hw.Keyboard
	vid  *hw.Video
	disk *hw.Disk
	bm   *hw.BusMaster

	heap      *kern.Heap
	heapMutex uint32

	console consoleDesc
	ata     ataDesc

	// PRD table for bus-master transfers, allocated from the IO heap
	prd kern.VAddr
}

// New returns an IO module driving the given devices. The bus master is
// attached separately because it needs the machine's physical memory,
// which exists only once the machine is built.
func New(kbd *hw.Keyboard, vid *hw.Video, disk *hw.Disk) *IO {
	return &IO{kbd: kbd, vid: vid, disk: disk}
}

// SetBusMaster wires the DMA engine; call before the machine runs.
func (io *IO) SetBusMaster(bm *hw.BusMaster) {
	io.bm = bm
}

// Module packages the IO module for the boot loader: a small writable
// image in io/shared plus the IO heap after it.
func (io *IO) Module() kern.Module {
	return kern.Module{
		Entry: io.Main,
		Segments: []kern.Segment{
			{VAddr: kern.IOSharedBase(), MemSize: 4 * kern.PageSize, Writable: true},
		},
		HeapSize: kern.IOHeapSize,
	}
}

// Main is the body of the IO main process. The kernel passes the index of
// a synchronization semaphore; signalling it tells the kernel the module
// is up.
func (io *IO) Main(s *kern.Sys, semIO uint64) {
	io.fillIOGates(s)

	io.heapMutex = s.SemInit(1)
	if io.heapMutex == kern.InvalidID {
		s.Flog(kern.LogErr, "cannot create the IO heap mutex")
		s.IOPanic()
	}
	io.heap = kern.NewHeap(uint64(s.IOHeapBase()), kern.IOHeapSize)
	s.Flog(kern.LogInfo, "IO heap: %dB at %x", kern.IOHeapSize, uint64(s.IOHeapBase()))

	s.Flog(kern.LogInfo, "initializing the console (kbd + vid)")
	if !io.consoleInit(s) {
		s.Flog(kern.LogErr, "console initialization failed")
		s.IOPanic()
	}
	s.Flog(kern.LogInfo, "initializing the hard disk")
	if !io.hdInit(s) {
		s.Flog(kern.LogErr, "hard disk initialization failed")
		s.IOPanic()
	}
	s.SemSignal(uint32(semIO))
	s.TerminateP()
}

// fillIOGates installs every primitive this module provides.
func (io *IO) fillIOGates(s *kern.Sys) {
	gates := []struct {
		tipo uint8
		fn   kern.GateFn
	}{
		{kern.IOTypeHDR, io.readHDN},
		{kern.IOTypeHDW, io.writeHDN},
		{kern.IOTypeDMAHDR, io.dmaReadHDN},
		{kern.IOTypeDMAHDW, io.dmaWriteHDN},
		{kern.IOTypeRCon, io.readConsole},
		{kern.IOTypeWCon, io.writeConsole},
		{kern.IOTypeIniC, io.iniConsole},
		{kern.IOTypeGMI, io.getIOMemInfo},
	}
	for _, g := range gates {
		if !s.FillGate(g.tipo, g.fn) {
			s.IOPanic()
		}
	}
}

// alloc carves n bytes out of the IO heap under its mutex.
func (io *IO) alloc(s *kern.Sys, n uint64) kern.VAddr {
	s.SemWait(io.heapMutex)
	a := io.heap.Alloc(n)
	s.SemSignal(io.heapMutex)
	return kern.VAddr(a)
}

// getIOMemInfo reports the free bytes in the IO heap.
func (io *IO) getIOMemInfo(s *kern.Sys, _, _, _ uint64) uint64 {
	s.SemWait(io.heapMutex)
	rv := io.heap.Avail()
	s.SemSignal(io.heapMutex)
	return rv
}
