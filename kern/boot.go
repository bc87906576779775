package kern

// The boot interface. A real boot loader would hand the kernel the loaded
// ELF images of the IO and user modules plus the first free physical
// address; here the images are pre-walked into Segment lists, and the
// kernel still performs the copy-on-load into fresh M2 frames, the shared
// mapping of the module sub-trees and the heap mapping past the image.

// Segment is one loadable piece of a module image.
type Segment struct {
	// VAddr is where the segment must become visible.
	VAddr VAddr
	// Data is the image content; the remainder up to MemSize is zero
	// filled.
	Data []byte
	// MemSize is the virtual size; at least len(Data).
	MemSize uint64
	// Writable sets the write bit on the mapping.
	Writable bool
}

// Module is one boot module: its entry point, its image and the size of
// the heap to map after the image.
type Module struct {
	Entry    Body
	Segments []Segment
	HeapSize uint64
}

// loadModule copies a module image into M2 frames page by page, maps it at
// its virtual addresses and maps the module heap after the last image
// address. It returns the heap base, or 0 on failure.
func (m *Machine) loadModule(mod Module, root PAddr, userVisible bool) VAddr {
	var base uint64
	if userVisible {
		base = bitUS
	}
	var lastVaddr VAddr
	for _, seg := range mod.Segments {
		begin := seg.VAddr &^ VAddr(PageSize-1)
		memsz := seg.MemSize
		if memsz < uint64(len(seg.Data)) {
			memsz = uint64(len(seg.Data))
		}
		end := (seg.VAddr + VAddr(memsz) + PageSize - 1) &^ VAddr(PageSize-1)
		if end > lastVaddr {
			lastVaddr = end
		}
		flags := base
		if seg.Writable {
			flags |= bitRW
		}
		data := seg.Data
		segBase := seg.VAddr
		get := func(v VAddr) PAddr {
			dst := m.mem.AllocFrame()
			if dst == 0 {
				return 0
			}
			page := make([]byte, PageSize)
			off := int64(v) - int64(segBase)
			for i := range page {
				if idx := off + int64(i); idx >= 0 && idx < int64(len(data)) {
					page[i] = data[idx]
				}
			}
			m.mem.WritePhys(dst, page)
			return dst
		}
		if m.mem.mapRange(root, begin, end, flags, get) != end {
			return 0
		}
		m.flog(LogInfo, " - segment %s %s mapped at [%16x, %16x)",
			visibility(userVisible), writability(seg.Writable), uint64(begin), uint64(end))
	}
	heapEnd := lastVaddr + VAddr(mod.HeapSize)
	if m.mem.mapRange(root, lastVaddr, heapEnd, base|bitRW,
		func(VAddr) PAddr { return m.mem.AllocFrame() }) != heapEnd {
		return 0
	}
	m.flog(LogInfo, " - heap: [%16x, %16x)", uint64(lastVaddr), uint64(heapEnd))
	return lastVaddr
}

func visibility(user bool) string {
	if user {
		return "user  "
	}
	return "system"
}

func writability(w bool) string {
	if w {
		return "read/write"
	}
	return "read-only "
}

// boot is the first half of the initialization: everything needed to
// create the first processes, ending with the hand-off to main-system.
func (m *Machine) boot() {
	m.initProc.id = 0xFFFF
	m.initProc.prio = MaxPriority
	m.initProc.resume = make(chan struct{}, 1)
	m.running = &m.initProc
	m.prevRunning = m.running

	m.flog(LogInfo, "kmux starting")
	m.flog(LogInfo, "kernel heap: [%x, %x)", uint64(kernHeapBase), uint64(kernImageEnd))
	m.flog(LogInfo, "frames: %d (M1) %d (M2)", m.mem.M1Frames(), m.mem.M2Frames())
	m.flog(LogInfo, "virtual memory parts:")
	m.flog(LogInfo, "- sys/shared  [%16x, %16x)", uint64(iniSysShared), uint64(finSysShared))
	m.flog(LogInfo, "- sys/private [%16x, %16x)", uint64(iniSysPrivate), uint64(finSysPrivate))
	m.flog(LogInfo, "- io /shared  [%16x, %16x)", uint64(iniIOShared), uint64(finIOShared))
	m.flog(LogInfo, "- usr/shared  [%16x, %16x)", uint64(iniUsrShared), uint64(finUsrShared))
	m.flog(LogInfo, "- usr/private [%16x, %16x)", uint64(iniUsrPrivate), uint64(finUsrPrivate))

	root := m.mem.allocTable()
	if root == 0 {
		kpanicf("cannot allocate the initial root table")
	}
	m.initProc.root = root

	// the physical-memory window: the whole of physical memory stays
	// visible in sys/shared, which every process inherits. Page 0 stays
	// unmapped.
	if m.mem.mapRange(root, PageSize, VAddr(uint64(len(m.mem.data))), bitRW,
		func(v VAddr) PAddr { return PAddr(v) }) != VAddr(uint64(len(m.mem.data))) {
		kpanicf("cannot map the physical-memory window")
	}

	if !m.createSharedSpace(root) {
		kpanicf("cannot create the shared address-space parts")
	}
	m.flog(LogInfo, "free frames after module load: %d", m.mem.FreeFrames())

	// the timer vector belongs to the boot-installed handler; nothing may
	// claim it through ActivatePE or FillGate
	m.gates[IntrTypeTimer].present = true

	dummy := m.createProc(m.dummyBody, 0, dummyPriority, LevelSystem)
	if dummy == nil {
		kpanicf("cannot create the dummy process")
	}
	m.ready.insert(dummy)
	m.flog(LogInfo, "dummy process created (id=%d)", dummy.id)

	ms := m.createProc(m.mainSystemBody, 0, MaxExtPrio, LevelSystem)
	if ms == nil {
		kpanicf("cannot create the main-system process")
	}
	m.ready.insert(ms)
	m.procCount++
	m.flog(LogInfo, "main-system process created (id=%d)", ms.id)

	m.flog(LogInfo, "handing control to main-system")
	m.schedule()
	m.dispatch(m.running)
}

// createSharedSpace loads the IO and user modules into the initial address
// space; their sub-trees are then shared by every process.
func (m *Machine) createSharedSpace(root PAddr) bool {
	m.flog(LogInfo, "mapping the IO module:")
	m.ioHeapBase = m.loadModule(m.ioModule, root, false)
	if m.ioHeapBase == 0 {
		return false
	}
	m.flog(LogInfo, "mapping the user module:")
	m.userHeapBase = m.loadModule(m.userModule, root, true)
	return m.userHeapBase != 0
}
