package kern

import "reflect"

// Segment selectors stored in the pre-built IRET frames; only dumps look
// at them, but keeping them consistent with the privilege bits makes the
// dumps read like the real thing.
const (
	selCodeSys  = 0x08
	selCodeUser = 0x1b
	selDataUser = 0x23
)

// bitIF is the interrupt-enable flag in RFLAGS.
const bitIF = 1 << 9

// allocProcID assigns a free process id to p. The search is cyclic
// first-fit starting after the last id handed out, so ids are reused as
// late as possible — a small kindness to anyone debugging a multi-process
// program.
func (m *Machine) allocProcID(p *Proc) uint32 {
	scan := m.nextID
	found := InvalidID
	for {
		if m.procTable[scan] == nil {
			found = scan
			m.procTable[found] = p
		}
		scan = (scan + 1) % MaxProc
		if found != InvalidID || scan == m.nextID {
			break
		}
	}
	m.nextID = scan
	return found
}

// releaseProcID frees an id. Freeing an id that is out of range or not
// allocated is a kernel fault.
func (m *Machine) releaseProcID(id uint16) {
	if uint32(id) > MaxProcID {
		kpanicf("invalid process id %d (max %d)", id, MaxProcID)
	}
	if m.procTable[id] == nil {
		kpanicf("release of unallocated process id %d", id)
	}
	m.procTable[id] = nil
}

// procByID returns the descriptor for id, nil when the slot is free.
func (m *Machine) procByID(id uint16) *Proc {
	if uint32(id) > MaxProcID {
		kpanicf("invalid process id %d (max %d)", id, MaxProcID)
	}
	return m.procTable[id]
}

// initRootTab seeds a fresh root table with the shared parts of the
// current address space; the sub-trees end up physically shared between
// all processes.
func (m *Machine) initRootTab(dest PAddr) {
	src := m.running.root
	m.mem.copyRootRange(src, dest, iSysShared, nSysShared)
	m.mem.copyRootRange(src, dest, iIOShared, nIOShared)
	m.mem.copyRootRange(src, dest, iUsrShared, nUsrShared)
}

// clearRootTab undoes initRootTab, bringing the root's valid-entry count
// back down so the table can be released.
func (m *Machine) clearRootTab(dest PAddr) {
	m.mem.clearRootRange(dest, iSysShared, nSysShared)
	m.mem.clearRootRange(dest, iIOShared, nIOShared)
	m.mem.clearRootRange(dest, iUsrShared, nUsrShared)
}

// createStack maps a stack of the given size ending at bottom.
func (m *Machine) createStack(root PAddr, bottom VAddr, size uint64, liv Level) bool {
	var flags uint64 = bitRW
	if liv == LevelUser {
		flags |= bitUS
	}
	v := m.mem.mapRange(root, bottom-VAddr(size), bottom, flags,
		func(VAddr) PAddr { return m.mem.AllocFrame() })
	if v != bottom {
		m.mem.unmapRange(root, bottom-VAddr(size), v,
			func(_ VAddr, f PAddr, _ int) { m.mem.FreeFrame(f) })
		return false
	}
	return true
}

// destroyStack unmaps a stack, returning its frames and emptied tables.
func (m *Machine) destroyStack(root PAddr, bottom VAddr, size uint64) {
	m.mem.unmapRange(root, bottom-VAddr(size), bottom,
		func(_ VAddr, f PAddr, _ int) { m.mem.FreeFrame(f) })
}

// entryPC derives a stable pseudo program counter for a body function, so
// that dumps and logs can show where a process starts.
func entryPC(f Body) uint64 {
	return uint64(reflect.ValueOf(f).Pointer())
}

// createProc builds everything a new process needs: descriptor, id, root
// table seeded with the shared parts, kernel stack pre-loaded with the
// first IRET frame and, for user processes, the user stack. On any failure
// it unwinds in reverse order and returns nil.
func (m *Machine) createProc(f Body, a uint64, prio uint32, liv Level) *Proc {
	heapAddr := m.heap.Alloc(procDescBytes)
	if heapAddr == 0 {
		return nil
	}
	p := &Proc{
		prio:      prio,
		barrierID: InvalidID,
		body:      f,
		arg:       a,
		heapAddr:  PAddr(heapAddr),
		resume:    make(chan struct{}, 1),
	}
	// the first argument register carries the body's parameter
	p.context[iRDI] = a

	id := m.allocProcID(p)
	if id == InvalidID {
		m.heap.Free(heapAddr)
		return nil
	}
	p.id = uint16(id)

	p.root = m.mem.allocTable()
	if p.root == 0 {
		m.releaseProcID(p.id)
		m.heap.Free(heapAddr)
		return nil
	}
	m.initRootTab(p.root)

	if !m.createStack(p.root, finSysPrivate, SysStackSize, LevelSystem) {
		m.clearRootTab(p.root)
		m.mem.releaseTable(p.root)
		m.releaseProcID(p.id)
		m.heap.Free(heapAddr)
		return nil
	}

	// The new stack's virtual address would resolve through the current
	// process's trie, not the new one, so we translate through the new
	// root and write via the physical-memory window.
	stackTop := m.mem.translate(p.root, finSysPrivate-PageSize) + PageSize
	word := func(n int, v uint64) { m.mem.write64(stackTop-PAddr(8*n), v) }

	if liv == LevelUser {
		// five words: the first IRET lands in f, on the user stack, at
		// user level, with interrupts enabled
		word(5, entryPC(f))
		word(4, selCodeUser)
		word(3, bitIF)
		word(2, uint64(finUsrPrivate)-8)
		word(1, selDataUser)

		if !m.createStack(p.root, finUsrPrivate, UsrStackSize, LevelUser) {
			m.flog(LogWarn, "user stack creation failed")
			m.destroyStack(p.root, finSysPrivate, SysStackSize)
			m.clearRootTab(p.root)
			m.mem.releaseTable(p.root)
			m.releaseProcID(p.id)
			m.heap.Free(heapAddr)
			return nil
		}
		p.context[iRSP] = uint64(finSysPrivate) - 5*8
		p.level = LevelUser
	} else {
		// six words: system processes never leave system level and keep
		// using the kernel stack
		word(6, entryPC(f))
		word(5, selCodeSys)
		word(4, bitIF)
		word(3, uint64(finSysPrivate)-8)
		word(2, 0)
		word(1, 0)
		p.context[iRSP] = uint64(finSysPrivate) - 6*8
		p.level = LevelSystem
	}
	p.kernStack = finSysPrivate
	return p
}

// destroyProc releases everything createProc built. When the process being
// destroyed is the one whose kernel stack is currently in use, the stack
// and the root table survive until the switch to the next process has
// completed; afterSwitch finishes the job.
func (m *Machine) destroyProc(p *Proc) {
	root := p.root
	if p.level == LevelUser {
		m.destroyStack(root, finUsrPrivate, UsrStackSize)
	}
	m.lastTerminated = root
	if p != m.prevRunning {
		m.destroyPrevStack()
	}
	m.releaseProcID(p.id)
	m.heap.Free(uint64(p.heapAddr))
	p.dead = true
}

// destroyPrevStack tears down the kernel stack and root table latched in
// lastTerminated. destroyProc already removed every other translation, so
// after clearing the shared entries the root can be released too.
func (m *Machine) destroyPrevStack() {
	m.destroyStack(m.lastTerminated, finSysPrivate, SysStackSize)
	m.clearRootTab(m.lastTerminated)
	m.mem.releaseTable(m.lastTerminated)
	m.lastTerminated = 0
}

// activateP is the common part of the ActivateP primitive.
func (m *Machine) activateP(callerLevel Level, f Body, a uint64, prio uint32, liv Level) {
	self := m.running
	self.context[iRAX] = uint64(InvalidID)

	// a primitive must never trust its parameters
	if prio < MinPriority || prio > self.prio {
		m.flog(LogWarn, "invalid priority: %d", prio)
		m.abortSelf(true)
		return
	}
	if liv != LevelUser && liv != LevelSystem {
		m.flog(LogWarn, "invalid level: %d", liv)
		m.abortSelf(true)
		return
	}
	if liv == LevelSystem && callerLevel == LevelUser {
		m.flog(LogWarn, "protection violation")
		m.abortSelf(true)
		return
	}

	p := m.createProc(f, a, prio, liv)
	if p != nil {
		m.ready.insert(p)
		m.procCount++
		m.flog(LogInfo, "proc=%d entry=%#x(%d) prio=%d liv=%s", p.id, entryPC(f), a, prio, liv)
		m.event("create")
		self.context[iRAX] = uint64(p.id)
	}
}

// terminate destroys the running process and schedules the next one. It
// does not return to the caller's goroutine.
func (m *Machine) terminate(self *Proc, logmsg bool) {
	if logmsg {
		m.flog(LogInfo, "process %d terminated", self.id)
	}
	m.event("terminate")
	m.destroyProc(self)
	m.procCount--
	m.schedule()
	m.reschedule(self)
}

// abortSelf terminates the running process flagging an error; a state dump
// goes to the log first unless one was already produced. It does not
// return.
func (m *Machine) abortSelf(selfdump bool) {
	self := m.running
	if selfdump {
		m.processDump(self, LogWarn)
	}
	m.flog(LogWarn, "process %d aborted", self.id)
	m.event("abort")
	m.terminate(self, false)
}
