package kern

// Sys is the system-call interface handed to process bodies and to the IO
// module. It carries the privilege level of the invoking code: the same
// process runs its own body at its creation level but runs IO-module code
// at system level, and a few primitives (semaphore pool selection, buffer
// validation, protection checks) depend on which one is asking.
type Sys struct {
	m     *Machine
	level Level
}

// Level returns the privilege level this handle invokes primitives at.
func (s *Sys) Level() Level { return s.level }

// PID returns the id of the running process.
func (s *Sys) PID() uint16 { return s.m.running.id }

// Uptime returns the number of timer ticks elapsed since boot.
func (s *Sys) Uptime() uint64 { return s.m.tick }

// ActivateP creates a process running f(a) at the given priority and
// level and returns its id, or InvalidID on resource exhaustion. Passing a
// priority outside [MinPriority, caller's priority], an invalid level, or
// asking for a system process from user level aborts the caller.
func (s *Sys) ActivateP(f Body, a uint64, prio uint32, liv Level) uint32 {
	self := s.m.enter()
	s.m.activateP(s.level, f, a, prio, liv)
	s.m.reschedule(self)
	return uint32(self.context[iRAX])
}

// TerminateP destroys the calling process. It does not return.
func (s *Sys) TerminateP() {
	self := s.m.enter()
	s.m.terminate(self, true)
}

// SemInit allocates a semaphore with val initial tokens in the caller's
// pool and returns its id, or InvalidID when the pool is exhausted.
func (s *Sys) SemInit(val int) uint32 {
	self := s.m.enter()
	s.m.semInit(s.level, val)
	s.m.reschedule(self)
	return uint32(self.context[iRAX])
}

// SemWait takes a token from the semaphore, blocking when none is
// available. An invalid id aborts the caller.
func (s *Sys) SemWait(sem uint32) {
	self := s.m.enter()
	s.m.semWait(s.level, sem)
	s.m.reschedule(self)
}

// SemSignal returns a token to the semaphore, waking the highest-priority
// blocked process. A woken process of strictly higher priority takes the
// CPU before SemSignal returns to the caller. An invalid id aborts the
// caller.
func (s *Sys) SemSignal(sem uint32) {
	self := s.m.enter()
	s.m.semSignal(s.level, sem)
	s.m.reschedule(self)
}

// Delay suspends the caller for n timer ticks; n == 0 is a no-op.
func (s *Sys) Delay(n uint32) {
	self := s.m.enter()
	s.m.delay(n)
	s.m.reschedule(self)
}

// DoLog writes n bytes at buf to the kernel log with the given severity.
// User callers must pass a readable user-space buffer and a severity no
// higher than MaxLogSeverity; violations abort the caller.
func (s *Sys) DoLog(sev Severity, buf VAddr, n uint64) {
	self := s.m.enter()
	s.m.doLog(s.level, sev, buf, n)
	s.m.reschedule(self)
}

// GetMemInfo reports free kernel heap, free frames and the caller's id.
func (s *Sys) GetMemInfo() MemInfo {
	self := s.m.enter()
	mi := MemInfo{
		HeapFree:   s.m.heap.Avail(),
		FreeFrames: s.m.mem.FreeFrames(),
		PID:        self.id,
	}
	self.context[iRAX] = mi.HeapFree
	self.context[iRDX] = uint64(mi.PID)
	s.m.reschedule(self)
	return mi
}

// BarrierCreate allocates a barrier for nproc processes with the given
// timeout in ticks and returns its id, InvalidID when the descriptors are
// exhausted. nproc == 0 or timeout == 0 aborts the caller.
func (s *Sys) BarrierCreate(nproc, timeout uint32) uint32 {
	self := s.m.enter()
	s.m.barrierCreate(nproc, timeout)
	s.m.reschedule(self)
	return uint32(self.context[iRAX])
}

// Barrier joins the rendezvous. It returns true when all nproc processes
// arrived in time, false when the barrier timed out — immediately, without
// blocking, for arrivals at an already timed-out barrier. An invalid id
// aborts the caller.
func (s *Sys) Barrier(id uint32) bool {
	self := s.m.enter()
	s.m.barrier(id)
	s.m.reschedule(self)
	return self.context[iRAX] != 0
}

// requireSystem aborts the caller when a system-only primitive is invoked
// from user level, the software analog of a closed gate.
func (s *Sys) requireSystem(name string) {
	if s.level != LevelSystem {
		s.m.flog(LogWarn, "%s: protection violation", name)
		s.m.abortSelf(true)
	}
}

// ActivatePE creates an external process bound to irq; prio-MinExtPrio is
// the interrupt vector. Reserved to the IO module.
func (s *Sys) ActivatePE(f Body, a uint64, prio uint32, liv Level, irq int) uint32 {
	self := s.m.enter()
	s.requireSystem("activate_pe")
	s.m.activatePE(f, a, prio, liv, irq)
	s.m.reschedule(self)
	return uint32(self.context[iRAX])
}

// WFI parks the calling external process until its interrupt is next
// delivered. Reserved to the IO module.
func (s *Sys) WFI() {
	self := s.m.enter()
	s.requireSystem("wfi")
	s.m.wfi()
	s.m.reschedule(self)
}

// AbortP terminates the caller flagging an error, with a state dump on the
// log. It does not return.
func (s *Sys) AbortP() {
	s.m.enter()
	s.m.abortSelf(true)
}

// IOPanic reports an unrecoverable error in the IO module; the whole
// machine stops.
func (s *Sys) IOPanic() {
	s.m.enter()
	s.requireSystem("io_panic")
	kpanicf("fatal error in the IO module")
}

// Translate resolves a virtual address through the caller's trie,
// returning 0 when unmapped. Reserved to the IO module.
func (s *Sys) Translate(v VAddr) PAddr {
	self := s.m.enter()
	s.requireSystem("translate")
	pa := s.m.mem.translate(self.root, v)
	self.context[iRAX] = uint64(pa)
	s.m.reschedule(self)
	return pa
}

// Access verifies that [begin, begin+dim) is fully mapped for the running
// process with the user bit, the write bit when writeable is set and,
// when shared is set, containment in user/shared. Reserved to the IO
// module, which must not fault on a user-supplied address.
func (s *Sys) Access(begin VAddr, dim uint64, writeable, shared bool) bool {
	self := s.m.enter()
	s.requireSystem("access")
	ok := s.m.mem.checkAccess(self.root, begin, dim, writeable, shared)
	if ok {
		self.context[iRAX] = 1
	} else {
		self.context[iRAX] = 0
	}
	s.m.reschedule(self)
	return ok
}

// FillGate installs an IO primitive at the given gate type; only types in
// [0x40, 0x4F] are available and a type can be claimed once. Reserved to
// the IO module.
func (s *Sys) FillGate(tipo uint8, fn GateFn) bool {
	self := s.m.enter()
	s.requireSystem("fill_gate")
	ok := s.m.fillGate(tipo, fn)
	s.m.reschedule(self)
	return ok
}

// Gate invokes the IO primitive installed at tipo. An absent gate aborts
// the caller. The handler runs at system level, whatever the caller's
// level: that is the whole point of a gate.
func (s *Sys) Gate(tipo uint8, a1, a2, a3 uint64) uint64 {
	g := s.m.gates[tipo]
	if !g.present || g.fn == nil {
		s.m.enter()
		s.m.flog(LogWarn, "gate %#02x not installed", tipo)
		s.m.abortSelf(true)
	}
	return g.fn(s.m.sysSys, a1, a2, a3)
}

// Wrappers for the IO primitives at their conventional gate types.

func (s *Sys) ReadHDN(buf VAddr, lba uint32, nsec uint8) {
	s.Gate(IOTypeHDR, uint64(buf), uint64(lba), uint64(nsec))
}

func (s *Sys) WriteHDN(buf VAddr, lba uint32, nsec uint8) {
	s.Gate(IOTypeHDW, uint64(buf), uint64(lba), uint64(nsec))
}

func (s *Sys) DMAReadHDN(buf VAddr, lba uint32, nsec uint8) {
	s.Gate(IOTypeDMAHDR, uint64(buf), uint64(lba), uint64(nsec))
}

func (s *Sys) DMAWriteHDN(buf VAddr, lba uint32, nsec uint8) {
	s.Gate(IOTypeDMAHDW, uint64(buf), uint64(lba), uint64(nsec))
}

func (s *Sys) ReadConsole(buf VAddr, cap uint64) uint64 {
	return s.Gate(IOTypeRCon, uint64(buf), cap, 0)
}

func (s *Sys) WriteConsole(buf VAddr, n uint64) {
	s.Gate(IOTypeWCon, uint64(buf), n, 0)
}

func (s *Sys) IniConsole(attr uint8) {
	s.Gate(IOTypeIniC, uint64(attr), 0, 0)
}

func (s *Sys) GetIOMemInfo() uint64 {
	return s.Gate(IOTypeGMI, 0, 0, 0)
}

// MemRead copies len(b) bytes from the running process's virtual address v
// into b, reporting false when any page is unmapped.
func (s *Sys) MemRead(v VAddr, b []byte) bool {
	return s.m.copyVirt(v, b, false)
}

// MemWrite copies b into the running process's virtual memory at v,
// reporting false when any page is unmapped.
func (s *Sys) MemWrite(v VAddr, b []byte) bool {
	return s.m.copyVirt(v, b, true)
}

// copyVirt moves bytes between Go memory and the running process's
// virtual memory, page by page through its trie.
func (m *Machine) copyVirt(v VAddr, b []byte, write bool) bool {
	root := m.running.root
	for len(b) > 0 {
		pa := m.mem.translate(root, v)
		if pa == 0 {
			return false
		}
		n := PageSize - int(uint64(v)&(PageSize-1))
		if n > len(b) {
			n = len(b)
		}
		if write {
			m.mem.WritePhys(pa, b[:n])
		} else {
			m.mem.ReadPhys(pa, b[:n])
		}
		b = b[n:]
		v += VAddr(n)
	}
	return true
}

// Flog writes to the kernel log on behalf of module code; system level
// only (user processes go through DoLog, which vets its parameters).
func (s *Sys) Flog(sev Severity, format string, args ...any) {
	s.requireSystem("flog")
	s.m.flog(sev, format, args...)
}

// IOHeapBase returns the base of the IO-module heap.
func (s *Sys) IOHeapBase() VAddr { return s.m.ioHeapBase }

// UserHeapBase returns the base of the user-module heap.
func (s *Sys) UserHeapBase() VAddr { return s.m.userHeapBase }

// GateFn is the shape of an IO primitive installed with FillGate. The Sys
// argument runs at system level on behalf of the interrupted process.
type GateFn func(s *Sys, a1, a2, a3 uint64) uint64

type gate struct {
	present bool
	fn      GateFn
}

func (m *Machine) fillGate(tipo uint8, fn GateFn) bool {
	m.running.context[iRAX] = 0
	if tipo&0xF0 != 0x40 {
		m.flog(LogWarn, "invalid gate type %#02x (must be 0x4*)", tipo)
		return false
	}
	if m.gates[tipo].present {
		m.flog(LogWarn, "gate %#02x busy", tipo)
		return false
	}
	m.gates[tipo] = gate{present: true, fn: fn}
	m.running.context[iRAX] = 1
	return true
}

// doLog is the DoLog primitive: user callers get their buffer and
// severity vetted before anything reaches the log.
func (m *Machine) doLog(callerLevel Level, sev Severity, buf VAddr, n uint64) {
	if callerLevel == LevelUser &&
		!m.mem.checkAccess(m.running.root, buf, n, false, false) {
		m.flog(LogWarn, "log: invalid parameters")
		m.abortSelf(true)
		return
	}
	if sev > MaxLogSeverity {
		m.flog(LogWarn, "log: invalid severity %d", sev)
		m.abortSelf(true)
		return
	}
	b := make([]byte, n)
	m.copyVirt(buf, b, false)
	m.flog(sev, "%s", b)
}
