package kern

import (
	"io"
	"runtime"
	"sync"

	"github.com/arctir/kmux/hw"
)

// kernImageEnd marks the end of the simulated kernel image: the kernel
// heap sits right below it and everything past it (M2) feeds the frame
// allocator.
const kernImageEnd = 64*KiB + KernHeapSize

// kernHeapBase is where the kernel heap starts inside M1.
const kernHeapBase = 64 * KiB

// timerIRQ is the APIC pin driven by the system timer.
const timerIRQ = 2

// driverBusy marks an IRQ slot owned by an in-kernel driver rather than an
// external process. Only the timer uses it.
var driverBusy = &Proc{}

// Event is one entry of the scheduling trace.
type Event struct {
	Tick uint64
	PID  uint16
	What string
}

// Config configures a Machine. Zero values select the defaults.
type Config struct {
	// MemSize is the amount of simulated physical memory.
	MemSize uint64
	// Stride interleaves the free-frame list to stress non-contiguous
	// mappings; 1 (or 0) keeps the list contiguous.
	Stride int
	// LogWriter receives the kernel log; nil discards it.
	LogWriter io.Writer
	// LogLevel is the minimum severity written to LogWriter.
	LogLevel Severity
	// Trace enables verbose descriptor dumps on the log.
	Trace bool
	// APIC is the interrupt controller shared with the device models. A
	// fresh one is created when nil.
	APIC *hw.APIC
	// IOModule and UserModule are the two boot modules.
	IOModule   Module
	UserModule Module
}

// Machine is one simulated computer: memory, interrupt controller and the
// kernel state multiplexing processes over the single CPU. A Machine is
// built with New, runs to completion with Run and can be inspected
// afterwards.
type Machine struct {
	mem    *Mem
	heap   *Heap
	apic   *hw.APIC
	logger *Logger
	trace  bool

	procTable [MaxProc]*Proc
	nextID    uint32
	// number of live processes, excluding dummy, the static init
	// descriptor and external processes (main-system is counted); dummy
	// shuts the machine down when it reaches 0
	procCount uint32

	// the process owning the CPU, and the one whose kernel stack the
	// current kernel entry is running on
	running     *Proc
	prevRunning *Proc
	ready       procQueue
	// root table of the last self-destroyed process, still owning its
	// kernel stack until the next switch completes
	lastTerminated PAddr

	sems    [2 * MaxSem]semDesc
	semUser uint32
	semSys  uint32

	suspended *timerReq
	tick      uint64

	barriers    [MaxBarriers]barrierDesc
	barrierNext uint32

	boundIRQ [hw.MaxIRQ]*Proc
	gates    [256]gate

	initProc Proc

	ioModule     Module
	userModule   Module
	ioEntry      Body
	userEntry    Body
	ioHeapBase   VAddr
	userHeapBase VAddr

	userSys *Sys
	sysSys  *Sys

	events   []Event
	done     chan struct{}
	doneOnce sync.Once
	runErr   error
	inPanic  bool
}

// New builds a machine from cfg. Nothing runs until Run is called.
func New(cfg Config) *Machine {
	if cfg.MemSize == 0 {
		cfg.MemSize = DefaultMemSize
	}
	if cfg.APIC == nil {
		cfg.APIC = hw.NewAPIC()
	}
	m := &Machine{
		mem:    NewMem(cfg.MemSize, kernImageEnd, cfg.Stride),
		heap:   NewHeap(kernHeapBase, KernHeapSize),
		apic:   cfg.APIC,
		logger: NewLogger(cfg.LogWriter, cfg.LogLevel),
		trace:  cfg.Trace,
		done:   make(chan struct{}),
	}
	m.userSys = &Sys{m: m, level: LevelUser}
	m.sysSys = &Sys{m: m, level: LevelSystem}
	m.ioEntry = cfg.IOModule.Entry
	m.userEntry = cfg.UserModule.Entry
	m.ioModule = cfg.IOModule
	m.userModule = cfg.UserModule
	return m
}

// APIC returns the machine's interrupt controller, for wiring device
// models.
func (m *Machine) APIC() *hw.APIC { return m.apic }

// PhysMem returns the simulated physical memory, for wiring DMA-capable
// device models.
func (m *Machine) PhysMem() *Mem { return m.mem }

// physIO adapts Mem to the access interface bus-mastering devices expect.
type physIO struct {
	mm *Mem
}

func (p physIO) Read(a uint64, b []byte)  { p.mm.ReadPhys(PAddr(a), b) }
func (p physIO) Write(a uint64, b []byte) { p.mm.WritePhys(PAddr(a), b) }

// DMA returns the physical-memory port handed to bus-mastering devices.
func (m *Machine) DMA() hw.PhysMemIO { return physIO{m.mem} }

// Events returns the scheduling trace recorded during the run.
func (m *Machine) Events() []Event { return m.events }

// Ticks returns the number of timer ticks elapsed.
func (m *Machine) Ticks() uint64 { return m.tick }

// FreeFrames returns the current size of the free-frame list.
func (m *Machine) FreeFrames() uint64 { return m.mem.FreeFrames() }

// HeapAvail returns the free bytes in the kernel heap.
func (m *Machine) HeapAvail() uint64 { return m.heap.Avail() }

// ProcCount returns the number of counted live processes.
func (m *Machine) ProcCount() uint32 { return m.procCount }

// IOHeapBase returns the base of the IO-module heap, valid after boot.
func (m *Machine) IOHeapBase() VAddr { return m.ioHeapBase }

// UserHeapBase returns the base of the user-module heap, valid after boot.
func (m *Machine) UserHeapBase() VAddr { return m.userHeapBase }

func (m *Machine) event(what string) {
	var pid uint16
	if m.running != nil {
		pid = m.running.id
	}
	m.events = append(m.events, Event{Tick: m.tick, PID: pid, What: what})
}

// Run boots the machine and blocks until shutdown: either the last counted
// process terminated, or a kernel fault stopped everything. The fault, if
// any, is returned.
func (m *Machine) Run() error {
	func() {
		defer m.recoverFault()
		m.boot()
	}()
	<-m.done
	return m.runErr
}

// enter records the kernel entry of the running process: until the next
// switch completes, its kernel stack is the one in use.
func (m *Machine) enter() *Proc {
	m.prevRunning = m.running
	return m.running
}

// schedule picks the next process to own the CPU: the head of the ready
// queue. Only the variable changes here; the switch itself happens at the
// next reschedule, so several schedule calls within one kernel entry are
// harmless.
func (m *Machine) schedule() {
	m.running = m.ready.pop()
}

// pushReady inserts the running process at the head of the ready queue,
// ahead of its equal-priority peers.
func (m *Machine) pushReady() {
	m.ready.pushFront(m.running)
}

// reschedule completes a kernel entry: it delivers at most one pending
// device interrupt, then realizes whatever switch the last schedule call
// decided. The outgoing goroutine hands the run token to the incoming
// process and either blocks on its own token or, if it was destroyed,
// exits. This is the moment the saved state of the next process is loaded.
func (m *Machine) reschedule(self *Proc) {
	m.deliverPending()
	next := m.running
	if next == self && !self.dead {
		return
	}
	m.dispatch(next)
	if self.dead {
		runtime.Goexit()
	}
	<-self.resume
	m.afterSwitch()
}

// dispatch hands the run token to p, starting its goroutine on first use.
func (m *Machine) dispatch(p *Proc) {
	if p == nil {
		kpanicf("no process to dispatch")
	}
	if !p.started {
		p.started = true
		go m.procMain(p)
	}
	p.resume <- struct{}{}
}

// afterSwitch runs as the very first thing on the incoming side of a
// switch, once the outgoing stack is no longer in use: if the previous
// process destroyed itself, its kernel stack and root table can finally be
// torn down.
func (m *Machine) afterSwitch() {
	if m.lastTerminated != 0 {
		m.destroyPrevStack()
	}
}

// procMain is the goroutine of one process. It waits for its first token,
// finishes any deferred teardown, then runs the body. A body that falls
// off its end is terminated as if it had asked for it.
func (m *Machine) procMain(p *Proc) {
	defer m.recoverFault()
	<-p.resume
	m.afterSwitch()
	p.body(m.sysFor(p.level), p.arg)
	m.sysFor(p.level).TerminateP()
}

func (m *Machine) sysFor(l Level) *Sys {
	if l == LevelUser {
		return m.userSys
	}
	return m.sysSys
}

// deliverPending delivers the highest-vector pending unmasked IRQ whose
// bound external process is waiting for it: the interrupted process goes
// to the head of the ready queue and the external process takes the CPU
// directly.
func (m *Machine) deliverPending() {
	irq, ok := m.deliverableIRQ()
	if !ok {
		return
	}
	p := m.boundIRQ[irq]
	m.apic.Ack(irq)
	p.waitingIRQ = false
	m.event("irq")
	m.pushReady()
	m.running = p
}

func (m *Machine) deliverableIRQ() (int, bool) {
	for _, irq := range m.apic.Pending() {
		p := m.boundIRQ[irq]
		if p == nil || p == driverBusy || !p.waitingIRQ {
			continue
		}
		return irq, true
	}
	return 0, false
}

// halt pauses the processor until the next interrupt: if a device
// interrupt is deliverable it will be taken on the way out; otherwise the
// clock advances one tick and the timer driver runs. Only dummy calls
// this.
func (m *Machine) halt() {
	self := m.enter()
	if _, ok := m.deliverableIRQ(); !ok {
		if m.suspended == nil && m.ready.empty() {
			kpanicf("system hung: no runnable process, empty timer queue")
		}
		m.tick++
		m.event("tick")
		m.timerTick()
	}
	m.reschedule(self)
}

// dummyBody idles the machine while counted processes exist, then shuts
// down.
func (m *Machine) dummyBody(_ *Sys, _ uint64) {
	for m.procCount > 0 {
		m.halt()
	}
	m.flog(LogInfo, "shutdown")
	m.doneOnce.Do(func() { close(m.done) })
	runtime.Goexit()
}

// mainSystemBody is the second half of the boot sequence, run as a
// process so that it can block: it starts the timer, brings up the IO
// module and finally the user module.
func (m *Machine) mainSystemBody(s *Sys, _ uint64) {
	m.flog(LogInfo, "starting the system timer")
	m.boundIRQ[timerIRQ] = driverBusy
	m.apic.SetVect(timerIRQ, IntrTypeTimer)
	m.apic.SetMask(timerIRQ, false)

	m.flog(LogInfo, "creating the IO main process")
	syncIO := s.SemInit(0)
	if syncIO == InvalidID {
		kpanicf("cannot allocate the IO synchronization semaphore")
	}
	if id := s.ActivateP(m.ioEntry, uint64(syncIO), MaxExtPrio, LevelSystem); id == InvalidID {
		kpanicf("cannot create the IO main process")
	}
	s.SemWait(syncIO)

	m.flog(LogInfo, "creating the user main process")
	if id := s.ActivateP(m.userEntry, 0, MaxPriority, LevelUser); id == InvalidID {
		kpanicf("cannot create the user main process")
	}
	s.TerminateP()
}
