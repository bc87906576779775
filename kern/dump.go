package kern

import "github.com/davecgh/go-spew/spew"

// readMem reads one machine word from v in p's virtual memory, through
// p's own trie; 0 when the address is not mapped. This is the stack
// reader the dump and stack-walk code use, so they work on any process,
// not just the running one.
func (m *Machine) readMem(p *Proc, v VAddr) uint64 {
	pa := m.mem.translate(p.root, v)
	if pa == 0 {
		return 0
	}
	return m.mem.read64(pa)
}

// stackWalk logs the top of p's kernel stack word by word, each line
// prefixed with msg. With the unwinder of a real toolchain unavailable,
// the raw words still pin down where the process stopped.
func (m *Machine) stackWalk(p *Proc, sev Severity, msg string) {
	sp := VAddr(p.context[iRSP])
	for i := 0; i < 8 && sp+VAddr(8*i) < p.kernStack; i++ {
		w := m.readMem(p, sp+VAddr(8*i))
		m.logger.logf(m.tick, p.id, sev, "%s%#016x", msg, w)
	}
}

// processDump logs the state of a process: identity, the IRET frame read
// back from its kernel stack through its own translations, the saved
// registers and a walk of the stack top.
func (m *Machine) processDump(p *Proc, sev Severity) {
	lg := func(format string, args ...any) {
		m.logger.logf(m.tick, p.id, sev, format, args...)
	}

	frame := m.mem.translate(p.root, VAddr(p.context[iRSP]))

	lg("proc %d: entry %#x(%d), level %s, priority %d",
		p.id, entryPC(p.body), p.arg, p.level, p.prio)
	if frame != 0 {
		rip := m.readMem(p, VAddr(p.context[iRSP]))
		cs := m.readMem(p, VAddr(p.context[iRSP])+8)
		rflags := m.readMem(p, VAddr(p.context[iRSP])+16)
		cpl := "SYSTEM"
		if cs == selCodeUser {
			cpl = "USER"
		}
		lg("  RIP=%#x CPL=%s", rip, cpl)
		lg("  RFLAGS=%#x [IF=%v]", rflags, rflags&bitIF != 0)
	} else {
		lg("  cannot read the process stack")
	}
	lg("  RAX=%16x RBX=%16x RCX=%16x RDX=%16x",
		p.context[iRAX], p.context[iRBX], p.context[iRCX], p.context[iRDX])
	lg("  RDI=%16x RSI=%16x RBP=%16x RSP=%16x",
		p.context[iRDI], p.context[iRSI], p.context[iRBP], p.context[iRSP])
	if frame != 0 {
		lg("  stack:")
		m.stackWalk(p, sev, "  > ")
	}

	if m.trace {
		lg("%s", spew.Sdump(ProcState{
			ID:       p.id,
			Level:    p.level,
			Priority: p.prio,
			Root:     p.root,
			Barrier:  p.barrierID,
			Context:  p.context,
		}))
	}
}

// ProcState is the exported snapshot of a descriptor, rendered by spew in
// trace mode and by the UI after a run.
type ProcState struct {
	ID       uint16
	Level    Level
	Priority uint32
	Root     PAddr
	Barrier  uint32
	Context  [nReg]uint64
}

// Snapshot returns the state of every live process.
func (m *Machine) Snapshot() []ProcState {
	var out []ProcState
	for id := 0; id < MaxProc; id++ {
		p := m.procTable[id]
		if p == nil {
			continue
		}
		out = append(out, ProcState{
			ID:       p.id,
			Level:    p.level,
			Priority: p.prio,
			Root:     p.root,
			Barrier:  p.barrierID,
			Context:  p.context,
		})
	}
	return out
}
