package kern

import "github.com/arctir/kmux/hw"

// activatePE creates an external process: a system-level process bound to
// an IRQ, whose priority encodes the interrupt vector it is reached
// through. The process is not readied; it runs when its interrupt first
// arrives, and parks itself again with WFI.
func (m *Machine) activatePE(f Body, a uint64, prio uint32, liv Level, irq int) {
	self := m.running
	self.context[iRAX] = uint64(InvalidID)

	if prio < MinExtPrio || prio > MaxExtPrio {
		m.flog(LogWarn, "invalid priority: %d", prio)
		return
	}
	if liv != LevelUser && liv != LevelSystem {
		m.flog(LogWarn, "invalid level: %d", liv)
		return
	}
	if irq < 0 || irq >= hw.MaxIRQ {
		m.flog(LogWarn, "invalid irq %d (max %d)", irq, hw.MaxIRQ)
		return
	}
	// a non-nil slot means the irq is already handled, by another
	// external process or by a driver
	if m.boundIRQ[irq] != nil {
		m.flog(LogWarn, "irq %d busy", irq)
		return
	}
	// the vector must be free too
	vector := uint16(prio - MinExtPrio)
	if m.gates[vector].present {
		m.flog(LogWarn, "vector %#02x busy", vector)
		return
	}

	p := m.createProc(f, a, prio, liv)
	if p == nil {
		return
	}
	p.waitingIRQ = true

	// build the chain irq -> vector -> handler -> process, then unmask:
	// nothing can deliver to a half-built binding because the slot and
	// the mask change before the unmask
	m.apic.SetVect(irq, uint8(vector))
	m.gates[vector].present = true
	m.boundIRQ[irq] = p
	m.apic.SetMask(irq, false)

	m.flog(LogInfo, "extern=%d entry=%#x(%d) prio=%d (vector=%#2x) liv=%s irq=%d",
		p.id, entryPC(f), a, prio, vector, liv, irq)

	self.context[iRAX] = uint64(p.id)
}

// wfi parks the running external process until its interrupt is next
// delivered: it sits in no queue, flagged as waiting-on-IRQ, and delivery
// makes it the running process directly.
func (m *Machine) wfi() {
	m.running.waitingIRQ = true
	m.schedule()
}
