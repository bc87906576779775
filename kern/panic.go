package kern

import "fmt"

// KernelFault is an unrecoverable kernel error: a bug in the kernel
// itself, a violated structural invariant, or an IO-module fatal. It stops
// the whole machine; Machine.Run returns it.
type KernelFault struct {
	Msg string
}

func (e *KernelFault) Error() string { return "kernel fault: " + e.Msg }

// kpanicf raises a kernel fault from anywhere inside the machine.
func kpanicf(format string, args ...any) {
	panic(&KernelFault{Msg: fmt.Sprintf(format, args...)})
}

// recoverFault converts an in-flight kernel fault into an orderly stop:
// the fault is logged with a dump of every process and the machine's Run
// returns it. Anything that is not a KernelFault keeps propagating — that
// would be a bug in the simulator, not in the simulated kernel.
func (m *Machine) recoverFault() {
	r := recover()
	if r == nil {
		return
	}
	kf, ok := r.(*KernelFault)
	if !ok {
		panic(r)
	}
	m.systemPanic(kf)
}

// systemPanic logs the fault, dumps the state of every process and halts
// the machine. A second panic raised while dumping skips the dump.
func (m *Machine) systemPanic(kf *KernelFault) {
	if m.inPanic {
		m.flog(LogErr, "recursive panic. STOP")
		m.stop(kf)
		return
	}
	m.inPanic = true

	m.flog(LogErr, "PANIC: %s", kf.Msg)
	func() {
		// the dump itself reads kernel structures that may be the very
		// thing that broke; a nested fault only cuts the dump short
		defer func() {
			if r := recover(); r != nil {
				m.flog(LogErr, "panic while dumping. STOP")
			}
		}()
		if m.prevRunning != nil {
			m.flog(LogErr, "  live processes: %d", m.procCount)
			m.flog(LogErr, "------ RUNNING PROCESS ------")
			m.processDump(m.prevRunning, LogErr)
			m.flog(LogErr, "------ OTHER PROCESSES ------")
			for id := 0; id < MaxProc; id++ {
				if p := m.procTable[id]; p != nil && p != m.prevRunning {
					m.processDump(p, LogErr)
				}
			}
		}
	}()
	m.stop(kf)
}

func (m *Machine) stop(kf *KernelFault) {
	m.runErr = kf
	m.doneOnce.Do(func() { close(m.done) })
}
