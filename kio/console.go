package kio

import "github.com/arctir/kmux/kern"

// consoleDesc is the state of the console: a mutex serializing the
// primitives, a synchronization semaphore for keyboard reads, and the
// in-flight read.
type consoleDesc struct {
	mutex   uint32
	syncSem uint32
	// where the next character goes
	ptr kern.VAddr
	// characters still to read
	left uint64
	// capacity handed to readConsole
	size uint64
}

// writeConsole puts n characters from buf on the video, under the console
// mutex. Invalid buffers abort the caller.
func (io *IO) writeConsole(s *kern.Sys, buf, n, _ uint64) uint64 {
	d := &io.console

	if !s.Access(kern.VAddr(buf), n, false, false) {
		s.Flog(kern.LogWarn, "writeconsole: invalid parameters: %#x, %d", buf, n)
		s.AbortP()
	}

	s.SemWait(d.mutex)
	b := make([]byte, n)
	s.MemRead(kern.VAddr(buf), b)
	for _, c := range b {
		io.vid.CharWrite(c)
	}
	s.SemSignal(d.mutex)
	return 0
}

// startKbdIn arms a keyboard read into buf.
func (io *IO) startKbdIn(buf kern.VAddr, size uint64) {
	d := &io.console
	d.ptr = buf
	d.left = size
	d.size = size
	io.kbd.EnableIntr()
}

// readConsole reads up to cap characters into buf, stopping at a newline;
// the newline is neither stored in the count nor counted. A return value
// equal to cap means no newline was received. Invalid buffers abort the
// caller.
func (io *IO) readConsole(s *kern.Sys, buf, cap, _ uint64) uint64 {
	d := &io.console

	if !s.Access(kern.VAddr(buf), cap, true, true) {
		s.Flog(kern.LogWarn, "readconsole: invalid parameters: %#x, %d", buf, cap)
		s.AbortP()
	}

	if cap == 0 {
		return 0
	}

	s.SemWait(d.mutex)
	io.startKbdIn(kern.VAddr(buf), cap)
	s.SemWait(d.syncSem)
	rv := d.size - d.left
	s.SemSignal(d.mutex)
	return rv
}

// iniConsole sets the video color attribute; text already written stays.
func (io *IO) iniConsole(s *kern.Sys, attr, _, _ uint64) uint64 {
	io.vid.Clear(uint8(attr))
	return 0
}

// externKbd is the keyboard external process: one character per
// interrupt, echoed to the video, with backspace editing; a newline or a
// full buffer completes the read and wakes the waiting primitive.
func (io *IO) externKbd(s *kern.Sys, _ uint64) {
	d := &io.console
	for {
		io.kbd.DisableIntr()

		a := io.kbd.CharReadIntr()

		done := false
		switch a {
		case 0:
		case '\b':
			if d.left < d.size {
				d.ptr--
				d.left++
				io.vid.StrWrite("\b \b")
			}
		case '\r', '\n':
			done = true
			s.MemWrite(d.ptr, []byte{0})
			io.vid.StrWrite("\r\n")
		default:
			s.MemWrite(d.ptr, []byte{a})
			d.ptr++
			d.left--
			io.vid.CharWrite(a)
			if d.left == 0 {
				done = true
			}
		}
		if done {
			s.SemSignal(d.syncSem)
		} else {
			io.kbd.EnableIntr()
		}
		s.WFI()
	}
}

// kbdInit arms the keyboard and creates its external process.
func (io *IO) kbdInit(s *kern.Sys) bool {
	// no interrupts until a read is armed, and no stale input
	io.kbd.DisableIntr()
	io.kbd.Drain()

	if s.ActivatePE(io.externKbd, 0, kern.MinExtPrio+kern.IntrTypeKbd, kern.LevelSystem, kbdIRQ) == kern.InvalidID {
		s.Flog(kern.LogErr, "kbd: cannot create the keyboard process")
		return false
	}
	s.Flog(kern.LogInfo, "kbd: keyboard initialized")
	return true
}

func (io *IO) vidInit(s *kern.Sys) bool {
	io.vid.Clear(0x07)
	s.Flog(kern.LogInfo, "vid: video initialized")
	return true
}

// consoleInit creates the console semaphores and brings up keyboard and
// video.
func (io *IO) consoleInit(s *kern.Sys) bool {
	d := &io.console

	if d.mutex = s.SemInit(1); d.mutex == kern.InvalidID {
		s.Flog(kern.LogErr, "console: cannot create mutex")
		return false
	}
	if d.syncSem = s.SemInit(0); d.syncSem == kern.InvalidID {
		s.Flog(kern.LogErr, "console: cannot create the sync semaphore")
		return false
	}
	return io.kbdInit(s) && io.vidInit(s)
}
