// progs holds the user-level demo programs that ship with kmux, plus the
// small support library they share: a user heap behind a mutex semaphore
// and formatted console output.
package progs

import (
	"fmt"

	"github.com/arctir/kmux/kern"
)

// UserLib is the user-mode support library. Its heap hands out buffers in
// user/shared memory, which is what the IO primitives demand of their
// pointers; user code runs with interrupts enabled, hence the mutex.
type UserLib struct {
	heap  *kern.Heap
	mutex uint32
}

// NewUserLib initializes the library over the whole user heap; call it
// once per run.
func NewUserLib(s *kern.Sys) *UserLib {
	u := &UserLib{
		heap:  kern.NewHeap(uint64(s.UserHeapBase()), kern.UsrHeapSize),
		mutex: s.SemInit(1),
	}
	return u
}

// Alloc carves n bytes out of the user heap.
func (u *UserLib) Alloc(s *kern.Sys, n uint64) kern.VAddr {
	s.SemWait(u.mutex)
	a := u.heap.Alloc(n)
	s.SemSignal(u.mutex)
	return kern.VAddr(a)
}

// Free returns a buffer to the user heap.
func (u *UserLib) Free(s *kern.Sys, a kern.VAddr) {
	s.SemWait(u.mutex)
	u.heap.Free(uint64(a))
	s.SemSignal(u.mutex)
}

// Printf formats to the console through WriteConsole, staging the bytes
// in a user-heap buffer.
func (u *UserLib) Printf(s *kern.Sys, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if len(msg) == 0 {
		return
	}
	buf := u.Alloc(s, uint64(len(msg)))
	if buf == 0 {
		return
	}
	s.MemWrite(buf, []byte(msg))
	s.WriteConsole(buf, uint64(len(msg)))
	u.Free(s, buf)
}

// ReadLine reads up to cap characters from the console and returns them
// with the count; count == cap means the line did not fit.
func (u *UserLib) ReadLine(s *kern.Sys, cap uint64) (string, uint64) {
	buf := u.Alloc(s, cap)
	if buf == 0 {
		return "", 0
	}
	n := s.ReadConsole(buf, cap)
	b := make([]byte, n)
	s.MemRead(buf, b)
	u.Free(s, buf)
	return string(b), n
}

// Log sends a message to the kernel log with user severity.
func (u *UserLib) Log(s *kern.Sys, msg string) {
	buf := u.Alloc(s, uint64(len(msg)))
	if buf == 0 {
		return
	}
	s.MemWrite(buf, []byte(msg))
	s.DoLog(kern.LogUser, buf, uint64(len(msg)))
	u.Free(s, buf)
}
