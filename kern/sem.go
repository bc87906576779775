package kern

// semDesc is a semaphore: counter >= 0 is the number of tokens; counter <
// 0 means |counter| processes sit in the blocked queue.
type semDesc struct {
	counter int
	blocked procQueue
}

// allocSem reserves the next sequential slot in the pool matching the
// caller's privilege. Semaphores are never deallocated, so remembering how
// many were handed out per pool is enough. The system pool occupies
// [MaxSem, 2*MaxSem).
func (m *Machine) allocSem(callerLevel Level) uint32 {
	if callerLevel == LevelUser {
		if m.semUser >= MaxSem {
			return InvalidID
		}
		i := m.semUser
		m.semUser++
		return i
	}
	if m.semSys >= MaxSem {
		return InvalidID
	}
	i := m.semSys + MaxSem
	m.semSys++
	return i
}

// semValid reports whether sem names an allocated semaphore visible at the
// caller's privilege: user callers cannot observe the system pool.
func (m *Machine) semValid(sem uint32, callerLevel Level) bool {
	return sem < m.semUser ||
		(callerLevel == LevelSystem && sem >= MaxSem && sem-MaxSem < m.semSys)
}

func (m *Machine) semInit(callerLevel Level, val int) {
	i := m.allocSem(callerLevel)
	if i != InvalidID {
		m.sems[i].counter = val
	}
	m.running.context[iRAX] = uint64(i)
}

func (m *Machine) semWait(callerLevel Level, sem uint32) {
	if !m.semValid(sem, callerLevel) {
		m.flog(LogWarn, "invalid semaphore: %d", sem)
		m.abortSelf(true)
		return
	}

	s := &m.sems[sem]
	s.counter--

	if s.counter < 0 {
		s.blocked.insert(m.running)
		m.schedule()
	}
}

func (m *Machine) semSignal(callerLevel Level, sem uint32) {
	if !m.semValid(sem, callerLevel) {
		m.flog(LogWarn, "invalid semaphore: %d", sem)
		m.abortSelf(true)
		return
	}

	s := &m.sems[sem]
	s.counter++

	if s.counter <= 0 {
		woken := s.blocked.pop()
		m.pushReady() // preemption
		m.ready.insert(woken)
		m.schedule() // preemption
	}
}
