package kern

// barrierDesc is a timed rendezvous of nproc processes. The timeout is
// anchored on the first arriver: one delay-queue node, owned by that
// process, represents the whole barrier's timeout, which keeps
// cancellation on a successful rendezvous O(1).
type barrierDesc struct {
	nproc   uint32
	arrived uint32
	timeout uint32
	bad     bool
	first   *Proc
	waiting procQueue
}

func (m *Machine) barrierCreate(nproc, timeout uint32) {
	if timeout == 0 || nproc == 0 {
		m.flog(LogWarn, "invalid barrier parameters: nproc=%d timeout=%d", nproc, timeout)
		m.abortSelf(true)
		return
	}

	if m.barrierNext >= MaxBarriers {
		m.flog(LogWarn, "too many barriers")
		m.running.context[iRAX] = uint64(InvalidID)
		return
	}

	m.running.context[iRAX] = uint64(m.barrierNext)
	b := &m.barriers[m.barrierNext]
	m.barrierNext++

	b.nproc = nproc
	b.arrived = 0
	b.timeout = timeout
	b.bad = false
	b.first = nil
	b.waiting = procQueue{}
}

func (m *Machine) barrier(id uint32) {
	if id >= m.barrierNext {
		m.flog(LogWarn, "invalid barrier id: %d", id)
		m.abortSelf(true)
		return
	}

	self := m.running
	b := &m.barriers[id]

	b.arrived++

	if b.bad {
		// a timed-out barrier refuses arrivals without blocking; once
		// the last straggler has reported in, it is healthy again
		self.context[iRAX] = 0
		if b.arrived == b.nproc {
			b.bad = false
			b.arrived = 0
		}
		return
	}

	if b.first == nil {
		// the anchor arrival: its delay-queue node is the barrier's
		// timeout
		b.first = self
		self.barrierID = id
		a := m.heap.Alloc(timerReqBytes)
		if a == 0 {
			kpanicf("out of kernel heap allocating a barrier timeout")
		}
		m.insertTimerReq(&timerReq{delta: b.timeout, proc: self, heapAddr: a})
	}

	b.waiting.insert(self)
	if b.arrived == b.nproc {
		// rendezvous: cancel the timeout and release everyone with a
		// positive answer
		m.removeTimerReq(b.first)
		b.first.barrierID = InvalidID
		b.first = nil
		for w := b.waiting.pop(); w != nil; w = b.waiting.pop() {
			w.context[iRAX] = 1
			m.ready.insert(w)
		}
		b.arrived = 0
	}
	m.schedule()
}

// checkBarrier runs from the timer driver on a process whose delay
// expired. If the process anchors a barrier, the timeout has fired: every
// waiter is released with a negative answer (the timer itself readies the
// anchor) and the barrier goes bad until all nproc arrivals have been
// seen — unless a rendezvous raced the same tick, which counts as a normal
// close.
func (m *Machine) checkBarrier(p *Proc) {
	if p.barrierID == InvalidID {
		return
	}

	b := &m.barriers[p.barrierID]
	p.barrierID = InvalidID

	for w := b.waiting.pop(); w != nil; w = b.waiting.pop() {
		w.context[iRAX] = 0
		if w != p {
			m.ready.insert(w)
		}
	}
	b.first = nil
	if b.arrived == b.nproc {
		b.arrived = 0
	} else {
		b.bad = true
	}
}
