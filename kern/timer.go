package kern

// timerReq is one pending delay. The suspended list is ordered by absolute
// wake-up time; each node stores its delay relative to the previous node,
// so a tick only needs to decrement the head.
type timerReq struct {
	delta    uint32
	proc     *Proc
	next     *timerReq
	heapAddr uint64
}

// insertTimerReq inserts p keeping the delta encoding: the walk subtracts
// each node's delta from the residue, and the node after the insertion
// point gives up the residue in turn.
func (m *Machine) insertTimerReq(p *timerReq) {
	var prev *timerReq
	r := m.suspended
	for r != nil && p.delta > r.delta {
		p.delta -= r.delta
		prev = r
		r = r.next
	}
	p.next = r
	if prev != nil {
		prev.next = p
	} else {
		m.suspended = p
	}
	if r != nil {
		r.delta -= p.delta
	}
}

// removeTimerReq drops the node owned by p, if any, folding its delta into
// the follower. A successful barrier rendezvous uses this to cancel the
// anchor's timeout in a single walk.
func (m *Machine) removeTimerReq(p *Proc) {
	r := &m.suspended
	for *r != nil && (*r).proc != p {
		r = &(*r).next
	}
	if t := *r; t != nil {
		*r = t.next
		if *r != nil {
			(*r).delta += t.delta
		}
		m.heap.Free(t.heapAddr)
	}
}

func (m *Machine) delay(n uint32) {
	// a zero delay asks for nothing
	if n == 0 {
		return
	}

	a := m.heap.Alloc(timerReqBytes)
	if a == 0 {
		kpanicf("out of kernel heap allocating a timer request")
	}
	p := &timerReq{delta: n, proc: m.running, heapAddr: a}
	m.insertTimerReq(p)
	m.schedule()
}

// timerTick is the timer driver: it runs on every tick, in bounded time,
// as an in-kernel path rather than an external process. The interrupted
// process goes to the ready head; then the list head ages by one and every
// expired request wakes its owner, with the barrier hook run first.
func (m *Machine) timerTick() {
	m.pushReady()

	if m.suspended != nil {
		m.suspended.delta--
	}

	for m.suspended != nil && m.suspended.delta == 0 {
		r := m.suspended
		m.checkBarrier(r.proc)
		m.ready.insert(r.proc)
		m.event("wake")
		m.suspended = r.next
		m.heap.Free(r.heapAddr)
	}

	m.schedule()
}
