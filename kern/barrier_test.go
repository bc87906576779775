package kern

import "testing"

// The barrier scenarios below pin down the exact semantics of the timed
// rendezvous: who wakes when, with which answer, and what state the
// barrier is left in.

func TestBarrierRendezvousSameTick(t *testing.T) {
	var m *Machine
	var r0, r1 bool
	var t0, t1 uint64
	body := func(s *Sys, _ uint64) {
		id := s.BarrierCreate(2, 100)
		done := s.SemInit(0)
		s.ActivateP(func(s *Sys, _ uint64) {
			r0 = s.Barrier(id)
			t0 = s.Uptime()
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.ActivateP(func(s *Sys, _ uint64) {
			r1 = s.Barrier(id)
			t1 = s.Uptime()
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.SemWait(done)
		s.SemWait(done)
		s.TerminateP()
	}
	m = newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if !r0 || !r1 {
		t.Fatalf("rendezvous answers %v %v, expected true true", r0, r1)
	}
	if t0 != 0 || t1 != 0 {
		t.Errorf("rendezvous at ticks %d %d, expected 0 0", t0, t1)
	}
	if m.suspended != nil {
		t.Error("a delay-queue node survived the rendezvous")
	}
	if b := m.barriers[0]; b.arrived != 0 || b.first != nil {
		t.Errorf("barrier not reset: arrived=%d first=%v", b.arrived, b.first)
	}
}

func TestBarrierReusedBackToBack(t *testing.T) {
	results := [2][2]bool{}
	runBody(t, func(s *Sys, _ uint64) {
		id := s.BarrierCreate(2, 100)
		done := s.SemInit(0)
		runner := func(who uint64) Body {
			return func(s *Sys, _ uint64) {
				for round := 0; round < 2; round++ {
					results[who][round] = s.Barrier(id)
				}
				s.SemSignal(done)
				s.TerminateP()
			}
		}
		s.ActivateP(runner(0), 0, 5, LevelUser)
		s.ActivateP(runner(1), 0, 5, LevelUser)
		s.SemWait(done)
		s.SemWait(done)
		s.TerminateP()
	})
	for who := 0; who < 2; who++ {
		for round := 0; round < 2; round++ {
			if !results[who][round] {
				t.Errorf("process %d round %d returned false", who, round)
			}
		}
	}
}

func TestBarrierLoneArriverTimesOut(t *testing.T) {
	var m *Machine
	var r bool
	var woke uint64
	body := func(s *Sys, _ uint64) {
		id := s.BarrierCreate(2, 5)
		r = s.Barrier(id)
		woke = s.Uptime()
		s.TerminateP()
	}
	m = newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if r {
		t.Error("the lone arriver got true from a timed-out barrier")
	}
	if woke != 5 {
		t.Errorf("woke at tick %d, expected 5", woke)
	}
	b := m.barriers[0]
	if !b.bad {
		t.Error("barrier should be bad after the timeout")
	}
	if b.first != nil {
		t.Error("barrier anchor not cleared after the timeout")
	}
}

func TestBarrierTimeoutWakesAllWaiters(t *testing.T) {
	var woke [2]uint64
	var res [2]bool
	runBody(t, func(s *Sys, _ uint64) {
		id := s.BarrierCreate(3, 5)
		done := s.SemInit(0)
		arriver := func(who uint64) Body {
			return func(s *Sys, _ uint64) {
				res[who] = s.Barrier(id)
				woke[who] = s.Uptime()
				s.SemSignal(done)
				s.TerminateP()
			}
		}
		s.ActivateP(arriver(0), 0, 5, LevelUser)
		s.ActivateP(arriver(1), 0, 5, LevelUser)
		// the third never arrives
		s.SemWait(done)
		s.SemWait(done)
		s.TerminateP()
	})
	for who := 0; who < 2; who++ {
		if res[who] {
			t.Errorf("process %d got true from a timed-out barrier", who)
		}
		if woke[who] != 5 {
			t.Errorf("process %d woke at tick %d, expected 5", who, woke[who])
		}
	}
}

func TestBarrierStaggeredArrivalMakesIt(t *testing.T) {
	var m *Machine
	var t0, t1 uint64
	var r0, r1 bool
	body := func(s *Sys, _ uint64) {
		id := s.BarrierCreate(2, 8)
		done := s.SemInit(0)
		s.ActivateP(func(s *Sys, _ uint64) {
			r0 = s.Barrier(id)
			t0 = s.Uptime()
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.ActivateP(func(s *Sys, _ uint64) {
			s.Delay(4)
			r1 = s.Barrier(id)
			t1 = s.Uptime()
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.SemWait(done)
		s.SemWait(done)
		s.TerminateP()
	}
	m = newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if !r0 || !r1 {
		t.Fatalf("answers %v %v, expected true true", r0, r1)
	}
	if t0 != 4 || t1 != 4 {
		t.Errorf("returned at ticks %d %d, expected 4 4", t0, t1)
	}
	if m.suspended != nil {
		t.Error("a delay-queue node survived the rendezvous")
	}
}

func TestBarrierLateArriverSeesBadAndResets(t *testing.T) {
	var m *Machine
	var tw [3]uint64
	var res [3]bool
	body := func(s *Sys, _ uint64) {
		id := s.BarrierCreate(3, 8)
		done := s.SemInit(0)
		arriver := func(who uint64, wait uint32) Body {
			return func(s *Sys, _ uint64) {
				s.Delay(wait)
				res[who] = s.Barrier(id)
				tw[who] = s.Uptime()
				s.SemSignal(done)
				s.TerminateP()
			}
		}
		s.ActivateP(arriver(0, 0), 0, 5, LevelUser)
		s.ActivateP(arriver(1, 4), 0, 5, LevelUser)
		s.ActivateP(arriver(2, 12), 0, 5, LevelUser)
		s.SemWait(done)
		s.SemWait(done)
		s.SemWait(done)
		s.TerminateP()
	}
	m = newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if res[0] || res[1] || res[2] {
		t.Errorf("answers %v, expected all false", res)
	}
	if tw[0] != 8 || tw[1] != 8 {
		t.Errorf("blocked arrivers woke at ticks %d %d, expected 8 8", tw[0], tw[1])
	}
	// the last straggler is refused without blocking
	if tw[2] != 12 {
		t.Errorf("the straggler returned at tick %d, expected 12", tw[2])
	}
	b := m.barriers[0]
	if b.bad || b.arrived != 0 {
		t.Errorf("barrier not healthy after the last straggler: bad=%v arrived=%d", b.bad, b.arrived)
	}
}

func TestBarrierReuseAfterTimeout(t *testing.T) {
	var first, second [2]bool
	runBody(t, func(s *Sys, _ uint64) {
		id := s.BarrierCreate(2, 4)
		done := s.SemInit(0)
		go0 := s.SemInit(0)
		s.ActivateP(func(s *Sys, _ uint64) {
			first[0] = s.Barrier(id) // times out at tick 4
			s.SemWait(go0)           // wait for the partner's refused call
			second[0] = s.Barrier(id)
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.ActivateP(func(s *Sys, _ uint64) {
			s.Delay(12)
			first[1] = s.Barrier(id) // refused immediately, resets the barrier
			s.SemSignal(go0)
			second[1] = s.Barrier(id)
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.SemWait(done)
		s.SemWait(done)
		s.TerminateP()
	})
	if first[0] || first[1] {
		t.Errorf("first round answers %v, expected false false", first)
	}
	if !second[0] || !second[1] {
		t.Errorf("second round answers %v, expected true true", second)
	}
}

func TestBarrierInvalidIDAborts(t *testing.T) {
	m := runBody(t, func(s *Sys, _ uint64) {
		s.ActivateP(func(s *Sys, _ uint64) {
			s.Barrier(10) // never created
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.TerminateP()
	})
	if !hasEvent(m, "abort") {
		t.Fatal("joining a nonexistent barrier must abort the caller")
	}
}

func TestBarrierCreateRejectsZeroes(t *testing.T) {
	m := runBody(t, func(s *Sys, _ uint64) {
		s.ActivateP(func(s *Sys, _ uint64) {
			s.BarrierCreate(0, 10)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.TerminateP()
	})
	if !hasEvent(m, "abort") {
		t.Fatal("a zero process count must abort the caller")
	}
}

func TestBarrierAnchorOwnsExactlyOneTimerNode(t *testing.T) {
	var m *Machine
	var nodes int
	body := func(s *Sys, _ uint64) {
		id := s.BarrierCreate(2, 50)
		done := s.SemInit(0)
		s.ActivateP(func(s *Sys, _ uint64) {
			s.Barrier(id)
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.Delay(2) // the anchor is blocked by now
		nodes = 0
		for r := m.suspended; r != nil; r = r.next {
			if r.proc.barrierID == id {
				nodes++
			}
		}
		s.ActivateP(func(s *Sys, _ uint64) {
			s.Barrier(id)
			s.SemSignal(done)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.SemWait(done)
		s.SemWait(done)
		s.TerminateP()
	}
	m = newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if nodes != 1 {
		t.Fatalf("anchor owned %d delay-queue nodes, expected exactly 1", nodes)
	}
}
