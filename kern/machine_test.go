package kern

import (
	"testing"
)

// stubIOModule is the smallest IO module a machine will boot with: it
// signals the synchronization semaphore and leaves.
func stubIOModule() Module {
	return Module{
		Entry: func(s *Sys, semIO uint64) {
			s.SemSignal(uint32(semIO))
			s.TerminateP()
		},
		Segments: []Segment{{VAddr: IOSharedBase(), MemSize: PageSize, Writable: true}},
		HeapSize: PageSize,
	}
}

func userTestModule(body Body) Module {
	return Module{
		Entry:    body,
		Segments: []Segment{{VAddr: UserSharedBase(), MemSize: PageSize, Writable: true}},
		HeapSize: 16 * PageSize,
	}
}

func newTestMachine(body Body) *Machine {
	return New(Config{
		MemSize:    4 * MiB,
		IOModule:   stubIOModule(),
		UserModule: userTestModule(body),
	})
}

func runBody(t *testing.T, body Body) *Machine {
	t.Helper()
	m := newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	return m
}

func TestBootAndShutdown(t *testing.T) {
	ran := false
	m := runBody(t, func(s *Sys, _ uint64) {
		ran = true
		s.TerminateP()
	})
	if !ran {
		t.Fatal("the user main process never ran")
	}
	if m.ProcCount() != 0 {
		t.Fatalf("live processes after shutdown: %d, expected 0", m.ProcCount())
	}
}

func TestCreateTerminateRoundTrip(t *testing.T) {
	var before, after MemInfo
	runBody(t, func(s *Sys, _ uint64) {
		before = s.GetMemInfo()
		id := s.ActivateP(func(s *Sys, _ uint64) {
			s.TerminateP()
		}, 0, 5, LevelUser)
		if id == InvalidID {
			panic("activate failed")
		}
		s.Delay(2)
		after = s.GetMemInfo()
		s.TerminateP()
	})
	if before.HeapFree != after.HeapFree {
		t.Errorf("kernel heap leaked: before %d, after %d", before.HeapFree, after.HeapFree)
	}
	if before.FreeFrames != after.FreeFrames {
		t.Errorf("frames leaked: before %d, after %d", before.FreeFrames, after.FreeFrames)
	}
}

func TestProcIDsReusedLate(t *testing.T) {
	var ids []uint32
	runBody(t, func(s *Sys, _ uint64) {
		done := s.SemInit(0)
		for i := 0; i < 3; i++ {
			id := s.ActivateP(func(s *Sys, _ uint64) {
				s.SemSignal(done)
				s.TerminateP()
			}, 0, 5, LevelUser)
			ids = append(ids, id)
			s.SemWait(done)
		}
		s.TerminateP()
	})
	if len(ids) != 3 {
		t.Fatalf("expected 3 creations, got %d", len(ids))
	}
	// cyclic first-fit: the id just freed must not be handed out again
	// while fresh ones remain
	if ids[0] == ids[1] || ids[1] == ids[2] || ids[0] == ids[2] {
		t.Errorf("ids reused immediately: %v", ids)
	}
	if !(ids[0] < ids[1] && ids[1] < ids[2]) {
		t.Errorf("ids not handed out in advancing order: %v", ids)
	}
}

func TestSemWakeOrder(t *testing.T) {
	var order []uint64
	runBody(t, func(s *Sys, _ uint64) {
		sem := s.SemInit(0)
		worker := func(s *Sys, who uint64) {
			s.SemWait(sem)
			order = append(order, who)
			s.TerminateP()
		}
		s.ActivateP(worker, 1, 10, LevelUser)
		s.ActivateP(worker, 2, 10, LevelUser)
		s.ActivateP(worker, 3, 20, LevelUser)
		// let all three block
		s.Delay(1)
		s.SemSignal(sem)
		s.SemSignal(sem)
		s.SemSignal(sem)
		s.TerminateP()
	})
	want := []uint64{3, 1, 2} // priority order, FIFO within a tie
	if len(order) != 3 {
		t.Fatalf("expected 3 wake-ups, got %d", len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("wake order %v, expected %v", order, want)
		}
	}
}

func TestSemCounterQueueBalance(t *testing.T) {
	var m *Machine
	var counter int
	var queued int
	runBody2 := func(s *Sys, _ uint64) {
		sem := s.SemInit(0)
		worker := func(s *Sys, _ uint64) {
			s.SemWait(sem)
			s.TerminateP()
		}
		s.ActivateP(worker, 0, 10, LevelUser)
		s.ActivateP(worker, 0, 10, LevelUser)
		s.Delay(1) // both block while we sleep
		counter = m.sems[sem].counter
		queued = m.sems[sem].blocked.len()
		s.SemSignal(sem)
		s.SemSignal(sem)
		s.TerminateP()
	}
	m = newTestMachine(runBody2)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if counter != -2 {
		t.Errorf("counter with two blocked waiters: %d, expected -2", counter)
	}
	if queued != 2 {
		t.Errorf("queued waiters: %d, expected 2", queued)
	}
}

func TestSemSignalPreemptsHigherPriorityWakee(t *testing.T) {
	var order []string
	runBody(t, func(s *Sys, _ uint64) {
		sem := s.SemInit(0)
		s.ActivateP(func(s *Sys, _ uint64) { // the high-priority waiter
			s.SemWait(sem)
			order = append(order, "waiter")
			s.TerminateP()
		}, 0, 20, LevelUser)
		s.ActivateP(func(s *Sys, _ uint64) { // the low-priority signaler
			order = append(order, "before-signal")
			s.SemSignal(sem)
			order = append(order, "after-signal")
			s.TerminateP()
		}, 0, 10, LevelUser)
		s.TerminateP()
	})
	want := []string{"before-signal", "waiter", "after-signal"}
	if len(order) != len(want) {
		t.Fatalf("order %v, expected %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order %v, expected %v", order, want)
		}
	}
}

func TestSemSignalKeepsCPUOnEqualPriority(t *testing.T) {
	var order []string
	runBody(t, func(s *Sys, _ uint64) {
		sem := s.SemInit(0)
		s.ActivateP(func(s *Sys, _ uint64) {
			s.SemWait(sem)
			order = append(order, "waiter")
			s.TerminateP()
		}, 0, 10, LevelUser)
		s.ActivateP(func(s *Sys, _ uint64) {
			order = append(order, "before-signal")
			s.SemSignal(sem)
			order = append(order, "after-signal")
			s.TerminateP()
		}, 0, 10, LevelUser)
		s.TerminateP()
	})
	// on a tie the signaler goes back to the ready head and keeps running
	want := []string{"before-signal", "after-signal", "waiter"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("order %v, expected %v", order, want)
		}
	}
}

func TestMatchedWaitSignalRestoresCounter(t *testing.T) {
	var m *Machine
	var final int
	body := func(s *Sys, _ uint64) {
		sem := s.SemInit(3)
		s.SemWait(sem)
		s.SemWait(sem)
		s.SemSignal(sem)
		s.SemSignal(sem)
		final = m.sems[sem].counter
		s.TerminateP()
	}
	m = newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if final != 3 {
		t.Fatalf("counter after matched wait/signal: %d, expected 3", final)
	}
}

func TestDelayZeroIsANoOp(t *testing.T) {
	var m *Machine
	var before, after uint64
	var pending bool
	body := func(s *Sys, _ uint64) {
		before = s.Uptime()
		s.Delay(0)
		after = s.Uptime()
		pending = m.suspended != nil
		s.TerminateP()
	}
	m = newTestMachine(body)
	if err := m.Run(); err != nil {
		t.Fatalf("machine run failed: %s", err)
	}
	if before != after {
		t.Errorf("Delay(0) advanced time from %d to %d", before, after)
	}
	if pending {
		t.Error("Delay(0) left a node on the delay queue")
	}
}

func TestDelayWakesAtTheRightTick(t *testing.T) {
	var woke uint64
	runBody(t, func(s *Sys, _ uint64) {
		s.Delay(7)
		woke = s.Uptime()
		s.TerminateP()
	})
	if woke != 7 {
		t.Fatalf("woke at tick %d, expected 7", woke)
	}
}

func TestDeltaListOrderOnSharedExpiry(t *testing.T) {
	var order []string
	runBody(t, func(s *Sys, _ uint64) {
		s.ActivateP(func(s *Sys, _ uint64) {
			s.Delay(3)
			order = append(order, "first-requester")
			s.TerminateP()
		}, 0, 10, LevelUser)
		s.ActivateP(func(s *Sys, _ uint64) {
			s.Delay(3)
			order = append(order, "second-requester")
			s.TerminateP()
		}, 0, 10, LevelUser)
		s.TerminateP()
	})
	// equal expiry sorts the later request first in the delta list, and
	// the ready queue keeps that order for equal priorities
	want := []string{"second-requester", "first-requester"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("wake order %v, expected %v", order, want)
		}
	}
}

func TestInvalidSemaphoreAbortsCaller(t *testing.T) {
	m := runBody(t, func(s *Sys, _ uint64) {
		s.ActivateP(func(s *Sys, _ uint64) {
			s.SemWait(MaxSem) // a system-pool id, invisible from user level
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.TerminateP()
	})
	if !hasEvent(m, "abort") {
		t.Fatal("expected the offending process to be aborted")
	}
}

func TestUserCannotCreateSystemProcess(t *testing.T) {
	created := false
	m := runBody(t, func(s *Sys, _ uint64) {
		s.ActivateP(func(s *Sys, _ uint64) {
			s.ActivateP(func(s *Sys, _ uint64) {
				created = true
				s.TerminateP()
			}, 0, 4, LevelSystem)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.TerminateP()
	})
	if created {
		t.Fatal("a user process created a system process")
	}
	if !hasEvent(m, "abort") {
		t.Fatal("expected the offending process to be aborted")
	}
}

func TestInvalidPriorityAbortsCaller(t *testing.T) {
	m := runBody(t, func(s *Sys, _ uint64) {
		s.ActivateP(func(s *Sys, _ uint64) {
			// above the creator's own priority
			s.ActivateP(func(s *Sys, _ uint64) { s.TerminateP() }, 0, 50, LevelUser)
			s.TerminateP()
		}, 0, 5, LevelUser)
		s.TerminateP()
	})
	if !hasEvent(m, "abort") {
		t.Fatal("expected the offending process to be aborted")
	}
}

func TestHungMachineFaults(t *testing.T) {
	m := newTestMachine(func(s *Sys, _ uint64) {
		dead := s.SemInit(0)
		s.SemWait(dead) // nobody will ever signal
		s.TerminateP()
	})
	err := m.Run()
	if err == nil {
		t.Fatal("a machine with no runnable process and no timers must fault")
	}
	if _, ok := err.(*KernelFault); !ok {
		t.Fatalf("expected a KernelFault, got %v", err)
	}
}

func hasEvent(m *Machine, what string) bool {
	for _, e := range m.Events() {
		if e.What == what {
			return true
		}
	}
	return false
}
